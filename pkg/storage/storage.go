package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/dodo5517/Prism/pkg/thumb"
	"go.uber.org/zap"
)

// Config carries the Supabase storage credentials, passed in explicitly.
type Config struct {
	BaseURL    string // e.g. https://xyz.supabase.co
	ServiceKey string
	Bucket     string
	Logger     *zap.SugaredLogger
}

// Client uploads and deletes diary illustrations against the object store.
// Upload and Delete are independent, non-transactional calls with no retry;
// failures are reported as ""/false and logged, never raised.
type Client struct {
	conf       Config
	httpClient *http.Client
	now        func() time.Time
}

func New(conf Config) *Client {
	if conf.Logger == nil {
		conf.Logger = zap.NewNop().Sugar()
	}
	return &Client{
		conf:       conf,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		now:        time.Now,
	}
}

// objectKey derives a de-duplicated storage key: millisecond timestamp
// prefix, original extension stripped, fixed .jpg suffix.
func objectKey(filename string, now time.Time) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%d_%s.jpg", now.UnixMilli(), base)
}

// objectPath is the API path shared by upload and delete.
func (c *Client) objectPath(key string) string {
	return "/storage/v1/object/" + c.conf.Bucket + "/" + key
}

// Upload resizes the raw image to the thumbnail format and PUTs it into the
// bucket. Returns the deterministic public URL on success, or "" on any
// failure including an undecodable input image.
func (c *Client) Upload(ctx context.Context, raw []byte, filename string) string {
	if c.conf.BaseURL == "" || c.conf.ServiceKey == "" || c.conf.Bucket == "" {
		c.conf.Logger.Errorw("storage upload skipped: storage is not configured")
		return ""
	}

	resized := thumb.Resize(raw)
	if resized == nil {
		c.conf.Logger.Errorw("storage upload aborted: image could not be resized", "filename", filename)
		return ""
	}

	key := objectKey(filename, c.now())
	objectURL := c.conf.BaseURL + c.objectPath(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, objectURL, bytes.NewReader(resized))
	if err != nil {
		return ""
	}
	req.Header.Set("Authorization", "Bearer "+c.conf.ServiceKey)
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.conf.Logger.Errorw("storage upload failed", "key", key, "err", err)
		return ""
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.conf.Logger.Errorw("storage upload returned non-2xx", "key", key, "status", resp.StatusCode)
		return ""
	}
	return objectURL
}

// keyFromURL extracts and percent-decodes the object key out of a public
// object URL. Returns false when the URL is empty or does not contain the
// bucket's object path.
func (c *Client) keyFromURL(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	marker := "/storage/v1/object/" + c.conf.Bucket + "/"
	idx := strings.Index(raw, marker)
	if idx < 0 {
		return "", false
	}
	encoded := raw[idx+len(marker):]
	if encoded == "" {
		return "", false
	}
	key, err := url.PathUnescape(encoded)
	if err != nil {
		return "", false
	}
	return key, true
}

// Delete removes the object behind a previously returned public URL.
// Best-effort: returns false on unparsable input or a non-2xx response, and
// does not verify the object is actually gone.
func (c *Client) Delete(ctx context.Context, objectURL string) bool {
	key, ok := c.keyFromURL(objectURL)
	if !ok {
		c.conf.Logger.Warnw("storage delete skipped: url not recognized", "url", objectURL)
		return false
	}

	base, err := url.Parse(c.conf.BaseURL)
	if err != nil {
		return false
	}
	target := *base
	target.Path = c.objectPath(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target.String(), nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+c.conf.ServiceKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.conf.Logger.Errorw("storage delete failed", "key", key, "err", err)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.conf.Logger.Errorw("storage delete returned non-2xx", "key", key, "status", resp.StatusCode)
		return false
	}
	return true
}
