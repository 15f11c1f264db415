package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the Cloudflare Workers AI API root.
const DefaultBaseURL = "https://api.cloudflare.com"

// ModelID is the Stable Diffusion model run on Workers AI.
// Swap to "@cf/bytedance/stable-diffusion-xl-lightning" for faster output.
const ModelID = "@cf/stabilityai/stable-diffusion-xl-base-1.0"

// maxImageBytes caps the in-memory response read; generated PNGs stay well
// under this.
const maxImageBytes = 16 * 1024 * 1024

// Config carries the Cloudflare credentials, passed in explicitly.
type Config struct {
	AccountID string
	APIToken  string
	BaseURL   string // defaults to DefaultBaseURL
	Logger    *zap.SugaredLogger
}

// Client generates an illustration from a prompt. Any failure is reported as
// nil bytes; the caller treats nil as "image step failed, continue without
// image".
type Client struct {
	conf       Config
	httpClient *http.Client
}

func New(conf Config) *Client {
	if conf.BaseURL == "" {
		conf.BaseURL = DefaultBaseURL
	}
	if conf.Logger == nil {
		conf.Logger = zap.NewNop().Sugar()
	}
	return &Client{
		conf:       conf,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

// Generate runs a single synchronous generation call and returns the raw
// image bytes, or nil when anything goes wrong.
func (c *Client) Generate(ctx context.Context, prompt string) []byte {
	if c.conf.AccountID == "" || c.conf.APIToken == "" {
		c.conf.Logger.Errorw("image generation skipped: cloudflare credentials not configured")
		return nil
	}

	body, err := json.Marshal(generateRequest{Prompt: prompt})
	if err != nil {
		return nil
	}
	url := fmt.Sprintf("%s/client/v4/accounts/%s/ai/run/%s", c.conf.BaseURL, c.conf.AccountID, ModelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+c.conf.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.conf.Logger.Errorw("image generation call failed", "err", err)
		return nil
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		c.conf.Logger.Errorw("image generation response read failed", "err", err)
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		c.conf.Logger.Errorw("image generation returned non-200", "status", resp.StatusCode, "body", string(raw))
		return nil
	}
	if len(raw) == 0 {
		c.conf.Logger.Errorw("image generation returned empty body")
		return nil
	}
	return raw
}
