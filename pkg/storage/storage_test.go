package storage

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testImage(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 600, 400))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestObjectKey(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	cases := []struct{ in, want string }{
		{"user_3_log_7.png", "1700000000000_user_3_log_7.jpg"},
		{"plain", "1700000000000_plain.jpg"},
		{"dir/nested.jpeg", "1700000000000_nested.jpg"},
	}
	for _, tc := range cases {
		if got := objectKey(tc.in, at); got != tc.want {
			t.Errorf("objectKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestKeyFromURL(t *testing.T) {
	c := New(Config{BaseURL: "https://proj.supabase.co", ServiceKey: "k", Bucket: "diary-images"})

	key, ok := c.keyFromURL("https://proj.supabase.co/storage/v1/object/diary-images/1700_user_1.jpg")
	if !ok || key != "1700_user_1.jpg" {
		t.Fatalf("got (%q,%v)", key, ok)
	}

	// percent-encoded keys are decoded
	key, ok = c.keyFromURL("https://proj.supabase.co/storage/v1/object/diary-images/1700_%EC%9D%BC%EA%B8%B0.jpg")
	if !ok || key != "1700_일기.jpg" {
		t.Fatalf("percent decoding failed: (%q,%v)", key, ok)
	}

	for _, bad := range []string{
		"",
		"https://proj.supabase.co/storage/v1/object/other-bucket/x.jpg",
		"https://proj.supabase.co/storage/v1/object/diary-images/",
		"not a url at all",
	} {
		if _, ok := c.keyFromURL(bad); ok {
			t.Errorf("keyFromURL(%q) unexpectedly ok", bad)
		}
	}
}

func TestUploadSuccess(t *testing.T) {
	var gotPath, gotAuth, gotCT string
	var gotLen int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotCT = r.Header.Get("Content-Type")
		body := new(bytes.Buffer)
		body.ReadFrom(r.Body)
		gotLen = body.Len()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, ServiceKey: "svc-key", Bucket: "diary-images"})
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }

	url := c.Upload(context.Background(), testImage(t), "user_3_log_7.png")
	want := srv.URL + "/storage/v1/object/diary-images/1700000000000_user_3_log_7.jpg"
	if url != want {
		t.Fatalf("url = %q, want %q", url, want)
	}
	if gotPath != "/storage/v1/object/diary-images/1700000000000_user_3_log_7.jpg" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer svc-key" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotCT != "image/jpeg" {
		t.Errorf("content type = %q", gotCT)
	}
	if gotLen == 0 {
		t.Error("no body uploaded")
	}
}

func TestUploadUndecodableImage(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, ServiceKey: "k", Bucket: "b"})
	if url := c.Upload(context.Background(), []byte("not an image"), "x.png"); url != "" {
		t.Fatalf("expected empty url, got %q", url)
	}
	if called {
		t.Fatal("no storage call may happen when the transform fails")
	}
}

func TestUploadServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bucket missing", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, ServiceKey: "k", Bucket: "b"})
	if url := c.Upload(context.Background(), testImage(t), "x.png"); url != "" {
		t.Fatalf("expected empty url on 400, got %q", url)
	}
}

func TestDelete(t *testing.T) {
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, ServiceKey: "k", Bucket: "diary-images"})
	objectURL := srv.URL + "/storage/v1/object/diary-images/1700_user_1.jpg"
	if !c.Delete(context.Background(), objectURL) {
		t.Fatal("expected delete to succeed")
	}
	if method != http.MethodDelete {
		t.Errorf("method = %q", method)
	}
	if !strings.HasSuffix(path, "/1700_user_1.jpg") {
		t.Errorf("path = %q", path)
	}
}

func TestDeleteBadInput(t *testing.T) {
	c := New(Config{BaseURL: "https://proj.supabase.co", ServiceKey: "k", Bucket: "diary-images"})
	if c.Delete(context.Background(), "") {
		t.Fatal("empty url must fail fast")
	}
	if c.Delete(context.Background(), "https://proj.supabase.co/storage/v1/object/wrong/x.jpg") {
		t.Fatal("foreign bucket url must fail fast")
	}
}

func TestDeleteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, ServiceKey: "k", Bucket: "diary-images"})
	if c.Delete(context.Background(), srv.URL+"/storage/v1/object/diary-images/x.jpg") {
		t.Fatal("expected false on 403")
	}
}
