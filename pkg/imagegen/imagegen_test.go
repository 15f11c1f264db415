package imagegen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateReturnsRawBytes(t *testing.T) {
	fakePNG := []byte{0x89, 'P', 'N', 'G', 1, 2, 3}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer cf-token" {
			t.Errorf("auth header = %q", got)
		}
		if !strings.Contains(r.URL.Path, "/client/v4/accounts/acc-1/ai/run/") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt != "a clay dog" {
			t.Errorf("bad request body: %+v err=%v", req, err)
		}
		w.Write(fakePNG)
	}))
	defer srv.Close()

	c := New(Config{AccountID: "acc-1", APIToken: "cf-token", BaseURL: srv.URL})
	out := c.Generate(context.Background(), "a clay dog")
	if string(out) != string(fakePNG) {
		t.Fatalf("got %v, want raw image bytes", out)
	}
}

func TestGenerateFailuresReturnNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":[{"message":"model overloaded"}]}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Config{AccountID: "acc-1", APIToken: "cf-token", BaseURL: srv.URL})
	if out := c.Generate(context.Background(), "p"); out != nil {
		t.Fatal("expected nil on non-200 response")
	}

	unreachable := New(Config{AccountID: "acc-1", APIToken: "cf-token", BaseURL: "http://127.0.0.1:1"})
	if out := unreachable.Generate(context.Background(), "p"); out != nil {
		t.Fatal("expected nil on connect failure")
	}

	noCreds := New(Config{BaseURL: srv.URL})
	if out := noCreds.Generate(context.Background(), "p"); out != nil {
		t.Fatal("expected nil without credentials")
	}
}

func TestGenerateEmptyBodyReturnsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{AccountID: "acc-1", APIToken: "cf-token", BaseURL: srv.URL})
	if out := c.Generate(context.Background(), "p"); out != nil {
		t.Fatal("expected nil on empty body")
	}
}
