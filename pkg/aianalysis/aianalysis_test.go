package aianalysis

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func envelopeWith(t *testing.T, text string) string {
	t.Helper()
	env := map[string]any{
		"candidates": []any{
			map[string]any{
				"content": map[string]any{
					"parts": []any{map[string]any{"text": text}},
				},
			},
		},
	}
	b, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

const analysisJSON = `{"representative_mood":"만족","mood_score":75,"keywords":["붕어빵","간식","행복"],"image_prompt":"one clay dog holding a fish-shaped bread pastry"}`

func TestBuildPromptInterpolates(t *testing.T) {
	p := buildPrompt("붕어빵 먹음", "dog")
	if !strings.Contains(p, `Diary: "붕어빵 먹음"`) {
		t.Error("prompt missing diary content")
	}
	if !strings.Contains(p, `Character: "dog"`) {
		t.Error("prompt missing character descriptor")
	}
	if !strings.Contains(p, "OUTPUT (JSON only)") {
		t.Error("prompt missing output contract")
	}
}

func TestParseResponsePlainJSON(t *testing.T) {
	res, err := parseResponse([]byte(envelopeWith(t, analysisJSON)))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.RepresentativeMood != "만족" || res.MoodScore != 75 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Keywords) != 3 || res.Keywords[0] != "붕어빵" {
		t.Fatalf("unexpected keywords: %v", res.Keywords)
	}
}

func TestParseResponseStripsCodeFence(t *testing.T) {
	fenced := "```json\n" + analysisJSON + "\n```"
	res, err := parseResponse([]byte(envelopeWith(t, fenced)))
	if err != nil {
		t.Fatalf("parse fenced: %v", err)
	}
	if res.ImagePrompt == "" {
		t.Fatal("image prompt lost while stripping fence")
	}
}

func TestParseResponseKeywordsNeverNil(t *testing.T) {
	res, err := parseResponse([]byte(envelopeWith(t, `{"representative_mood":"평온","mood_score":50,"image_prompt":"calm scene"}`)))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.Keywords == nil {
		t.Fatal("keywords must be an empty list, not nil")
	}
}

func TestParseResponseErrors(t *testing.T) {
	cases := map[string]string{
		"no candidates":  `{"candidates":[]}`,
		"not json":       "plain text",
		"non-json reply": envelopeWith(t, "sorry, I cannot do that"),
	}
	for name, raw := range cases {
		if _, err := parseResponse([]byte(raw)); err == nil {
			t.Errorf("%s: expected parse error", name)
		}
	}
}

func TestAnalyzeMissingKey(t *testing.T) {
	c := New(Config{})
	out := c.Analyze(context.Background(), "some day", "dog")
	if !out.Degraded {
		t.Fatal("expected degraded outcome without api key")
	}
	if out.ImagePrompt != "API Key Missing" || out.RepresentativeMood != "설정 오류" {
		t.Fatalf("wrong fallback: %+v", out.Result)
	}
	if out.Keywords == nil || len(out.Keywords) != 0 {
		t.Fatalf("fallback keywords must be empty list, got %v", out.Keywords)
	}
}

func TestAnalyzeSuccess(t *testing.T) {
	var gotBody generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("missing key query param, got %q", r.URL.RawQuery)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(envelopeWith(t, analysisJSON)))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "test-key", BaseURL: srv.URL})
	out := c.Analyze(context.Background(), "붕어빵 먹음", "dog")
	if out.Degraded {
		t.Fatalf("unexpected degradation: %s", out.Reason)
	}
	if out.MoodScore != 75 {
		t.Fatalf("score = %d, want 75", out.MoodScore)
	}
	if len(gotBody.Contents) != 1 || len(gotBody.Contents[0].Parts) != 1 {
		t.Fatalf("unexpected request envelope: %+v", gotBody)
	}
	if !strings.Contains(gotBody.Contents[0].Parts[0].Text, "붕어빵 먹음") {
		t.Error("diary content not sent to model")
	}
}

func TestAnalyzeServerErrorFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(Config{APIKey: "test-key", BaseURL: srv.URL})
	out := c.Analyze(context.Background(), "day", "dog")
	if !out.Degraded {
		t.Fatal("expected degraded outcome on 429")
	}
	if out.ImagePrompt != "A peaceful landscape painting" {
		t.Fatalf("wrong fallback prompt: %q", out.ImagePrompt)
	}
}

func TestAnalyzeUnreachableHostFallsBack(t *testing.T) {
	c := New(Config{APIKey: "test-key", BaseURL: "http://127.0.0.1:1"})
	out := c.Analyze(context.Background(), "day", "dog")
	if !out.Degraded {
		t.Fatal("expected degraded outcome on connect failure")
	}
	if out.RepresentativeMood != "분석 불가" {
		t.Fatalf("wrong fallback mood: %q", out.RepresentativeMood)
	}
}

func TestAnalyzeGarbageModelOutputFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(envelopeWith(t, "no json here")))
	}))
	defer srv.Close()

	c := New(Config{APIKey: "test-key", BaseURL: srv.URL})
	out := c.Analyze(context.Background(), "day", "dog")
	if !out.Degraded {
		t.Fatal("expected degraded outcome on unparsable reply")
	}
	if out.ImagePrompt != "A abstract painting of emotions" {
		t.Fatalf("wrong fallback prompt: %q", out.ImagePrompt)
	}
}
