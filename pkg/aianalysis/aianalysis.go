package aianalysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the Gemini generateContent endpoint root.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// DefaultModel is the text model used for mood analysis.
const DefaultModel = "gemini-2.5-flash"

// Config carries everything the client needs; it is passed in explicitly
// instead of read from globals so credentials can be rebuilt at runtime.
type Config struct {
	APIKey  string
	BaseURL string // defaults to DefaultBaseURL
	Model   string // defaults to DefaultModel
	Logger  *zap.SugaredLogger
}

// Client calls the text-analysis model. It never returns an error to the
// caller: any failure degrades into a fixed fallback Outcome so saving a
// diary entry is never blocked by the AI vendor.
type Client struct {
	conf       Config
	httpClient *http.Client
}

// Result is the structured analysis extracted from one diary entry.
type Result struct {
	RepresentativeMood string   `json:"representative_mood"`
	MoodScore          int      `json:"mood_score"`
	Keywords           []string `json:"keywords"`
	ImagePrompt        string   `json:"image_prompt"`
}

// Outcome tags a Result with whether it is a real analysis or a fallback,
// so downstream code and tests can tell the two apart.
type Outcome struct {
	Result
	Degraded bool
	Reason   string
}

// Fallback sentinels, kept byte-identical across restarts so a stored
// fallback row is recognizable.
var (
	fallbackMissingKey = Result{RepresentativeMood: "설정 오류", MoodScore: 0, Keywords: []string{}, ImagePrompt: "API Key Missing"}
	fallbackCallFailed = Result{RepresentativeMood: "분석 불가", MoodScore: 0, Keywords: []string{}, ImagePrompt: "A peaceful landscape painting"}
	fallbackBadParse   = Result{RepresentativeMood: "파싱 에러", MoodScore: 0, Keywords: []string{}, ImagePrompt: "A abstract painting of emotions"}
)

func New(conf Config) *Client {
	if conf.BaseURL == "" {
		conf.BaseURL = DefaultBaseURL
	}
	if conf.Model == "" {
		conf.Model = DefaultModel
	}
	if conf.Logger == nil {
		conf.Logger = zap.NewNop().Sugar()
	}
	return &Client{
		conf:       conf,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Gemini generateContent request/response envelope.
type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Analyze sends the diary content plus character descriptor to the model and
// parses its JSON answer. On any failure it returns a degraded Outcome with
// the corresponding fallback sentinel instead of an error.
func (c *Client) Analyze(ctx context.Context, diaryContent, character string) Outcome {
	if c.conf.APIKey == "" {
		c.conf.Logger.Errorw("analysis skipped: api key is not configured")
		return Outcome{Result: fallbackMissingKey, Degraded: true, Reason: "api key missing"}
	}

	prompt := buildPrompt(diaryContent, character)
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return Outcome{Result: fallbackCallFailed, Degraded: true, Reason: fmt.Sprintf("marshal request: %v", err)}
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.conf.BaseURL, c.conf.Model, c.conf.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Outcome{Result: fallbackCallFailed, Degraded: true, Reason: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.conf.Logger.Errorw("analysis call failed", "err", err)
		return Outcome{Result: fallbackCallFailed, Degraded: true, Reason: fmt.Sprintf("call: %v", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.conf.Logger.Errorw("analysis response read failed", "err", err)
		return Outcome{Result: fallbackCallFailed, Degraded: true, Reason: fmt.Sprintf("read response: %v", err)}
	}
	if resp.StatusCode != http.StatusOK {
		c.conf.Logger.Errorw("analysis call returned non-200", "status", resp.StatusCode, "body", string(raw))
		return Outcome{Result: fallbackCallFailed, Degraded: true, Reason: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	result, err := parseResponse(raw)
	if err != nil {
		c.conf.Logger.Errorw("analysis response parse failed", "err", err)
		return Outcome{Result: fallbackBadParse, Degraded: true, Reason: fmt.Sprintf("parse: %v", err)}
	}
	return Outcome{Result: result}
}

// parseResponse digs the model's text answer out of the candidate envelope,
// strips an optional Markdown code fence and decodes the analysis JSON.
func parseResponse(raw []byte) (Result, error) {
	var envelope generateResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Result{}, fmt.Errorf("decode envelope: %w", err)
	}
	if len(envelope.Candidates) == 0 || len(envelope.Candidates[0].Content.Parts) == 0 {
		return Result{}, fmt.Errorf("no candidates in response")
	}
	text := strings.TrimSpace(envelope.Candidates[0].Content.Parts[0].Text)
	text = stripCodeFence(text)

	var result Result
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return Result{}, fmt.Errorf("decode analysis json: %w", err)
	}
	// consuming code relies on keywords being a list, never nil
	if result.Keywords == nil {
		result.Keywords = []string{}
	}
	return result, nil
}

// stripCodeFence removes a surrounding ```json ... ``` wrapper if present.
func stripCodeFence(text string) string {
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
