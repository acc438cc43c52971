package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"insights-proxy/api/internal/generate"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// REST calls generateContent over plain HTTP.
type REST struct {
	APIKey  string
	BaseURL string
	httpc   *http.Client
}

func NewREST(key, baseURL string, timeout time.Duration) *REST {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &REST{
		APIKey:  strings.TrimSpace(key),
		BaseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: timeout},
	}
}

func (r *REST) Name() string { return "gemini-rest" }

func (r *REST) Send(ctx context.Context, call generate.Call) (generate.Response, error) {
	body := map[string]any{
		"contents": []any{
			map[string]any{
				"role":  "user",
				"parts": []any{map[string]any{"text": call.Prompt}},
			},
		},
		"generationConfig": map[string]any{
			"temperature":      call.Temperature,
			"maxOutputTokens":  call.MaxOutputTokens,
			"responseMimeType": "application/json",
		},
	}
	if call.System != "" {
		body["systemInstruction"] = map[string]any{
			"parts": []any{map[string]any{"text": call.System}},
		}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return generate.Response{}, fmt.Errorf("gemini rest: encode request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", r.BaseURL, call.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return generate.Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", r.APIKey)

	resp, err := r.httpc.Do(req)
	if err != nil {
		return generate.Response{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return generate.Response{}, err
	}
	out := generate.Response{StatusCode: resp.StatusCode, Body: string(raw)}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var b strings.Builder
		gjson.GetBytes(raw, "candidates.0.content.parts").ForEach(func(_, p gjson.Result) bool {
			b.WriteString(p.Get("text").String())
			return true
		})
		out.Text = b.String()
	}
	return out, nil
}
