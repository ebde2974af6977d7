package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sublarr/sublarr/internal/errkind"
)

// OpenAIBackend translates via any OpenAI-compatible chat-completions
// endpoint, which covers hosted OpenAI and local LLM servers alike.
type OpenAIBackend struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

// NewOpenAIBackend configures the backend. baseURL may point at a local
// server; apiKey may be empty for servers that skip auth.
func NewOpenAIBackend(baseURL, apiKey, model string, timeout time.Duration) *OpenAIBackend {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIBackend{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		http:    &http.Client{Timeout: timeout},
	}
}

func (b *OpenAIBackend) Name() string { return "openai" }

const openAISystemPrompt = "You are a subtitle translator. Translate each line of the JSON array from %s to %s. Preserve tone and line breaks inside lines. Text wrapped in %s and %s must be copied to the output unchanged. Respond with ONLY a JSON array of the translated lines, same length and order as the input."

// Translate sends one batch as a JSON array and expects a JSON array of
// equal length back.
func (b *OpenAIBackend) Translate(ctx context.Context, batch []string, bc BatchContext) ([]string, error) {
	input, err := json.Marshal(batch)
	if err != nil {
		return nil, errkind.New(errkind.Internal, err)
	}

	payload := map[string]any{
		"model": b.model,
		"messages": []map[string]string{
			{"role": "system", "content": fmt.Sprintf(openAISystemPrompt, bc.SourceLang, bc.TargetLang, markerOpen, markerClose)},
			{"role": "user", "content": string(input)},
		},
		"temperature": 0.2,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errkind.New(errkind.Internal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errkind.New(errkind.Internal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, errkind.New(errkind.TransientExternal, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errkind.Newf(errkind.FromHTTPStatus(resp.StatusCode),
			"openai: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, errkind.Newf(errkind.PermanentExternal, "openai: decode response: %v", err)
	}
	if len(completion.Choices) == 0 {
		return nil, errkind.Newf(errkind.PermanentExternal, "openai: empty response")
	}

	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	// Models occasionally fence the array in markdown.
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var out []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &out); err != nil {
		return nil, errkind.Newf(errkind.PermanentExternal, "openai: response is not a string array: %v", err)
	}
	if len(out) != len(batch) {
		return nil, errkind.Newf(errkind.PermanentExternal,
			"openai: got %d lines, want %d", len(out), len(batch))
	}
	return out, nil
}
