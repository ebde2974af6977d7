package translation

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sublarr/sublarr/internal/errkind"
)

// LibreTranslateBackend translates via a LibreTranslate server, which
// is the common self-hosted option.
type LibreTranslateBackend struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewLibreTranslateBackend configures the backend.
func NewLibreTranslateBackend(baseURL, apiKey string, timeout time.Duration) *LibreTranslateBackend {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &LibreTranslateBackend{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

func (b *LibreTranslateBackend) Name() string { return "libretranslate" }

// Translate posts the batch as a JSON string array; the server returns
// translations in order.
func (b *LibreTranslateBackend) Translate(ctx context.Context, batch []string, bc BatchContext) ([]string, error) {
	payload := map[string]any{
		"q":      batch,
		"source": bc.SourceLang,
		"target": bc.TargetLang,
		"format": "text",
	}
	if b.apiKey != "" {
		payload["api_key"] = b.apiKey
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errkind.New(errkind.Internal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.baseURL+"/translate", bytes.NewReader(body))
	if err != nil {
		return nil, errkind.New(errkind.Internal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, errkind.New(errkind.TransientExternal, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errkind.Newf(errkind.FromHTTPStatus(resp.StatusCode),
			"libretranslate: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var result struct {
		TranslatedText []string `json:"translatedText"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errkind.Newf(errkind.PermanentExternal, "libretranslate: decode response: %v", err)
	}
	if len(result.TranslatedText) != len(batch) {
		return nil, errkind.Newf(errkind.PermanentExternal,
			"libretranslate: got %d lines, want %d", len(result.TranslatedText), len(batch))
	}
	return result.TranslatedText, nil
}
