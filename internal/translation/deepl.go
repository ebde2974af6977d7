package translation

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sublarr/sublarr/internal/errkind"
)

// DeepLBackend translates via the DeepL REST API. Free-tier keys (":fx"
// suffix) route to the free endpoint automatically.
type DeepLBackend struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewDeepLBackend configures the backend.
func NewDeepLBackend(apiKey string, timeout time.Duration) *DeepLBackend {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	base := "https://api.deepl.com/v2"
	if strings.HasSuffix(apiKey, ":fx") {
		base = "https://api-free.deepl.com/v2"
	}
	return &DeepLBackend{
		apiKey:  apiKey,
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
	}
}

func (b *DeepLBackend) Name() string { return "deepl" }

// Translate sends the batch as repeated text fields; DeepL preserves
// order in its response.
func (b *DeepLBackend) Translate(ctx context.Context, batch []string, bc BatchContext) ([]string, error) {
	form := url.Values{}
	for _, line := range batch {
		form.Add("text", line)
	}
	form.Set("source_lang", strings.ToUpper(bc.SourceLang))
	form.Set("target_lang", strings.ToUpper(bc.TargetLang))
	form.Set("preserve_formatting", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		b.baseURL+"/translate", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errkind.New(errkind.Internal, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "DeepL-Auth-Key "+b.apiKey)

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, errkind.New(errkind.TransientExternal, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errkind.Newf(errkind.FromHTTPStatus(resp.StatusCode),
			"deepl: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var payload struct {
		Translations []struct {
			Text string `json:"text"`
		} `json:"translations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errkind.Newf(errkind.PermanentExternal, "deepl: decode response: %v", err)
	}
	if len(payload.Translations) != len(batch) {
		return nil, errkind.Newf(errkind.PermanentExternal,
			"deepl: got %d lines, want %d", len(payload.Translations), len(batch))
	}

	out := make([]string, len(payload.Translations))
	for i, tr := range payload.Translations {
		out[i] = tr.Text
	}
	return out, nil
}
