package events

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/errkind"
)

// AppriseDelivery sends notifications through an Apprise API sidecar
// (https://github.com/caronc/apprise-api). The service name maps to an
// Apprise tag so one sidecar can fan out to many channels.
type AppriseDelivery struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// NewAppriseDelivery wires a delivery against the sidecar's /notify
// endpoint.
func NewAppriseDelivery(baseURL string, logger zerolog.Logger) *AppriseDelivery {
	return &AppriseDelivery{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  logger.With().Str("component", "apprise").Logger(),
	}
}

func (a *AppriseDelivery) Send(ctx context.Context, service, title, body string) error {
	payload, err := json.Marshal(map[string]string{
		"title": title,
		"body":  body,
		"tag":   service,
	})
	if err != nil {
		return errkind.New(errkind.Internal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/notify", bytes.NewReader(payload))
	if err != nil {
		return errkind.New(errkind.Internal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return errkind.New(errkind.TransientExternal, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return errkind.Newf(errkind.TransientExternal, "apprise returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return errkind.Newf(errkind.PermanentExternal, "apprise returned %d", resp.StatusCode)
	}
	return nil
}

var _ Delivery = (*AppriseDelivery)(nil)
