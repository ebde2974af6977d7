package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/store"
)

// WebhookSubscriber POSTs event payloads to configured URLs with bounded
// retries and exponential backoff.
type WebhookSubscriber struct {
	store   *store.Store
	http    *http.Client
	retries int
	logger  zerolog.Logger
}

// NewWebhookSubscriber wires the subscriber.
func NewWebhookSubscriber(st *store.Store, retries int, logger zerolog.Logger) *WebhookSubscriber {
	if retries <= 0 {
		retries = 3
	}
	return &WebhookSubscriber{
		store:   st,
		http:    &http.Client{Timeout: 15 * time.Second},
		retries: retries,
		logger:  logger.With().Str("component", "webhook-subscriber").Logger(),
	}
}

func (w *WebhookSubscriber) Name() string { return "webhooks" }

// Notify delivers the event to every enabled webhook bound to it.
func (w *WebhookSubscriber) Notify(ctx context.Context, ev Event) {
	hooks, err := w.store.ListWebhooks(ctx, ev.Name)
	if err != nil {
		w.logger.Error().Err(err).Str("event", ev.Name).Msg("list webhooks failed")
		return
	}
	for _, wh := range hooks {
		w.deliver(ctx, wh, ev)
	}
}

func (w *WebhookSubscriber) deliver(ctx context.Context, wh *store.Webhook, ev Event) {
	body, err := w.renderBody(wh, ev)
	if err != nil {
		w.logger.Error().Err(err).Int64("webhook", wh.ID).Msg("render webhook body failed")
		return
	}

	var lastStatus int
	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-Sublarr-Event", ev.Name)

			resp, err := w.http.Do(req)
			if err != nil {
				return err
			}
			resp.Body.Close()
			lastStatus = resp.StatusCode
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return fmt.Errorf("webhook returned %d", resp.StatusCode)
			}
			if resp.StatusCode >= 400 {
				return retry.Unrecoverable(fmt.Errorf("webhook returned %d", resp.StatusCode))
			}
			return nil
		},
		retry.Attempts(uint(w.retries)),
		retry.Delay(500*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)

	if recErr := w.store.RecordWebhookRun(ctx, wh.ID, lastStatus); recErr != nil {
		w.logger.Error().Err(recErr).Int64("webhook", wh.ID).Msg("record webhook run failed")
	}
	if err != nil {
		w.logger.Warn().Err(err).
			Int64("webhook", wh.ID).
			Str("event", ev.Name).
			Int("last_status", lastStatus).
			Msg("webhook delivery failed")
	}
}

// renderBody uses the webhook's template when set, substituting
// {key} tokens from the payload; otherwise the raw event is sent.
func (w *WebhookSubscriber) renderBody(wh *store.Webhook, ev Event) ([]byte, error) {
	if wh.Template == "" {
		return json.Marshal(ev)
	}
	rendered := SubstituteTokens(wh.Template, ev)
	if !json.Valid([]byte(rendered)) {
		// A broken template must not drop the delivery.
		return json.Marshal(ev)
	}
	return []byte(rendered), nil
}
