package events

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/store"
)

// Delivery sends a rendered notification to one service endpoint. It is
// deliberately opaque: implementations wrap whatever notification
// transport is configured.
type Delivery interface {
	Send(ctx context.Context, service, title, body string) error
}

// NotificationSubscriber renders and delivers notifications with a
// template fallback chain, quiet-hours suppression, and full history.
type NotificationSubscriber struct {
	store    *store.Store
	delivery Delivery
	services []string
	logger   zerolog.Logger
	now      func() time.Time
}

// NewNotificationSubscriber wires the subscriber for the configured
// service names.
func NewNotificationSubscriber(st *store.Store, delivery Delivery, services []string, logger zerolog.Logger) *NotificationSubscriber {
	return &NotificationSubscriber{
		store:    st,
		delivery: delivery,
		services: services,
		logger:   logger.With().Str("component", "notification-subscriber").Logger(),
		now:      time.Now,
	}
}

func (n *NotificationSubscriber) Name() string { return "notifications" }

// SetClock overrides the time source; used by tests to pin quiet hours.
func (n *NotificationSubscriber) SetClock(now func() time.Time) { n.now = now }

// Notify renders and delivers the event to every configured service.
// Suppressed and failed attempts are logged to history like successes.
func (n *NotificationSubscriber) Notify(ctx context.Context, ev Event) {
	suppressed, err := n.suppressedByQuietHours(ctx, ev.Name)
	if err != nil {
		n.logger.Error().Err(err).Msg("quiet hours check failed")
	}

	for _, service := range n.services {
		title, body := n.render(ctx, service, ev)
		record := &store.NotificationRecord{
			Service:   service,
			EventName: ev.Name,
			Title:     title,
			Body:      body,
		}

		if suppressed {
			record.Suppressed = true
		} else if err := n.delivery.Send(ctx, service, title, body); err != nil {
			record.Error = err.Error()
			n.logger.Warn().Err(err).
				Str("service", service).
				Str("event", ev.Name).
				Msg("notification delivery failed")
		} else {
			record.Delivered = true
		}

		if err := n.store.InsertNotificationRecord(ctx, record); err != nil {
			n.logger.Error().Err(err).Msg("record notification failed")
		}
	}
}

// render resolves the template chain: (service, event) first, then
// ("", event), then the global default ("", ""). A missing or broken
// template falls back to plain (event_name, payload) text so the
// notification is never dropped.
func (n *NotificationSubscriber) render(ctx context.Context, service string, ev Event) (title, body string) {
	for _, key := range [][2]string{{service, ev.Name}, {"", ev.Name}, {"", ""}} {
		tpl, err := n.store.GetNotificationTemplate(ctx, key[0], key[1])
		if err == store.ErrNotFound {
			continue
		}
		if err != nil {
			break
		}
		return SubstituteTokens(tpl.TitleTemplate, ev), SubstituteTokens(tpl.BodyTemplate, ev)
	}
	return ev.Name, plainPayload(ev)
}

func (n *NotificationSubscriber) suppressedByQuietHours(ctx context.Context, eventName string) (bool, error) {
	rules, err := n.store.ListQuietHours(ctx)
	if err != nil {
		return false, err
	}
	now := n.now()
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if !quietHoursActive(rule, now) {
			continue
		}
		excepted := false
		for _, name := range rule.ExceptionEvents {
			if name == eventName {
				excepted = true
				break
			}
		}
		if !excepted {
			return true, nil
		}
	}
	return false, nil
}

// quietHoursActive evaluates one rule against local time, handling
// windows that cross midnight (22:00 to 07:00).
func quietHoursActive(rule *store.QuietHoursRule, now time.Time) bool {
	dayMatch := len(rule.DaysOfWeek) == 0
	for _, d := range rule.DaysOfWeek {
		if d == int(now.Weekday()) {
			dayMatch = true
			break
		}
	}
	if !dayMatch {
		return false
	}

	start, err1 := parseClock(rule.StartTime)
	end, err2 := parseClock(rule.EndTime)
	if err1 != nil || err2 != nil {
		return false
	}
	minutes := now.Hour()*60 + now.Minute()
	if start <= end {
		return minutes >= start && minutes < end
	}
	return minutes >= start || minutes < end
}

func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, err
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad clock %q", s)
	}
	return h*60 + m, nil
}

var tokenPattern = regexp.MustCompile(`\{([a-z0-9_]+)\}`)

// SubstituteTokens replaces {key} placeholders with payload values. The
// substitution is purely textual: no filesystem access, no code
// evaluation. Unknown keys render as empty strings.
func SubstituteTokens(template string, ev Event) string {
	return tokenPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := match[1 : len(match)-1]
		if key == "event_name" {
			return ev.Name
		}
		if val, ok := ev.Payload[key]; ok {
			return fmt.Sprintf("%v", val)
		}
		return ""
	})
}

func plainPayload(ev Event) string {
	keys := make([]string, 0, len(ev.Payload))
	for k := range ev.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v ", k, ev.Payload[k])
	}
	return strings.TrimSpace(b.String())
}
