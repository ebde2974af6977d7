package events_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/events"
	"github.com/sublarr/sublarr/internal/store"
	"github.com/sublarr/sublarr/internal/testutil"
)

type recordingSubscriber struct {
	mu   sync.Mutex
	seen []events.Event
}

func (r *recordingSubscriber) Name() string { return "recorder" }

func (r *recordingSubscriber) Notify(ctx context.Context, ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, ev)
}

func (r *recordingSubscriber) events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.seen...)
}

func TestBusPublishAndDispatch(t *testing.T) {
	bus := events.NewBus(2, zerolog.Nop())
	rec := &recordingSubscriber{}
	bus.Subscribe(rec)
	bus.Start()

	require.NoError(t, bus.Publish(events.SubtitleDownloaded, events.Payload{
		"provider": "opensubtitles",
		"language": "en",
	}))
	require.NoError(t, bus.Publish(events.BatchComplete, events.Payload{"total": 5}))

	bus.Stop()

	seen := rec.events()
	require.Len(t, seen, 2)
	names := []string{seen[0].Name, seen[1].Name}
	assert.Contains(t, names, events.SubtitleDownloaded)
	assert.Contains(t, names, events.BatchComplete)
}

func TestBusRejectsUnknownEvent(t *testing.T) {
	bus := events.NewBus(1, zerolog.Nop())
	assert.Error(t, bus.Publish("no_such_event", nil))
}

func TestBusPublishAfterStopReturnsError(t *testing.T) {
	bus := events.NewBus(1, zerolog.Nop())
	bus.Start()
	bus.Stop()

	err := bus.Publish(events.SubtitleDownloaded, events.Payload{"language": "en"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stopped")

	// Late publishers racing shutdown must get the error, never a send
	// on the closed queue.
	var wg sync.WaitGroup
	late := events.NewBus(2, zerolog.Nop())
	late.Start()
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = late.Publish(events.BatchComplete, events.Payload{"total": j})
			}
		}()
	}
	late.Stop()
	wg.Wait()
}

func TestSubstituteTokens(t *testing.T) {
	ev := events.Event{
		Name: events.SubtitleDownloaded,
		Payload: events.Payload{
			"provider": "opensubtitles",
			"score":    750,
		},
	}
	out := events.SubstituteTokens("Got {provider} at {score} for {event_name}; missing={nope}", ev)
	assert.Equal(t, "Got opensubtitles at 750 for subtitle_downloaded; missing=", out)
}

type fakeDelivery struct {
	mu    sync.Mutex
	sent  []string
	errFn func(service string) error
}

func (f *fakeDelivery) Send(ctx context.Context, service, title, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errFn != nil {
		if err := f.errFn(service); err != nil {
			return err
		}
	}
	f.sent = append(f.sent, service+": "+title+" / "+body)
	return nil
}

func TestNotificationTemplateFallbackChain(t *testing.T) {
	st := testutil.NewStore(t)
	ctx := context.Background()

	require.NoError(t, st.UpsertNotificationTemplate(ctx, &store.NotificationTemplate{
		Service: "", EventName: "", TitleTemplate: "default {event_name}", BodyTemplate: "d",
	}))
	require.NoError(t, st.UpsertNotificationTemplate(ctx, &store.NotificationTemplate{
		Service: "", EventName: events.SubtitleDownloaded,
		TitleTemplate: "event-level {language}", BodyTemplate: "e",
	}))
	require.NoError(t, st.UpsertNotificationTemplate(ctx, &store.NotificationTemplate{
		Service: "discord", EventName: events.SubtitleDownloaded,
		TitleTemplate: "discord-specific {provider}", BodyTemplate: "s",
	}))

	delivery := &fakeDelivery{}
	sub := events.NewNotificationSubscriber(st, delivery, []string{"discord", "email"}, zerolog.Nop())

	sub.Notify(ctx, events.Event{
		Name:    events.SubtitleDownloaded,
		Payload: events.Payload{"provider": "opensubtitles", "language": "en"},
	})

	require.Len(t, delivery.sent, 2)
	assert.Contains(t, delivery.sent[0], "discord-specific opensubtitles")
	assert.Contains(t, delivery.sent[1], "event-level en")

	// An event with no specific templates falls through to the default.
	sub.Notify(ctx, events.Event{Name: events.CleanupRun, Payload: events.Payload{}})
	assert.Contains(t, delivery.sent[2], "default cleanup_run")

	history, err := st.ListNotificationHistory(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, history, 4)
	for _, rec := range history {
		assert.True(t, rec.Delivered)
	}
}

func TestNotificationQuietHours(t *testing.T) {
	st := testutil.NewStore(t)
	ctx := context.Background()

	_, err := st.UpsertQuietHours(ctx, &store.QuietHoursRule{
		StartTime:       "22:00",
		EndTime:         "07:00",
		DaysOfWeek:      []int{0, 1, 2, 3, 4, 5, 6},
		ExceptionEvents: []string{events.ManagerUnreachable},
		Enabled:         true,
	})
	require.NoError(t, err)

	delivery := &fakeDelivery{}
	sub := events.NewNotificationSubscriber(st, delivery, []string{"discord"}, zerolog.Nop())
	sub.SetClock(func() time.Time {
		return time.Date(2026, 3, 10, 23, 30, 0, 0, time.Local)
	})

	// Inside the window: suppressed, still logged.
	sub.Notify(ctx, events.Event{Name: events.SubtitleDownloaded, Payload: events.Payload{}})
	assert.Empty(t, delivery.sent)

	// Exception events cut through quiet hours.
	sub.Notify(ctx, events.Event{Name: events.ManagerUnreachable, Payload: events.Payload{}})
	assert.Len(t, delivery.sent, 1)

	// Outside the window: delivered.
	sub.SetClock(func() time.Time {
		return time.Date(2026, 3, 10, 12, 0, 0, 0, time.Local)
	})
	sub.Notify(ctx, events.Event{Name: events.SubtitleDownloaded, Payload: events.Payload{}})
	assert.Len(t, delivery.sent, 2)

	history, err := st.ListNotificationHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 3)

	suppressed := 0
	for _, rec := range history {
		if rec.Suppressed {
			suppressed++
		}
	}
	assert.Equal(t, 1, suppressed)
}

func TestNotificationFailureRecorded(t *testing.T) {
	st := testutil.NewStore(t)
	ctx := context.Background()

	delivery := &fakeDelivery{errFn: func(service string) error {
		return assert.AnError
	}}
	sub := events.NewNotificationSubscriber(st, delivery, []string{"discord"}, zerolog.Nop())
	sub.Notify(ctx, events.Event{Name: events.SubtitleDownloaded, Payload: events.Payload{}})

	history, err := st.ListNotificationHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Delivered)
	assert.NotEmpty(t, history[0].Error)
}
