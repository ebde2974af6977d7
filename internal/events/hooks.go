package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/store"
)

// HookSubscriber executes configured shell commands when their bound
// event fires. The payload is passed both as environment variables and
// as JSON on stdin; stdout/stderr are captured into hook logs.
type HookSubscriber struct {
	store          *store.Store
	defaultTimeout time.Duration
	logger         zerolog.Logger
}

// NewHookSubscriber wires the subscriber.
func NewHookSubscriber(st *store.Store, defaultTimeout time.Duration, logger zerolog.Logger) *HookSubscriber {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &HookSubscriber{
		store:          st,
		defaultTimeout: defaultTimeout,
		logger:         logger.With().Str("component", "hook-subscriber").Logger(),
	}
}

func (h *HookSubscriber) Name() string { return "hooks" }

// Notify runs every enabled hook bound to the event, sequentially.
func (h *HookSubscriber) Notify(ctx context.Context, ev Event) {
	hooks, err := h.store.ListHooks(ctx, ev.Name)
	if err != nil {
		h.logger.Error().Err(err).Str("event", ev.Name).Msg("list hooks failed")
		return
	}
	for _, hook := range hooks {
		h.Run(ctx, hook, ev)
	}
}

// Run executes one hook synchronously and records its log row. It is
// also the path behind the hook test endpoint.
func (h *HookSubscriber) Run(ctx context.Context, hook *store.Hook, ev Event) {
	timeout := h.defaultTimeout
	if hook.TimeoutSeconds > 0 {
		timeout = time.Duration(hook.TimeoutSeconds) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		h.logger.Error().Err(err).Int64("hook", hook.ID).Msg("marshal payload failed")
		return
	}

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", hook.Command)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Env = append(cmd.Environ(), payloadEnv(ev)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		exitCode = -1
		if ee, ok := runErr.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		}
	}

	log := &store.HookLog{
		HookID:      hook.ID,
		ExecutionID: uuid.NewString(),
		EventName:   ev.Name,
		ExitCode:    exitCode,
		Stdout:      truncate(stdout.String(), 16384),
		Stderr:      truncate(stderr.String(), 16384),
		DurationMS:  time.Since(started).Milliseconds(),
	}
	if err := h.store.RecordHookRun(ctx, log); err != nil {
		h.logger.Error().Err(err).Int64("hook", hook.ID).Msg("record hook run failed")
	}

	if runErr != nil {
		h.logger.Warn().
			Int64("hook", hook.ID).
			Str("event", ev.Name).
			Int("exit_code", exitCode).
			Msg("hook exited non-zero")
	}
}

// payloadEnv exposes payload keys as SUBLARR_EVENT_* variables.
func payloadEnv(ev Event) []string {
	env := []string{"SUBLARR_EVENT=" + ev.Name}
	for key, val := range ev.Payload {
		name := "SUBLARR_EVENT_" + strings.ToUpper(key)
		env = append(env, fmt.Sprintf("%s=%v", name, val))
	}
	return env
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
