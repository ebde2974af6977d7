package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// UpsertHook creates or updates a hook.
func (s *Store) UpsertHook(ctx context.Context, h *Hook) (int64, error) {
	if h.ID > 0 {
		_, err := s.db.ExecContext(ctx, `
			UPDATE hooks SET name = ?, event_name = ?, command = ?, enabled = ?, timeout_seconds = ?
			WHERE id = ?`,
			h.Name, h.EventName, h.Command, boolToInt(h.Enabled), h.TimeoutSeconds, h.ID)
		if err != nil {
			return 0, fmt.Errorf("update hook: %w", err)
		}
		return h.ID, nil
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO hooks (name, event_name, command, enabled, timeout_seconds)
		VALUES (?, ?, ?, ?, ?)`,
		h.Name, h.EventName, h.Command, boolToInt(h.Enabled), h.TimeoutSeconds)
	if err != nil {
		return 0, fmt.Errorf("insert hook: %w", err)
	}
	return res.LastInsertId()
}

// ListHooks returns hooks, optionally restricted to one event name.
// Passing an empty eventName returns all hooks including disabled ones;
// with an eventName only enabled hooks are returned, since that form is
// the dispatch path.
func (s *Store) ListHooks(ctx context.Context, eventName string) ([]*Hook, error) {
	query := `SELECT id, name, event_name, command, enabled, timeout_seconds, last_exit_code, last_run_at, created_at
		FROM hooks`
	args := []any{}
	if eventName != "" {
		query += ` WHERE event_name = ? AND enabled = 1`
		args = append(args, eventName)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list hooks: %w", err)
	}
	defer rows.Close()

	var out []*Hook
	for rows.Next() {
		var h Hook
		var exit sql.NullInt64
		var runAt sql.NullTime
		if err := rows.Scan(&h.ID, &h.Name, &h.EventName, &h.Command, &h.Enabled,
			&h.TimeoutSeconds, &exit, &runAt, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan hook: %w", err)
		}
		if exit.Valid {
			code := int(exit.Int64)
			h.LastExitCode = &code
		}
		if runAt.Valid {
			t := runAt.Time
			h.LastRunAt = &t
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

// GetHook returns one hook by id, or ErrNotFound.
func (s *Store) GetHook(ctx context.Context, id int64) (*Hook, error) {
	var h Hook
	var exit sql.NullInt64
	var runAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, event_name, command, enabled, timeout_seconds, last_exit_code, last_run_at, created_at
		FROM hooks WHERE id = ?`, id).
		Scan(&h.ID, &h.Name, &h.EventName, &h.Command, &h.Enabled,
			&h.TimeoutSeconds, &exit, &runAt, &h.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get hook: %w", err)
	}
	if exit.Valid {
		code := int(exit.Int64)
		h.LastExitCode = &code
	}
	if runAt.Valid {
		t := runAt.Time
		h.LastRunAt = &t
	}
	return &h, nil
}

// DeleteHook removes a hook and, via cascade, its logs.
func (s *Store) DeleteHook(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM hooks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete hook: %w", err)
	}
	return nil
}

// RecordHookRun appends an execution log row and updates the hook's
// last-run summary.
func (s *Store) RecordHookRun(ctx context.Context, l *HookLog) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record hook run: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO hook_logs (hook_id, execution_id, event_name, exit_code, stdout, stderr, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.HookID, l.ExecutionID, l.EventName, l.ExitCode, l.Stdout, l.Stderr, l.DurationMS)
	if err != nil {
		return fmt.Errorf("insert hook log: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE hooks SET last_exit_code = ?, last_run_at = CURRENT_TIMESTAMP WHERE id = ?`,
		l.ExitCode, l.HookID)
	if err != nil {
		return fmt.Errorf("update hook summary: %w", err)
	}
	return tx.Commit()
}

// ListHookLogs returns execution logs for a hook, newest first.
func (s *Store) ListHookLogs(ctx context.Context, hookID int64, limit int) ([]*HookLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, hook_id, execution_id, event_name, exit_code, stdout, stderr, duration_ms, executed_at
		FROM hook_logs WHERE hook_id = ?
		ORDER BY executed_at DESC LIMIT ?`, hookID, limit)
	if err != nil {
		return nil, fmt.Errorf("list hook logs: %w", err)
	}
	defer rows.Close()

	var out []*HookLog
	for rows.Next() {
		var l HookLog
		if err := rows.Scan(&l.ID, &l.HookID, &l.ExecutionID, &l.EventName,
			&l.ExitCode, &l.Stdout, &l.Stderr, &l.DurationMS, &l.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scan hook log: %w", err)
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

// UpsertWebhook creates or updates a webhook target.
func (s *Store) UpsertWebhook(ctx context.Context, w *Webhook) (int64, error) {
	if w.ID > 0 {
		_, err := s.db.ExecContext(ctx, `
			UPDATE webhooks SET name = ?, event_name = ?, url = ?, template = ?, enabled = ?
			WHERE id = ?`,
			w.Name, w.EventName, w.URL, w.Template, boolToInt(w.Enabled), w.ID)
		if err != nil {
			return 0, fmt.Errorf("update webhook: %w", err)
		}
		return w.ID, nil
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO webhooks (name, event_name, url, template, enabled)
		VALUES (?, ?, ?, ?, ?)`,
		w.Name, w.EventName, w.URL, w.Template, boolToInt(w.Enabled))
	if err != nil {
		return 0, fmt.Errorf("insert webhook: %w", err)
	}
	return res.LastInsertId()
}

// ListWebhooks returns webhooks, optionally only enabled ones for an event.
func (s *Store) ListWebhooks(ctx context.Context, eventName string) ([]*Webhook, error) {
	query := `SELECT id, name, event_name, url, template, enabled, last_status, last_run_at, created_at
		FROM webhooks`
	args := []any{}
	if eventName != "" {
		query += ` WHERE event_name = ? AND enabled = 1`
		args = append(args, eventName)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list webhooks: %w", err)
	}
	defer rows.Close()

	var out []*Webhook
	for rows.Next() {
		var w Webhook
		var status sql.NullInt64
		var runAt sql.NullTime
		if err := rows.Scan(&w.ID, &w.Name, &w.EventName, &w.URL, &w.Template,
			&w.Enabled, &status, &runAt, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan webhook: %w", err)
		}
		if status.Valid {
			st := int(status.Int64)
			w.LastStatus = &st
		}
		if runAt.Valid {
			t := runAt.Time
			w.LastRunAt = &t
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}

// DeleteWebhook removes a webhook by id.
func (s *Store) DeleteWebhook(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM webhooks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}

// RecordWebhookRun stores the HTTP status of the latest delivery.
func (s *Store) RecordWebhookRun(ctx context.Context, id int64, status int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE webhooks SET last_status = ?, last_run_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id)
	if err != nil {
		return fmt.Errorf("record webhook run: %w", err)
	}
	return nil
}

// UpsertNotificationTemplate stores a template keyed by (service, event).
// Empty strings act as fallback levels during resolution.
func (s *Store) UpsertNotificationTemplate(ctx context.Context, t *NotificationTemplate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_templates (service, event_name, title_template, body_template)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (service, event_name) DO UPDATE SET
			title_template = excluded.title_template,
			body_template = excluded.body_template`,
		t.Service, t.EventName, t.TitleTemplate, t.BodyTemplate)
	if err != nil {
		return fmt.Errorf("upsert notification template: %w", err)
	}
	return nil
}

// GetNotificationTemplate returns the template for an exact (service,
// event) pair, or ErrNotFound. Fallback resolution is the notification
// service's job; the store only answers exact lookups.
func (s *Store) GetNotificationTemplate(ctx context.Context, service, eventName string) (*NotificationTemplate, error) {
	var t NotificationTemplate
	err := s.db.QueryRowContext(ctx, `
		SELECT id, service, event_name, title_template, body_template
		FROM notification_templates WHERE service = ? AND event_name = ?`,
		service, eventName).
		Scan(&t.ID, &t.Service, &t.EventName, &t.TitleTemplate, &t.BodyTemplate)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get notification template: %w", err)
	}
	return &t, nil
}

// ListNotificationTemplates returns all templates.
func (s *Store) ListNotificationTemplates(ctx context.Context) ([]*NotificationTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, service, event_name, title_template, body_template
		FROM notification_templates ORDER BY service, event_name`)
	if err != nil {
		return nil, fmt.Errorf("list notification templates: %w", err)
	}
	defer rows.Close()

	var out []*NotificationTemplate
	for rows.Next() {
		var t NotificationTemplate
		if err := rows.Scan(&t.ID, &t.Service, &t.EventName, &t.TitleTemplate, &t.BodyTemplate); err != nil {
			return nil, fmt.Errorf("scan notification template: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// DeleteNotificationTemplate removes a template by id.
func (s *Store) DeleteNotificationTemplate(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM notification_templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete notification template: %w", err)
	}
	return nil
}

// UpsertQuietHours creates or updates a quiet-hours rule.
func (s *Store) UpsertQuietHours(ctx context.Context, r *QuietHoursRule) (int64, error) {
	days, err := json.Marshal(r.DaysOfWeek)
	if err != nil {
		return 0, fmt.Errorf("marshal days: %w", err)
	}
	exceptions, err := json.Marshal(r.ExceptionEvents)
	if err != nil {
		return 0, fmt.Errorf("marshal exceptions: %w", err)
	}
	if r.ID > 0 {
		_, err := s.db.ExecContext(ctx, `
			UPDATE quiet_hours SET start_time = ?, end_time = ?, days_of_week = ?, exception_events = ?, enabled = ?
			WHERE id = ?`,
			r.StartTime, r.EndTime, string(days), string(exceptions), boolToInt(r.Enabled), r.ID)
		if err != nil {
			return 0, fmt.Errorf("update quiet hours: %w", err)
		}
		return r.ID, nil
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO quiet_hours (start_time, end_time, days_of_week, exception_events, enabled)
		VALUES (?, ?, ?, ?, ?)`,
		r.StartTime, r.EndTime, string(days), string(exceptions), boolToInt(r.Enabled))
	if err != nil {
		return 0, fmt.Errorf("insert quiet hours: %w", err)
	}
	return res.LastInsertId()
}

// ListQuietHours returns all quiet-hours rules.
func (s *Store) ListQuietHours(ctx context.Context) ([]*QuietHoursRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, start_time, end_time, days_of_week, exception_events, enabled
		FROM quiet_hours ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list quiet hours: %w", err)
	}
	defer rows.Close()

	var out []*QuietHoursRule
	for rows.Next() {
		var r QuietHoursRule
		var days, exceptions string
		if err := rows.Scan(&r.ID, &r.StartTime, &r.EndTime, &days, &exceptions, &r.Enabled); err != nil {
			return nil, fmt.Errorf("scan quiet hours: %w", err)
		}
		if err := json.Unmarshal([]byte(days), &r.DaysOfWeek); err != nil {
			r.DaysOfWeek = nil
		}
		if err := json.Unmarshal([]byte(exceptions), &r.ExceptionEvents); err != nil {
			r.ExceptionEvents = nil
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// DeleteQuietHours removes a rule by id.
func (s *Store) DeleteQuietHours(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM quiet_hours WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete quiet hours: %w", err)
	}
	return nil
}

// InsertNotificationRecord appends one delivery attempt to the history.
func (s *Store) InsertNotificationRecord(ctx context.Context, r *NotificationRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_history (service, event_name, title, body, delivered, suppressed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Service, r.EventName, r.Title, r.Body,
		boolToInt(r.Delivered), boolToInt(r.Suppressed), nullStr(r.Error))
	if err != nil {
		return fmt.Errorf("insert notification record: %w", err)
	}
	return nil
}

// ListNotificationHistory returns delivery attempts, newest first.
func (s *Store) ListNotificationHistory(ctx context.Context, limit int) ([]*NotificationRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, service, event_name, title, body, delivered, suppressed, error, sent_at
		FROM notification_history ORDER BY sent_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list notification history: %w", err)
	}
	defer rows.Close()

	var out []*NotificationRecord
	for rows.Next() {
		var r NotificationRecord
		var errMsg sql.NullString
		if err := rows.Scan(&r.ID, &r.Service, &r.EventName, &r.Title, &r.Body,
			&r.Delivered, &r.Suppressed, &errMsg, &r.SentAt); err != nil {
			return nil, fmt.Errorf("scan notification record: %w", err)
		}
		r.Error = errMsg.String
		out = append(out, &r)
	}
	return out, rows.Err()
}

// PruneNotificationHistory drops records older than the retention window.
func (s *Store) PruneNotificationHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM notification_history WHERE sent_at < ?`,
		time.Now().Add(-olderThan).UTC())
	if err != nil {
		return 0, fmt.Errorf("prune notification history: %w", err)
	}
	return res.RowsAffected()
}
