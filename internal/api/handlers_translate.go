package api

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/sublarr/sublarr/internal/errkind"
	"github.com/sublarr/sublarr/internal/mediascan"
	"github.com/sublarr/sublarr/internal/store"
	"github.com/sublarr/sublarr/internal/subtitle"
)

// translationJob tracks one async file translation.
type translateJob struct {
	ID          string     `json:"id"`
	FilePath    string     `json:"filePath"`
	OutputPath  string     `json:"outputPath,omitempty"`
	SourceLang  string     `json:"sourceLang"`
	TargetLang  string     `json:"targetLang"`
	State       string     `json:"state"` // queued, running, done, failed
	CacheHits   int        `json:"cacheHits,omitempty"`
	Translated  int        `json:"translated,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

type jobTracker struct {
	mu   sync.Mutex
	jobs map[string]*translateJob
}

func newJobTracker() *jobTracker {
	return &jobTracker{jobs: make(map[string]*translateJob)}
}

func (t *jobTracker) put(j *translateJob) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[j.ID] = j
}

func (t *jobTracker) get(id string) (*translateJob, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs[id]
	if !ok {
		return nil, false
	}
	cp := *j
	return &cp, true
}

func (t *jobTracker) update(id string, fn func(*translateJob)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if j, ok := t.jobs[id]; ok {
		fn(j)
	}
}

type translateRequest struct {
	FilePath   string `json:"file_path"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

func (s *Server) startTranslation(c echo.Context) error {
	if s.deps.Translator == nil {
		return respondError(c, errkind.Newf(errkind.Configuration, "no translation backend configured"))
	}
	var req translateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "parse body: %v", err)
	}
	if req.FilePath == "" || req.SourceLang == "" || req.TargetLang == "" {
		return badRequest(c, "file_path, source_lang and target_lang required")
	}
	if !mediascan.IsSubtitleFile(req.FilePath) {
		return badRequest(c, "%q is not a subtitle file", req.FilePath)
	}
	if _, err := os.Stat(req.FilePath); err != nil {
		return respondError(c, errkind.Newf(errkind.Configuration, "stat %s: %v", req.FilePath, err))
	}

	job := &translateJob{
		ID:         uuid.NewString(),
		FilePath:   req.FilePath,
		SourceLang: req.SourceLang,
		TargetLang: req.TargetLang,
		State:      "queued",
		StartedAt:  time.Now().UTC(),
	}
	s.jobs.put(job)
	go s.runTranslation(job.ID, req)

	return c.JSON(http.StatusAccepted, job)
}

func (s *Server) runTranslation(id string, req translateRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	s.jobs.update(id, func(j *translateJob) { j.State = "running" })
	fail := func(err error) {
		now := time.Now().UTC()
		s.jobs.update(id, func(j *translateJob) {
			j.State = "failed"
			j.Error = err.Error()
			j.CompletedAt = &now
		})
		s.logger.Error().Err(err).Str("job_id", id).Str("file", req.FilePath).Msg("translation job failed")
	}

	subs, err := subtitle.ParseFile(req.FilePath)
	if err != nil {
		fail(err)
		return
	}
	lines := make([]string, len(subs.Events))
	for i, ev := range subs.Events {
		lines[i] = ev.Text
	}

	result, err := s.deps.Translator.Translate(ctx, lines, req.SourceLang, req.TargetLang)
	if err != nil {
		fail(err)
		return
	}
	if result.FailedBatches > 0 {
		fail(errkind.Newf(errkind.TransientExternal, "%d batches failed", result.FailedBatches))
		return
	}
	for i := range subs.Events {
		subs.Events[i].Text = result.Lines[i]
	}

	out := translatedSidecarPath(req.FilePath, req.TargetLang)
	payload, err := subtitle.Serialize(subs, subs.Format)
	if err != nil {
		fail(err)
		return
	}
	if err := os.WriteFile(out, payload, 0o644); err != nil {
		fail(err)
		return
	}

	_, _ = s.deps.Store.InsertDownload(ctx, &store.SubtitleDownload{
		FilePath:     out,
		Language:     req.TargetLang,
		SubtitleType: store.SubtitleFull,
		Provider:     "translate:" + result.BackendName,
		SizeBytes:    int64(len(payload)),
	})

	now := time.Now().UTC()
	s.jobs.update(id, func(j *translateJob) {
		j.State = "done"
		j.OutputPath = out
		j.CacheHits = result.CacheHits
		j.Translated = result.Translated
		j.CompletedAt = &now
	})
}

// translatedSidecarPath swaps the language infix of a sidecar filename,
// keeping any forced/sdh variant and the original format.
func translatedSidecarPath(subtitlePath, targetLang string) string {
	ext := strings.TrimPrefix(filepath.Ext(subtitlePath), ".")
	info := mediascan.ParseSidecar(subtitlePath)
	name := []string{info.MediaBase, targetLang}
	if info.Variant != mediascan.VariantFull {
		name = append(name, string(info.Variant))
	}
	name = append(name, ext)
	return filepath.Join(filepath.Dir(subtitlePath), strings.Join(name, "."))
}

func (s *Server) translationJob(c echo.Context) error {
	job, ok := s.jobs.get(c.Param("id"))
	if !ok {
		return respondError(c, store.ErrNotFound)
	}
	return c.JSON(http.StatusOK, job)
}

func (s *Server) tmStats(c echo.Context) error {
	stats, err := s.deps.Store.TMGetStats(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (s *Server) tmClear(c echo.Context) error {
	n, err := s.deps.Store.TMClear(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"cleared": n})
}
