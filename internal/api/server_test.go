package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/api"
	"github.com/sublarr/sublarr/internal/dedup"
	"github.com/sublarr/sublarr/internal/events"
	"github.com/sublarr/sublarr/internal/scheduler"
	"github.com/sublarr/sublarr/internal/store"
	"github.com/sublarr/sublarr/internal/testutil"
)

type testServer struct {
	srv   *api.Server
	store *store.Store
	sched *scheduler.Scheduler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st := testutil.NewStore(t)
	bus := events.NewBus(1, zerolog.Nop())
	sched, err := scheduler.New(bus, zerolog.Nop())
	require.NoError(t, err)
	hooks := events.NewHookSubscriber(st, time.Second, zerolog.Nop())
	srv := api.NewServer(api.Deps{Store: st, Scheduler: sched, Hooks: hooks}, zerolog.Nop())
	return &testServer{srv: srv, store: st, sched: sched}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echoContentType, echoJSON)
	}
	rec := httptest.NewRecorder()
	ts.srv.Echo().ServeHTTP(rec, req)
	return rec
}

const (
	echoContentType = "Content-Type"
	echoJSON        = "application/json"
)

func seedItem(t *testing.T, st *store.Store, path, lang string, status store.Status) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := st.UpsertWantedItem(ctx, &store.WantedItem{
		ItemKind:         store.KindEpisode,
		SourceRef:        "sonarr:7",
		FilePath:         path,
		Title:            "Example Show",
		Season:           1,
		Episode:          1,
		TargetLanguage:   lang,
		SubtitleType:     store.SubtitleFull,
		MissingLanguages: []string{lang},
		InstanceName:     "sonarr-main",
	})
	require.NoError(t, err)
	if status != store.StatusWanted {
		_, err = st.BatchUpdateStatus(ctx, []int64{id}, status)
		require.NoError(t, err)
	}
	return id
}

func TestListWantedAppliesPresetFilter(t *testing.T) {
	ts := newTestServer(t)
	seedItem(t, ts.store, "/media/a.mkv", "en", store.StatusWanted)
	seedItem(t, ts.store, "/media/b.mkv", "de", store.StatusFailed)

	tree := `{"field":"status","op":"eq","value":"failed"}`
	body := `{"name":"failures","scope":"wanted","conditionTree":` + strconv.Quote(tree) + `}`
	rec := ts.do(t, http.MethodPost, "/api/v1/filter-presets", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var preset store.FilterPreset
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &preset))

	rec = ts.do(t, http.MethodGet, "/api/v1/wanted?preset_id="+strconv.FormatInt(preset.ID, 10), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Items []store.WantedItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "/media/b.mkv", resp.Items[0].FilePath)
}

func TestCreatePresetRejectsUnknownField(t *testing.T) {
	ts := newTestServer(t)

	tree := `{"field":"password","op":"eq","value":"x"}`
	body := `{"name":"bad","scope":"wanted","conditionTree":` + strconv.Quote(tree) + `}`
	rec := ts.do(t, http.MethodPost, "/api/v1/filter-presets", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestBatchActionValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/wanted/batch-action", `{"action":"ignore","ids":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/wanted/batch-action", `{"action":"explode","ids":[1]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBatchActionIgnoreAndUnignore(t *testing.T) {
	ts := newTestServer(t)
	id := seedItem(t, ts.store, "/media/c.mkv", "en", store.StatusWanted)

	body := `{"action":"ignore","ids":[` + strconv.FormatInt(id, 10) + `]}`
	rec := ts.do(t, http.MethodPost, "/api/v1/wanted/batch-action", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	item, err := ts.store.GetWantedItem(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusIgnored, item.Status)
}

func TestRunTaskNotFound(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/v1/tasks/nope/run", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())
}

func TestRunTaskConflictWhileRunning(t *testing.T) {
	ts := newTestServer(t)
	release := make(chan struct{})
	require.NoError(t, ts.sched.Register(scheduler.TaskConfig{
		ID:   "slow",
		Name: "Slow task",
		Func: func(ctx context.Context) error {
			<-release
			return nil
		},
	}))
	defer close(release)

	require.NoError(t, ts.sched.RunNow("slow"))
	require.Eventually(t, func() bool {
		info, err := ts.sched.Task("slow")
		return err == nil && info.Running
	}, time.Second, 5*time.Millisecond)

	rec := ts.do(t, http.MethodPost, "/api/v1/tasks/slow/run", "")
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestDeleteDuplicatesRequiresKeep(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/v1/cleanup/duplicates/delete",
		`{"groups":[{"keep":"","delete":["/x.srt"]}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteDuplicatesBatchIsAllOrNothing(t *testing.T) {
	st := testutil.NewStore(t)
	dir := t.TempDir()
	svc := dedup.NewService(st, []string{dir}, zerolog.Nop())
	srv := api.NewServer(api.Deps{Store: st, Dedup: svc}, zerolog.Nop())
	ts := &testServer{srv: srv, store: st}

	ctx := context.Background()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		require.NoError(t, st.UpsertContentHash(ctx, &store.ContentHash{
			FilePath:    path,
			ContentHash: dedup.HashContent([]byte(content)),
			SizeBytes:   int64(len(content)),
			Format:      "srt",
			Language:    "en",
		}))
		return path
	}
	hello := "1\n00:00:01,000 --> 00:00:02,000\nHello.\n"
	bye := "1\n00:00:01,000 --> 00:00:02,000\nBye.\n"
	a1 := write("a1.en.srt", hello)
	a2 := write("a2.en.srt", hello)
	b1 := write("b1.en.srt", bye)
	b2 := write("b2.en.srt", bye)

	// The second group is invalid: its delete path is outside the keep
	// file's group. Nothing from the first group may be deleted.
	body, err := json.Marshal(map[string]any{"groups": []map[string]any{
		{"keep": a1, "delete": []string{a2}},
		{"keep": b1, "delete": []string{a1}},
	}})
	require.NoError(t, err)
	rec := ts.do(t, http.MethodPost, "/api/v1/cleanup/duplicates/delete", string(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.FileExists(t, a2)
	assert.FileExists(t, b2)

	// A fully valid batch goes through.
	body, err = json.Marshal(map[string]any{"groups": []map[string]any{
		{"keep": a1, "delete": []string{a2}},
		{"keep": b1, "delete": []string{b2}},
	}})
	require.NoError(t, err)
	rec = ts.do(t, http.MethodPost, "/api/v1/cleanup/duplicates/delete", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NoFileExists(t, a2)
	assert.NoFileExists(t, b2)
	assert.FileExists(t, a1)
	assert.FileExists(t, b1)
}

func TestProfileValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/profiles", `{"name":"empty","languages":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/profiles",
		`{"name":"default","acceptanceThreshold":300,"upgradeThreshold":600,"isDefault":true,`+
			`"languages":[{"language":"en","enabled":true,"forcedPreference":"disabled"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestUpsertHookRejectsUnknownEvent(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/v1/hooks",
		`{"name":"notify","eventName":"no_such_event","command":"echo hi"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestQuietHoursValidation(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/v1/notifications/quiet-hours",
		`{"startTime":"25:00","endTime":"07:00","enabled":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/notifications/quiet-hours",
		`{"startTime":"22:00","endTime":"07:00","daysOfWeek":[0,6],"enabled":true}`)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHookTestExecutesCommand(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/api/v1/hooks",
		`{"name":"greeter","eventName":"subtitle_downloaded","command":"echo hello","enabled":true}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var hook store.Hook
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hook))

	rec = ts.do(t, http.MethodPost, "/api/v1/hooks/"+strconv.FormatInt(hook.ID, 10)+"/test", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var log store.HookLog
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &log))
	assert.Equal(t, 0, log.ExitCode)
	assert.Contains(t, log.Stdout, "hello")
}

func TestSettingsRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPut, "/api/v1/settings", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/v1/settings", `{"ui.theme":"dark"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/v1/settings", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var settings map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settings))
	assert.Equal(t, "dark", settings["ui.theme"])

	rec = ts.do(t, http.MethodDelete, "/api/v1/settings/ui.theme", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSearchSuggestionsRequiresQuery(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/v1/search?q=a", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	seedItem(t, ts.store, "/media/d.mkv", "en", store.StatusWanted)
	rec = ts.do(t, http.MethodGet, "/api/v1/search?q=Example", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.NotEmpty(t, out)
}
