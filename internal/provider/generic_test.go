package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sublarr/sublarr/internal/errkind"
	"github.com/sublarr/sublarr/internal/store"
)

func TestNewGenericValidation(t *testing.T) {
	_, err := NewGeneric(GenericConfig{BaseURL: "http://example.test"}, zerolog.Nop())
	require.Error(t, err)
	assert.Equal(t, errkind.Configuration, errkind.Classify(err))

	_, err = NewGeneric(GenericConfig{Name: "addicted"}, zerolog.Nop())
	require.Error(t, err)
	assert.Equal(t, errkind.Configuration, errkind.Classify(err))
}

func TestGenericSearchMapsCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Breaking Bad", r.URL.Query().Get("query"))
		assert.Equal(t, "5", r.URL.Query().Get("season"))
		assert.Equal(t, "14", r.URL.Query().Get("episode"))
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))

		json.NewEncoder(w).Encode([]map[string]any{
			{"id": "abc1", "language": "en", "release_group": "NTb", "downloads": 420},
			{"id": "abc2", "language": "es", "forced": true, "format": "ass"},
			{"id": "", "language": "fr"},
		})
	}))
	defer srv.Close()

	g, err := NewGeneric(GenericConfig{Name: "addicted", BaseURL: srv.URL, APIKey: "secret"}, zerolog.Nop())
	require.NoError(t, err)

	candidates, err := g.Search(context.Background(), VideoQuery{
		Title:     "Breaking Bad",
		Season:    5,
		Episode:   14,
		Languages: []string{"en", "es"},
	})
	require.NoError(t, err)
	require.Len(t, candidates, 2, "entries without an id are dropped")

	assert.Equal(t, "addicted", candidates[0].ProviderName)
	assert.Equal(t, "abc1", candidates[0].ExternalID)
	assert.Equal(t, store.SubtitleFull, candidates[0].SubtitleType)
	assert.Equal(t, "srt", candidates[0].Format, "missing format defaults to srt")
	assert.Equal(t, 420, candidates[0].Downloads)

	assert.Equal(t, store.SubtitleForced, candidates[1].SubtitleType)
	assert.True(t, candidates[1].ForeignPartsOnly)
	assert.Equal(t, "ass", candidates[1].Format)
}

func TestGenericSearchStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g, err := NewGeneric(GenericConfig{Name: "addicted", BaseURL: srv.URL}, zerolog.Nop())
	require.NoError(t, err)

	_, err = g.Search(context.Background(), VideoQuery{Title: "x"})
	require.Error(t, err)
	assert.Equal(t, errkind.TransientExternal, errkind.Classify(err))
}

func TestGenericDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/download/abc1", r.URL.Path)
		w.Write([]byte("1\n00:00:01,000 --> 00:00:02,000\nhello\n"))
	}))
	defer srv.Close()

	g, err := NewGeneric(GenericConfig{Name: "addicted", BaseURL: srv.URL}, zerolog.Nop())
	require.NoError(t, err)

	data, err := g.Download(context.Background(), Candidate{ExternalID: "abc1"})
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}
