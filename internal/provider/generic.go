package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sublarr/sublarr/internal/errkind"
	"github.com/sublarr/sublarr/internal/store"
)

const genericHTTPTimeout = 45 * time.Second

// GenericConfig configures a self-hosted JSON subtitle source exposing
// GET /search and GET /download/{id}. Addic7ed-proxy style services and
// most community providers speak this shape.
type GenericConfig struct {
	Name     string
	BaseURL  string
	APIKey   string
	Priority int
	HTTP     *http.Client
}

// Generic implements Provider over a configurable JSON API.
type Generic struct {
	name     string
	baseURL  *url.URL
	apiKey   string
	priority int
	http     *http.Client
	logger   zerolog.Logger
}

// NewGeneric validates the configuration and builds the client.
func NewGeneric(cfg GenericConfig, logger zerolog.Logger) (*Generic, error) {
	if cfg.Name == "" {
		return nil, errkind.Newf(errkind.Configuration, "generic provider: name is required")
	}
	if cfg.BaseURL == "" {
		return nil, errkind.Newf(errkind.Configuration, "generic provider %s: base url is required", cfg.Name)
	}
	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, errkind.Newf(errkind.Configuration, "generic provider %s: parse base url: %v", cfg.Name, err)
	}
	client := cfg.HTTP
	if client == nil {
		client = &http.Client{Timeout: genericHTTPTimeout}
	}
	return &Generic{
		name:     cfg.Name,
		baseURL:  baseURL,
		apiKey:   cfg.APIKey,
		priority: cfg.Priority,
		http:     client,
		logger:   logger.With().Str("component", "provider-"+cfg.Name).Logger(),
	}, nil
}

func (g *Generic) Name() string  { return g.name }
func (g *Generic) Priority() int { return g.priority }

// Search queries /search with title, language, and episode parameters.
func (g *Generic) Search(ctx context.Context, q VideoQuery) ([]Candidate, error) {
	endpoint := g.baseURL.JoinPath("search")
	params := url.Values{}
	params.Set("query", q.Title)
	if len(q.Languages) > 0 {
		params.Set("languages", strings.Join(q.Languages, ","))
	}
	if q.Year > 0 {
		params.Set("year", strconv.Itoa(q.Year))
	}
	if q.Season > 0 {
		params.Set("season", strconv.Itoa(q.Season))
	}
	if q.Episode > 0 {
		params.Set("episode", strconv.Itoa(q.Episode))
	}
	if q.ForcedOnly {
		params.Set("forced", "1")
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, errkind.New(errkind.Internal, err)
	}
	g.applyHeaders(req)

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, errkind.New(errkind.TransientExternal, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, g.statusError("search", resp)
	}

	var entries []genericEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, errkind.Newf(errkind.PermanentExternal, "%s: decode search response: %v", g.name, err)
	}

	candidates := make([]Candidate, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" || e.Language == "" {
			continue
		}
		format := e.Format
		if format == "" {
			format = "srt"
		}
		subType := store.SubtitleFull
		if e.Forced {
			subType = store.SubtitleForced
		}
		candidates = append(candidates, Candidate{
			ProviderName:     g.name,
			ExternalID:       e.ID,
			Language:         e.Language,
			SubtitleType:     subType,
			ReleaseGroup:     e.ReleaseGroup,
			Format:           format,
			Year:             e.Year,
			HearingImpaired:  e.HearingImpaired,
			ForeignPartsOnly: e.Forced,
			Downloads:        e.Downloads,
			SizeBytes:        e.SizeBytes,
			Metadata: map[string]string{
				"release": e.Release,
			},
		})
	}
	g.logger.Debug().
		Str("title", q.Title).
		Int("results", len(candidates)).
		Msg("search completed")
	return candidates, nil
}

// Download fetches /download/{id} and returns the raw subtitle bytes.
func (g *Generic) Download(ctx context.Context, c Candidate) ([]byte, error) {
	endpoint := g.baseURL.JoinPath("download", c.ExternalID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, errkind.New(errkind.Internal, err)
	}
	g.applyHeaders(req)

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, errkind.New(errkind.TransientExternal, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, g.statusError("download", resp)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, errkind.New(errkind.TransientExternal, err)
	}
	return data, nil
}

func (g *Generic) applyHeaders(req *http.Request) {
	if g.apiKey != "" {
		req.Header.Set("X-Api-Key", g.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}

func (g *Generic) statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return errkind.Newf(errkind.FromHTTPStatus(resp.StatusCode),
		"%s: %s failed (%s): %s", g.name, op, resp.Status, strings.TrimSpace(string(body)))
}

type genericEntry struct {
	ID              string `json:"id"`
	Language        string `json:"language"`
	Release         string `json:"release"`
	ReleaseGroup    string `json:"release_group"`
	Format          string `json:"format"`
	Year            int    `json:"year"`
	Forced          bool   `json:"forced"`
	HearingImpaired bool   `json:"hearing_impaired"`
	Downloads       int    `json:"downloads"`
	SizeBytes       int64  `json:"size_bytes"`
}
