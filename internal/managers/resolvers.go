package managers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
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

// metaCache wraps the store-backed response cache shared by all
// resolvers. Lookups key on provider, query kind, title, and year.
type metaCache struct {
	store *store.Store
	ttl   time.Duration
}

func (c *metaCache) key(provider, kind, title string, year int) string {
	return fmt.Sprintf("%s:%s:%s:%d", provider, kind, strings.ToLower(title), year)
}

func (c *metaCache) get(ctx context.Context, key string, out *ResolveResult) bool {
	if c.store == nil {
		return false
	}
	body, err := c.store.MetadataCacheGet(ctx, key)
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(body), out) == nil
}

func (c *metaCache) put(ctx context.Context, provider, key string, res *ResolveResult) {
	if c.store == nil {
		return
	}
	body, err := json.Marshal(res)
	if err != nil {
		return
	}
	_ = c.store.MetadataCacheSet(ctx, key, provider, string(body), c.ttl)
}

// TMDB resolves movies and series against The Movie Database.
type TMDB struct {
	apiKey string
	http   *http.Client
	cache  metaCache
	logger zerolog.Logger
}

// NewTMDB builds a TMDB resolver backed by the store's metadata cache.
func NewTMDB(apiKey string, st *store.Store, cacheTTL time.Duration, logger zerolog.Logger) *TMDB {
	return &TMDB{
		apiKey: apiKey,
		http:   &http.Client{Timeout: 15 * time.Second},
		cache:  metaCache{store: st, ttl: cacheTTL},
		logger: logger.With().Str("component", "resolver").Str("source", "tmdb").Logger(),
	}
}

type tmdbSearchResponse struct {
	Results []struct {
		ID           int64  `json:"id"`
		Title        string `json:"title"`
		Name         string `json:"name"`
		ReleaseDate  string `json:"release_date"`
		FirstAirDate string `json:"first_air_date"`
	} `json:"results"`
}

func (t *TMDB) search(ctx context.Context, kind, title string, year int) (*ResolveResult, error) {
	if t.apiKey == "" {
		return nil, errkind.Newf(errkind.Configuration, "tmdb api key not configured")
	}
	key := t.cache.key("tmdb", kind, title, year)
	var cached ResolveResult
	if t.cache.get(ctx, key, &cached) {
		return &cached, nil
	}

	q := url.Values{"api_key": {t.apiKey}, "query": {title}}
	if year > 0 {
		if kind == "movie" {
			q.Set("year", strconv.Itoa(year))
		} else {
			q.Set("first_air_date_year", strconv.Itoa(year))
		}
	}
	u := "https://api.themoviedb.org/3/search/" + kind + "?" + q.Encode()

	var resp tmdbSearchResponse
	if err := getJSON(ctx, t.http, u, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, errkind.Newf(errkind.PermanentExternal, "tmdb: no match for %q", title)
	}

	first := resp.Results[0]
	name := first.Title
	date := first.ReleaseDate
	if name == "" {
		name = first.Name
		date = first.FirstAirDate
	}
	res := &ResolveResult{
		Source: "tmdb",
		ID:     strconv.FormatInt(first.ID, 10),
		Title:  name,
		Year:   yearOf(date),
	}
	t.cache.put(ctx, "tmdb", key, res)
	return res, nil
}

func (t *TMDB) ResolveSeries(ctx context.Context, title string, year int, isAnime bool) (*ResolveResult, error) {
	res, err := t.search(ctx, "tv", title, year)
	if err != nil {
		return nil, err
	}
	res.IsAnime = isAnime
	return res, nil
}

func (t *TMDB) ResolveMovie(ctx context.Context, title string, year int) (*ResolveResult, error) {
	return t.search(ctx, "movie", title, year)
}

// TVDB resolves series against TheTVDB v4 API. The bearer token is
// fetched lazily on first use and refreshed when it expires.
type TVDB struct {
	apiKey string
	http   *http.Client
	cache  metaCache
	logger zerolog.Logger

	token       string
	tokenExpiry time.Time
}

// NewTVDB builds a TVDB resolver backed by the store's metadata cache.
func NewTVDB(apiKey string, st *store.Store, cacheTTL time.Duration, logger zerolog.Logger) *TVDB {
	return &TVDB{
		apiKey: apiKey,
		http:   &http.Client{Timeout: 15 * time.Second},
		cache:  metaCache{store: st, ttl: cacheTTL},
		logger: logger.With().Str("component", "resolver").Str("source", "tvdb").Logger(),
	}
}

func (t *TVDB) login(ctx context.Context) error {
	if t.token != "" && time.Now().Before(t.tokenExpiry) {
		return nil
	}
	body, _ := json.Marshal(map[string]string{"apikey": t.apiKey})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://api4.thetvdb.com/v4/login", bytes.NewReader(body))
	if err != nil {
		return errkind.New(errkind.Internal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.http.Do(req)
	if err != nil {
		return errkind.Newf(errkind.TransientExternal, "tvdb login: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errkind.Newf(errkind.FromHTTPStatus(resp.StatusCode), "tvdb login returned %d", resp.StatusCode)
	}

	var out struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return errkind.New(errkind.TransientExternal, err)
	}
	t.token = out.Data.Token
	t.tokenExpiry = time.Now().Add(24 * time.Hour)
	return nil
}

type tvdbSearchResponse struct {
	Data []struct {
		TvdbID string `json:"tvdb_id"`
		Name   string `json:"name"`
		Year   string `json:"year"`
	} `json:"data"`
}

func (t *TVDB) ResolveSeries(ctx context.Context, title string, year int, isAnime bool) (*ResolveResult, error) {
	if t.apiKey == "" {
		return nil, errkind.Newf(errkind.Configuration, "tvdb api key not configured")
	}
	key := t.cache.key("tvdb", "series", title, year)
	var cached ResolveResult
	if t.cache.get(ctx, key, &cached) {
		return &cached, nil
	}
	if err := t.login(ctx); err != nil {
		return nil, err
	}

	q := url.Values{"query": {title}, "type": {"series"}}
	if year > 0 {
		q.Set("year", strconv.Itoa(year))
	}
	u := "https://api4.thetvdb.com/v4/search?" + q.Encode()

	var resp tvdbSearchResponse
	headers := map[string]string{"Authorization": "Bearer " + t.token}
	if err := getJSON(ctx, t.http, u, headers, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errkind.Newf(errkind.PermanentExternal, "tvdb: no match for %q", title)
	}

	first := resp.Data[0]
	resYear, _ := strconv.Atoi(first.Year)
	res := &ResolveResult{
		Source:  "tvdb",
		ID:      first.TvdbID,
		Title:   first.Name,
		Year:    resYear,
		IsAnime: isAnime,
	}
	t.cache.put(ctx, "tvdb", key, res)
	return res, nil
}

// ResolveMovie is unsupported; TVDB is consulted for series only.
func (t *TVDB) ResolveMovie(ctx context.Context, title string, year int) (*ResolveResult, error) {
	return nil, errkind.Newf(errkind.PermanentExternal, "tvdb: movie lookup not supported")
}

// AniList resolves anime series via the public GraphQL API. No key is
// required.
type AniList struct {
	http   *http.Client
	cache  metaCache
	logger zerolog.Logger
}

// NewAniList builds an AniList resolver backed by the store's metadata
// cache.
func NewAniList(st *store.Store, cacheTTL time.Duration, logger zerolog.Logger) *AniList {
	return &AniList{
		http:   &http.Client{Timeout: 15 * time.Second},
		cache:  metaCache{store: st, ttl: cacheTTL},
		logger: logger.With().Str("component", "resolver").Str("source", "anilist").Logger(),
	}
}

const anilistQuery = `query ($search: String) {
  Media(search: $search, type: ANIME) {
    id
    title { romaji english }
    startDate { year }
  }
}`

func (a *AniList) ResolveSeries(ctx context.Context, title string, year int, isAnime bool) (*ResolveResult, error) {
	key := a.cache.key("anilist", "series", title, year)
	var cached ResolveResult
	if a.cache.get(ctx, key, &cached) {
		return &cached, nil
	}

	body, _ := json.Marshal(map[string]any{
		"query":     anilistQuery,
		"variables": map[string]string{"search": title},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://graphql.anilist.co", bytes.NewReader(body))
	if err != nil {
		return nil, errkind.New(errkind.Internal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, errkind.Newf(errkind.TransientExternal, "anilist: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errkind.Newf(errkind.FromHTTPStatus(resp.StatusCode), "anilist returned %d", resp.StatusCode)
	}

	var out struct {
		Data struct {
			Media *struct {
				ID    int64 `json:"id"`
				Title struct {
					Romaji  string `json:"romaji"`
					English string `json:"english"`
				} `json:"title"`
				StartDate struct {
					Year int `json:"year"`
				} `json:"startDate"`
			} `json:"Media"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errkind.New(errkind.TransientExternal, err)
	}
	if out.Data.Media == nil {
		return nil, errkind.Newf(errkind.PermanentExternal, "anilist: no match for %q", title)
	}

	name := out.Data.Media.Title.English
	if name == "" {
		name = out.Data.Media.Title.Romaji
	}
	res := &ResolveResult{
		Source:  "anilist",
		ID:      strconv.FormatInt(out.Data.Media.ID, 10),
		Title:   name,
		Year:    out.Data.Media.StartDate.Year,
		IsAnime: true,
	}
	a.cache.put(ctx, "anilist", key, res)
	return res, nil
}

// ResolveMovie delegates to the series lookup; AniList models anime
// films as media of the same type.
func (a *AniList) ResolveMovie(ctx context.Context, title string, year int) (*ResolveResult, error) {
	return a.ResolveSeries(ctx, title, year, true)
}

// ChainResolver tries resolvers in a fixed order, reordered per query:
// anime titles consult AniList first, everything else starts with TMDB.
type ChainResolver struct {
	tmdb    MetadataResolver
	tvdb    MetadataResolver
	anilist MetadataResolver
	logger  zerolog.Logger
}

// NewChainResolver wires the chain. Nil members are skipped.
func NewChainResolver(tmdb, tvdb, anilist MetadataResolver, logger zerolog.Logger) *ChainResolver {
	return &ChainResolver{
		tmdb:    tmdb,
		tvdb:    tvdb,
		anilist: anilist,
		logger:  logger.With().Str("component", "resolver-chain").Logger(),
	}
}

func (c *ChainResolver) order(isAnime bool) []MetadataResolver {
	if isAnime {
		return []MetadataResolver{c.anilist, c.tmdb, c.tvdb}
	}
	return []MetadataResolver{c.tmdb, c.tvdb, c.anilist}
}

func (c *ChainResolver) ResolveSeries(ctx context.Context, title string, year int, isAnime bool) (*ResolveResult, error) {
	var lastErr error
	for _, r := range c.order(isAnime) {
		if r == nil {
			continue
		}
		res, err := r.ResolveSeries(ctx, title, year, isAnime)
		if err == nil {
			return res, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errkind.Newf(errkind.Configuration, "no metadata resolvers configured")
	}
	return nil, lastErr
}

func (c *ChainResolver) ResolveMovie(ctx context.Context, title string, year int) (*ResolveResult, error) {
	var lastErr error
	for _, r := range []MetadataResolver{c.tmdb, c.anilist} {
		if r == nil {
			continue
		}
		res, err := r.ResolveMovie(ctx, title, year)
		if err == nil {
			return res, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errkind.Newf(errkind.Configuration, "no metadata resolvers configured")
	}
	return nil, lastErr
}

// getJSON performs a GET with optional headers and decodes the JSON
// response body into out.
func getJSON(ctx context.Context, client *http.Client, u string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errkind.New(errkind.Internal, err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return errkind.New(errkind.TransientExternal, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return errkind.Newf(errkind.FromHTTPStatus(resp.StatusCode), "request returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	y, _ := strconv.Atoi(date[:4])
	return y
}
