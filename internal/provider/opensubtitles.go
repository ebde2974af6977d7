package provider

import (
	"bytes"
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

const (
	openSubsBaseURL     = "https://api.opensubtitles.com/api/v1"
	openSubsHTTPTimeout = 45 * time.Second
)

// OpenSubtitlesConfig configures the opensubtitles.com REST client.
type OpenSubtitlesConfig struct {
	APIKey    string
	UserAgent string
	BaseURL   string
	Priority  int
	HTTP      *http.Client
}

// OpenSubtitles implements Provider over the opensubtitles.com v1 API.
type OpenSubtitles struct {
	apiKey    string
	userAgent string
	baseURL   *url.URL
	priority  int
	http      *http.Client
	logger    zerolog.Logger
}

// NewOpenSubtitles validates the configuration and builds the client.
func NewOpenSubtitles(cfg OpenSubtitlesConfig, logger zerolog.Logger) (*OpenSubtitles, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errkind.Newf(errkind.Configuration, "opensubtitles: api key is required")
	}
	base := cfg.BaseURL
	if base == "" {
		base = openSubsBaseURL
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, errkind.Newf(errkind.Configuration, "opensubtitles: parse base url: %v", err)
	}
	client := cfg.HTTP
	if client == nil {
		client = &http.Client{Timeout: openSubsHTTPTimeout}
	}
	return &OpenSubtitles{
		apiKey:    strings.TrimSpace(cfg.APIKey),
		userAgent: cfg.UserAgent,
		baseURL:   baseURL,
		priority:  cfg.Priority,
		http:      client,
		logger:    logger.With().Str("component", "provider-opensubtitles").Logger(),
	}, nil
}

func (o *OpenSubtitles) Name() string  { return "opensubtitles" }
func (o *OpenSubtitles) Priority() int { return o.priority }

// Search queries /subtitles ordered by download count.
func (o *OpenSubtitles) Search(ctx context.Context, q VideoQuery) ([]Candidate, error) {
	endpoint := o.baseURL.JoinPath("subtitles")
	params := url.Values{}
	if q.Title != "" {
		params.Set("query", q.Title)
	}
	if len(q.Languages) > 0 {
		params.Set("languages", strings.Join(q.Languages, ","))
	}
	if q.Season > 0 {
		params.Set("season_number", strconv.Itoa(q.Season))
	}
	if q.Episode > 0 {
		params.Set("episode_number", strconv.Itoa(q.Episode))
	}
	if q.Year > 0 {
		params.Set("year", strconv.Itoa(q.Year))
	}
	if q.SourceHash != "" {
		params.Set("moviehash", q.SourceHash)
	}
	if q.ForcedOnly {
		params.Set("foreign_parts_only", "only")
	}
	if q.Season > 0 || q.Episode > 0 {
		params.Set("type", "episode")
	} else {
		params.Set("type", "movie")
	}
	params.Set("order_by", "download_count")
	params.Set("order_direction", "desc")
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, errkind.New(errkind.Internal, err)
	}
	o.applyHeaders(req)

	resp, err := o.http.Do(req)
	if err != nil {
		return nil, errkind.New(errkind.TransientExternal, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, o.statusError("search", resp)
	}

	var payload osSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errkind.Newf(errkind.PermanentExternal, "opensubtitles: decode search response: %v", err)
	}

	candidates := make([]Candidate, 0, len(payload.Data))
	for _, entry := range payload.Data {
		fileID := entry.Attributes.primaryFileID()
		if fileID == 0 || entry.Attributes.Language == "" {
			continue
		}
		subType := store.SubtitleFull
		if entry.Attributes.ForeignPartsOnly {
			subType = store.SubtitleForced
		}
		candidates = append(candidates, Candidate{
			ProviderName:     o.Name(),
			ExternalID:       strconv.FormatInt(fileID, 10),
			Language:         entry.Attributes.Language,
			SubtitleType:     subType,
			ReleaseGroup:     releaseGroupOf(entry.Attributes.Release),
			Format:           "srt",
			Year:             entry.Attributes.FeatureDetails.Year,
			HearingImpaired:  entry.Attributes.HearingImpaired,
			ForeignPartsOnly: entry.Attributes.ForeignPartsOnly,
			MatchedByHash:    entry.Attributes.MovieHashMatch,
			Downloads:        entry.Attributes.DownloadCount,
			Metadata: map[string]string{
				"release": entry.Attributes.Release,
			},
		})
	}
	o.logger.Debug().
		Str("title", q.Title).
		Int("results", len(candidates)).
		Msg("search completed")
	return candidates, nil
}

// Download negotiates a download link via POST /download and fetches it.
func (o *OpenSubtitles) Download(ctx context.Context, c Candidate) ([]byte, error) {
	fileID, err := strconv.ParseInt(c.ExternalID, 10, 64)
	if err != nil {
		return nil, errkind.Newf(errkind.PermanentExternal, "opensubtitles: bad file id %q", c.ExternalID)
	}

	body, err := json.Marshal(map[string]any{"file_id": fileID, "sub_format": "srt"})
	if err != nil {
		return nil, errkind.New(errkind.Internal, err)
	}

	endpoint := o.baseURL.JoinPath("download")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, errkind.New(errkind.Internal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	o.applyHeaders(req)

	resp, err := o.http.Do(req)
	if err != nil {
		return nil, errkind.New(errkind.TransientExternal, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, o.statusError("download negotiation", resp)
	}

	var link struct {
		Link     string `json:"link"`
		FileName string `json:"file_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&link); err != nil {
		return nil, errkind.Newf(errkind.PermanentExternal, "opensubtitles: decode download response: %v", err)
	}
	if link.Link == "" {
		return nil, errkind.Newf(errkind.PermanentExternal, "opensubtitles: empty download link for file %d", fileID)
	}

	fileReq, err := http.NewRequestWithContext(ctx, http.MethodGet, link.Link, nil)
	if err != nil {
		return nil, errkind.New(errkind.Internal, err)
	}
	fileResp, err := o.http.Do(fileReq)
	if err != nil {
		return nil, errkind.New(errkind.TransientExternal, err)
	}
	defer fileResp.Body.Close()

	if fileResp.StatusCode >= 400 {
		return nil, o.statusError("download", fileResp)
	}
	data, err := io.ReadAll(io.LimitReader(fileResp.Body, 10<<20))
	if err != nil {
		return nil, errkind.New(errkind.TransientExternal, err)
	}
	return data, nil
}

func (o *OpenSubtitles) applyHeaders(req *http.Request) {
	req.Header.Set("Api-Key", o.apiKey)
	req.Header.Set("User-Agent", o.userAgent)
	req.Header.Set("Accept", "application/json")
}

func (o *OpenSubtitles) statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return errkind.Newf(errkind.FromHTTPStatus(resp.StatusCode),
		"opensubtitles: %s failed (%s): %s", op, resp.Status, strings.TrimSpace(string(body)))
}

type osSearchResponse struct {
	Data []struct {
		ID         string       `json:"id"`
		Attributes osAttributes `json:"attributes"`
	} `json:"data"`
	TotalCount int `json:"total_count"`
}

type osAttributes struct {
	Language         string `json:"language"`
	Release          string `json:"release"`
	DownloadCount    int    `json:"download_count"`
	HearingImpaired  bool   `json:"hearing_impaired"`
	ForeignPartsOnly bool   `json:"foreign_parts_only"`
	MovieHashMatch   bool   `json:"moviehash_match"`
	FeatureDetails   struct {
		Title string `json:"title"`
		Year  int    `json:"year"`
	} `json:"feature_details"`
	Files []struct {
		FileID int64 `json:"file_id"`
	} `json:"files"`
}

func (a osAttributes) primaryFileID() int64 {
	if len(a.Files) == 0 {
		return 0
	}
	return a.Files[0].FileID
}

func releaseGroupOf(release string) string {
	if i := strings.LastIndex(release, "-"); i >= 0 && i < len(release)-1 {
		group := release[i+1:]
		if !strings.ContainsAny(group, " .") {
			return group
		}
	}
	return ""
}
