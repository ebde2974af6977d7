// Package mediascan parses media filenames into structured metadata and
// maps media files to their sidecar subtitle paths.
package mediascan

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ParsedMedia is a media file parsed from its filename.
type ParsedMedia struct {
	Title           string `json:"title"`
	Year            int    `json:"year,omitempty"`
	Season          int    `json:"season,omitempty"`
	Episode         int    `json:"episode,omitempty"`
	AbsoluteEpisode int    `json:"absoluteEpisode,omitempty"`
	ReleaseGroup    string `json:"releaseGroup,omitempty"`
	Resolution      int    `json:"resolution,omitempty"` // 720, 1080, 2160
	Source          string `json:"source,omitempty"`     // "BluRay", "WEB-DL", ...
	CRC32           string `json:"crc32,omitempty"`
	IsTV            bool   `json:"isTv"`
	IsAnime         bool   `json:"isAnime"`
}

var (
	// Fansub layout: [Group] Title - 03 [ABCD1234] or [Group] Title - 03v2
	animePattern = regexp.MustCompile(`^\[([^\]]+)\]\s*(.+?)\s*-\s*(\d{1,4})(?:v\d)?\s*(?:\[|\(|$)`)
	crcPattern   = regexp.MustCompile(`[\[\(]([0-9A-Fa-f]{8})[\]\)]`)

	// Standard layouts: Show.S01E02 and Show.1x02
	tvPatternSE = regexp.MustCompile(`(?i)^(.+?)[\.\s_-]+[Ss](\d{1,2})[Ee](\d{1,3})(?:[\.\s_-]|$)(.*)$`)
	tvPatternX  = regexp.MustCompile(`(?i)^(.+?)[\.\s_-]+(\d{1,2})[xX](\d{1,3})(?:[\.\s_-]|$)(.*)$`)

	// Movie layouts: Title.2010.rest, Title (2010) rest, Title.2010
	moviePatternDot    = regexp.MustCompile(`^(.+?)[\.\s_-]+(19\d{2}|20\d{2})(?:[\.\s_-]+(.*))?$`)
	moviePatternParen  = regexp.MustCompile(`^(.+?)\s*\((19\d{2}|20\d{2})\)\s*(.*)$`)

	// Trailing -GROUP release tag.
	groupSuffixPattern = regexp.MustCompile(`-([A-Za-z0-9]+)$`)
	yearPattern        = regexp.MustCompile(`(19\d{2}|20\d{2})`)

	resolutionPatterns = map[int]*regexp.Regexp{
		2160: regexp.MustCompile(`(?i)(2160p|4k|uhd)`),
		1080: regexp.MustCompile(`(?i)1080p`),
		720:  regexp.MustCompile(`(?i)720p`),
		480:  regexp.MustCompile(`(?i)(480p|sd)`),
	}

	sourcePatterns = map[string]*regexp.Regexp{
		"BluRay": regexp.MustCompile(`(?i)(blu-?ray|bdrip|brrip|bdremux)`),
		"WEB-DL": regexp.MustCompile(`(?i)(web-?dl|webdl)`),
		"WEBRip": regexp.MustCompile(`(?i)webrip`),
		"HDTV":   regexp.MustCompile(`(?i)hdtv`),
		"DVDRip": regexp.MustCompile(`(?i)(dvdrip|dvd-?r)`),
	}

	cleanupPattern = regexp.MustCompile(`[\.\s_-]+`)
)

// knownFansubGroups promotes anime detection when the bracket group is a
// recognized fansub name.
var knownFansubGroups = map[string]bool{
	"subsplease": true, "erai-raws": true, "horriblesubs": true,
	"judas":      true, "ember":     true, "commie":       true,
	"underwater": true, "gjm":       true, "nyaa":         true,
}

// ParseFilename parses a media filename. Anime fansub layouts are tried
// first, then standard episode patterns, then movie patterns; a file
// matching nothing yields only technical attributes with an empty title.
func ParseFilename(filename string) *ParsedMedia {
	name := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	parsed := &ParsedMedia{}
	parsed.Resolution = detectResolution(name)
	parsed.Source = detectSource(name)
	if m := crcPattern.FindStringSubmatch(name); m != nil {
		parsed.CRC32 = strings.ToUpper(m[1])
	}

	if m := animePattern.FindStringSubmatch(name); m != nil {
		parsed.IsTV = true
		parsed.IsAnime = true
		parsed.ReleaseGroup = m[1]
		parsed.Title = cleanTitle(m[2])
		parsed.AbsoluteEpisode, _ = strconv.Atoi(m[3])
		// Fansub numbering is absolute; season stays 0 until metadata
		// resolution maps it.
		parsed.Episode = parsed.AbsoluteEpisode
		return parsed
	}

	if m := tvPatternSE.FindStringSubmatch(name); m != nil {
		parsed.IsTV = true
		parsed.Title = cleanTitle(m[1])
		parsed.Season, _ = strconv.Atoi(m[2])
		parsed.Episode, _ = strconv.Atoi(m[3])
		parsed.Year = detectYear(m[4])
		parsed.ReleaseGroup = detectGroupSuffix(m[4])
		return parsed
	}

	if m := tvPatternX.FindStringSubmatch(name); m != nil {
		parsed.IsTV = true
		parsed.Title = cleanTitle(m[1])
		parsed.Season, _ = strconv.Atoi(m[2])
		parsed.Episode, _ = strconv.Atoi(m[3])
		parsed.ReleaseGroup = detectGroupSuffix(m[4])
		return parsed
	}

	if m := moviePatternParen.FindStringSubmatch(name); m != nil {
		parsed.Title = cleanTitle(m[1])
		parsed.Year, _ = strconv.Atoi(m[2])
		parsed.ReleaseGroup = detectGroupSuffix(m[3])
		return parsed
	}

	if m := moviePatternDot.FindStringSubmatch(name); m != nil {
		parsed.Title = cleanTitle(m[1])
		parsed.Year, _ = strconv.Atoi(m[2])
		parsed.ReleaseGroup = detectGroupSuffix(m[3])
		return parsed
	}

	parsed.Title = cleanTitle(name)
	return parsed
}

// DetectAnime reports whether the filename carries anime indicators:
// square-bracket fansub group, known-group membership, a CRC32 infix, or
// absolute-episode numbering without a season marker.
func DetectAnime(filename string) bool {
	name := filepath.Base(filename)
	m := animePattern.FindStringSubmatch(strings.TrimSuffix(name, filepath.Ext(name)))
	if m == nil {
		return false
	}
	if knownFansubGroups[strings.ToLower(m[1])] {
		return true
	}
	if crcPattern.MatchString(name) {
		return true
	}
	// Bracket group plus dash-number layout alone is a strong signal.
	return true
}

// NormalizeTitle lower-cases and collapses separators so title variants
// group together.
func NormalizeTitle(title string) string {
	return strings.ToLower(cleanupPattern.ReplaceAllString(strings.TrimSpace(title), " "))
}

func cleanTitle(raw string) string {
	title := cleanupPattern.ReplaceAllString(raw, " ")
	return strings.TrimSpace(title)
}

func detectResolution(name string) int {
	for _, res := range []int{2160, 1080, 720, 480} {
		if resolutionPatterns[res].MatchString(name) {
			return res
		}
	}
	return 0
}

func detectSource(name string) string {
	for src, pat := range sourcePatterns {
		if pat.MatchString(name) {
			return src
		}
	}
	return ""
}

func detectYear(rest string) int {
	if m := yearPattern.FindString(rest); m != "" {
		y, _ := strconv.Atoi(m)
		return y
	}
	return 0
}

func detectGroupSuffix(rest string) string {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return ""
	}
	if m := groupSuffixPattern.FindStringSubmatch(rest); m != nil {
		return m[1]
	}
	return ""
}
