package mediascan

import (
	"path/filepath"
	"strings"
)

var videoExtensions = map[string]bool{
	".mkv": true, ".mp4": true, ".avi": true, ".m4v": true,
	".mov": true, ".wmv": true, ".ts": true, ".webm": true,
}

var subtitleExtensions = map[string]bool{
	".srt": true, ".ass": true, ".ssa": true, ".sub": true, ".vtt": true,
}

// IsVideoFile reports whether a path has a recognized video extension.
func IsVideoFile(path string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsSubtitleFile reports whether a path has a recognized subtitle extension.
func IsSubtitleFile(path string) bool {
	return subtitleExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsSampleFile reports whether a filename looks like a release sample
// clip rather than the feature itself.
func IsSampleFile(path string) bool {
	name := strings.ToLower(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	return name == "sample" || strings.HasPrefix(name, "sample-") ||
		strings.HasSuffix(name, ".sample") || strings.HasSuffix(name, "-sample")
}

// SubtitleVariant distinguishes the sidecar naming infixes.
type SubtitleVariant string

const (
	VariantFull   SubtitleVariant = ""
	VariantForced SubtitleVariant = "forced"
	VariantSDH    SubtitleVariant = "sdh"
)

// SubtitlePath derives the canonical sidecar path for a media file:
// Show.S01E02.en.srt, Show.S01E02.en.forced.srt, Show.S01E02.en.sdh.srt.
func SubtitlePath(mediaPath, language string, variant SubtitleVariant, format string) string {
	base := strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath))
	parts := []string{base, language}
	if variant != VariantFull {
		parts = append(parts, string(variant))
	}
	parts = append(parts, format)
	return strings.Join(parts, ".")
}

// SidecarInfo is the language and variant decoded from a subtitle filename.
type SidecarInfo struct {
	MediaBase string
	Language  string
	Variant   SubtitleVariant
}

// ParseSidecar decodes a subtitle filename back into its media base name,
// language, and variant. Files without a language infix return an empty
// language with the full variant.
func ParseSidecar(subtitlePath string) SidecarInfo {
	name := strings.TrimSuffix(filepath.Base(subtitlePath), filepath.Ext(subtitlePath))

	info := SidecarInfo{MediaBase: name, Variant: VariantFull}

	if strings.HasSuffix(name, ".forced") {
		info.Variant = VariantForced
		name = strings.TrimSuffix(name, ".forced")
	} else if strings.HasSuffix(name, ".sdh") {
		info.Variant = VariantSDH
		name = strings.TrimSuffix(name, ".sdh")
	}

	if i := strings.LastIndex(name, "."); i >= 0 {
		tag := name[i+1:]
		if isLanguageTag(tag) {
			info.Language = strings.ToLower(tag)
			name = name[:i]
		} else if info.Variant != VariantFull {
			// ".forced" without a language tag still counts as forced,
			// but the base keeps whatever preceded it.
		}
	}
	info.MediaBase = name
	return info
}

// MatchesMedia reports whether a subtitle sidecar belongs to a media file
// for a specific (language, variant). A full-track lookup must not match
// forced or SDH files and vice versa.
func MatchesMedia(subtitlePath, mediaPath, language string, variant SubtitleVariant) bool {
	if filepath.Dir(subtitlePath) != filepath.Dir(mediaPath) {
		// Subs/ and subs/ subdirectories hold sidecars one level down.
		parent := filepath.Dir(filepath.Dir(subtitlePath))
		dirName := strings.ToLower(filepath.Base(filepath.Dir(subtitlePath)))
		if parent != filepath.Dir(mediaPath) || (dirName != "subs" && dirName != "subtitles") {
			return false
		}
	}
	info := ParseSidecar(subtitlePath)
	mediaBase := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))
	if info.MediaBase != mediaBase {
		return false
	}
	if info.Variant != variant {
		return false
	}
	return info.Language == "" || strings.EqualFold(info.Language, language)
}

// isLanguageTag accepts two/three letter ISO codes with an optional
// region suffix (pt-BR, zh-Hans).
func isLanguageTag(tag string) bool {
	base, _, _ := strings.Cut(tag, "-")
	if len(base) != 2 && len(base) != 3 {
		return false
	}
	for _, r := range base {
		if r < 'a' || r > 'z' {
			if r < 'A' || r > 'Z' {
				return false
			}
		}
	}
	return true
}
