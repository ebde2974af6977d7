// Package subtitle parses, times, and serializes SRT and ASS subtitle
// files. All timings are millisecond integers; serialization always
// emits LF line endings and UTF-8.
package subtitle

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Format identifies a subtitle container format.
type Format string

const (
	FormatSRT Format = "srt"
	FormatASS Format = "ass"
)

// Event is one timed subtitle cue. Start and End are milliseconds from
// stream start.
type Event struct {
	Index int
	Layer int
	Start int64
	End   int64
	Style string
	Actor string
	// Text keeps the format's native inline markup (ASS override tags,
	// SRT HTML-ish tags).
	Text string
}

// Duration returns the event's display time in milliseconds.
func (e Event) Duration() int64 {
	return e.End - e.Start
}

// Style is one ASS style definition. Only fields the engine inspects are
// modeled; the raw line is preserved for lossless serialization.
type Style struct {
	Name string
	Raw  string
}

// Subtitles is a parsed subtitle file.
type Subtitles struct {
	Format   Format
	Encoding string // encoding of the source bytes before normalization
	HadBOM   bool
	Events   []Event
	Styles   []Style
	// ScriptInfo preserves ASS [Script Info] lines verbatim.
	ScriptInfo []string
	// StyleFormat preserves the ASS style Format: declaration.
	StyleFormat string
}

// ParseFile reads and parses a subtitle file, detecting format from the
// extension first and content second.
func ParseFile(path string) (*Subtitles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read subtitle: %w", err)
	}
	return Parse(data)
}

// Parse decodes raw bytes into a normalized subtitle model. Encoding is
// detected (UTF-8, UTF-16 via BOM, Windows-1252 fallback) and the text
// converted to UTF-8 before format parsing.
func Parse(data []byte) (*Subtitles, error) {
	text, encoding, hadBOM, err := decode(data)
	if err != nil {
		return nil, err
	}
	text = normalizeNewlines(text)

	var subs *Subtitles
	if looksLikeASS(text) {
		subs, err = parseASS(text)
	} else {
		subs, err = parseSRT(text)
	}
	if err != nil {
		return nil, err
	}
	subs.Encoding = encoding
	subs.HadBOM = hadBOM
	return subs, nil
}

// Serialize renders the model in the given format with LF endings.
func Serialize(subs *Subtitles, format Format) ([]byte, error) {
	switch format {
	case FormatSRT:
		return serializeSRT(subs), nil
	case FormatASS:
		return serializeASS(subs), nil
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

func decode(data []byte) (text, encoding string, hadBOM bool, err error) {
	switch {
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		return string(data[3:]), "utf-8", true, nil
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}) || bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		out, err := dec.Bytes(data)
		if err != nil {
			return "", "", false, fmt.Errorf("decode utf-16: %w", err)
		}
		return string(out), "utf-16", true, nil
	case utf8.Valid(data):
		return string(data), "utf-8", false, nil
	default:
		// Legacy single-byte releases are common enough to deserve a
		// lossless fallback rather than a hard error.
		out, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return "", "", false, fmt.Errorf("decode windows-1252: %w", err)
		}
		return string(out), "windows-1252", false, nil
	}
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}

func looksLikeASS(text string) bool {
	head := text
	if len(head) > 512 {
		head = head[:512]
	}
	return strings.Contains(head, "[Script Info]") || strings.Contains(head, "[V4+ Styles]")
}
