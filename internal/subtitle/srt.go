package subtitle

import (
	"fmt"
	"strconv"
	"strings"
)

// parseSRT handles the numbered-block SRT layout. Index lines are
// tolerated missing or out of order; events are renumbered on serialize.
func parseSRT(text string) (*Subtitles, error) {
	subs := &Subtitles{Format: FormatSRT}
	blocks := strings.Split(strings.TrimSpace(text), "\n\n")

	for _, block := range blocks {
		lines := strings.Split(strings.TrimSpace(block), "\n")
		if len(lines) == 0 || lines[0] == "" {
			continue
		}

		i := 0
		// Optional index line.
		if _, err := strconv.Atoi(strings.TrimSpace(lines[0])); err == nil {
			i = 1
		}
		if i >= len(lines) {
			continue
		}

		start, end, err := parseSRTTiming(lines[i])
		if err != nil {
			return nil, fmt.Errorf("srt block %d: %w", len(subs.Events)+1, err)
		}

		subs.Events = append(subs.Events, Event{
			Index: len(subs.Events) + 1,
			Start: start,
			End:   end,
			Text:  strings.Join(lines[i+1:], "\n"),
		})
	}

	if len(subs.Events) == 0 {
		return nil, fmt.Errorf("srt: no events found")
	}
	return subs, nil
}

func parseSRTTiming(line string) (start, end int64, err error) {
	parts := strings.Split(line, "-->")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("bad timing line %q", line)
	}
	start, err = parseSRTTime(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	// Coordinate suffixes (X1: ... ) occasionally follow the end time.
	endField := strings.Fields(strings.TrimSpace(parts[1]))[0]
	end, err = parseSRTTime(endField)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// parseSRTTime reads HH:MM:SS,mmm (comma or dot millisecond separator).
func parseSRTTime(s string) (int64, error) {
	s = strings.ReplaceAll(s, ".", ",")
	var h, m, sec, ms int64
	if _, err := fmt.Sscanf(s, "%d:%d:%d,%d", &h, &m, &sec, &ms); err != nil {
		return 0, fmt.Errorf("bad timestamp %q", s)
	}
	return ((h*60+m)*60+sec)*1000 + ms, nil
}

func formatSRTTime(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	h := ms / 3600000
	m := (ms % 3600000) / 60000
	s := (ms % 60000) / 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}

func serializeSRT(subs *Subtitles) []byte {
	var b strings.Builder
	for i, e := range subs.Events {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n",
			i+1, formatSRTTime(e.Start), formatSRTTime(e.End), stripASSTags(e.Text))
	}
	return []byte(b.String())
}

// stripASSTags drops {\...} override blocks and converts \N to newline so
// ASS events survive an SRT round trip.
func stripASSTags(text string) string {
	var b strings.Builder
	depth := 0
	for _, r := range text {
		switch {
		case r == '{':
			depth++
		case r == '}' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	out := b.String()
	out = strings.ReplaceAll(out, "\\N", "\n")
	out = strings.ReplaceAll(out, "\\n", "\n")
	return out
}
