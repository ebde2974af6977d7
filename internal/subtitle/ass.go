package subtitle

import (
	"fmt"
	"strconv"
	"strings"
)

const defaultStyleFormat = "Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding"

// parseASS handles the sectioned ASS/SSA layout. Unknown sections are
// skipped; [Script Info] lines are preserved verbatim for serialization.
func parseASS(text string) (*Subtitles, error) {
	subs := &Subtitles{Format: FormatASS, StyleFormat: defaultStyleFormat}

	section := ""
	var eventFields []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			section = strings.ToLower(trimmed)
			continue
		}

		switch section {
		case "[script info]":
			if !strings.HasPrefix(trimmed, ";") {
				subs.ScriptInfo = append(subs.ScriptInfo, trimmed)
			}
		case "[v4+ styles]", "[v4 styles]":
			key, value, ok := strings.Cut(trimmed, ":")
			if !ok {
				continue
			}
			switch strings.TrimSpace(key) {
			case "Format":
				subs.StyleFormat = strings.TrimSpace(value)
			case "Style":
				name, _, _ := strings.Cut(strings.TrimSpace(value), ",")
				subs.Styles = append(subs.Styles, Style{
					Name: strings.TrimSpace(name),
					Raw:  strings.TrimSpace(value),
				})
			}
		case "[events]":
			key, value, ok := strings.Cut(trimmed, ":")
			if !ok {
				continue
			}
			switch strings.TrimSpace(key) {
			case "Format":
				eventFields = splitFields(value)
			case "Dialogue":
				ev, err := parseDialogue(value, eventFields)
				if err != nil {
					return nil, fmt.Errorf("ass event %d: %w", len(subs.Events)+1, err)
				}
				ev.Index = len(subs.Events) + 1
				subs.Events = append(subs.Events, ev)
			}
		}
	}

	if len(subs.Events) == 0 {
		return nil, fmt.Errorf("ass: no dialogue events found")
	}
	return subs, nil
}

var defaultEventFields = []string{
	"Layer", "Start", "End", "Style", "Name", "MarginL", "MarginR", "MarginV", "Effect", "Text",
}

func splitFields(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

func parseDialogue(value string, fields []string) (Event, error) {
	if len(fields) == 0 {
		fields = defaultEventFields
	}
	// Text is the final field and may itself contain commas.
	parts := strings.SplitN(strings.TrimLeft(value, " "), ",", len(fields))
	if len(parts) < len(fields) {
		return Event{}, fmt.Errorf("dialogue has %d fields, want %d", len(parts), len(fields))
	}

	var ev Event
	for i, name := range fields {
		val := parts[i]
		switch name {
		case "Layer", "Marked":
			n, _ := strconv.Atoi(strings.TrimSpace(val))
			ev.Layer = n
		case "Start":
			ms, err := parseASSTime(strings.TrimSpace(val))
			if err != nil {
				return Event{}, err
			}
			ev.Start = ms
		case "End":
			ms, err := parseASSTime(strings.TrimSpace(val))
			if err != nil {
				return Event{}, err
			}
			ev.End = ms
		case "Style":
			ev.Style = strings.TrimSpace(val)
		case "Name":
			ev.Actor = strings.TrimSpace(val)
		case "Text":
			ev.Text = val
		}
	}
	return ev, nil
}

// parseASSTime reads H:MM:SS.cc (centiseconds).
func parseASSTime(s string) (int64, error) {
	var h, m, sec, cs int64
	if _, err := fmt.Sscanf(s, "%d:%d:%d.%d", &h, &m, &sec, &cs); err != nil {
		return 0, fmt.Errorf("bad timestamp %q", s)
	}
	return ((h*60+m)*60+sec)*1000 + cs*10, nil
}

// formatASSTime rounds milliseconds to the nearest centisecond, matching
// the container's resolution.
func formatASSTime(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	cs := (ms + 5) / 10
	h := cs / 360000
	m := (cs % 360000) / 6000
	s := (cs % 6000) / 100
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs%100)
}

func serializeASS(subs *Subtitles) []byte {
	var b strings.Builder

	b.WriteString("[Script Info]\n")
	if len(subs.ScriptInfo) == 0 {
		b.WriteString("ScriptType: v4.00+\n")
	}
	for _, line := range subs.ScriptInfo {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')

	b.WriteString("[V4+ Styles]\n")
	fmt.Fprintf(&b, "Format: %s\n", subs.StyleFormat)
	for _, st := range subs.Styles {
		fmt.Fprintf(&b, "Style: %s\n", st.Raw)
	}
	b.WriteByte('\n')

	b.WriteString("[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, e := range subs.Events {
		style := e.Style
		if style == "" {
			style = "Default"
		}
		fmt.Fprintf(&b, "Dialogue: %d,%s,%s,%s,%s,0,0,0,,%s\n",
			e.Layer, formatASSTime(e.Start), formatASSTime(e.End), style, e.Actor,
			strings.ReplaceAll(e.Text, "\n", "\\N"))
	}
	return []byte(b.String())
}
