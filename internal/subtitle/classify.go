package subtitle

import "strings"

// StyleClass labels what an ASS style is used for.
type StyleClass string

const (
	ClassDialog StyleClass = "dialog"
	ClassSigns  StyleClass = "signs"
	ClassSongs  StyleClass = "songs"
)

var signNameHints = []string{"sign", "title", "caption", "credit", "note", "screen", "text"}
var songNameHints = []string{"song", "op", "ed", "opening", "ending", "insert", "karaoke", "kara", "lyric"}

// ClassifyStyles buckets each style into dialog, signs, or songs. The
// style name is the strongest signal; when it is inconclusive the events
// using the style are inspected for positioning tags (signs are almost
// always absolutely positioned) and karaoke timing tags.
func ClassifyStyles(subs *Subtitles) map[string]StyleClass {
	out := make(map[string]StyleClass, len(subs.Styles))

	byStyle := make(map[string][]*Event)
	for i := range subs.Events {
		e := &subs.Events[i]
		byStyle[e.Style] = append(byStyle[e.Style], e)
	}

	names := make([]string, 0, len(subs.Styles))
	for _, st := range subs.Styles {
		names = append(names, st.Name)
	}
	for name := range byStyle {
		if _, ok := out[name]; !ok && name != "" {
			names = append(names, name)
		}
	}

	for _, name := range names {
		if _, done := out[name]; done {
			continue
		}
		lower := strings.ToLower(name)
		switch {
		case matchesAny(lower, songNameHints):
			out[name] = ClassSongs
		case matchesAny(lower, signNameHints):
			out[name] = ClassSigns
		default:
			out[name] = classifyByEvents(byStyle[name])
		}
	}
	return out
}

// IsSignsAndSongs reports whether a style classification contains no
// dialog at all, which is the shape of a "Signs & Songs" track.
func IsSignsAndSongs(classes map[string]StyleClass) bool {
	if len(classes) == 0 {
		return false
	}
	for _, c := range classes {
		if c == ClassDialog {
			return false
		}
	}
	return true
}

func matchesAny(name string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(name, h) {
			return true
		}
	}
	return false
}

func classifyByEvents(events []*Event) StyleClass {
	if len(events) == 0 {
		return ClassDialog
	}
	positioned := 0
	karaoke := 0
	for _, e := range events {
		if strings.Contains(e.Text, "\\pos(") || strings.Contains(e.Text, "\\move(") {
			positioned++
		}
		if strings.Contains(e.Text, "\\k") || strings.Contains(e.Text, "\\K") {
			karaoke++
		}
	}
	switch {
	case karaoke*2 > len(events):
		return ClassSongs
	case positioned*2 > len(events):
		return ClassSigns
	default:
		return ClassDialog
	}
}
