package subtitle

import "math"

// Shift moves every event by delta milliseconds. Results below zero
// clamp to zero.
func Shift(subs *Subtitles, deltaMS int64) {
	for i := range subs.Events {
		subs.Events[i].Start = clampMS(subs.Events[i].Start + deltaMS)
		subs.Events[i].End = clampMS(subs.Events[i].End + deltaMS)
	}
}

// Scale multiplies every timing by factor, rounding to the nearest
// millisecond rather than truncating so repeated transforms do not drift.
func Scale(subs *Subtitles, factor float64) {
	for i := range subs.Events {
		subs.Events[i].Start = clampMS(roundMS(float64(subs.Events[i].Start) * factor))
		subs.Events[i].End = clampMS(roundMS(float64(subs.Events[i].End) * factor))
	}
}

// TransformFramerate retimes subtitles authored for inFPS to play
// correctly at outFPS. Applying the inverse transform restores the
// original timings within a millisecond.
func TransformFramerate(subs *Subtitles, inFPS, outFPS float64) {
	if inFPS <= 0 || outFPS <= 0 || inFPS == outFPS {
		return
	}
	Scale(subs, inFPS/outFPS)
}

func roundMS(f float64) int64 {
	return int64(math.Round(f))
}

func clampMS(ms int64) int64 {
	if ms < 0 {
		return 0
	}
	return ms
}
