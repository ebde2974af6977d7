package subtitle

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSRT = "1\r\n00:00:01,000 --> 00:00:03,500\r\nHello there.\r\n\r\n2\r\n00:00:04,000 --> 00:00:06,000\r\nSecond line\r\nwith a wrap.\r\n"

const sampleASS = `[Script Info]
Title: Sample
ScriptType: v4.00+

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Default,Arial,20,&H00FFFFFF,&H000000FF,&H00000000,&H00000000,0,0,0,0,100,100,0,0,1,2,0,2,10,10,10,1
Style: OP-Romaji,Arial,22,&H00FFFFFF,&H000000FF,&H00000000,&H00000000,0,0,0,0,100,100,0,0,1,2,0,8,10,10,10,1
Style: Signs,Arial,18,&H00FFFFFF,&H000000FF,&H00000000,&H00000000,0,0,0,0,100,100,0,0,1,2,0,2,10,10,10,1

[Events]
Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text
Dialogue: 0,0:00:01.00,0:00:03.50,Default,,0,0,0,,Hello there.
Dialogue: 0,0:00:04.00,0:00:06.00,Signs,,0,0,0,,{\pos(320,40)}STATION SIGN
Dialogue: 1,0:00:07.00,0:00:09.00,OP-Romaji,,0,0,0,,{\k20}la {\k20}la {\k20}la
`

func TestParseSRT(t *testing.T) {
	subs, err := Parse([]byte(sampleSRT))
	require.NoError(t, err)
	assert.Equal(t, FormatSRT, subs.Format)
	assert.Equal(t, "utf-8", subs.Encoding)
	require.Len(t, subs.Events, 2)

	assert.Equal(t, int64(1000), subs.Events[0].Start)
	assert.Equal(t, int64(3500), subs.Events[0].End)
	assert.Equal(t, "Second line\nwith a wrap.", subs.Events[1].Text)
}

func TestParseSRTWithBOM(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte(sampleSRT)...)
	subs, err := Parse(data)
	require.NoError(t, err)
	assert.True(t, subs.HadBOM)
	require.Len(t, subs.Events, 2)
}

func TestParseWindows1252Fallback(t *testing.T) {
	// "café" in latin-1: 0xE9 is invalid UTF-8 on its own.
	data := []byte("1\n00:00:01,000 --> 00:00:02,000\ncaf\xe9\n")
	subs, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "windows-1252", subs.Encoding)
	assert.Equal(t, "café", subs.Events[0].Text)
}

func TestParseASS(t *testing.T) {
	subs, err := Parse([]byte(sampleASS))
	require.NoError(t, err)
	assert.Equal(t, FormatASS, subs.Format)
	require.Len(t, subs.Events, 3)
	require.Len(t, subs.Styles, 3)

	assert.Equal(t, int64(1000), subs.Events[0].Start)
	assert.Equal(t, "Signs", subs.Events[1].Style)
	assert.Equal(t, 1, subs.Events[2].Layer)
}

func TestSerializeSRTNormalizesLineEndings(t *testing.T) {
	subs, err := Parse([]byte(sampleSRT))
	require.NoError(t, err)

	out, err := Serialize(subs, FormatSRT)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "\r")
	assert.Contains(t, string(out), "00:00:01,000 --> 00:00:03,500")
}

func TestSerializeASSToSRTStripsTags(t *testing.T) {
	subs, err := Parse([]byte(sampleASS))
	require.NoError(t, err)

	out, err := Serialize(subs, FormatSRT)
	require.NoError(t, err)
	assert.Contains(t, string(out), "STATION SIGN")
	assert.NotContains(t, string(out), "\\pos")
}

func TestASSRoundTrip(t *testing.T) {
	subs, err := Parse([]byte(sampleASS))
	require.NoError(t, err)

	out, err := Serialize(subs, FormatASS)
	require.NoError(t, err)

	again, err := Parse(out)
	require.NoError(t, err)
	require.Len(t, again.Events, len(subs.Events))
	for i := range subs.Events {
		assert.Equal(t, subs.Events[i].Start, again.Events[i].Start)
		assert.Equal(t, subs.Events[i].End, again.Events[i].End)
		assert.Equal(t, subs.Events[i].Style, again.Events[i].Style)
	}
}

func TestShiftClampsAtZero(t *testing.T) {
	subs := &Subtitles{Events: []Event{
		{Start: 500, End: 1500},
		{Start: 2000, End: 3000},
	}}
	Shift(subs, -1000)
	assert.Equal(t, int64(0), subs.Events[0].Start)
	assert.Equal(t, int64(500), subs.Events[0].End)
	assert.Equal(t, int64(1000), subs.Events[1].Start)
}

func TestScaleRoundsToNearest(t *testing.T) {
	subs := &Subtitles{Events: []Event{{Start: 1001, End: 2001}}}
	Scale(subs, 1.5)
	// 1001 * 1.5 = 1501.5 rounds to 1502, not truncates to 1501.
	assert.Equal(t, int64(1502), subs.Events[0].Start)
	assert.Equal(t, int64(3002), subs.Events[0].End)
}

func TestTransformFramerateRoundTrips(t *testing.T) {
	original := []Event{
		{Start: 1000, End: 3500},
		{Start: 61234, End: 63999},
		{Start: 3599123, End: 3601456},
	}
	subs := &Subtitles{Events: append([]Event(nil), original...)}

	TransformFramerate(subs, 23.976, 25.0)
	TransformFramerate(subs, 25.0, 23.976)

	for i, e := range subs.Events {
		assert.InDelta(t, original[i].Start, e.Start, 1, "event %d start", i)
		assert.InDelta(t, original[i].End, e.End, 1, "event %d end", i)
	}
}

func TestClassifyStyles(t *testing.T) {
	subs, err := Parse([]byte(sampleASS))
	require.NoError(t, err)

	classes := ClassifyStyles(subs)
	assert.Equal(t, ClassDialog, classes["Default"])
	assert.Equal(t, ClassSigns, classes["Signs"])
	assert.Equal(t, ClassSongs, classes["OP-Romaji"])
	assert.False(t, IsSignsAndSongs(classes))
}

func TestIsSignsAndSongs(t *testing.T) {
	text := strings.ReplaceAll(sampleASS, "Default", "SignsAlt")
	subs, err := Parse([]byte(text))
	require.NoError(t, err)

	classes := ClassifyStyles(subs)
	assert.True(t, IsSignsAndSongs(classes))
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse([]byte("this is not a subtitle file"))
	assert.Error(t, err)
}
