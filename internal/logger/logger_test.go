package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.TraceLevel, parseLevel("trace"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("WARNING"))
	assert.Equal(t, zerolog.ErrorLevel, parseLevel("Error"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("bogus"))
}

func TestDefaultedRotationValues(t *testing.T) {
	sink := fileSink(Config{Path: t.TempDir()})
	require.NotNil(t, sink)
	assert.Equal(t, 10, sink.MaxSize)
	assert.Equal(t, 5, sink.MaxBackups)
	assert.Equal(t, 30, sink.MaxAge)

	assert.Nil(t, fileSink(Config{}))
}

func TestFileSinkReceivesComponentFields(t *testing.T) {
	dir := t.TempDir()
	l := New(Config{Level: "info", Format: "json", Path: dir})
	defer l.Close()

	l.WithComponent("scanner").Warn().Msg("behind schedule")

	data, err := os.ReadFile(filepath.Join(dir, "sublarr.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"scanner"`)
	assert.Contains(t, string(data), "behind schedule")
}
