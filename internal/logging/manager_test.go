package logging

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

// newTestManager silences console output so test logs stay readable.
func newTestManager() *Manager {
	m := NewManager()
	m.console = io.Discard
	return m
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"Warn", zerolog.WarnLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"verbose", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), "level %q", tt.in)
	}
}

func TestSetupWritesToFile(t *testing.T) {
	var file bytes.Buffer
	m := newTestManager()
	m.Setup(&file, "info", "")

	m.Logger().Info().Msg("hello file")

	out := file.String()
	assert.Contains(t, out, "hello file")
	assert.Contains(t, out, "Logging set up", "setup confirmation goes to the file too")
}

func TestSetupLevelFiltersBelow(t *testing.T) {
	var file bytes.Buffer
	m := newTestManager()
	m.Setup(&file, "warn", "")

	m.Logger().Info().Msg("quiet")
	m.Logger().Warn().Msg("loud")

	out := file.String()
	assert.NotContains(t, out, "quiet")
	assert.Contains(t, out, "loud")
}

func TestSetupDebugLevel(t *testing.T) {
	var file bytes.Buffer
	m := newTestManager()
	m.Setup(&file, "debug", "")

	m.Logger().Debug().Msg("debug msg")
	m.Logger().Info().Msg("info msg")

	out := file.String()
	assert.Contains(t, out, "debug msg")
	assert.Contains(t, out, "info msg")
}

func TestLoggerBeforeSetupDiscards(t *testing.T) {
	m := NewManager()

	// must not panic
	m.Logger().Info().Msg("into the void")
	m.Sampled().Info().Msg("also discarded")
}

func TestContextProviderFields(t *testing.T) {
	var file bytes.Buffer
	m := newTestManager()
	m.Setup(&file, "info", "")

	m.SetContextProvider(func() map[string]any {
		return map[string]any{"master": 2, "playing": true}
	})
	m.Logger().Info().Msg("with context")

	out := file.String()
	assert.Contains(t, out, "master=2")
	assert.Contains(t, out, "playing=true")
}

func TestSetContextProviderNilClears(t *testing.T) {
	var file bytes.Buffer
	m := newTestManager()
	m.Setup(&file, "info", "")

	m.SetContextProvider(func() map[string]any {
		return map[string]any{"session": "abc"}
	})
	m.SetContextProvider(nil)
	m.Logger().Info().Msg("bare")

	assert.NotContains(t, file.String(), "session=abc")
}

func TestComponentTagsEvents(t *testing.T) {
	var file bytes.Buffer
	m := newTestManager()
	m.Setup(&file, "info", "")

	m.Component("saver").Info().Msg("flushed")

	assert.Contains(t, file.String(), "component=saver")
}

func TestSampledLoggerCapsVolume(t *testing.T) {
	var file bytes.Buffer
	m := newTestManager()
	m.Setup(&file, "info", "")
	file.Reset()

	for i := 0; i < 50; i++ {
		m.Sampled().Info().Int("tick", i).Msg("position trace")
	}

	lines := strings.Count(file.String(), "position trace")
	assert.GreaterOrEqual(t, lines, 5, "burst should let the first events through")
	assert.Less(t, lines, 50, "sampling should drop the flood")
	assert.Contains(t, file.String(), "sampled=true")
}

func TestSetupSkipsBadGelfAddress(t *testing.T) {
	var file bytes.Buffer
	m := newTestManager()
	m.Setup(&file, "info", "not a host:port at all:::")

	m.Logger().Info().Msg("still alive")

	out := file.String()
	assert.Contains(t, out, "still alive", "logging keeps working without GELF")
	assert.Contains(t, out, "GELF writer unavailable")
}
