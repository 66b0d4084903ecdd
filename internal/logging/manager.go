package logging

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/rs/zerolog"
)

// ContextProvider returns dynamic fields attached to every log event.
// It runs on the logging hot path and must not block or take engine locks.
type ContextProvider func() map[string]any

// Manager owns the process logger. Setup fans events out to the console,
// an optional log file and an optional GELF endpoint through a single
// zerolog logger.
type Manager struct {
	console io.Writer
	logger  zerolog.Logger
	sampled zerolog.Logger

	provider atomic.Pointer[ContextProvider]
}

// NewManager creates a manager that discards everything until Setup runs.
func NewManager() *Manager {
	return &Manager{
		console: os.Stdout,
		logger:  zerolog.Nop(),
		sampled: zerolog.Nop(),
	}
}

// parseLevel converts a string log level to zerolog.Level.
func parseLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Setup initializes the logging system. file may be nil and gelfAddr may be
// empty; console output is always on. A GELF endpoint that cannot be reached
// is logged and skipped rather than failing setup.
func (m *Manager) Setup(file io.Writer, level string, gelfAddr string) {
	lvl := parseLevel(level)

	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}

	writers := []io.Writer{
		// console format with colors to console
		zerolog.ConsoleWriter{
			Out:        m.console,
			TimeFormat: time.RFC3339,
		},
	}
	if file != nil {
		// console format without colors to file
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        file,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		})
	}

	var gelfErr error
	if gelfAddr != "" {
		gw, err := gelf.NewWriter(gelfAddr)
		if err != nil {
			gelfErr = err
		} else {
			writers = append(writers, gw)
		}
	}

	mlw := zerolog.MultiLevelWriter(writers...)

	m.logger = zerolog.New(mlw).Level(lvl).With().Timestamp().Logger().
		Hook(
			zerolog.HookFunc(
				func(e *zerolog.Event, level zerolog.Level, msg string) {
					if p := m.provider.Load(); p != nil {
						e.Fields((*p)())
					}
				}))

	m.sampled = m.logger.With().
		Bool("sampled", true).Logger().Sample(&zerolog.BurstSampler{
		// allow max 5 entries per 10 seconds
		// once reached, sample 1 in 100
		Burst:       5,
		Period:      10 * time.Second,
		NextSampler: &zerolog.BasicSampler{N: 100},
	})

	if gelfErr != nil {
		m.logger.Warn().Err(gelfErr).Str("address", gelfAddr).
			Msg("GELF writer unavailable, continuing without it")
	}
	m.logger.Info().Str("loglevel", lvl.String()).Msg("Logging set up")
}

// SetContextProvider installs fn. Its fields are attached to every
// subsequent log event until it is replaced or cleared with nil.
func (m *Manager) SetContextProvider(fn ContextProvider) {
	if fn == nil {
		m.provider.Store(nil)
		return
	}
	m.provider.Store(&fn)
}

// Logger returns the configured logger. Before Setup it discards.
func (m *Manager) Logger() zerolog.Logger {
	return m.logger
}

// Sampled returns the burst-sampled logger for high-frequency events such
// as per-tick position traces.
func (m *Manager) Sampled() zerolog.Logger {
	return m.sampled
}

// Component returns a child logger tagged with a component name.
func (m *Manager) Component(name string) zerolog.Logger {
	return m.logger.With().Str("component", name).Logger()
}
