package main

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/vidsync/engine/internal/config"
	"github.com/vidsync/engine/internal/dispatcher"
	"github.com/vidsync/engine/internal/engine"
	"github.com/vidsync/engine/internal/logging"
	"github.com/vidsync/engine/internal/model/core"
	intotel "github.com/vidsync/engine/internal/otel"
	"github.com/vidsync/engine/internal/storage"
	"github.com/vidsync/engine/internal/sync"
	"github.com/vidsync/engine/internal/util"
)

// Version and BuildDate can be set at build time via ldflags.
var (
	Version   string = "0.0.1"
	BuildDate string = "unknown"
)

// global variables
var (
	SessionStartTime time.Time = time.Now()

	// LogManager handles all zerolog-based logging
	LogManager *logging.Manager

	// Logger is the process logger (convenience reference)
	Logger zerolog.Logger

	LogFile *os.File

	// OTelProvider handles OpenTelemetry
	OTelProvider *intotel.Provider
)

// simColors is the palette markers are drawn from.
var simColors = []core.Color{
	core.ColorRed, core.ColorYellow, core.ColorGreen, core.ColorBlue,
	core.ColorPurple, core.ColorOrange, core.ColorCyan, core.ColorPink,
}

var simLabels = []string{
	"goal", "whistle", "replay this", "crowd noise", "close call",
	"substitution", "camera bump", "great angle",
}

// simStream is a scripted player. Its position advances with the wall
// clock while playing, scaled by the current rate, plus a constant skew
// so it drifts away from the transport until a corrective seek lands.
type simStream struct {
	mu           gosync.Mutex
	durationMs   int64
	skewMsPerSec int64

	playing  bool
	rate     float64
	anchorMs int64
	anchorAt time.Time

	seeks atomic.Int64
}

var _ sync.StreamAdapter = (*simStream)(nil)

func newSimStream(durationMs, skewMsPerSec int64) *simStream {
	return &simStream{
		durationMs:   durationMs,
		skewMsPerSec: skewMsPerSec,
		rate:         1.0,
		anchorAt:     time.Now(),
	}
}

func (s *simStream) positionLocked(now time.Time) int64 {
	if !s.playing {
		return s.anchorMs
	}
	elapsedMs := now.Sub(s.anchorAt).Milliseconds()
	pos := s.anchorMs + int64(float64(elapsedMs)*s.rate) + elapsedMs*s.skewMsPerSec/1000
	return util.ClampMs(pos, 0, s.durationMs)
}

// reanchorLocked freezes the current position as the new reference point.
func (s *simStream) reanchorLocked(now time.Time) {
	s.anchorMs = s.positionLocked(now)
	s.anchorAt = now
}

func (s *simStream) PositionMs() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionLocked(time.Now())
}

func (s *simStream) DurationMs() int64 { return s.durationMs }

func (s *simStream) Seek(ms int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anchorMs = util.ClampMs(ms, 0, s.durationMs)
	s.anchorAt = time.Now()
	s.seeks.Add(1)
	return nil
}

func (s *simStream) SetRate(rate float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reanchorLocked(time.Now())
	s.rate = rate
	return nil
}

func (s *simStream) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reanchorLocked(time.Now())
	s.playing = true
	return nil
}

func (s *simStream) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reanchorLocked(time.Now())
	s.playing = false
	return nil
}

func (s *simStream) IsLoaded() bool { return true }

func (s *simStream) Seeks() int64 { return s.seeks.Load() }

func setSimDefaults() {
	viper.SetDefault("sim.streams", 3)
	viper.SetDefault("sim.skewMsPerSec", 40)
	viper.SetDefault("sim.streamLengthSeconds", 600)
	viper.SetDefault("sim.durationSeconds", 20)
	viper.SetDefault("sim.markerIntervalSeconds", 5)
}

func main() {
	configDir := "."
	if len(os.Args) > 1 {
		configDir = os.Args[1]
	}

	if err := config.Load(configDir); err != nil {
		fmt.Printf("No config file loaded (%v), continuing with defaults.\n", err)
		config.SetDefaults()
	}
	setSimDefaults()
	if err := config.Validate(); err != nil {
		panic(err)
	}

	var fileWriter io.Writer
	if config.GetBool("log.file") {
		logsDir := config.GetString("logsDir")
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			panic(err)
		}
		f, err := os.Create(logging.LogFilePath(logsDir, "syncsim", SessionStartTime))
		if err != nil {
			panic(err)
		}
		defer f.Close()
		LogFile = f
		fileWriter = f
	}

	LogManager = logging.NewManager()
	gelfAddr := ""
	if gl := config.GetGraylogConfig(); gl.Enabled {
		gelfAddr = gl.Address
	}
	LogManager.Setup(fileWriter, config.GetString("logLevel"), gelfAddr)
	Logger = LogManager.Logger()
	Logger.Info().Str("version", Version).Str("buildDate", BuildDate).Msg("Starting up...")

	var err error
	OTelProvider, err = intotel.New(intotel.FromConfig(config.GetOTelConfig(), fileWriter))
	if err != nil {
		Logger.Warn().Err(err).Msg("OpenTelemetry unavailable, continuing without it")
		OTelProvider = nil
	}

	Logger.Info().Msg("Initializing storage...")
	backend, err := storage.NewBackend(config.GetStorageConfig(), LogManager)
	if err != nil {
		panic(err)
	}
	Logger.Info().Str("backend", config.GetStorageConfig().Type).Msg("Storage initialization complete.")

	eng, err := engine.New(engine.Dependencies{
		Log:         LogManager,
		Backend:     backend,
		BackendName: config.GetStorageConfig().Type,
		OTel:        OTelProvider,
	})
	if err != nil {
		panic(err)
	}
	if err := eng.Start(); err != nil {
		panic(err)
	}
	defer eng.Shutdown()

	var corrections atomic.Int64
	eng.Bus().Subscribe(core.EventDriftCorrected, func(ev dispatcher.Event) error {
		corrections.Add(1)
		return nil
	})

	streams := loadStreams(eng)
	runSession(eng)
	printStatus(eng, streams, corrections.Load())

	Logger.Info().Msg("Shutting down.")
}

// loadStreams registers the scripted players. Stream 0 runs true and
// becomes master; each follower gains an extra multiple of the configured
// skew so the drift checks have work to do.
func loadStreams(eng *engine.Engine) []*simStream {
	n := config.GetInt("sim.streams")
	if limit := eng.Streams().MaxStreams(); n > limit {
		n = limit
	}
	lengthMs := int64(config.GetInt("sim.streamLengthSeconds")) * 1000
	skew := int64(config.GetInt("sim.skewMsPerSec"))

	streams := make([]*simStream, 0, n)
	for i := 0; i < n; i++ {
		s := newSimStream(lengthMs, int64(i)*skew)
		if err := eng.Streams().LoadStream(i, s); err != nil {
			panic(err)
		}
		if i > 0 {
			if err := eng.Streams().SetOffset(i, int64(i)*250); err != nil {
				panic(err)
			}
		}
		streams = append(streams, s)
	}
	return streams
}

// runSession plays the transport for the configured duration, dropping a
// marker at the current transport position on every interval.
func runSession(eng *engine.Engine) {
	duration := time.Duration(config.GetInt("sim.durationSeconds")) * time.Second
	markerInterval := time.Duration(config.GetInt("sim.markerIntervalSeconds")) * time.Second

	eng.Transport().Play()
	Logger.Info().Dur("duration", duration).Msg("Session started")

	markerTicker := time.NewTicker(markerInterval)
	defer markerTicker.Stop()
	deadline := time.NewTimer(duration)
	defer deadline.Stop()

	for {
		select {
		case <-markerTicker.C:
			pos := eng.Transport().State().PositionMs
			label := simLabels[rand.Intn(len(simLabels))]
			color := simColors[rand.Intn(len(simColors))]
			category := core.Categories[rand.Intn(len(core.Categories))]
			if _, err := eng.Markers().Add(pos, label, color, category, ""); err != nil {
				Logger.Error().Err(err).Int64("position", pos).Msg("Dropping marker failed")
			}
		case <-deadline.C:
			eng.Transport().Pause()
			return
		}
	}
}

func printStatus(eng *engine.Engine, streams []*simStream, corrections int64) {
	stats := eng.Markers().Stats()
	state := eng.Transport().State()

	fmt.Println()
	fmt.Printf("Session %s\n", eng.Session().ID)
	fmt.Printf("  transport position : %s\n", util.FormatTimecode(state.PositionMs))
	fmt.Printf("  markers            : %d\n", stats.Total)
	fmt.Printf("  drift corrections  : %d\n", corrections)
	for i, s := range streams {
		fmt.Printf("  stream %d           : position %s, %d corrective seeks\n",
			i, util.FormatTimecode(s.PositionMs()), s.Seeks())
	}

	if stats.Total > 0 {
		path, err := eng.PlanClips(eng.Markers().All())
		if err != nil {
			Logger.Error().Err(err).Msg("Writing clip plan failed")
		} else {
			fmt.Printf("  clip plan          : %s\n", path)
		}
	}
	fmt.Println()
}
