package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// SyncConfig holds stream synchronization settings
type SyncConfig struct {
	MaxStreams       int           `json:"maxStreams" mapstructure:"maxStreams"`
	DriftToleranceMs int64         `json:"driftToleranceMs" mapstructure:"driftToleranceMs"`
	TransportTick    time.Duration `json:"transportTickMs" mapstructure:"transportTickMs"`
	FrameStepMs      int64         `json:"frameStepMs" mapstructure:"frameStepMs"`
	Rates            []float64     `json:"rates" mapstructure:"rates"`
}

// AutosaveConfig holds marker autosave settings
type AutosaveConfig struct {
	Interval time.Duration `json:"intervalSeconds" mapstructure:"intervalSeconds"`
}

// FileConfig holds JSON snapshot backend settings
type FileConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// SQLiteConfig holds SQLite backend settings. An empty Path selects an
// in-memory database with periodic disk dumps to DumpPath.
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
	DumpInterval time.Duration `json:"dumpIntervalSeconds" mapstructure:"dumpIntervalSeconds"`
}

// StorageConfig selects and configures the persistence backend
type StorageConfig struct {
	Type   string       `json:"type" mapstructure:"type"`
	File   FileConfig   `json:"file" mapstructure:"file"`
	SQLite SQLiteConfig `json:"sqlite" mapstructure:"sqlite"`
	DB     DBConfig     `json:"db" mapstructure:"db"`
}

// DBConfig holds postgres connection settings
type DBConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// InfluxConfig holds telemetry sink settings
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
}

// FeedConfig holds live event feed settings
type FeedConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
	Secret  string `json:"secret" mapstructure:"secret"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
}

// ExportConfig holds clip plan export settings
type ExportConfig struct {
	OutputDir      string        `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool          `json:"compressOutput" mapstructure:"compressOutput"`
	ClipBefore     time.Duration `json:"clipBeforeSeconds" mapstructure:"clipBeforeSeconds"`
	ClipAfter      time.Duration `json:"clipAfterSeconds" mapstructure:"clipAfterSeconds"`
}

// GraylogConfig holds GELF log forwarding settings
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// SetDefaults registers every default value. Load calls this; entry points
// without a config file may call it directly.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")
	viper.SetDefault("log.console", true)
	viper.SetDefault("log.file", true)

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("sync.maxStreams", 4)
	viper.SetDefault("sync.driftToleranceMs", 150)
	viper.SetDefault("sync.transportTickMs", 100)
	viper.SetDefault("sync.frameStepMs", 40)
	viper.SetDefault("sync.rates", []float64{0.25, 0.5, 0.75, 1.0, 1.25, 1.5, 2.0, 4.0})

	viper.SetDefault("autosave.intervalSeconds", 30)

	viper.SetDefault("storage.type", "file")
	viper.SetDefault("storage.file.path", "./markers.json")
	viper.SetDefault("storage.sqlite.path", "")
	viper.SetDefault("storage.sqlite.dumpPath", "./markers.db")
	viper.SetDefault("storage.sqlite.dumpIntervalSeconds", 180)

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "vidsync")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "vidsync-metrics")

	viper.SetDefault("feed.enabled", false)
	viper.SetDefault("feed.url", "ws://localhost:8787/feed")
	viper.SetDefault("feed.secret", "")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "vidsync-engine")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
	viper.SetDefault("otel.batchTimeout", "5s")

	viper.SetDefault("export.outputDir", "./exports")
	viper.SetDefault("export.compressOutput", false)
	viper.SetDefault("export.clipBeforeSeconds", 5)
	viper.SetDefault("export.clipAfterSeconds", 10)
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	SetDefaults()

	viper.SetConfigName("engine.cfg.json")
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// Validate rejects configurations the engine cannot run with.
func Validate() error {
	sync := GetSyncConfig()
	if sync.MaxStreams <= 0 {
		return fmt.Errorf("sync.maxStreams must be positive, got %d", sync.MaxStreams)
	}
	if sync.DriftToleranceMs <= 0 {
		return fmt.Errorf("sync.driftToleranceMs must be positive, got %d", sync.DriftToleranceMs)
	}
	if sync.TransportTick <= 0 {
		return fmt.Errorf("sync.transportTickMs must be positive, got %s", sync.TransportTick)
	}
	if sync.FrameStepMs <= 0 {
		return fmt.Errorf("sync.frameStepMs must be positive, got %d", sync.FrameStepMs)
	}
	if len(sync.Rates) == 0 {
		return fmt.Errorf("sync.rates must not be empty")
	}
	for _, r := range sync.Rates {
		if r <= 0 {
			return fmt.Errorf("sync.rates entries must be positive, got %v", r)
		}
	}
	if iv := GetAutosaveConfig().Interval; iv <= 0 {
		return fmt.Errorf("autosave.intervalSeconds must be positive, got %s", iv)
	}
	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetSyncConfig returns the sync section.
func GetSyncConfig() SyncConfig {
	return SyncConfig{
		MaxStreams:       viper.GetInt("sync.maxStreams"),
		DriftToleranceMs: viper.GetInt64("sync.driftToleranceMs"),
		TransportTick:    time.Duration(viper.GetInt("sync.transportTickMs")) * time.Millisecond,
		FrameStepMs:      viper.GetInt64("sync.frameStepMs"),
		Rates:            floatSlice("sync.rates"),
	}
}

// GetAutosaveConfig returns the autosave section.
func GetAutosaveConfig() AutosaveConfig {
	return AutosaveConfig{
		Interval: time.Duration(viper.GetInt("autosave.intervalSeconds")) * time.Second,
	}
}

// GetStorageConfig returns the storage section.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		File: FileConfig{
			Path: viper.GetString("storage.file.path"),
		},
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
			DumpInterval: time.Duration(viper.GetInt("storage.sqlite.dumpIntervalSeconds")) * time.Second,
		},
		DB: GetDBConfig(),
	}
}

// GetDBConfig returns the postgres section.
func GetDBConfig() DBConfig {
	return DBConfig{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: viper.GetString("db.password"),
		Database: viper.GetString("db.database"),
	}
}

// GetInfluxConfig returns the influx section.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
	}
}

// GetFeedConfig returns the feed section.
func GetFeedConfig() FeedConfig {
	return FeedConfig{
		Enabled: viper.GetBool("feed.enabled"),
		URL:     viper.GetString("feed.url"),
		Secret:  viper.GetString("feed.secret"),
	}
}

// GetOTelConfig returns the otel section.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
	}
}

// GetExportConfig returns the export section.
func GetExportConfig() ExportConfig {
	return ExportConfig{
		OutputDir:      viper.GetString("export.outputDir"),
		CompressOutput: viper.GetBool("export.compressOutput"),
		ClipBefore:     time.Duration(viper.GetInt("export.clipBeforeSeconds")) * time.Second,
		ClipAfter:      time.Duration(viper.GetInt("export.clipAfterSeconds")) * time.Second,
	}
}

// GetGraylogConfig returns the graylog section.
func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

// floatSlice reads a []float64 key. Values from a JSON file arrive as
// []any of float64; defaults keep their registered type.
func floatSlice(key string) []float64 {
	switch v := viper.Get(key).(type) {
	case []float64:
		return v
	case []any:
		out := make([]float64, 0, len(v))
		for _, e := range v {
			switch n := e.(type) {
			case float64:
				out = append(out, n)
			case int:
				out = append(out, float64(n))
			}
		}
		return out
	default:
		return nil
	}
}
