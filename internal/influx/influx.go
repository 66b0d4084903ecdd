package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/vidsync/engine/internal/config"
	"github.com/vidsync/engine/internal/queue"
)

// Buckets used by the engine.
const (
	BucketSyncTelemetry     = "sync_telemetry"
	BucketEnginePerformance = "engine_performance"
)

// DefaultBucketNames are the InfluxDB buckets ensured at connect time.
var DefaultBucketNames = []string{
	BucketSyncTelemetry,
	BucketEnginePerformance,
}

const (
	maxBacklog    = 10_000
	flushInterval = time.Second
)

type entry struct {
	bucket string
	point  *influxdb2_write.Point
}

// Manager handles InfluxDB connections and writes. Points are queued in
// a bounded backlog and flushed by a background goroutine; when the
// server is unreachable they spill to a gzipped line-protocol file.
type Manager struct {
	Client       influxdb2.Client
	Writers      map[string]influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	BucketNames  []string
	Logger       zerolog.Logger
	BackupPath   string

	backupMu   sync.Mutex
	backupFile *os.File

	backlog  *queue.Queue[entry]
	stopChan chan struct{}
	done     chan struct{}
}

// NewManager creates a new InfluxDB manager.
func NewManager(log zerolog.Logger, backupPath string) *Manager {
	return &Manager{
		Writers:     make(map[string]influxdb2_api.WriteAPI),
		IsValid:     false,
		BucketNames: DefaultBucketNames,
		Logger:      log,
		BackupPath:  backupPath,
		backlog:     queue.New[entry](),
	}
}

// Connect establishes a connection to InfluxDB and starts the flush
// goroutine. An unreachable server is not an error: the manager keeps
// collecting points and spills them to the backup file instead.
func (m *Manager) Connect(cfg config.InfluxConfig) error {
	if !cfg.Enabled {
		return errors.New("influx is disabled")
	}

	m.Client = influxdb2.NewClientWithOptions(
		fmt.Sprintf("%s://%s:%s", cfg.Protocol, cfg.Host, cfg.Port),
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	// validate client connection health
	running, err := m.Client.Ping(context.Background())
	if err != nil || !running {
		m.IsValid = false
		if err := m.ensureBackupWriter(); err != nil {
			return err
		}
		m.Logger.Warn().Str("backupPath", m.BackupPath).
			Msg("InfluxDB client failed to initialize, using backup writer")
	} else {
		m.IsValid = true
		if err := m.setupOrganizationAndBuckets(cfg.Org); err != nil {
			return err
		}
		m.createWriters(cfg.Org)
		m.Logger.Info().Msg("InfluxDB client initialized")
	}

	m.stopChan = make(chan struct{})
	m.done = make(chan struct{})
	go m.flushLoop()
	return nil
}

func (m *Manager) setupOrganizationAndBuckets(orgName string) error {
	ctx := context.Background()

	// ensure org exists
	_, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		_, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	influxOrg, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Error().Err(err).Str("org", orgName).Msg("Error getting organization")
		return err
	}

	// ensure buckets exist with 90 day retention
	for _, bucket := range m.BucketNames {
		_, err = m.Client.BucketsAPI().FindBucketByName(ctx, bucket)
		if err != nil {
			m.Logger.Info().Str("bucket", bucket).Msg("Bucket not found, creating")

			rule := domain.RetentionRuleTypeExpire
			_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, bucket, domain.RetentionRule{
				Type:         &rule,
				EverySeconds: 60 * 60 * 24 * 90, // 90 days
			})
			if err != nil {
				m.Logger.Error().Err(err).Str("bucket", bucket).Msg("Error creating bucket")
				return err
			}
		}
	}

	return nil
}

// createWriters creates write APIs for all configured buckets.
func (m *Manager) createWriters(orgName string) {
	for _, bucket := range m.BucketNames {
		m.Logger.Trace().Str("bucket", bucket).Msg("Creating InfluxDB writer")
		m.Writers[bucket] = m.Client.WriteAPI(orgName, bucket)

		errorsCh := m.Writers[bucket].Errors()
		go func(bucketName string, errorsCh <-chan error) {
			for writeErr := range errorsCh {
				m.Logger.Error().Err(writeErr).Str("bucket", bucketName).
					Msg("Error sending data to InfluxDB")
			}
		}(bucket, errorsCh)
	}

	m.Logger.Debug().Msg("InfluxDB writers initialized")
}

// RecordDrift queues a drift sample for a stream against the master clock.
func (m *Manager) RecordDrift(streamID int, reportedMs, targetMs, driftMs int64) {
	point := influxdb2.NewPoint(
		"stream_drift",
		map[string]string{"stream": fmt.Sprintf("%d", streamID)},
		map[string]interface{}{
			"reported_ms": reportedMs,
			"target_ms":   targetMs,
			"drift_ms":    driftMs,
		},
		time.Now(),
	)
	m.Enqueue(BucketSyncTelemetry, point)
}

// RecordCorrection queues a corrective-seek sample.
func (m *Manager) RecordCorrection(streamID int, driftMs int64) {
	point := influxdb2.NewPoint(
		"drift_correction",
		map[string]string{"stream": fmt.Sprintf("%d", streamID)},
		map[string]interface{}{
			"drift_ms": driftMs,
			"count":    1,
		},
		time.Now(),
	)
	m.Enqueue(BucketSyncTelemetry, point)
}

// RecordSave queues a persistence-pass sample.
func (m *Manager) RecordSave(backend string, markerCount int, duration time.Duration, success bool) {
	point := influxdb2.NewPoint(
		"snapshot_save",
		map[string]string{"backend": backend},
		map[string]interface{}{
			"marker_count": markerCount,
			"duration_ms":  float64(duration.Microseconds()) / 1000,
			"success":      success,
		},
		time.Now(),
	)
	m.Enqueue(BucketEnginePerformance, point)
}

// Enqueue queues a point for the next flush pass. When the backlog
// exceeds its bound, the oldest points spill to the backup file.
func (m *Manager) Enqueue(bucket string, point *influxdb2_write.Point) {
	m.backlog.PushBounded(entry{bucket: bucket, point: point}, maxBacklog, m.spillPoint)
}

// Backlog reports the number of queued points.
func (m *Manager) Backlog() int {
	return m.backlog.Len()
}

func (m *Manager) flushLoop() {
	defer close(m.done)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopChan:
			return
		case <-ticker.C:
			m.flush()
		}
	}
}

// flush drains the backlog into the write APIs, or into the backup file
// when no connection is available.
func (m *Manager) flush() {
	if m.backlog.Empty() {
		return
	}

	for _, e := range m.backlog.GetAndEmpty() {
		if !m.IsValid {
			m.spillPoint(e)
			continue
		}
		writer, ok := m.Writers[e.bucket]
		if !ok {
			m.Logger.Error().Str("bucket", e.bucket).Msg("InfluxDB bucket not registered")
			continue
		}
		writer.WritePoint(e.point)
	}
}

// spillPoint appends one point to the gzipped backup file in line protocol.
func (m *Manager) spillPoint(e entry) {
	m.backupMu.Lock()
	defer m.backupMu.Unlock()

	if err := m.ensureBackupWriterLocked(); err != nil {
		m.Logger.Error().Err(err).Msg("Backup writer unavailable, dropping point")
		return
	}

	lineProtocol := influxdb2_write.PointToLineProtocol(e.point, time.Nanosecond)
	if _, err := m.BackupWriter.Write([]byte(lineProtocol)); err != nil {
		m.Logger.Error().Err(err).Msg("Error writing to InfluxDB backup file")
	}
}

func (m *Manager) ensureBackupWriter() error {
	m.backupMu.Lock()
	defer m.backupMu.Unlock()
	return m.ensureBackupWriterLocked()
}

func (m *Manager) ensureBackupWriterLocked() error {
	if m.BackupWriter != nil {
		return nil
	}
	if m.BackupPath == "" {
		return errors.New("no backup path configured")
	}

	file, err := os.OpenFile(m.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %v", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	return nil
}

// Close stops the flush goroutine, drains the backlog and closes all
// writers.
func (m *Manager) Close() {
	if m.stopChan != nil {
		close(m.stopChan)
		<-m.done
		m.stopChan = nil
	}

	m.flush()

	for _, writer := range m.Writers {
		writer.Flush()
	}

	m.backupMu.Lock()
	if m.BackupWriter != nil {
		if err := m.BackupWriter.Close(); err != nil {
			m.Logger.Error().Err(err).Msg("Error closing backup writer")
		}
		m.backupFile.Close()
		m.BackupWriter = nil
		m.backupFile = nil
	}
	m.backupMu.Unlock()

	if m.Client != nil {
		m.Client.Close()
	}
}
