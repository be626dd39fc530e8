package recorder

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sashagrin/mediawatch/internal/realtime"
)

// EventSource is the subscription surface of the realtime client.
type EventSource interface {
	On(eventType string, fn realtime.Listener)
	Off(eventType string, fn realtime.Listener)
}

// Config configures a Recorder.
type Config struct {
	SessionID     string
	EventTypes    []string
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
	}
}

// Metrics contains runtime counters.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}

// eventRow is a session_events row.
type eventRow struct {
	ID         string
	SessionID  string
	EventType  string
	Payload    []byte
	ReceivedAt int64 // Unix microseconds
}

// Recorder batches received realtime events and writes them to Postgres.
type Recorder struct {
	cfg    Config
	source EventSource
	db     *pgxpool.Pool
	logger *slog.Logger

	// Registered listeners, kept for removal on Stop.
	listeners map[string]realtime.Listener

	batch       []eventRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics Metrics
}

// NewRecorder creates a new event archive recorder.
func NewRecorder(cfg Config, source EventSource, db *pgxpool.Pool, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		cfg:       cfg,
		source:    source,
		db:        db,
		logger:    logger,
		listeners: make(map[string]realtime.Listener),
		batch:     make([]eventRow, 0, cfg.BatchSize),
	}
}

// Start subscribes to the configured event types and begins flushing.
func (r *Recorder) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.flushTicker = time.NewTicker(r.cfg.FlushInterval)

	for _, eventType := range r.cfg.EventTypes {
		et := eventType
		fn := func(data json.RawMessage) { r.handleEvent(et, data) }
		r.listeners[et] = fn
		r.source.On(et, fn)
	}

	r.wg.Add(1)
	go r.flushLoop()

	r.logger.Info("recorder started",
		"session_id", r.cfg.SessionID,
		"event_types", r.cfg.EventTypes,
		"batch_size", r.cfg.BatchSize,
		"flush_interval", r.cfg.FlushInterval,
	)
	return nil
}

// Stop unsubscribes, drains the flush loop, and writes the final batch.
func (r *Recorder) Stop(ctx context.Context) error {
	r.logger.Info("stopping recorder")

	for eventType, fn := range r.listeners {
		r.source.Off(eventType, fn)
	}

	if r.cancel != nil {
		r.cancel()
	}
	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("recorder stopped")
	case <-ctx.Done():
		r.logger.Warn("recorder stop timed out")
	}

	// Final flush
	r.flush(ctx)

	return nil
}

// Stats returns current metrics.
func (r *Recorder) Stats() Metrics {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	return r.metrics
}

// flushLoop periodically flushes the batch.
func (r *Recorder) flushLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.flushTicker.C:
			r.flush(r.ctx)
		}
	}
}

// handleEvent transforms and adds an event to the batch.
func (r *Recorder) handleEvent(eventType string, data json.RawMessage) {
	row := r.transform(eventType, data)

	r.batchMu.Lock()
	r.batch = append(r.batch, row)
	shouldFlush := len(r.batch) >= r.cfg.BatchSize
	r.batchMu.Unlock()

	if shouldFlush {
		r.flush(r.ctx)
	}
}

// transform converts a received event to an eventRow.
func (r *Recorder) transform(eventType string, data json.RawMessage) eventRow {
	payload := data
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	return eventRow{
		ID:         uuid.NewString(),
		SessionID:  r.cfg.SessionID,
		EventType:  eventType,
		Payload:    append([]byte(nil), payload...),
		ReceivedAt: time.Now().UnixMicro(),
	}
}

// flush writes the current batch to the database.
func (r *Recorder) flush(ctx context.Context) {
	r.batchMu.Lock()
	if len(r.batch) == 0 {
		r.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := r.batch
	r.batch = make([]eventRow, 0, r.cfg.BatchSize)
	r.batchMu.Unlock()

	start := time.Now()

	conflicts, err := r.batchInsert(ctx, batch)
	if err != nil {
		r.logger.Error("batch insert failed", "error", err, "count", len(batch))
		r.batchMu.Lock()
		r.metrics.Errors++
		r.batchMu.Unlock()
		return
	}

	r.batchMu.Lock()
	r.metrics.Inserts += int64(len(batch) - conflicts)
	r.metrics.Conflicts += int64(conflicts)
	r.metrics.Flushes++
	r.batchMu.Unlock()

	r.logger.Debug("flushed events",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (r *Recorder) batchInsert(ctx context.Context, rows []eventRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`
			INSERT INTO session_events (id, session_id, event_type, payload, received_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING
		`, row.ID, row.SessionID, row.EventType, row.Payload, row.ReceivedAt)
	}

	results := r.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
