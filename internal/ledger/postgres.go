package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/config"
	"github.com/over7-maker/Advanced-Multi-Agent-Intelligence-System-sub004/internal/security"
)

// PostgresSink persists attempt records to Postgres asynchronously.
//
// Log() never blocks the routing path: records go through a bounded
// queue drained by a background worker that batches INSERTs. When the
// queue is full new records are dropped and counted, never waited on.
type PostgresSink struct {
	pool   *pgxpool.Pool
	logger *slog.Logger

	queue         chan AttemptRecord
	batchSize     int
	flushInterval time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup

	queued  uint64
	written uint64
	dropped uint64
	errors  uint64
}

// SinkStats is a point-in-time snapshot of sink counters.
type SinkStats struct {
	QueueLen int
	Queued   uint64
	Written  uint64
	Dropped  uint64
	Errors   uint64
}

// NewPostgresSink connects to the database named by the configured env
// var, ensures the schema, and starts the background writer.
func NewPostgresSink(ctx context.Context, cfg config.PostgresConfig, databaseURL string, logger *slog.Logger) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, querySchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	s := &PostgresSink{
		pool:          pool,
		logger:        logger,
		queue:         make(chan AttemptRecord, cfg.QueueSize),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		stopChan:      make(chan struct{}),
	}

	s.wg.Add(1)
	go s.worker()

	logger.Info("usage ledger postgres sink started",
		"database_url", security.MaskDatabaseURL(databaseURL),
		"queue_size", cfg.QueueSize,
		"batch_size", cfg.BatchSize,
		"flush_interval", cfg.FlushInterval,
	)
	return s, nil
}

// Log queues one record. Drops with a counter bump when the queue is
// full so a slow database cannot stall routing.
func (s *PostgresSink) Log(rec AttemptRecord) {
	select {
	case s.queue <- rec:
		atomic.AddUint64(&s.queued, 1)
	default:
		atomic.AddUint64(&s.dropped, 1)
		s.logger.Warn("usage record dropped, sink queue full",
			"request_id", rec.RequestID,
			"provider", rec.ProviderID,
		)
	}
}

// Shutdown stops the worker, drains the queue and closes the pool.
func (s *PostgresSink) Shutdown(ctx context.Context) error {
	s.logger.Info("usage ledger postgres sink shutting down", "pending", len(s.queue))

	close(s.stopChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	s.pool.Close()
	s.logger.Info("usage ledger postgres sink stopped",
		"written", atomic.LoadUint64(&s.written),
		"dropped", atomic.LoadUint64(&s.dropped),
		"errors", atomic.LoadUint64(&s.errors),
	)
	return err
}

// Stats returns the sink counters.
func (s *PostgresSink) Stats() SinkStats {
	return SinkStats{
		QueueLen: len(s.queue),
		Queued:   atomic.LoadUint64(&s.queued),
		Written:  atomic.LoadUint64(&s.written),
		Dropped:  atomic.LoadUint64(&s.dropped),
		Errors:   atomic.LoadUint64(&s.errors),
	}
}

func (s *PostgresSink) worker() {
	defer s.wg.Done()

	batch := make([]AttemptRecord, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			s.drainQueue(&batch)
			if len(batch) > 0 {
				s.flushBatch(batch)
			}
			return

		case rec := <-s.queue:
			batch = append(batch, rec)
			if len(batch) >= s.batchSize {
				s.flushBatch(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *PostgresSink) drainQueue(batch *[]AttemptRecord) {
	for {
		select {
		case rec := <-s.queue:
			*batch = append(*batch, rec)
		default:
			return
		}
	}
}

// flushBatch writes one batch with bounded retries. Records that fail
// every attempt are dropped; the in-memory ledger still has them.
func (s *PostgresSink) flushBatch(batch []AttemptRecord) {
	backoffs := []time.Duration{0, time.Second, 5 * time.Second}

	var lastErr error
	for attempt, backoff := range backoffs {
		if backoff > 0 {
			time.Sleep(backoff)
		}

		if err := s.insertBatch(batch); err != nil {
			lastErr = err
			s.logger.Warn("usage ledger batch insert failed",
				"attempt", attempt+1,
				"batch_size", len(batch),
				"error", err,
			)
			continue
		}

		atomic.AddUint64(&s.written, uint64(len(batch)))
		return
	}

	atomic.AddUint64(&s.errors, uint64(len(batch)))
	s.logger.Error("usage ledger batch abandoned after retries",
		"batch_size", len(batch),
		"error", lastErr,
	)
}

func (s *PostgresSink) insertBatch(batch []AttemptRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	query := buildBatchInsertQuery(len(batch))
	if _, err := s.pool.Exec(ctx, query, batchParams(batch)...); err != nil {
		return fmt.Errorf("batch insert: %w", err)
	}
	return nil
}
