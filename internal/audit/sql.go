package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

const (
	channelBuffer = 10_000
	batchSize     = 100
	flushInterval = time.Second
)

// SQLSink batches Entry values and flushes them to ClickHouse on a ticker,
// grounded verbatim on internal/logger/logger.go's channel+batch+ticker-flush
// goroutine — generalized from slog-only output to a real destination table,
// the connection the teacher's own doc comments describe as "the managed
// version of this gateway connects to ClickHouse" without ever wiring it.
type SQLSink struct {
	db  *sql.DB
	ch  chan Entry
	done chan struct{}
	closeOnce sync.Once
	wg   sync.WaitGroup

	dropped int64
	log     *slog.Logger
}

// NewSQLSink opens a ClickHouse connection, ensures the audit_log table
// exists, and starts the background flush loop.
func NewSQLSink(ctx context.Context, dsn string, logger *slog.Logger) (*SQLSink, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: parse dsn: %w", err)
	}
	db := clickhouse.OpenDB(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("audit: clickhouse ping: %w", err)
	}

	if _, err := db.ExecContext(ctx, createAuditLogTable); err != nil {
		return nil, fmt.Errorf("audit: create table: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	s := &SQLSink{
		db:   db,
		ch:   make(chan Entry, channelBuffer),
		done: make(chan struct{}),
		log:  logger,
	}
	s.wg.Add(1)
	go s.run(ctx)
	return s, nil
}

const createAuditLogTable = `
CREATE TABLE IF NOT EXISTS audit_log (
	request_id        String,
	provider          String,
	model             String,
	user_id           String,
	session_id        String,
	kind              String,
	prompt_hash       String,
	prompt_length     UInt32,
	response_length   UInt32,
	tokens_used       UInt32,
	duration_ms       UInt32,
	estimated_cost_millis UInt64,
	success           UInt8,
	error_code        String,
	error_message     String,
	created_at        DateTime
) ENGINE = MergeTree()
ORDER BY (provider, created_at)
`

// LogRequest enqueues e without blocking; the channel fills up at 10,000
// entries after which new entries are dropped and counted.
func (s *SQLSink) LogRequest(e Entry) {
	select {
	case s.ch <- e:
	default:
		atomic.AddInt64(&s.dropped, 1)
	}
}

// Dropped reports how many entries were discarded because the buffer was full.
func (s *SQLSink) Dropped() int64 { return atomic.LoadInt64(&s.dropped) }

// Close stops the flush loop, draining any buffered entries first.
func (s *SQLSink) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	s.wg.Wait()
	return s.db.Close()
}

func (s *SQLSink) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, batchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.insertBatch(ctx, batch); err != nil {
			s.log.WarnContext(ctx, "audit_flush_failed", slog.String("error", err.Error()), slog.Int("count", len(batch)))
		}
		batch = batch[:0]
	}

	for {
		select {
		case e := <-s.ch:
			batch = append(batch, e)
			if len(batch) >= batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.done:
			for {
				select {
				case e := <-s.ch:
					batch = append(batch, e)
					if len(batch) >= batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

func (s *SQLSink) insertBatch(ctx context.Context, batch []Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO audit_log
		(request_id, provider, model, user_id, session_id, kind, prompt_hash,
		 prompt_length, response_length, tokens_used, duration_ms,
		 estimated_cost_millis, success, error_code, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, e := range batch {
		created := e.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		successFlag := 0
		if e.Success {
			successFlag = 1
		}
		if _, err := stmt.ExecContext(ctx,
			e.RequestID, e.Provider, e.Model, e.UserID, e.SessionID, e.Kind,
			e.PromptHash, e.PromptLength, e.ResponseLength, e.TokensUsed,
			e.DurationMs, int64(e.EstimatedCost*1000), successFlag,
			e.ErrorCode, e.ErrorMessage, created,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
