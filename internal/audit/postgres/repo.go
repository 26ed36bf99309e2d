// Package postgres provides an optional relational sink for cycle
// records, mirroring the JSONL schema for teams that query the audit
// trail with SQL.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"quantgate/internal/audit"
)

// Repo persists cycle records to the cycle_log table.
type Repo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRepo wraps an open connection. timeout bounds every statement.
func NewRepo(db *sqlx.DB, timeout time.Duration) *Repo {
	return &Repo{db: db, timeout: timeout}
}

// Open connects and verifies the DSN.
func Open(dsn string, timeout time.Duration) (*Repo, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to audit database: %w", err)
	}
	return NewRepo(db, timeout), nil
}

const insertQuery = `
	INSERT INTO cycle_log (
		ts, symbol, market_price, position_before, llm_raw_output,
		parsed_action, parsed_size_pct, parsed_reason, risk_approved,
		risk_reason, executed, order_id, filled_size, fill_price, mode
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

// Insert stores one record, redacted first.
func (r *Repo) Insert(ctx context.Context, rec audit.CycleRecord) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rec = rec.Redacted()
	_, err := r.db.ExecContext(ctx, insertQuery,
		rec.Timestamp, rec.Symbol, rec.MarketPrice, rec.PositionBefore,
		rec.LLMRawOutput, rec.ParsedAction, rec.ParsedSizePct, rec.ParsedReason,
		rec.RiskApproved, rec.RiskReason, rec.Executed, rec.OrderID,
		rec.FilledSize, rec.FillPrice, rec.Mode)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return fmt.Errorf("duplicate cycle record: %w", err)
		}
		return fmt.Errorf("failed to insert cycle record: %w", err)
	}
	return nil
}

// InsertBatch stores multiple records atomically.
func (r *Repo) InsertBatch(ctx context.Context, recs []audit.CycleRecord) error {
	if len(recs) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertQuery)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		rec = rec.Redacted()
		if _, err := stmt.ExecContext(ctx,
			rec.Timestamp, rec.Symbol, rec.MarketPrice, rec.PositionBefore,
			rec.LLMRawOutput, rec.ParsedAction, rec.ParsedSizePct, rec.ParsedReason,
			rec.RiskApproved, rec.RiskReason, rec.Executed, rec.OrderID,
			rec.FilledSize, rec.FillPrice, rec.Mode); err != nil {
			return fmt.Errorf("failed to insert cycle record for %s: %w", rec.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cycle records: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (r *Repo) Close() error {
	return r.db.Close()
}

// SinkAdapter exposes the repo as an audit.Sink with a fixed timeout per
// append.
type SinkAdapter struct {
	repo *Repo
}

// AsSink adapts the repo to the audit.Sink interface.
func (r *Repo) AsSink() *SinkAdapter {
	return &SinkAdapter{repo: r}
}

// Append implements audit.Sink.
func (s *SinkAdapter) Append(rec audit.CycleRecord) error {
	return s.repo.Insert(context.Background(), rec)
}
