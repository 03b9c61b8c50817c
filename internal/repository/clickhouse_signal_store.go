package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"FinSignal/internal/domain/models"
	domrepo "FinSignal/internal/domain/repository"
	pkgch "FinSignal/pkg/clickhouse"
	applogger "FinSignal/pkg/logger"
)

var _ domrepo.SignalStore = (*CHSignalStore)(nil)

// CHSignalStore persists the signal lifecycle in ClickHouse. Each table keeps
// the full record as a JSON payload next to a few queryable columns.
type CHSignalStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHSignalStore(ch *pkgch.Client, l *applogger.Logger) *CHSignalStore {
	if l == nil {
		l = applogger.NewNop()
	}
	return &CHSignalStore{db: ch.DB(), l: l}
}

// SignalSchema returns the DDL for the signal tables.
func SignalSchema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS signals_pending (
            id String,
            symbol LowCardinality(String),
            direction LowCardinality(String),
            quality_score Float64,
            tier LowCardinality(String),
            admitted_at DateTime64(3),
            expires_at DateTime64(3),
            attempts UInt32,
            payload String,
            updated_at DateTime64(3)
        ) ENGINE = ReplacingMergeTree(updated_at)
        ORDER BY id`,
		`CREATE TABLE IF NOT EXISTS signals_confirmed (
            id String,
            symbol LowCardinality(String),
            direction LowCardinality(String),
            quality_score Float64,
            reasons Array(String),
            decided_at DateTime64(3),
            payload String
        ) ENGINE = ReplacingMergeTree(decided_at)
        ORDER BY id`,
		`CREATE TABLE IF NOT EXISTS signals_rejected (
            id String,
            symbol LowCardinality(String),
            direction LowCardinality(String),
            status LowCardinality(String),
            reasons Array(String),
            decided_at DateTime64(3),
            payload String
        ) ENGINE = ReplacingMergeTree(decided_at)
        ORDER BY id`,
	}
}

func (s *CHSignalStore) SaveCandidate(ctx context.Context, p models.PendingSignal) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pending: %w", err)
	}
	const q = `INSERT INTO signals_pending
        (id, symbol, direction, quality_score, tier, admitted_at, expires_at, attempts, payload, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, q,
		p.ID, p.Symbol, string(p.Direction), p.QualityScore, string(p.Tier),
		p.AdmittedAt, p.ExpiresAt, uint32(p.Attempts), string(payload), time.Now(),
	)
	if err != nil {
		s.l.Error("clickhouse save_pending error", applogger.String("id", p.ID), applogger.Error(err))
		return fmt.Errorf("save pending: %w", err)
	}
	return nil
}

func (s *CHSignalStore) SaveConfirmed(ctx context.Context, c models.ConfirmedSignal) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal confirmed: %w", err)
	}
	const q = `INSERT INTO signals_confirmed
        (id, symbol, direction, quality_score, reasons, decided_at, payload)
        VALUES (?, ?, ?, ?, ?, ?, ?)`
	p := c.Signal
	if _, err := s.db.ExecContext(ctx, q,
		p.ID, p.Symbol, string(p.Direction), p.QualityScore, c.Reasons, c.DecidedAt, string(payload),
	); err != nil {
		s.l.Error("clickhouse save_confirmed error", applogger.String("id", p.ID), applogger.Error(err))
		return fmt.Errorf("save confirmed: %w", err)
	}
	return nil
}

func (s *CHSignalStore) SaveRejected(ctx context.Context, r models.RejectedSignal) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal rejected: %w", err)
	}
	const q = `INSERT INTO signals_rejected
        (id, symbol, direction, status, reasons, decided_at, payload)
        VALUES (?, ?, ?, ?, ?, ?, ?)`
	p := r.Signal
	if _, err := s.db.ExecContext(ctx, q,
		p.ID, p.Symbol, string(p.Direction), string(r.Status), r.Reasons, r.DecidedAt, string(payload),
	); err != nil {
		s.l.Error("clickhouse save_rejected error", applogger.String("id", p.ID), applogger.Error(err))
		return fmt.Errorf("save rejected: %w", err)
	}
	return nil
}

// ListPending returns the latest version of each undecided signal, oldest first.
func (s *CHSignalStore) ListPending(ctx context.Context) ([]models.PendingSignal, error) {
	const q = `
        SELECT argMax(payload, updated_at)
        FROM signals_pending
        WHERE id NOT IN (SELECT id FROM signals_confirmed)
          AND id NOT IN (SELECT id FROM signals_rejected)
        GROUP BY id
        ORDER BY min(admitted_at) ASC
    `
	return queryPayloads[models.PendingSignal](ctx, s, "list_pending", q)
}

func (s *CHSignalStore) ListConfirmed(ctx context.Context, limit int) ([]models.ConfirmedSignal, error) {
	q := `SELECT payload FROM signals_confirmed FINAL ORDER BY decided_at DESC` + limitClause(limit)
	return queryPayloads[models.ConfirmedSignal](ctx, s, "list_confirmed", q)
}

func (s *CHSignalStore) ListRejected(ctx context.Context, limit int) ([]models.RejectedSignal, error) {
	q := `SELECT payload FROM signals_rejected FINAL ORDER BY decided_at DESC` + limitClause(limit)
	return queryPayloads[models.RejectedSignal](ctx, s, "list_rejected", q)
}

func limitClause(limit int) string {
	if limit <= 0 {
		return ""
	}
	return fmt.Sprintf(" LIMIT %d", limit)
}

func queryPayloads[T any](ctx context.Context, s *CHSignalStore, op, q string) ([]T, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		s.l.Error("clickhouse "+op+" query error", applogger.Error(err))
		return nil, fmt.Errorf("%s: %w", strings.ReplaceAll(op, "_", " "), err)
	}
	defer rows.Close()

	out := make([]T, 0, 64)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan payload: %w", err)
		}
		var v T
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			s.l.Warn("clickhouse "+op+" skipping malformed payload", applogger.Error(err))
			continue
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse "+op+" ok",
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)))
	return out, nil
}
