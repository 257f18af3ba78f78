package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"FinTrade/internal/domain/models"
	"FinTrade/internal/domain/repository"
)

// DecisionStore implements Storage on ClickHouse: one row per decision
// cycle, votes carried as a JSON string column.
type DecisionStore struct {
	db    *sql.DB
	table string
}

// NewDecisionStore creates ClickHouse-backed decision storage. table is
// the fully qualified "db.table" name.
func NewDecisionStore(db *sql.DB, table string) repository.Storage {
	return &DecisionStore{db: db, table: table}
}

// Init verifies the decision table is reachable. Schema creation runs
// once at client construction.
func (s *DecisionStore) Init(ctx context.Context) error {
	q := fmt.Sprintf("SELECT count() FROM %s WHERE 1 = 0", s.table)
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("decision table %s not ready: %w", s.table, err)
	}
	return nil
}

func (s *DecisionStore) Store(ctx context.Context, rec *models.DecisionRecord) error {
	args, err := decisionArgs(rec)
	if err != nil {
		return err
	}
	q := fmt.Sprintf("INSERT INTO %s (ts, symbol, cycle, action, confidence, reasoning, votes, price) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", s.table)
	_, err = s.db.ExecContext(ctx, q, args...)
	return err
}

func (s *DecisionStore) StoreBatch(ctx context.Context, recs []*models.DecisionRecord) error {
	if len(recs) == 0 {
		return nil
	}
	// Multi-row VALUES insert to reduce round-trips, chunked so one
	// giant backlog flush cannot exceed statement limits.
	const chunkSize = 2000
	for start := 0; start < len(recs); start += chunkSize {
		end := min(start+chunkSize, len(recs))

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*8)
		for _, rec := range recs[start:end] {
			if rec == nil || rec.Symbol == "" || rec.Timestamp.IsZero() {
				continue
			}
			rowArgs, err := decisionArgs(rec)
			if err != nil {
				return err
			}
			values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?)")
			args = append(args, rowArgs...)
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, symbol, cycle, action, confidence, reasoning, votes, price) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return nil
}

func (s *DecisionStore) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.DecisionRecord, error) {
	q := fmt.Sprintf("SELECT ts, symbol, cycle, action, confidence, reasoning, votes, price FROM %s WHERE symbol = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.DecisionRecord
	for rows.Next() {
		var (
			rec    models.DecisionRecord
			action int8
			votes  string
		)
		if err := rows.Scan(&rec.Timestamp, &rec.Symbol, &rec.Cycle, &action, &rec.Confidence, &rec.Reasoning, &votes, &rec.Price); err != nil {
			return nil, err
		}
		rec.Action = models.SignalType(action)
		if votes != "" {
			if err := json.Unmarshal([]byte(votes), &rec.Votes); err != nil {
				return nil, fmt.Errorf("decode votes for cycle %d: %w", rec.Cycle, err)
			}
		}
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

func (s *DecisionStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *DecisionStore) Close() error {
	return nil // pool owned by the clickhouse client
}

func decisionArgs(rec *models.DecisionRecord) ([]interface{}, error) {
	votes, err := json.Marshal(rec.Votes)
	if err != nil {
		return nil, fmt.Errorf("marshal votes: %w", err)
	}
	return []interface{}{
		rec.Timestamp,
		rec.Symbol,
		rec.Cycle,
		int8(rec.Action),
		rec.Confidence,
		rec.Reasoning,
		string(votes),
		rec.Price,
	}, nil
}
