package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LocalModel is the persisted local model selection and its usage stats.
type LocalModel struct {
	Type        string
	Name        string
	Path        string
	Temperature float64
	MaxTokens   int
	TopP        float64

	Queries       int64
	Tokens        int64
	AvgResponseMS float64
	LastUsed      *time.Time
	UpdatedAt     time.Time
}

// LoadLocalModel returns the saved selection or ErrNotFound.
func (s *Store) LoadLocalModel(ctx context.Context) (*LocalModel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT model_type, model_name, model_path, temperature, max_tokens, top_p,
		        queries, tokens, avg_response_ms, last_used, updated_at
		 FROM local_model WHERE id = 1`)
	m, err := scanLocalModel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading local model: %w", err)
	}
	return m, nil
}

// SaveLocalModel inserts or replaces the local model selection.
func (s *Store) SaveLocalModel(ctx context.Context, m *LocalModel) error {
	m.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO local_model (id, model_type, model_name, model_path, temperature, max_tokens, top_p,
		                          queries, tokens, avg_response_ms, last_used, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			model_type = excluded.model_type,
			model_name = excluded.model_name,
			model_path = excluded.model_path,
			temperature = excluded.temperature,
			max_tokens = excluded.max_tokens,
			top_p = excluded.top_p,
			queries = excluded.queries,
			tokens = excluded.tokens,
			avg_response_ms = excluded.avg_response_ms,
			last_used = excluded.last_used,
			updated_at = excluded.updated_at`,
		m.Type, m.Name, m.Path, m.Temperature, m.MaxTokens, m.TopP,
		m.Queries, m.Tokens, m.AvgResponseMS, nullTime(m.LastUsed), m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving local model: %w", err)
	}
	return nil
}

// RecordLocalModelUsage adds one query to the usage stats. The selection
// columns are left untouched.
func (s *Store) RecordLocalModelUsage(ctx context.Context, tokens int64, responseMS float64) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE local_model SET
			queries = queries + 1,
			tokens = tokens + ?,
			avg_response_ms = avg_response_ms + (? - avg_response_ms) / (queries + 1),
			last_used = ?,
			updated_at = ?
		 WHERE id = 1`,
		tokens, responseMS, now, now,
	)
	if err != nil {
		return fmt.Errorf("recording local model usage: %w", err)
	}
	return nil
}

func scanLocalModel(row scannable) (*LocalModel, error) {
	m := &LocalModel{}
	var lastUsed sql.NullTime
	err := row.Scan(
		&m.Type, &m.Name, &m.Path, &m.Temperature, &m.MaxTokens, &m.TopP,
		&m.Queries, &m.Tokens, &m.AvgResponseMS, &lastUsed, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.LastUsed = timePtr(lastUsed)
	return m, nil
}
