package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Concept is something Anna learned, counted each time it is learned again.
type Concept struct {
	ID           int64
	Name         string
	Definition   string
	Source       string
	Confidence   float64
	UsageCount   int
	FirstLearned time.Time
}

// UpsertConcept inserts a concept or, when the name is already known,
// replaces its definition and increments its usage count. created reports
// whether a new row was inserted.
func (s *Store) UpsertConcept(ctx context.Context, name, definition, source string) (id int64, created bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `SELECT id FROM concepts WHERE name = ?`, name).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := tx.ExecContext(ctx,
			`INSERT INTO concepts (name, definition, source, first_learned) VALUES (?, ?, ?, ?)`,
			name, definition, source, time.Now().UTC())
		if err != nil {
			return 0, false, fmt.Errorf("adding concept: %w", err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, false, err
		}
		created = true
	case err != nil:
		return 0, false, fmt.Errorf("looking up concept: %w", err)
	default:
		_, err = tx.ExecContext(ctx,
			`UPDATE concepts SET usage_count = usage_count + 1, definition = ? WHERE id = ?`,
			definition, id)
		if err != nil {
			return 0, false, fmt.Errorf("updating concept: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, false, err
	}
	return id, created, nil
}

// ConceptByName returns a concept or ErrNotFound.
func (s *Store) ConceptByName(ctx context.Context, name string) (*Concept, error) {
	c := &Concept{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, definition, source, confidence, usage_count, first_learned
		 FROM concepts WHERE name = ?`, name,
	).Scan(&c.ID, &c.Name, &c.Definition, &c.Source, &c.Confidence, &c.UsageCount, &c.FirstLearned)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading concept: %w", err)
	}
	return c, nil
}

// ConceptCount returns the number of distinct concepts learned.
func (s *Store) ConceptCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM concepts`).Scan(&n)
	return n, err
}
