package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// BootstrapState is the persisted progress of the bootstrap learner.
type BootstrapState struct {
	Phase          string
	StartTime      *time.Time
	EndTime        *time.Time
	UseMentor      bool
	MentorSessions int
	UpdatedAt      time.Time
}

// Knowledge is one summary of what a mentor session taught.
type Knowledge struct {
	ID         int64
	Domain     string
	Source     string
	Confidence float64
	Summary    string
	LearnedAt  time.Time
}

// LoadBootstrap returns the saved learner state or ErrNotFound.
func (s *Store) LoadBootstrap(ctx context.Context) (*BootstrapState, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT phase, start_time, end_time, use_mentor, mentor_sessions, updated_at
		 FROM bootstrap_state WHERE id = 1`)

	st := &BootstrapState{}
	var start, end sql.NullTime
	err := row.Scan(&st.Phase, &start, &end, &st.UseMentor, &st.MentorSessions, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading bootstrap state: %w", err)
	}
	st.StartTime = timePtr(start)
	st.EndTime = timePtr(end)
	return st, nil
}

// SaveBootstrap inserts or replaces the learner state.
func (s *Store) SaveBootstrap(ctx context.Context, st *BootstrapState) error {
	st.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bootstrap_state (id, phase, start_time, end_time, use_mentor, mentor_sessions, updated_at)
		 VALUES (1, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			phase = excluded.phase,
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			use_mentor = excluded.use_mentor,
			mentor_sessions = excluded.mentor_sessions,
			updated_at = excluded.updated_at`,
		st.Phase, nullTime(st.StartTime), nullTime(st.EndTime), st.UseMentor, st.MentorSessions, st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving bootstrap state: %w", err)
	}
	return nil
}

// AddWords records words for a language. Words already known in that
// language are skipped. It returns how many were new.
func (s *Store) AddWords(ctx context.Context, language, domain string, words []string) (int, error) {
	if len(words) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO vocabulary (word, language, domain, learned_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	added := 0
	for _, w := range words {
		res, err := stmt.ExecContext(ctx, w, language, domain, now)
		if err != nil {
			return 0, fmt.Errorf("adding word %q: %w", w, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		added += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return added, nil
}

// VocabularyCount returns the number of distinct words known in a language.
func (s *Store) VocabularyCount(ctx context.Context, language string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM vocabulary WHERE language = ?`, language).Scan(&n)
	return n, err
}

// Words returns up to limit words of a language in alphabetical order.
func (s *Store) Words(ctx context.Context, language string, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT word FROM vocabulary WHERE language = ? ORDER BY word LIMIT ?`, language, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var words []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, err
		}
		words = append(words, w)
	}
	return words, rows.Err()
}

// AddKnowledge inserts a knowledge entry and sets its ID.
func (s *Store) AddKnowledge(ctx context.Context, k *Knowledge) error {
	if k.LearnedAt.IsZero() {
		k.LearnedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO knowledge (domain, source, confidence, summary, learned_at)
		 VALUES (?, ?, ?, ?, ?)`,
		k.Domain, k.Source, k.Confidence, k.Summary, k.LearnedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("adding knowledge: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	k.ID = id
	return nil
}

// KnowledgeCount returns the number of knowledge entries.
func (s *Store) KnowledgeCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge`).Scan(&n)
	return n, err
}

// MarkDomainCompleted records a learning domain as done. Marking it twice
// keeps the first completion time.
func (s *Store) MarkDomainCompleted(ctx context.Context, domainID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO domains_completed (domain_id, completed_at) VALUES (?, ?)`,
		domainID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("marking domain %s completed: %w", domainID, err)
	}
	return nil
}

// CompletedDomains returns the IDs of completed domains in completion order.
func (s *Store) CompletedDomains(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT domain_id FROM domains_completed ORDER BY completed_at, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
