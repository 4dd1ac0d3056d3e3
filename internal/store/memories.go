package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Memory is one remembered item: a chat turn, a learning, a preference.
type Memory struct {
	ID             int64
	ConversationID string
	Kind           string
	Content        string
	Speaker        string
	Importance     int
	Tags           []string
	CreatedAt      time.Time
}

// MemoryFilter narrows SearchMemories. Zero values mean "any".
type MemoryFilter struct {
	Query          string
	Kind           string
	Speaker        string
	ConversationID string
	Since          time.Time
	Until          time.Time
	MinImportance  int
	Tags           []string
	Limit          int
}

// Consolidation summarises the memories of a period.
type Consolidation struct {
	ID          int64
	PeriodStart time.Time
	PeriodEnd   time.Time
	Summary     string
	KeyEvents   []string
	CreatedAt   time.Time
}

// MemoryCounts are aggregate figures over the memories table.
type MemoryCounts struct {
	Total             int
	ByKind            map[string]int
	Consolidations    int
	LastConsolidation *time.Time
}

// AddMemory inserts a memory and sets its ID.
func (s *Store) AddMemory(ctx context.Context, m *Memory) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	tags, err := json.Marshal(m.Tags)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (conversation_id, kind, content, speaker, importance, tags, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ConversationID, m.Kind, m.Content, m.Speaker, m.Importance, string(tags), m.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("adding memory: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = id
	return nil
}

// SearchMemories returns memories matching f, newest first.
func (s *Store) SearchMemories(ctx context.Context, f MemoryFilter) ([]*Memory, error) {
	var (
		where []string
		args  []any
	)
	if f.Query != "" {
		where = append(where, `content LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(f.Query)+"%")
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	if f.Speaker != "" {
		where = append(where, "speaker = ?")
		args = append(args, f.Speaker)
	}
	if f.ConversationID != "" {
		where = append(where, "conversation_id = ?")
		args = append(args, f.ConversationID)
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since.UTC())
	}
	if !f.Until.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, f.Until.UTC())
	}
	if f.MinImportance > 0 {
		where = append(where, "importance >= ?")
		args = append(args, f.MinImportance)
	}
	if len(f.Tags) > 0 {
		var or []string
		for _, tag := range f.Tags {
			or = append(or, `tags LIKE ? ESCAPE '\'`)
			args = append(args, `%"`+escapeLike(tag)+`"%`)
		}
		where = append(where, "("+strings.Join(or, " OR ")+")")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, conversation_id, kind, content, speaker, importance, tags, created_at FROM memories`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching memories: %w", err)
	}
	defer rows.Close()

	var out []*Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RecentMemories returns the last n memories of a conversation in the order
// they happened.
func (s *Store) RecentMemories(ctx context.Context, conversationID string, n int) ([]*Memory, error) {
	ms, err := s.SearchMemories(ctx, MemoryFilter{ConversationID: conversationID, Limit: n})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(ms)-1; i < j; i, j = i+1, j-1 {
		ms[i], ms[j] = ms[j], ms[i]
	}
	return ms, nil
}

// CountMemories returns totals per kind plus consolidation figures.
func (s *Store) CountMemories(ctx context.Context) (*MemoryCounts, error) {
	counts := &MemoryCounts{ByKind: map[string]int{}}

	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM memories GROUP BY kind`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			rows.Close()
			return nil, err
		}
		counts.ByKind[kind] = n
		counts.Total += n
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM consolidations`).Scan(&counts.Consolidations); err != nil {
		return nil, err
	}
	var last time.Time
	err = s.db.QueryRowContext(ctx,
		`SELECT created_at FROM consolidations ORDER BY created_at DESC, id DESC LIMIT 1`).Scan(&last)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, err
	default:
		counts.LastConsolidation = &last
	}
	return counts, nil
}

// AddConsolidation stores a period summary and sets its ID.
func (s *Store) AddConsolidation(ctx context.Context, c *Consolidation) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	events, err := json.Marshal(c.KeyEvents)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO consolidations (period_start, period_end, summary, key_events, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.PeriodStart.UTC(), c.PeriodEnd.UTC(), c.Summary, string(events), c.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("adding consolidation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

func scanMemory(row scannable) (*Memory, error) {
	m := &Memory{}
	var tags string
	err := row.Scan(&m.ID, &m.ConversationID, &m.Kind, &m.Content, &m.Speaker, &m.Importance, &tags, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	if tags != "" {
		if err := json.Unmarshal([]byte(tags), &m.Tags); err != nil {
			return nil, fmt.Errorf("decoding tags of memory %d: %w", m.ID, err)
		}
	}
	return m, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
