package matrix

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/softrade/brokerdesk/model"
)

// DraftStore autosaves in-progress grids keyed by subject and matrix
// identity, so a broker who navigates away mid-edit can recover their work.
// Drafts are advisory and wiped when a save succeeds.
type DraftStore interface {
	// Get returns the stored draft grid for one subject and matrix.
	Get(ctx context.Context, subjectID string, key model.MatrixKey) (*Grid, bool, error)

	// Put stores or replaces the draft grid.
	Put(ctx context.Context, subjectID string, key model.MatrixKey, grid *Grid) error

	// Delete drops the draft, typically after a successful save.
	Delete(ctx context.Context, subjectID string, key model.MatrixKey) error
}

// draftGrid is the serialized form of a draft. Capabilities are not stored:
// they derive from the grid variant at load time, not from the draft.
type draftGrid struct {
	Rows       []model.RowHeader    `json:"rows"`
	Cols       []model.ColumnHeader `json:"cols"`
	Cells      [][]model.MatrixCell `json:"cells"`
	SubOptions [][]string           `json:"sub_options,omitempty"`
	Extras     model.MatrixExtras   `json:"extras"`
}

func toDraftGrid(g *Grid) draftGrid {
	return draftGrid{
		Rows:       g.Rows,
		Cols:       g.Cols,
		Cells:      g.Cells,
		SubOptions: g.SubOptions,
		Extras:     g.Extras,
	}
}

func (d draftGrid) grid() *Grid {
	return &Grid{
		Rows:       d.Rows,
		Cols:       d.Cols,
		Cells:      d.Cells,
		SubOptions: d.SubOptions,
		Extras:     d.Extras,
	}
}

// FormatDraftKey builds the storage key for one subject and matrix identity.
func FormatDraftKey(subjectID string, key model.MatrixKey) string {
	return fmt.Sprintf("draft:%s:%s:%s:%s:%s:%t",
		subjectID, key.CategoryID, key.StepID, key.AmountID, key.ZoneID, key.IsPlaceholder)
}

// --- MemoryDraftStore ---

// MemoryDraftStore is an in-memory DraftStore. Suitable for testing and
// single-instance deployments.
type MemoryDraftStore struct {
	mu     sync.RWMutex
	drafts map[string]draftGrid
}

// NewMemoryDraftStore creates a new in-memory draft store.
func NewMemoryDraftStore() *MemoryDraftStore {
	return &MemoryDraftStore{
		drafts: make(map[string]draftGrid),
	}
}

// Get returns the stored draft grid.
func (s *MemoryDraftStore) Get(_ context.Context, subjectID string, key model.MatrixKey) (*Grid, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, exists := s.drafts[FormatDraftKey(subjectID, key)]
	if !exists {
		return nil, false, nil
	}
	return d.grid(), true, nil
}

// Put stores or replaces the draft grid.
func (s *MemoryDraftStore) Put(_ context.Context, subjectID string, key model.MatrixKey, grid *Grid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[FormatDraftKey(subjectID, key)] = toDraftGrid(grid)
	return nil
}

// Delete drops the draft.
func (s *MemoryDraftStore) Delete(_ context.Context, subjectID string, key model.MatrixKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, FormatDraftKey(subjectID, key))
	return nil
}

// Len returns the number of stored drafts. For testing.
func (s *MemoryDraftStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.drafts)
}

// --- PgDraftStore ---

// PgDraftStore is a PostgreSQL-backed DraftStore using pgx/v5.
//
// Expected table:
//
//	CREATE TABLE matrix_drafts (
//	    subject_id TEXT NOT NULL,
//	    draft_key  TEXT NOT NULL,
//	    payload    JSONB NOT NULL,
//	    saved_at   TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (subject_id, draft_key)
//	);
type PgDraftStore struct {
	pool *pgxpool.Pool
}

// NewPgDraftStore creates a new PostgreSQL draft store.
func NewPgDraftStore(pool *pgxpool.Pool) *PgDraftStore {
	return &PgDraftStore{pool: pool}
}

// Get retrieves the stored draft grid.
func (s *PgDraftStore) Get(ctx context.Context, subjectID string, key model.MatrixKey) (*Grid, bool, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `
		SELECT payload
		FROM matrix_drafts
		WHERE subject_id = $1 AND draft_key = $2`,
		subjectID, FormatDraftKey(subjectID, key),
	).Scan(&payload)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query matrix draft: %w", err)
	}

	var d draftGrid
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, false, fmt.Errorf("unmarshal matrix draft: %w", err)
	}
	return d.grid(), true, nil
}

// Put stores or replaces the draft grid.
func (s *PgDraftStore) Put(ctx context.Context, subjectID string, key model.MatrixKey, grid *Grid) error {
	payload, err := json.Marshal(toDraftGrid(grid))
	if err != nil {
		return fmt.Errorf("marshal matrix draft: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO matrix_drafts (subject_id, draft_key, payload, saved_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (subject_id, draft_key)
		DO UPDATE SET payload = EXCLUDED.payload, saved_at = EXCLUDED.saved_at`,
		subjectID, FormatDraftKey(subjectID, key), payload, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert matrix draft: %w", err)
	}
	return nil
}

// Delete drops the draft.
func (s *PgDraftStore) Delete(ctx context.Context, subjectID string, key model.MatrixKey) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM matrix_drafts
		WHERE subject_id = $1 AND draft_key = $2`,
		subjectID, FormatDraftKey(subjectID, key),
	)
	if err != nil {
		return fmt.Errorf("delete matrix draft: %w", err)
	}
	return nil
}

// HealthCheck pings the database so the readiness endpoint can report the
// store.
func (s *PgDraftStore) HealthCheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}
