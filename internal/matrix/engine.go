package matrix

import (
	"context"

	"go.uber.org/zap"

	"github.com/softrade/brokerdesk/internal/observability"
	"github.com/softrade/brokerdesk/model"
)

// HeaderQuery selects a header set for one (category, step) pair.
type HeaderQuery struct {
	Language string `json:"language,omitempty"`
	ColGroup string `json:"col_group"`
	RowGroup string `json:"row_group"`
}

// Headers is the static grid shape fetched once per (category, step) pair.
type Headers struct {
	Columns []model.ColumnHeader `json:"columnHeaders"`
	Rows    []model.RowHeader    `json:"rowHeaders"`
}

// Payload is the raw matrix data the rebate service returns for one variant.
type Payload struct {
	Matrix                 [][]model.MatrixCell `json:"matrix"`
	AffiliateLink          model.DualScalar     `json:"affiliate_link"`
	AffiliateMasterLink    model.DualScalar     `json:"affiliate_master_link"`
	EvaluationCostDiscount model.DualScalar     `json:"evaluation_cost_discount"`
}

// SavePayload is the single POST body a save serializes: the whole grid, the
// extra scalar fields, the per-row sub-option tags, and the identifying keys.
type SavePayload struct {
	Key        model.MatrixKey      `json:"key"`
	Matrix     [][]model.MatrixCell `json:"matrix"`
	SubOptions [][]string           `json:"sub_options,omitempty"`
	Extras     model.MatrixExtras   `json:"extras"`
}

// Backend is the slice of the rebate service client the grid engine needs.
type Backend interface {
	MatrixHeaders(ctx context.Context, q HeaderQuery) (Headers, error)
	MatrixData(ctx context.Context, key model.MatrixKey) (Payload, error)
	MatrixPlaceholders(ctx context.Context, key model.MatrixKey) (Payload, error)
	MatrixSave(ctx context.Context, payload SavePayload) error
}

// Engine drives the load/save protocol for pricing grids.
type Engine struct {
	backend Backend
	drafts  DraftStore
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewEngine creates a grid engine. The draft store and metrics are optional.
func NewEngine(backend Backend, drafts DraftStore, logger *zap.Logger, metrics *observability.Metrics) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		backend: backend,
		drafts:  drafts,
		logger:  logger,
		metrics: metrics,
	}
}

// Headers fetches just the static grid shape for one (category, step) pair.
func (e *Engine) Headers(ctx context.Context, q HeaderQuery) (Headers, error) {
	return e.backend.MatrixHeaders(ctx, q)
}

// Load fetches headers and data for one matrix variant and assembles the
// grid. An unpersisted matrix yields an all-empty grid matching the header
// dimensions. For an admin on non-placeholder data, empty published values
// are seeded from submitted ones and placeholder hints are merged in.
func (e *Engine) Load(ctx context.Context, q HeaderQuery, key model.MatrixKey, role model.Role, caps Capabilities) (*Grid, error) {
	variant := variantOf(key)

	headers, err := e.backend.MatrixHeaders(ctx, q)
	if err != nil {
		e.record(variant, "error")
		return nil, err
	}
	if len(headers.Columns) == 0 || len(headers.Rows) == 0 {
		e.record(variant, "error")
		return nil, model.NewNotFoundError("no matrix headers exist for this category and step")
	}

	payload, err := e.backend.MatrixData(ctx, key)
	if err != nil {
		e.record(variant, "error")
		return nil, err
	}

	grid := NewGrid(headers.Rows, headers.Columns, caps)
	if len(payload.Matrix) > 0 {
		mergeCells(grid, payload.Matrix)
	}
	grid.Extras = model.MatrixExtras{
		AffiliateLink:          payload.AffiliateLink,
		AffiliateMasterLink:    payload.AffiliateMasterLink,
		EvaluationCostDiscount: payload.EvaluationCostDiscount,
	}

	if role == model.RoleAdmin && !key.IsPlaceholder {
		grid.SeedPublicValues()
		if ph, err := e.backend.MatrixPlaceholders(ctx, placeholderKey(key)); err != nil {
			// Hints are cosmetic; a full grid without them is still usable.
			e.logger.Warn("placeholder fetch failed",
				zap.String("category_id", key.CategoryID),
				zap.String("step_id", key.StepID),
				zap.Error(err))
		} else {
			grid.MergePlaceholders(ph.Matrix)
		}
	}

	e.record(variant, "ok")
	return grid, nil
}

// Save validates and POSTs the whole grid in one payload. The in-memory grid
// is never mutated here: on failure the caller keeps editing the same state,
// on success the caller reloads from the service so the view matches what was
// persisted.
func (e *Engine) Save(ctx context.Context, key model.MatrixKey, grid *Grid, role model.Role, subjectID string) error {
	variant := variantOf(key)

	if errs := grid.Validate(role); len(errs) > 0 {
		if e.metrics != nil {
			e.metrics.RecordMatrixSave(variant, "invalid", cellCount(grid))
		}
		return model.NewValidationError(errs)
	}

	payload := SavePayload{
		Key:        key,
		Matrix:     grid.Cells,
		SubOptions: grid.SubOptions,
		Extras:     grid.Extras,
	}
	if err := e.backend.MatrixSave(ctx, payload); err != nil {
		if e.metrics != nil {
			e.metrics.RecordMatrixSave(variant, "error", cellCount(grid))
		}
		return err
	}

	if e.drafts != nil && subjectID != "" {
		if err := e.drafts.Delete(ctx, subjectID, key); err != nil {
			e.logger.Warn("draft cleanup failed",
				zap.String("subject_id", subjectID),
				zap.Error(err))
		}
	}
	if e.metrics != nil {
		e.metrics.RecordMatrixSave(variant, "ok", cellCount(grid))
	}
	return nil
}

// CopyForward publishes one cell and records the action.
func (e *Engine) CopyForward(grid *Grid, key model.MatrixKey, row, col int) error {
	if err := grid.CopyForward(row, col); err != nil {
		return err
	}
	if e.metrics != nil {
		e.metrics.RecordMatrixCopyForward(variantOf(key))
	}
	return nil
}

// StoreDraft autosaves an in-progress grid for later recovery. Drafts are
// advisory: failures are reported but never block editing.
func (e *Engine) StoreDraft(ctx context.Context, subjectID string, key model.MatrixKey, grid *Grid) error {
	if e.drafts == nil {
		return nil
	}
	err := e.drafts.Put(ctx, subjectID, key, grid)
	if e.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		e.metrics.RecordMatrixDraft(status)
	}
	return err
}

// Draft returns a previously autosaved grid, if one exists.
func (e *Engine) Draft(ctx context.Context, subjectID string, key model.MatrixKey) (*Grid, bool, error) {
	if e.drafts == nil {
		return nil, false, nil
	}
	return e.drafts.Get(ctx, subjectID, key)
}

func (e *Engine) record(variant, status string) {
	if e.metrics != nil {
		e.metrics.RecordMatrixLoad(variant, status)
	}
}

// mergeCells overlays persisted cells onto the synthesized empty grid.
// Positions the persisted matrix does not cover stay empty; extra persisted
// rows or columns beyond the header dimensions are dropped.
func mergeCells(grid *Grid, persisted [][]model.MatrixCell) {
	for i := range grid.Cells {
		if i >= len(persisted) {
			break
		}
		for j := range grid.Cells[i] {
			if j >= len(persisted[i]) {
				break
			}
			cell := persisted[i][j]
			if cell.Value == nil {
				cell.Value = map[string]string{}
			}
			cell.RowHeader = grid.Rows[i].Slug
			cell.ColHeader = grid.Cols[j].Slug
			grid.Cells[i][j] = cell
		}
	}
}

func placeholderKey(key model.MatrixKey) model.MatrixKey {
	return model.MatrixKey{
		CategoryID:    key.CategoryID,
		StepID:        key.StepID,
		StepSlug:      key.StepSlug,
		Language:      key.Language,
		IsPlaceholder: true,
	}
}

func variantOf(key model.MatrixKey) string {
	if key.IsPlaceholder {
		return "placeholder"
	}
	return "full"
}

func cellCount(grid *Grid) int {
	n := 0
	for i := range grid.Cells {
		n += len(grid.Cells[i])
	}
	return n
}
