package transport

import (
	"encoding/json"
	"net/http"

	"github.com/softrade/brokerdesk/internal/matrix"
	"github.com/softrade/brokerdesk/model"
)

// StructuralCapability gates row and column manipulation on the grid.
const StructuralCapability = "matrix:structure"

// matrixRequest is the POST body for grid save and draft endpoints. The key
// fields are flat alongside the payload, matching what the grid view sends
// back unchanged.
type matrixRequest struct {
	model.MatrixKey
	ColGroup   string               `json:"col_group,omitempty"`
	RowGroup   string               `json:"row_group,omitempty"`
	Matrix     [][]model.MatrixCell `json:"matrix"`
	SubOptions [][]string           `json:"sub_options,omitempty"`
	Extras     model.MatrixExtras   `json:"extras"`
}

type copyForwardRequest struct {
	model.MatrixKey
	ColGroup string `json:"col_group,omitempty"`
	RowGroup string `json:"row_group,omitempty"`
	Row      int    `json:"row"`
	Col      int    `json:"col"`
}

// gridView is the wire shape of a loaded grid.
type gridView struct {
	Key        model.MatrixKey      `json:"key"`
	Columns    []model.ColumnHeader `json:"columnHeaders"`
	Rows       []model.RowHeader    `json:"rowHeaders"`
	Matrix     [][]model.MatrixCell `json:"matrix"`
	SubOptions [][]string           `json:"sub_options,omitempty"`
	Extras     model.MatrixExtras   `json:"extras"`
}

func viewOf(key model.MatrixKey, g *matrix.Grid) gridView {
	return gridView{
		Key:        key,
		Columns:    g.Cols,
		Rows:       g.Rows,
		Matrix:     g.Cells,
		SubOptions: g.SubOptions,
		Extras:     g.Extras,
	}
}

func handleMatrixHeaders(engine *matrix.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}

		headers, err := engine.Headers(r.Context(), headerQueryFromRequest(r))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, headers)
	}
}

func handleMatrixData(engine *matrix.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		caps := CapabilitiesFrom(r.Context())

		key, err := matrixKeyFromQuery(r, rctx)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		grid, err := engine.Load(r.Context(), headerQueryFromRequest(r), key,
			model.RoleFor(caps), gridCapabilities(caps))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, viewOf(key, grid))
	}
}

func handleMatrixSave(engine *matrix.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		caps := CapabilitiesFrom(r.Context())

		var req matrixRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, r, model.NewBadRequestError("Request body must be a JSON object"))
			return
		}
		key, err := resolveKey(req.MatrixKey, rctx)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		role := model.RoleFor(caps)

		grid, err := mergedGrid(r, engine, req, key, role, caps)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		if err := engine.Save(r.Context(), key, grid, role, rctx.SubjectID); err != nil {
			WriteError(w, r, err)
			return
		}
		WriteMessage(w, http.StatusOK, "Saved successfully")
	}
}

func handleMatrixCopyForward(engine *matrix.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		caps := CapabilitiesFrom(r.Context())
		if !caps.Has(model.PublishCapability) {
			WriteError(w, r, model.NewForbiddenError("You do not have permission to publish matrix values"))
			return
		}

		var req copyForwardRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, r, model.NewBadRequestError("Request body must be a JSON object"))
			return
		}
		key, err := resolveKey(req.MatrixKey, rctx)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		hq := matrix.HeaderQuery{Language: key.Language, ColGroup: req.ColGroup, RowGroup: req.RowGroup}
		grid, err := engine.Load(r.Context(), hq, key, model.RoleAdmin, gridCapabilities(caps))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		if err := engine.CopyForward(grid, key, req.Row, req.Col); err != nil {
			WriteError(w, r, err)
			return
		}
		if err := engine.Save(r.Context(), key, grid, model.RoleAdmin, rctx.SubjectID); err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, viewOf(key, grid))
	}
}

func handleMatrixDraftStore(engine *matrix.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		caps := CapabilitiesFrom(r.Context())

		var req matrixRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, r, model.NewBadRequestError("Request body must be a JSON object"))
			return
		}
		key, err := resolveKey(req.MatrixKey, rctx)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		grid, err := mergedGrid(r, engine, req, key, model.RoleFor(caps), caps)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		if err := engine.StoreDraft(r.Context(), rctx.SubjectID, key, grid); err != nil {
			WriteError(w, r, err)
			return
		}
		WriteMessage(w, http.StatusAccepted, "Draft saved")
	}
}

func handleMatrixDraftGet(engine *matrix.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}

		key, err := matrixKeyFromQuery(r, rctx)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		grid, ok, err := engine.Draft(r.Context(), rctx.SubjectID, key)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		if !ok {
			WriteError(w, r, model.NewNotFoundError("No draft exists for this matrix"))
			return
		}
		WriteJSON(w, http.StatusOK, viewOf(key, grid))
	}
}

// --- helpers ---

// mergedGrid loads the persisted grid and overlays the submitted payload on
// it, so role routing and previous-value tracking always start from what the
// service has.
func mergedGrid(r *http.Request, engine *matrix.Engine, req matrixRequest, key model.MatrixKey, role model.Role, caps model.CapabilitySet) (*matrix.Grid, error) {
	hq := matrix.HeaderQuery{Language: key.Language, ColGroup: req.ColGroup, RowGroup: req.RowGroup}
	grid, err := engine.Load(r.Context(), hq, key, role, gridCapabilities(caps))
	if err != nil {
		return nil, err
	}
	if err := grid.ApplySubmission(req.Matrix, role); err != nil {
		return nil, err
	}
	grid.ApplyExtras(req.Extras, role)
	for i, values := range req.SubOptions {
		if len(values) == 0 {
			continue
		}
		if err := grid.SetRowSubOptions(i, values); err != nil {
			return nil, err
		}
	}
	return grid, nil
}

func matrixKeyFromQuery(r *http.Request, rctx *model.RequestContext) (model.MatrixKey, error) {
	q := r.URL.Query()
	key := model.MatrixKey{
		CategoryID:    q.Get("category_id"),
		StepID:        q.Get("step_id"),
		StepSlug:      q.Get("step_slug"),
		BrokerID:      q.Get("broker_id"),
		Language:      q.Get("language"),
		AmountID:      q.Get("amount_id"),
		ZoneID:        q.Get("zone_id"),
		IsPlaceholder: q.Get("is_placeholder") == "true",
	}
	return resolveKey(key, rctx)
}

// resolveKey validates the key and pins broker-scoped subjects to their own
// broker regardless of what the request names.
func resolveKey(key model.MatrixKey, rctx *model.RequestContext) (model.MatrixKey, error) {
	if key.CategoryID == "" {
		return key, model.NewBadRequestError("category_id is required")
	}
	if key.StepID == "" {
		return key, model.NewBadRequestError("step_id is required")
	}
	if rctx.BrokerID != "" {
		key.BrokerID = rctx.BrokerID
	}
	return key, nil
}

func headerQueryFromRequest(r *http.Request) matrix.HeaderQuery {
	q := r.URL.Query()
	return matrix.HeaderQuery{
		Language: q.Get("language"),
		ColGroup: q.Get("col_group"),
		RowGroup: q.Get("row_group"),
	}
}

func gridCapabilities(caps model.CapabilitySet) matrix.Capabilities {
	return matrix.Capabilities{AllowStructuralEdits: caps.Has(StructuralCapability)}
}
