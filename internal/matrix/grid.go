// Package matrix implements the challenge pricing grid: dense cell state with
// the two-tier submitted/published value model, role-aware edits, copy
// forward, structural row/column editing behind a capability flag, and the
// load/save protocol against the rebate service.
package matrix

import (
	"fmt"

	"github.com/softrade/brokerdesk/model"
)

// Capabilities controls what a grid instance permits. Structural edits (row
// and column manipulation, sub-option tagging) are off for the plain pricing
// grid and on for the configurable one.
type Capabilities struct {
	AllowStructuralEdits bool
}

// Grid is the in-memory state of one pricing matrix. Cells is dense:
// len(Cells) == len(Rows) and len(Cells[i]) == len(Cols) always hold.
// SubOptions carries the selected sub-option values per row index, parallel
// to Rows.
type Grid struct {
	Rows       []model.RowHeader
	Cols       []model.ColumnHeader
	Cells      [][]model.MatrixCell
	SubOptions [][]string
	Extras     model.MatrixExtras
	Caps       Capabilities
}

// NewGrid synthesizes an all-empty grid matching the header dimensions. Every
// cell carries the header slugs of its position and empty submitted and
// published field maps, so an unpersisted matrix renders as a fully editable
// blank grid.
func NewGrid(rows []model.RowHeader, cols []model.ColumnHeader, caps Capabilities) *Grid {
	g := &Grid{
		Rows:       append([]model.RowHeader(nil), rows...),
		Cols:       append([]model.ColumnHeader(nil), cols...),
		Cells:      make([][]model.MatrixCell, len(rows)),
		SubOptions: make([][]string, len(rows)),
		Caps:       caps,
	}
	for i, row := range rows {
		g.Cells[i] = make([]model.MatrixCell, len(cols))
		for j, col := range cols {
			g.Cells[i][j] = emptyCell(row, col)
		}
	}
	return g
}

func emptyCell(row model.RowHeader, col model.ColumnHeader) model.MatrixCell {
	cell := model.MatrixCell{
		RowHeader: row.Slug,
		ColHeader: col.Slug,
		Value:     map[string]string{},
	}
	if col.FormType != nil {
		cell.Type = col.FormType.Name
		for _, item := range col.FormType.Items {
			cell.Value[item.Name] = ""
		}
	}
	if len(cell.Value) == 0 {
		cell.Value["text"] = ""
	}
	cell.PublicValue = copyValues(cell.Value)
	return cell
}

// Cell returns a pointer to the cell at the given position.
func (g *Grid) Cell(row, col int) (*model.MatrixCell, error) {
	if row < 0 || row >= len(g.Cells) || col < 0 || col >= len(g.Cells[row]) {
		return nil, model.NewBadRequestError(
			fmt.Sprintf("cell position (%d,%d) is outside the %dx%d grid", row, col, len(g.Rows), len(g.Cols)),
		)
	}
	return &g.Cells[row][col], nil
}

// ApplyEdit writes one sub-field of one cell on behalf of the given role.
// A broker writes the submitted value; their raw input before the first edit
// is captured so an admin can later see what changed, and the cell is marked
// updated once a published value exists for it. An admin writes the published
// value directly.
func (g *Grid) ApplyEdit(row, col int, field, value string, role model.Role) error {
	cell, err := g.Cell(row, col)
	if err != nil {
		return err
	}

	if role == model.RoleAdmin {
		if cell.PublicValue == nil {
			cell.PublicValue = map[string]string{}
		}
		cell.PublicValue[field] = value
		return nil
	}

	if cell.PreviousValue == nil {
		cell.PreviousValue = copyValues(cell.Value)
	}
	if cell.Value == nil {
		cell.Value = map[string]string{}
	}
	cell.Value[field] = value
	if !valuesEmpty(cell.PublicValue) {
		cell.IsUpdatedEntry = true
	}
	return nil
}

// CopyForward publishes the submitted value of one cell: the published side
// becomes a copy of the submitted side and the updated marker clears.
func (g *Grid) CopyForward(row, col int) error {
	cell, err := g.Cell(row, col)
	if err != nil {
		return err
	}
	cell.PublicValue = copyValues(cell.Value)
	cell.IsUpdatedEntry = false
	return nil
}

// ApplySubmission overlays an edited cell matrix onto the grid, routing every
// field write through ApplyEdit so a broker's submission can never touch the
// published side. Cells beyond the grid dimensions are dropped.
func (g *Grid) ApplySubmission(cells [][]model.MatrixCell, role model.Role) error {
	for i, row := range cells {
		if i >= len(g.Cells) {
			break
		}
		for j, cell := range row {
			if j >= len(g.Cells[i]) {
				break
			}
			source := cell.Value
			if role == model.RoleAdmin {
				source = cell.PublicValue
			}
			for field, value := range source {
				if err := g.ApplyEdit(i, j, field, value, role); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// ApplyExtras overlays the scalar side-channel fields, keeping the same role
// routing as cells: brokers write the submitted side, admins the published
// side.
func (g *Grid) ApplyExtras(extras model.MatrixExtras, role model.Role) {
	apply := func(dst *model.DualScalar, src model.DualScalar) {
		if role == model.RoleAdmin {
			dst.Published = src.Published
			return
		}
		dst.Submitted = src.Submitted
	}
	apply(&g.Extras.AffiliateLink, extras.AffiliateLink)
	apply(&g.Extras.AffiliateMasterLink, extras.AffiliateMasterLink)
	apply(&g.Extras.EvaluationCostDiscount, extras.EvaluationCostDiscount)
}

// SeedPublicValues fills every empty published value from the submitted one.
// Used when an admin opens non-placeholder challenge data, so the published
// side never renders blank while submitted data exists.
func (g *Grid) SeedPublicValues() {
	for i := range g.Cells {
		for j := range g.Cells[i] {
			cell := &g.Cells[i][j]
			if valuesEmpty(cell.PublicValue) && !valuesEmpty(cell.Value) {
				cell.PublicValue = copyValues(cell.Value)
			}
		}
	}
}

// MergePlaceholders copies placeholder hint text into cells from the lower
// cardinality placeholder matrix. Positions outside the placeholder grid keep
// their existing hint.
func (g *Grid) MergePlaceholders(placeholders [][]model.MatrixCell) {
	for i := range g.Cells {
		if i >= len(placeholders) {
			break
		}
		for j := range g.Cells[i] {
			if j >= len(placeholders[i]) {
				break
			}
			if hint := firstValue(placeholders[i][j].Value); hint != "" {
				g.Cells[i][j].Placeholder = hint
			}
		}
	}
}

// Validate checks that every required sub-field of every cell carries a
// submitted value. Only broker saves are blocked on emptiness; an admin may
// publish a partially filled grid.
func (g *Grid) Validate(role model.Role) []model.FieldError {
	if role == model.RoleAdmin {
		return nil
	}
	var errs []model.FieldError
	for i := range g.Cells {
		for j := range g.Cells[i] {
			col := g.Cols[j]
			if col.FormType == nil {
				continue
			}
			cell := &g.Cells[i][j]
			for _, item := range col.FormType.Items {
				if !item.Required {
					continue
				}
				if cell.Value[item.Name] == "" {
					errs = append(errs, model.FieldError{
						Field:   fmt.Sprintf("matrix[%d][%d].%s", i, j, item.Name),
						Code:    "required",
						Message: fmt.Sprintf("%s is required for %s / %s", item.Name, cell.RowHeader, cell.ColHeader),
					})
				}
			}
		}
	}
	return errs
}

// --- structural edits ---

// AddRow appends a row of empty cells for the given header from the catalog.
func (g *Grid) AddRow(header model.RowHeader) error {
	if !g.Caps.AllowStructuralEdits {
		return errStructural()
	}
	cells := make([]model.MatrixCell, len(g.Cols))
	for j, col := range g.Cols {
		cells[j] = emptyCell(header, col)
	}
	g.Rows = append(g.Rows, header)
	g.Cells = append(g.Cells, cells)
	g.SubOptions = append(g.SubOptions, nil)
	return nil
}

// RemoveRow deletes the row at the given index together with its cells and
// sub-option tags.
func (g *Grid) RemoveRow(index int) error {
	if !g.Caps.AllowStructuralEdits {
		return errStructural()
	}
	if index < 0 || index >= len(g.Rows) {
		return model.NewBadRequestError(fmt.Sprintf("row index %d is out of range", index))
	}
	g.Rows = append(g.Rows[:index], g.Rows[index+1:]...)
	g.Cells = append(g.Cells[:index], g.Cells[index+1:]...)
	g.SubOptions = append(g.SubOptions[:index], g.SubOptions[index+1:]...)
	return nil
}

// AddColumn appends a column of empty cells for the given header.
func (g *Grid) AddColumn(header model.ColumnHeader) error {
	if !g.Caps.AllowStructuralEdits {
		return errStructural()
	}
	g.Cols = append(g.Cols, header)
	for i, row := range g.Rows {
		g.Cells[i] = append(g.Cells[i], emptyCell(row, header))
	}
	return nil
}

// RemoveColumn deletes the column at the given index from every row.
func (g *Grid) RemoveColumn(index int) error {
	if !g.Caps.AllowStructuralEdits {
		return errStructural()
	}
	if index < 0 || index >= len(g.Cols) {
		return model.NewBadRequestError(fmt.Sprintf("column index %d is out of range", index))
	}
	g.Cols = append(g.Cols[:index], g.Cols[index+1:]...)
	for i := range g.Cells {
		g.Cells[i] = append(g.Cells[i][:index], g.Cells[i][index+1:]...)
	}
	return nil
}

// SetRowSubOptions tags a row with selected sub-option values. Every value
// must exist in the row header's option catalog.
func (g *Grid) SetRowSubOptions(index int, values []string) error {
	if !g.Caps.AllowStructuralEdits {
		return errStructural()
	}
	if index < 0 || index >= len(g.Rows) {
		return model.NewBadRequestError(fmt.Sprintf("row index %d is out of range", index))
	}
	catalog := map[string]bool{}
	for _, opt := range g.Rows[index].Options {
		catalog[opt.Value] = true
	}
	for _, v := range values {
		if !catalog[v] {
			return model.NewBadRequestError(
				fmt.Sprintf("sub-option %q is not in the catalog for row %q", v, g.Rows[index].Slug),
			)
		}
	}
	g.SubOptions[index] = append([]string(nil), values...)
	return nil
}

func errStructural() error {
	return model.NewForbiddenError("structural edits are not enabled for this grid")
}

// --- helpers ---

func copyValues(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func valuesEmpty(m map[string]string) bool {
	for _, v := range m {
		if v != "" {
			return false
		}
	}
	return true
}

func firstValue(m map[string]string) string {
	if v, ok := m["text"]; ok && v != "" {
		return v
	}
	for _, v := range m {
		if v != "" {
			return v
		}
	}
	return ""
}
