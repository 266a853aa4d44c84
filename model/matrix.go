package model

// DualValue is the two-tier value of a matrix cell: the broker's submitted
// field map and the admin-curated published field map shown on the public
// site. Dirty means the submitted side changed after the published side was
// last copied forward.
//
// The viewer-role fallback rule lives here and nowhere else: an admin reads
// the published value, falling back to the submitted value while nothing has
// been published; a broker reads only their own submitted value.
type DualValue struct {
	Submitted map[string]string `json:"submitted"`
	Published map[string]string `json:"published,omitempty"`
	Dirty     bool              `json:"dirty"`
}

// Effective returns the field map the given viewer role sees.
func (dv DualValue) Effective(role Role) map[string]string {
	if role == RoleAdmin && !valuesEmpty(dv.Published) {
		return dv.Published
	}
	return dv.Submitted
}

// valuesEmpty reports whether the map carries no non-empty field value.
func valuesEmpty(m map[string]string) bool {
	for _, v := range m {
		if v != "" {
			return false
		}
	}
	return true
}

// MatrixCell is one cell of a challenge pricing grid. Identity is positional
// (row index, column index) in the dense grid; RowHeader and ColHeader are
// semantic slugs shared across a row or column, not unique keys.
type MatrixCell struct {
	RowHeader      string            `json:"row_header"`
	ColHeader      string            `json:"col_header"`
	Type           string            `json:"type"`
	Value          map[string]string `json:"value"`
	PublicValue    map[string]string `json:"public_value,omitempty"`
	PreviousValue  map[string]string `json:"previous_value,omitempty"`
	Placeholder    string            `json:"placeholder,omitempty"`
	IsUpdatedEntry bool              `json:"is_updated_entry,omitempty"`
}

// Dual returns the cell's dual-value view.
func (c *MatrixCell) Dual() DualValue {
	return DualValue{
		Submitted: c.Value,
		Published: c.PublicValue,
		Dirty:     c.IsUpdatedEntry,
	}
}

// Effective returns the field map the given viewer role sees for this cell.
func (c *MatrixCell) Effective(role Role) map[string]string {
	return c.Dual().Effective(role)
}

// FormFieldItem describes one scalar input hosted inside a matrix cell. A
// single cell can carry several named sub-fields (e.g. "value" and "unit").
type FormFieldItem struct {
	Name     string         `json:"name"`
	Control  string         `json:"control"`
	Required bool           `json:"required"`
	Options  []SelectOption `json:"options,omitempty"`
}

// FormType names the cell widget of a column together with its sub-fields.
type FormType struct {
	Name  string          `json:"name"`
	Items []FormFieldItem `json:"items"`
}

// ColumnHeader is a static grid column descriptor fetched once per
// (category, step) pair.
type ColumnHeader struct {
	Slug     string    `json:"slug"`
	Name     string    `json:"name"`
	FormType *FormType `json:"form_type,omitempty"`
}

// RowHeader is a static grid row descriptor. Options is the catalog of
// sub-options a structurally editable grid can tag on the row (e.g. the
// instruments under an instrument class).
type RowHeader struct {
	Slug    string         `json:"slug"`
	Name    string         `json:"name"`
	Options []SelectOption `json:"options,omitempty"`
}

// DualScalar is the dual-value model of a single scalar side-channel field
// (affiliate link, evaluation cost discount). Same rules as DualValue.
type DualScalar struct {
	Submitted string `json:"submitted"`
	Published string `json:"published,omitempty"`
	Dirty     bool   `json:"dirty"`
}

// Effective returns the value the given viewer role sees.
func (ds DualScalar) Effective(role Role) string {
	if role == RoleAdmin && ds.Published != "" {
		return ds.Published
	}
	return ds.Submitted
}

// MatrixExtras are the scalar fields saved alongside the grid with the same
// dual-value and copy-forward rules as grid cells.
type MatrixExtras struct {
	AffiliateLink          DualScalar `json:"affiliate_link"`
	AffiliateMasterLink    DualScalar `json:"affiliate_master_link"`
	EvaluationCostDiscount DualScalar `json:"evaluation_cost_discount"`
}

// MatrixKey identifies one matrix variant. Placeholder matrices vary only by
// step and carry no amount; full matrices are keyed by amount and optionally
// zone.
type MatrixKey struct {
	CategoryID    string `json:"category_id"`
	StepID        string `json:"step_id"`
	StepSlug      string `json:"step_slug,omitempty"`
	BrokerID      string `json:"broker_id,omitempty"`
	Language      string `json:"language,omitempty"`
	AmountID      string `json:"amount_id,omitempty"`
	ZoneID        string `json:"zone_id,omitempty"`
	IsPlaceholder bool   `json:"is_placeholder"`
}
