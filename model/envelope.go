package model

import "encoding/json"

// DataType classifies a column's values for rendering purposes. The set is
// closed; anything the rebate service sends outside of it is rendered as text
// through the explicit fallback arm of the formatting dispatch.
type DataType string

const (
	DataTypeText    DataType = "text"
	DataTypeNumber  DataType = "number"
	DataTypeBoolean DataType = "boolean"
	DataTypeDate    DataType = "date"
	DataTypeJSON    DataType = "json"
)

// ColumnConfig describes one data field of a listing as configured by the
// rebate service. It drives both header rendering and cell formatting.
type ColumnConfig struct {
	Label      string   `json:"label"`
	DataType   DataType `json:"data_type"`
	Visible    bool     `json:"visible"`
	Sortable   bool     `json:"sortable"`
	Filterable bool     `json:"filterable"`
}

// FilterKind selects the control rendered for a filter.
type FilterKind string

const (
	FilterKindText   FilterKind = "text"
	FilterKindSelect FilterKind = "select"
)

// FilterConfig describes one filter control above a table. Select filters
// carry a literal option list; text filters are free input.
type FilterConfig struct {
	Kind    FilterKind     `json:"kind"`
	Label   string         `json:"label"`
	Tooltip string         `json:"tooltip,omitempty"`
	Options []SelectOption `json:"options,omitempty"`
}

// SelectOption is a label/value pair for dropdowns and select filters.
type SelectOption struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Pagination describes the page window of a listing. From and To are the
// inclusive 1-based range of rows shown on the current page.
type Pagination struct {
	CurrentPage int `json:"current_page"`
	LastPage    int `json:"last_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
	From        int `json:"from"`
	To          int `json:"to"`
}

// Clamp restricts page to [1, LastPage]. A zero LastPage clamps to 1.
func (p Pagination) Clamp(page int) int {
	if page < 1 {
		return 1
	}
	if p.LastPage >= 1 && page > p.LastPage {
		return p.LastPage
	}
	return page
}

// Envelope is the uniform response envelope of the rebate service. Every
// endpoint answers with it; listing endpoints additionally carry pagination
// and the column/filter/form configuration the UI is rendered from.
type Envelope struct {
	Success            bool                                         `json:"success"`
	Message            string                                       `json:"message,omitempty"`
	Data               json.RawMessage                              `json:"data,omitempty"`
	Pagination         *Pagination                                  `json:"pagination,omitempty"`
	TableColumnsConfig map[string]ColumnConfig                      `json:"table_columns_config,omitempty"`
	FiltersConfig      map[string]FilterConfig                      `json:"filters_config,omitempty"`
	FormConfig         map[string]map[string]FieldDefinition        `json:"form_config,omitempty"`
}

// Rows decodes the envelope data as a list of row objects. A missing or
// non-array payload yields an empty slice.
func (e *Envelope) Rows() []map[string]any {
	if len(e.Data) == 0 {
		return []map[string]any{}
	}
	var rows []map[string]any
	if err := json.Unmarshal(e.Data, &rows); err != nil {
		return []map[string]any{}
	}
	return rows
}

// Object decodes the envelope data as a single object. A missing or
// non-object payload yields an empty map.
func (e *Envelope) Object() map[string]any {
	if len(e.Data) == 0 {
		return map[string]any{}
	}
	var obj map[string]any
	if err := json.Unmarshal(e.Data, &obj); err != nil {
		return map[string]any{}
	}
	return obj
}
