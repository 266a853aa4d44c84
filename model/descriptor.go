package model

// TableDescriptor is the resolved table metadata sent to the frontend for one
// resource. Columns include the synthetic leading row-number column and, when
// the resource declares row actions, the synthetic trailing actions column.
type TableDescriptor struct {
	Key         string             `json:"key"`
	Title       string             `json:"title"`
	Columns     []ColumnDescriptor `json:"columns"`
	Filters     []FilterDescriptor `json:"filters,omitempty"`
	RowActions  []ActionDescriptor `json:"row_actions,omitempty"`
	DefaultSort string             `json:"default_sort,omitempty"`
	SortDir     string             `json:"sort_dir,omitempty"`
	PerPage     int                `json:"per_page"`
}

// ColumnDescriptor describes a visible table column.
type ColumnDescriptor struct {
	Field     string   `json:"field"`
	Label     string   `json:"label"`
	DataType  DataType `json:"data_type"`
	Sortable  bool     `json:"sortable"`
	Visible   bool     `json:"visible"`
	Synthetic bool     `json:"synthetic,omitempty"`
}

// FilterDescriptor describes a resolved filter control above a table.
type FilterDescriptor struct {
	Field   string         `json:"field"`
	Label   string         `json:"label"`
	Kind    FilterKind     `json:"kind"`
	Tooltip string         `json:"tooltip,omitempty"`
	Options []SelectOption `json:"options,omitempty"`
	Value   string         `json:"value,omitempty"`
}

// ActionDescriptor describes a per-row action rendered in the synthetic
// actions column.
type ActionDescriptor struct {
	ID           string                  `json:"id"`
	Label        string                  `json:"label"`
	Icon         string                  `json:"icon,omitempty"`
	Style        string                  `json:"style,omitempty"`
	Type         string                  `json:"type"`
	Confirmation *ConfirmationDescriptor `json:"confirmation,omitempty"`
}

// ConfirmationDescriptor describes a confirmation dialog shown before a
// destructive action.
type ConfirmationDescriptor struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Confirm string `json:"confirm"`
	Cancel  string `json:"cancel,omitempty"`
	Style   string `json:"style,omitempty"`
}

// FormDescriptor is the resolved create/edit form for one resource.
type FormDescriptor struct {
	Key      string                 `json:"key"`
	Title    string                 `json:"title"`
	Fields   []ControlDescriptor    `json:"fields"`
	Schema   map[string]FieldSchema `json:"schema"`
	Values   map[string]any         `json:"values,omitempty"`
	SubmitTo string                 `json:"submit_to"`
}

// ControlDescriptor is a resolved input control sent to the frontend.
// BrokerValue carries the broker's own submitted value as a hint shown next
// to admin-facing controls.
type ControlDescriptor struct {
	Field       string              `json:"field"`
	Label       string              `json:"label"`
	Control     string              `json:"control"`
	Required    bool                `json:"required"`
	Options     []SelectOption      `json:"options,omitempty"`
	Unit        string              `json:"unit,omitempty"`
	Min         *float64            `json:"min,omitempty"`
	Max         *float64            `json:"max,omitempty"`
	Placeholder string              `json:"placeholder,omitempty"`
	BrokerValue string              `json:"broker_value,omitempty"`
	Fields      []ControlDescriptor `json:"fields,omitempty"`
}

// FieldSchema is the generated validation schema for one form field: an
// ordered list of rules applied left to right, with preprocessing applied
// before any rule runs.
type FieldSchema struct {
	Kind       SchemaKind     `json:"kind"`
	Preprocess []string       `json:"preprocess,omitempty"`
	Rules      []SchemaRule   `json:"rules,omitempty"`
	Element    *FieldSchema   `json:"element,omitempty"`
	Fields     map[string]FieldSchema `json:"fields,omitempty"`
}

// SchemaKind is the base type of a generated field schema.
type SchemaKind string

// Schema kinds emitted by the generator.
const (
	SchemaString  SchemaKind = "string"
	SchemaNumber  SchemaKind = "number"
	SchemaBoolean SchemaKind = "boolean"
	SchemaDate    SchemaKind = "date"
	SchemaArray   SchemaKind = "array"
	SchemaObject  SchemaKind = "object"
	SchemaAny     SchemaKind = "any"
)

// SchemaRule is one validation rule with its resolved message.
type SchemaRule struct {
	Name    string   `json:"name"`
	Value   *float64 `json:"value,omitempty"`
	Message string   `json:"message"`
}

// Preprocessing step names carried in FieldSchema.Preprocess.
const (
	PreprocessEmptyToUndefined    = "empty_to_undefined"
	PreprocessNullToUndefined     = "null_to_undefined"
	PreprocessSentinelToUndefined = "sentinel_to_undefined"
	PreprocessCoerceNumber        = "coerce_number"
)

// TableData is the resolved page of rows sent to the frontend, with every
// cell already formatted for display.
type TableData struct {
	Rows       []map[string]FormattedCell `json:"rows"`
	Pagination Pagination                 `json:"pagination"`
}

// FormattedCell is one display-ready table cell.
type FormattedCell struct {
	Display string   `json:"display"`
	Raw     any      `json:"raw,omitempty"`
	Kind    CellKind `json:"kind"`
}

// CellKind tells the frontend which renderer to use for a cell.
type CellKind string

// Cell kinds emitted by the table formatter.
const (
	CellText      CellKind = "text"
	CellNumber    CellKind = "number"
	CellBadge     CellKind = "badge"
	CellDate      CellKind = "date"
	CellJSON      CellKind = "json"
	CellRowNumber CellKind = "row_number"
	CellActions   CellKind = "actions"
)
