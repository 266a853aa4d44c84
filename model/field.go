package model

// Field control types understood by the schema generator and the form
// descriptor resolver. Unknown types deliberately fall through to an
// unconstrained schema (see schema.Build).
const (
	FieldTypeText        = "text"
	FieldTypeTextarea    = "textarea"
	FieldTypeSelect      = "select"
	FieldTypeNumber      = "number"
	FieldTypeBoolean     = "boolean"
	FieldTypeCheckbox    = "checkbox"
	FieldTypeDate        = "date"
	FieldTypeMultiselect = "multiselect"
	FieldTypeArrayFields = "array_fields"
)

// Validation rule keys recognized inside FieldDefinition.Validation. Each
// rule may carry a "<rule>_message" sibling overriding the generated message.
const (
	RuleRequired = "required"
	RuleMin      = "min"
	RuleMax      = "max"
	RuleGt       = "gt"
	RuleLt       = "lt"
	RuleGte      = "gte"
	RuleLte      = "lte"
	RuleEmail    = "email"
	RulePositive = "positive"
	RuleNegative = "negative"
)

// NoSelectionSentinel is the value a select control submits when nothing is
// chosen. The schema generator normalizes it to a missing value so required
// checks reject it.
const NoSelectionSentinel = "__none__"

// FieldDefinition describes a single form field as configured by the rebate
// service. A field of type array_fields owns a repeatable group of child
// definitions; rows of the group have no identity until persisted.
type FieldDefinition struct {
	Type       string                     `json:"type"`
	Label      string                     `json:"label"`
	Validation map[string]any             `json:"validation,omitempty"`
	Options    []SelectOption             `json:"options,omitempty"`
	Fields     map[string]FieldDefinition `json:"fields,omitempty"`
}

// Required reports whether the field rejects missing input. Absence of the
// rule means required; only an explicit false makes the field optional.
func (f FieldDefinition) Required() bool {
	if f.Validation == nil {
		return true
	}
	v, ok := f.Validation[RuleRequired]
	if !ok {
		return true
	}
	b, ok := v.(bool)
	if !ok {
		return true
	}
	return b
}

// Option form control types. These select the widget rendered for a dynamic
// option; anything else falls back to text.
const (
	ControlText           = "text"
	ControlNumber         = "number"
	ControlCheckbox       = "checkbox"
	ControlSwitch         = "switch"
	ControlDate           = "date"
	ControlSelect         = "select"
	ControlMultiSelect    = "multi-select"
	ControlNumberWithUnit = "numberWithUnit"
	ControlImage          = "image"
	ControlTextarea       = "textarea"
	ControlRadio          = "radio"
)

// Option is a backend-defined metadata record describing one configurable
// broker attribute: its data type, form control, constraints, and dropdown
// list attachment. Options are created through the dynamic option admin
// screens and consumed to generate attribute-editing forms without
// per-attribute code.
type Option struct {
	ID             int64          `json:"id"`
	Name           string         `json:"name"`
	Slug           string         `json:"slug"`
	DataType       DataType       `json:"data_type"`
	FormType       string         `json:"form_type"`
	Required       bool           `json:"required"`
	MinConstraint  *float64       `json:"min_constraint,omitempty"`
	MaxConstraint  *float64       `json:"max_constraint,omitempty"`
	Unit           string         `json:"unit,omitempty"`
	DropdownListID *int64         `json:"dropdown_list_id,omitempty"`
	DropdownItems  []SelectOption `json:"dropdown_items,omitempty"`
	CategoryID     int64          `json:"category_id"`
	Order          int            `json:"order"`
	AppliesToAll   bool           `json:"applies_to_all"`
}

// OptionValue is the stored value of an Option for one entity. Value is the
// admin-curated value; BrokerValue is what the broker originally submitted
// and is shown to admins as a read-only reference.
type OptionValue struct {
	OptionID    int64  `json:"option_id"`
	Value       string `json:"value"`
	BrokerValue string `json:"broker_value,omitempty"`
}
