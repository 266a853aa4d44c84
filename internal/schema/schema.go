// Package schema compiles declarative field-definition trees into runtime
// validation schemas. A definition tree arrives inside a backend envelope as
// form_config (sections of fields); the compiled schema validates the flat
// key/value payload a form submission produces.
package schema

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/softrade/brokerdesk/internal/observability"
	"github.com/softrade/brokerdesk/model"
)

// Rule is one compiled validation rule. Bound carries the numeric bound for
// the bound-style rules and is unused for email/positive/negative.
type Rule struct {
	Name    string
	Bound   float64
	Message string
}

// FieldSchema is the compiled schema for a single field.
type FieldSchema struct {
	Key        string
	Label      string
	Kind       model.SchemaKind
	Required   bool
	Preprocess bool
	Rules      []Rule
	// Element holds the recursively compiled child schema for array_fields.
	Element *Schema
}

// Schema validates a flat map of submitted values. Field order follows the
// definition tree so error lists are stable.
type Schema struct {
	Fields map[string]*FieldSchema
	Order  []string
}

// Generator compiles field definitions. Unknown field types are logged and
// counted per build; compilation itself never fails on them.
type Generator struct {
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewGenerator creates a Generator. A nil logger is replaced with a no-op;
// metrics are optional.
func NewGenerator(logger *zap.Logger, metrics *observability.Metrics) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{logger: logger, metrics: metrics}
}

// ruleOrder is the fixed order constraints apply in. Optionality is decided
// after all bounds so a configured bound is never suppressed.
var ruleOrder = []string{
	model.RuleMin, model.RuleMax,
	"gt", "lt", "gte", "lte",
	model.RuleEmail, model.RulePositive, model.RuleNegative,
}

// Build compiles a sectioned field-definition tree into one flat Schema.
// Sections only group fields visually; the submitted payload is flat, so
// field keys are merged across sections (later sections win on collision).
func (g *Generator) Build(tree map[string]map[string]model.FieldDefinition) *Schema {
	s := &Schema{Fields: make(map[string]*FieldSchema)}

	for _, sectionKey := range sortedKeys(tree) {
		for _, fieldKey := range sortedKeys(tree[sectionKey]) {
			def := tree[sectionKey][fieldKey]
			if _, seen := s.Fields[fieldKey]; !seen {
				s.Order = append(s.Order, fieldKey)
			}
			s.Fields[fieldKey] = g.buildField(fieldKey, def)
		}
	}
	return s
}

// BuildFields compiles a single unsectioned field map.
func (g *Generator) BuildFields(fields map[string]model.FieldDefinition) *Schema {
	return g.Build(map[string]map[string]model.FieldDefinition{"": fields})
}

func (g *Generator) buildField(key string, def model.FieldDefinition) *FieldSchema {
	fs := &FieldSchema{
		Key:      key,
		Label:    labelFor(key, def),
		Required: def.Required(),
	}

	switch def.Type {
	case model.FieldTypeText, model.FieldTypeTextarea, model.FieldTypeSelect:
		fs.Kind = model.SchemaString
		fs.Preprocess = true
	case model.FieldTypeNumber:
		fs.Kind = model.SchemaNumber
		fs.Preprocess = true
	case model.FieldTypeBoolean, model.FieldTypeCheckbox:
		fs.Kind = model.SchemaBoolean
	case model.FieldTypeDate:
		fs.Kind = model.SchemaDate
		fs.Preprocess = true
	case model.FieldTypeMultiselect:
		fs.Kind = model.SchemaArray
	case model.FieldTypeArrayFields:
		fs.Kind = model.SchemaObject
		fs.Element = g.BuildFields(def.Fields)
	default:
		// Unknown types degrade to an unconstrained schema. Observable but
		// deliberately not fatal: the backend owns the definition and a new
		// type must not brick existing forms.
		g.logger.Warn("unknown field type, using unconstrained schema",
			zap.String("field", key),
			zap.String("type", def.Type))
		if g.metrics != nil {
			g.metrics.RecordSchemaUnknownFieldType(def.Type)
		}
		fs.Kind = model.SchemaAny
		return fs
	}

	fs.Rules = compileRules(fs, def)
	return fs
}

// compileRules walks the validation map in the fixed rule order, resolving
// per-rule message overrides.
func compileRules(fs *FieldSchema, def model.FieldDefinition) []Rule {
	if def.Validation == nil {
		return nil
	}

	var rules []Rule
	for _, name := range ruleOrder {
		raw, ok := def.Validation[name]
		if !ok {
			continue
		}

		r := Rule{Name: name}
		switch name {
		case model.RuleEmail, model.RulePositive, model.RuleNegative:
			// Presence of the key enables the rule; a literal false disables.
			if enabled, isBool := raw.(bool); isBool && !enabled {
				continue
			}
		default:
			bound, ok := toFloat(raw)
			if !ok {
				continue
			}
			r.Bound = bound
		}

		if msg, ok := def.Validation[name+"_message"].(string); ok && msg != "" {
			r.Message = msg
		} else {
			r.Message = defaultMessage(fs, r)
		}
		rules = append(rules, r)
	}
	return rules
}

// defaultMessage generates the fallback message for a rule, interpolating
// the field label and bound.
func defaultMessage(fs *FieldSchema, r Rule) string {
	label := fs.Label
	switch r.Name {
	case model.RuleMin:
		if fs.Kind == model.SchemaString {
			return fmt.Sprintf("%s must be at least %s characters", label, trimFloat(r.Bound))
		}
		return fmt.Sprintf("%s must be at least %s", label, trimFloat(r.Bound))
	case model.RuleMax:
		if fs.Kind == model.SchemaString {
			return fmt.Sprintf("%s must be at most %s characters", label, trimFloat(r.Bound))
		}
		return fmt.Sprintf("%s must be at most %s", label, trimFloat(r.Bound))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", label, trimFloat(r.Bound))
	case "lt":
		return fmt.Sprintf("%s must be less than %s", label, trimFloat(r.Bound))
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", label, trimFloat(r.Bound))
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", label, trimFloat(r.Bound))
	case model.RuleEmail:
		return fmt.Sprintf("%s must be a valid email address", label)
	case model.RulePositive:
		return fmt.Sprintf("%s must be a positive number", label)
	case model.RuleNegative:
		return fmt.Sprintf("%s must be a negative number", label)
	}
	return fmt.Sprintf("%s is invalid", label)
}

// Describe converts the compiled schema into its wire form for form_config
// responses.
func (s *Schema) Describe() map[string]model.FieldSchema {
	out := make(map[string]model.FieldSchema, len(s.Fields))
	for key, fs := range s.Fields {
		out[key] = describeField(fs)
	}
	return out
}

func describeField(fs *FieldSchema) model.FieldSchema {
	d := model.FieldSchema{Kind: fs.Kind}
	if fs.Preprocess {
		d.Preprocess = []string{
			model.PreprocessEmptyToUndefined,
			model.PreprocessNullToUndefined,
			model.PreprocessSentinelToUndefined,
		}
		if fs.Kind == model.SchemaNumber {
			d.Preprocess = append(d.Preprocess, model.PreprocessCoerceNumber)
		}
	}
	for _, r := range fs.Rules {
		sr := model.SchemaRule{Name: r.Name, Message: r.Message}
		switch r.Name {
		case model.RuleEmail, model.RulePositive, model.RuleNegative:
		default:
			bound := r.Bound
			sr.Value = &bound
		}
		d.Rules = append(d.Rules, sr)
	}
	if fs.Required {
		d.Rules = append(d.Rules, model.SchemaRule{
			Name:    model.RuleRequired,
			Message: fs.Label + " is required",
		})
	}
	if fs.Element != nil {
		fields := make(map[string]model.FieldSchema, len(fs.Element.Fields))
		for k, child := range fs.Element.Fields {
			fields[k] = describeField(child)
		}
		elem := model.FieldSchema{Kind: model.SchemaObject, Fields: fields}
		d.Element = &elem
	}
	return d
}

func labelFor(key string, def model.FieldDefinition) string {
	if def.Label != "" {
		return def.Label
	}
	return key
}
