// Package optionform renders and validates the dynamic option form: one
// control per backend-defined Option, widget chosen by the option's form
// type, with the broker's original submission shown to admins as a read-only
// hint next to each control.
package optionform

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/softrade/brokerdesk/internal/schema"
	"github.com/softrade/brokerdesk/model"
)

// Resolve builds the form descriptor for one option category. Controls come
// out in the option order the backend configured; admins additionally see
// the broker's submitted value on each control.
func Resolve(key, title string, options []model.Option, values []model.OptionValue, role model.Role) model.FormDescriptor {
	opts := append([]model.Option(nil), options...)
	sort.SliceStable(opts, func(i, j int) bool {
		if opts[i].Order != opts[j].Order {
			return opts[i].Order < opts[j].Order
		}
		return opts[i].Slug < opts[j].Slug
	})

	byOption := make(map[int64]model.OptionValue, len(values))
	for _, v := range values {
		byOption[v.OptionID] = v
	}

	form := model.FormDescriptor{
		Key:    key,
		Title:  title,
		Values: map[string]any{},
	}
	for _, opt := range opts {
		control := normalizeControl(opt.FormType)
		desc := model.ControlDescriptor{
			Field:    opt.Slug,
			Label:    opt.Name,
			Control:  control,
			Required: opt.Required,
			Options:  opt.DropdownItems,
			Unit:     opt.Unit,
			Min:      opt.MinConstraint,
			Max:      opt.MaxConstraint,
		}
		if v, ok := byOption[opt.ID]; ok {
			form.Values[opt.Slug] = controlValue(control, v.Value)
			if role == model.RoleAdmin {
				desc.BrokerValue = v.BrokerValue
			}
		}
		form.Fields = append(form.Fields, desc)
	}
	form.Schema = BuildSchema(opts).Describe()
	return form
}

// BuildSchema compiles the option list into a validation schema: numeric
// constraints become min/max bounds, required options mandate presence, and
// a required multi-select needs at least one choice.
func BuildSchema(options []model.Option) *schema.Schema {
	s := &schema.Schema{Fields: map[string]*schema.FieldSchema{}}
	for _, opt := range options {
		fs := buildField(opt)
		s.Fields[opt.Slug] = fs
		s.Order = append(s.Order, opt.Slug)
	}
	return s
}

func buildField(opt model.Option) *schema.FieldSchema {
	fs := &schema.FieldSchema{
		Key:      opt.Slug,
		Label:    opt.Name,
		Required: opt.Required,
	}
	switch normalizeControl(opt.FormType) {
	case model.ControlNumber, model.ControlNumberWithUnit:
		fs.Kind = model.SchemaNumber
		fs.Preprocess = true
		if opt.MinConstraint != nil {
			fs.Rules = append(fs.Rules, schema.Rule{
				Name:    model.RuleMin,
				Bound:   *opt.MinConstraint,
				Message: fmt.Sprintf("%s must be at least %s", opt.Name, trimFloat(*opt.MinConstraint)),
			})
		}
		if opt.MaxConstraint != nil {
			fs.Rules = append(fs.Rules, schema.Rule{
				Name:    model.RuleMax,
				Bound:   *opt.MaxConstraint,
				Message: fmt.Sprintf("%s must be at most %s", opt.Name, trimFloat(*opt.MaxConstraint)),
			})
		}

	case model.ControlCheckbox, model.ControlSwitch:
		fs.Kind = model.SchemaBoolean

	case model.ControlDate:
		fs.Kind = model.SchemaDate
		fs.Preprocess = true

	case model.ControlMultiSelect:
		fs.Kind = model.SchemaArray
		if opt.Required {
			fs.Rules = append(fs.Rules, schema.Rule{
				Name:    model.RuleMin,
				Bound:   1,
				Message: fmt.Sprintf("Select at least one %s", opt.Name),
			})
		}

	case model.ControlImage:
		// Files are opaque here; presence is the only check.
		fs.Kind = model.SchemaAny

	default:
		fs.Kind = model.SchemaString
		fs.Preprocess = true
	}
	return fs
}

// FlattenPayload turns typed form values into the flat key/value body the
// rebate service accepts: arrays join with ",", maps are JSON-stringified,
// scalars are stringified, and binary blobs pass through untouched.
func FlattenPayload(values map[string]any) map[string]any {
	out := make(map[string]any, len(values))
	for key, v := range values {
		switch t := v.(type) {
		case nil:
			out[key] = ""
		case []byte:
			out[key] = t
		case string:
			out[key] = t
		case bool:
			out[key] = strconv.FormatBool(t)
		case float64:
			out[key] = trimFloat(t)
		case int:
			out[key] = strconv.Itoa(t)
		case int64:
			out[key] = strconv.FormatInt(t, 10)
		case json.Number:
			out[key] = t.String()
		case []string:
			out[key] = strings.Join(t, ",")
		case []any:
			parts := make([]string, 0, len(t))
			for _, item := range t {
				parts = append(parts, fmt.Sprintf("%v", item))
			}
			out[key] = strings.Join(parts, ",")
		case map[string]any:
			raw, err := json.Marshal(t)
			if err != nil {
				out[key] = fmt.Sprintf("%v", t)
				continue
			}
			out[key] = string(raw)
		default:
			out[key] = fmt.Sprintf("%v", t)
		}
	}
	return out
}

// normalizeControl maps a form type onto the closed widget set, falling back
// to a plain text input for anything unknown.
func normalizeControl(formType string) string {
	switch formType {
	case model.ControlText, model.ControlNumber, model.ControlCheckbox,
		model.ControlSwitch, model.ControlDate, model.ControlSelect,
		model.ControlMultiSelect, model.ControlNumberWithUnit,
		model.ControlImage, model.ControlTextarea, model.ControlRadio:
		return formType
	}
	return model.ControlText
}

// controlValue reshapes a stored value for its control: multi-select values
// are stored comma-joined but rendered as a list.
func controlValue(control, stored string) any {
	if control == model.ControlMultiSelect {
		if stored == "" {
			return []string{}
		}
		return strings.Split(stored, ",")
	}
	return stored
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
