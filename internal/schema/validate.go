package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/softrade/brokerdesk/model"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Accepted date layouts, tried in order.
var dateLayouts = []string{"2006-01-02", time.RFC3339}

// Validate checks a flat submission payload against the schema and returns
// all field errors found. An empty slice means the payload is valid.
func (s *Schema) Validate(values map[string]any) []model.FieldError {
	var errs []model.FieldError
	for _, key := range s.Order {
		fs := s.Fields[key]
		errs = append(errs, fs.validate(key, values[key])...)
	}
	return errs
}

// validate checks one field value. path is the error field path, which for
// repeatable group children includes the row index.
func (fs *FieldSchema) validate(path string, raw any) []model.FieldError {
	if fs.Kind == model.SchemaAny {
		return nil
	}

	v, present := fs.normalize(raw)
	if !present {
		if fs.Required {
			return []model.FieldError{{
				Field:   path,
				Code:    model.RuleRequired,
				Message: fs.Label + " is required",
			}}
		}
		return nil
	}

	switch fs.Kind {
	case model.SchemaString:
		str, ok := v.(string)
		if !ok {
			return []model.FieldError{typeError(path, fs.Label, "text")}
		}
		return fs.applyRules(path, float64(utf8.RuneCountInString(str)), str)

	case model.SchemaNumber:
		num, ok := toFloat(v)
		if !ok {
			return []model.FieldError{typeError(path, fs.Label, "number")}
		}
		return fs.applyRules(path, num, "")

	case model.SchemaBoolean:
		if _, ok := v.(bool); !ok {
			return []model.FieldError{typeError(path, fs.Label, "boolean")}
		}
		return nil

	case model.SchemaDate:
		if !isDate(v) {
			return []model.FieldError{typeError(path, fs.Label, "date")}
		}
		return nil

	case model.SchemaArray:
		items, ok := toStringSlice(v)
		if !ok {
			return []model.FieldError{typeError(path, fs.Label, "list")}
		}
		return fs.applyRules(path, float64(len(items)), "")

	case model.SchemaObject:
		return fs.validateRows(path, v)
	}
	return nil
}

// normalize applies the empty-string/null/sentinel preprocessing and reports
// whether a usable value remains. Numeric zero and boolean false survive.
func (fs *FieldSchema) normalize(raw any) (any, bool) {
	if raw == nil {
		return nil, false
	}
	if fs.Preprocess {
		if str, ok := raw.(string); ok {
			if str == "" || str == model.NoSelectionSentinel {
				return nil, false
			}
		}
	}
	// Empty collections count as absent for presence purposes.
	switch fs.Kind {
	case model.SchemaArray:
		if items, ok := toStringSlice(raw); ok && len(items) == 0 {
			return nil, false
		}
	case model.SchemaObject:
		if rows, ok := raw.([]any); ok && len(rows) == 0 {
			return nil, false
		}
	}
	return raw, true
}

// applyRules runs the compiled rules in order. measure is the comparable
// magnitude (numeric value, text length, or item count); str carries the raw
// text for the email rule.
func (fs *FieldSchema) applyRules(path string, measure float64, str string) []model.FieldError {
	var errs []model.FieldError
	for _, r := range fs.Rules {
		ok := true
		switch r.Name {
		case model.RuleMin, "gte":
			ok = measure >= r.Bound
		case model.RuleMax, "lte":
			ok = measure <= r.Bound
		case "gt":
			ok = measure > r.Bound
		case "lt":
			ok = measure < r.Bound
		case model.RuleEmail:
			ok = emailPattern.MatchString(str)
		case model.RulePositive:
			ok = measure > 0
		case model.RuleNegative:
			ok = measure < 0
		}
		if !ok {
			errs = append(errs, model.FieldError{Field: path, Code: r.Name, Message: r.Message})
		}
	}
	return errs
}

// validateRows validates a repeatable group: a slice of row objects, each
// checked against the child schema with an indexed field path.
func (fs *FieldSchema) validateRows(path string, v any) []model.FieldError {
	rows, ok := v.([]any)
	if !ok {
		// Tolerate the concrete type a decoded JSON body may not produce.
		if typed, isTyped := v.([]map[string]any); isTyped {
			rows = make([]any, len(typed))
			for i, row := range typed {
				rows[i] = row
			}
		} else {
			return []model.FieldError{typeError(path, fs.Label, "list of entries")}
		}
	}

	var errs []model.FieldError
	for i, rawRow := range rows {
		row, ok := rawRow.(map[string]any)
		if !ok {
			errs = append(errs, typeError(fmt.Sprintf("%s[%d]", path, i), fs.Label, "entry"))
			continue
		}
		for _, childKey := range fs.Element.Order {
			child := fs.Element.Fields[childKey]
			childPath := fmt.Sprintf("%s[%d].%s", path, i, childKey)
			errs = append(errs, child.validate(childPath, row[childKey])...)
		}
	}
	return errs
}

func typeError(path, label, want string) model.FieldError {
	return model.FieldError{
		Field:   path,
		Code:    "type",
		Message: fmt.Sprintf("%s must be a %s", label, want),
	}
}

func isDate(v any) bool {
	switch d := v.(type) {
	case time.Time:
		return true
	case string:
		for _, layout := range dateLayouts {
			if _, err := time.Parse(layout, d); err == nil {
				return true
			}
		}
	}
	return false
}

// toFloat coerces the numeric shapes a decoded JSON or form payload can
// carry. Strings coerce so numeric text inputs validate as numbers.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func toStringSlice(v any) ([]string, bool) {
	switch items := v.(type) {
	case []string:
		return items, true
	case []any:
		out := make([]string, 0, len(items))
		for _, item := range items {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	}
	return nil, false
}

// trimFloat renders a bound without a trailing ".0" for whole numbers.
func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
