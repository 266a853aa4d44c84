package table

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/softrade/brokerdesk/model"
)

// Synthetic column field names.
const (
	RowNumberField = "#"
	ActionsField   = "actions"
)

// Filter keys travel in the query string, so they must be plain parameter
// names and must not collide with the reserved paging/sort parameters.
var filterKeyPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_.-]*$`)

// Resolve builds the table descriptor for one resource from the column and
// filter configuration the backend envelope carries. Columns are prefixed
// with a synthetic row-number column and, when row actions exist, suffixed
// with a synthetic actions column.
func Resolve(
	key, title string,
	cols map[string]model.ColumnConfig,
	filters map[string]model.FilterConfig,
	actions []model.ActionDescriptor,
) (model.TableDescriptor, error) {
	desc := model.TableDescriptor{
		Key:        key,
		Title:      title,
		PerPage:    DefaultPerPage,
		RowActions: actions,
	}

	desc.Columns = append(desc.Columns, model.ColumnDescriptor{
		Field:     RowNumberField,
		Label:     "#",
		DataType:  model.DataTypeNumber,
		Visible:   true,
		Synthetic: true,
	})

	for _, field := range sortedColumnKeys(cols) {
		cfg := cols[field]
		desc.Columns = append(desc.Columns, model.ColumnDescriptor{
			Field:    field,
			Label:    labelOr(cfg.Label, field),
			DataType: normalizeDataType(cfg.DataType),
			Sortable: cfg.Sortable,
			Visible:  cfg.Visible,
		})
	}

	if len(actions) > 0 {
		desc.Columns = append(desc.Columns, model.ColumnDescriptor{
			Field:     ActionsField,
			Label:     "Actions",
			DataType:  model.DataTypeText,
			Visible:   true,
			Synthetic: true,
		})
	}

	for _, field := range sortedFilterConfigKeys(filters) {
		cfg := filters[field]
		if !filterKeyPattern.MatchString(field) || isReservedParam(field) {
			return model.TableDescriptor{}, model.NewBadRequestError(
				fmt.Sprintf("filter key %q is not a valid query parameter name", field),
			)
		}
		kind := cfg.Kind
		if kind != model.FilterKindSelect {
			kind = model.FilterKindText
		}
		desc.Filters = append(desc.Filters, model.FilterDescriptor{
			Field:   field,
			Label:   labelOr(cfg.Label, field),
			Kind:    kind,
			Tooltip: cfg.Tooltip,
			Options: cfg.Options,
		})
	}

	return desc, nil
}

// FormatCell renders one raw value for display. The dispatch is the single
// place a column data type selects a renderer; unknown types use the text
// arm.
func FormatCell(dataType model.DataType, value any) model.FormattedCell {
	switch dataType {
	case model.DataTypeBoolean:
		if Truthy(value) {
			return model.FormattedCell{Display: "Yes", Raw: true, Kind: model.CellBadge}
		}
		return model.FormattedCell{Display: "No", Raw: false, Kind: model.CellBadge}

	case model.DataTypeJSON:
		raw, err := json.Marshal(value)
		if err != nil {
			return model.FormattedCell{Display: fmt.Sprintf("%v", value), Kind: model.CellJSON}
		}
		return model.FormattedCell{Display: string(raw), Raw: value, Kind: model.CellJSON}

	case model.DataTypeNumber:
		return model.FormattedCell{Display: displayString(value), Raw: value, Kind: model.CellNumber}

	case model.DataTypeDate:
		return model.FormattedCell{Display: displayString(value), Raw: value, Kind: model.CellDate}

	default:
		return model.FormattedCell{Display: displayString(value), Raw: value, Kind: model.CellText}
	}
}

// FormatRows renders a page of raw rows into display-ready cells, adding the
// synthetic row-number cell (numbered across pages) and an actions cell when
// the descriptor carries one.
func FormatRows(rows []map[string]any, desc model.TableDescriptor, q Query) []map[string]model.FormattedCell {
	offset := (q.Page - 1) * q.PerPage
	out := make([]map[string]model.FormattedCell, 0, len(rows))

	for i, row := range rows {
		formatted := make(map[string]model.FormattedCell, len(desc.Columns))
		for _, col := range desc.Columns {
			switch col.Field {
			case RowNumberField:
				n := offset + i + 1
				formatted[col.Field] = model.FormattedCell{
					Display: strconv.Itoa(n),
					Raw:     n,
					Kind:    model.CellRowNumber,
				}
			case ActionsField:
				formatted[col.Field] = model.FormattedCell{Kind: model.CellActions}
			default:
				formatted[col.Field] = FormatCell(col.DataType, row[col.Field])
			}
		}
		out = append(out, formatted)
	}
	return out
}

// Truthy implements the tolerant boolean check used for badge cells: 1,
// true, "1", and "true" count as true, everything else as false.
func Truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "1" || b == "true"
	case int:
		return b == 1
	case int64:
		return b == 1
	case float64:
		return b == 1
	case json.Number:
		return b.String() == "1"
	}
	return false
}

func displayString(v any) string {
	if v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case json.Number:
		return s.String()
	}
	return fmt.Sprintf("%v", v)
}

func normalizeDataType(dt model.DataType) model.DataType {
	switch dt {
	case model.DataTypeNumber, model.DataTypeBoolean, model.DataTypeDate, model.DataTypeJSON:
		return dt
	}
	return model.DataTypeText
}

func isReservedParam(key string) bool {
	switch key {
	case paramPage, paramPerPage, paramOrderBy, paramOrderDirection:
		return true
	}
	return false
}

func labelOr(label, fallback string) string {
	if label != "" {
		return label
	}
	return fallback
}

func sortedColumnKeys(m map[string]model.ColumnConfig) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedFilterConfigKeys(m map[string]model.FilterConfig) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
