package table

import (
	"encoding/json"
	"testing"

	"github.com/softrade/brokerdesk/model"
)

// --- Resolve ---

func TestResolve_syntheticColumns(t *testing.T) {
	cols := map[string]model.ColumnConfig{
		"name":   {Label: "Name", DataType: model.DataTypeText, Visible: true, Sortable: true},
		"volume": {Label: "Volume", DataType: model.DataTypeNumber, Visible: true},
	}
	actions := []model.ActionDescriptor{{ID: "edit", Label: "Edit"}}

	desc, err := Resolve("payouts", "Payouts", cols, nil, actions)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if len(desc.Columns) != 4 {
		t.Fatalf("got %d columns, want 4", len(desc.Columns))
	}
	first := desc.Columns[0]
	if first.Field != RowNumberField || !first.Synthetic {
		t.Errorf("first column = %+v, want synthetic row number", first)
	}
	last := desc.Columns[len(desc.Columns)-1]
	if last.Field != ActionsField || !last.Synthetic {
		t.Errorf("last column = %+v, want synthetic actions", last)
	}
	if desc.Columns[1].Field != "name" || desc.Columns[2].Field != "volume" {
		t.Errorf("config columns out of order: %q %q", desc.Columns[1].Field, desc.Columns[2].Field)
	}
}

func TestResolve_noActionsNoActionsColumn(t *testing.T) {
	desc, err := Resolve("payouts", "Payouts", map[string]model.ColumnConfig{
		"name": {Label: "Name", Visible: true},
	}, nil, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	for _, col := range desc.Columns {
		if col.Field == ActionsField {
			t.Error("actions column present without row actions")
		}
	}
}

func TestResolve_unknownDataTypeFallsBackToText(t *testing.T) {
	desc, err := Resolve("payouts", "Payouts", map[string]model.ColumnConfig{
		"blob": {Label: "Blob", DataType: model.DataType("tensor"), Visible: true},
	}, nil, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if desc.Columns[1].DataType != model.DataTypeText {
		t.Errorf("DataType = %q, want text", desc.Columns[1].DataType)
	}
}

func TestResolve_filterKinds(t *testing.T) {
	desc, err := Resolve("payouts", "Payouts", nil, map[string]model.FilterConfig{
		"status": {Kind: model.FilterKindSelect, Label: "Status", Options: []model.SelectOption{{Label: "Active", Value: "1"}}},
		"name":   {Kind: model.FilterKind("range"), Label: "Name"},
	}, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	byField := map[string]model.FilterDescriptor{}
	for _, f := range desc.Filters {
		byField[f.Field] = f
	}
	if byField["status"].Kind != model.FilterKindSelect {
		t.Errorf("status kind = %q, want select", byField["status"].Kind)
	}
	if byField["name"].Kind != model.FilterKindText {
		t.Errorf("unknown kind = %q, want text fallback", byField["name"].Kind)
	}
}

func TestResolve_rejectsReservedFilterKeys(t *testing.T) {
	_, err := Resolve("payouts", "Payouts", nil, map[string]model.FilterConfig{
		"page": {Label: "Page"},
	}, nil)
	if err == nil {
		t.Fatal("expected error for reserved filter key")
	}
	var envelope *model.ErrorEnvelope
	if e, ok := err.(*model.ErrorEnvelope); ok {
		envelope = e
	} else {
		t.Fatalf("error type = %T, want *model.ErrorEnvelope", err)
	}
	if envelope.Code != model.ErrBadRequest {
		t.Errorf("Code = %q, want %q", envelope.Code, model.ErrBadRequest)
	}
}

func TestResolve_rejectsInvalidFilterKeys(t *testing.T) {
	_, err := Resolve("payouts", "Payouts", nil, map[string]model.FilterConfig{
		"my filter": {Label: "Broken"},
	}, nil)
	if err == nil {
		t.Fatal("expected error for filter key with a space")
	}
}

func TestResolve_labelFallsBackToField(t *testing.T) {
	desc, err := Resolve("payouts", "Payouts", map[string]model.ColumnConfig{
		"account_type": {Visible: true},
	}, nil, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if desc.Columns[1].Label != "account_type" {
		t.Errorf("Label = %q, want field name fallback", desc.Columns[1].Label)
	}
}

// --- FormatCell ---

func TestFormatCell_booleanBadge(t *testing.T) {
	tests := []struct {
		value any
		want  string
	}{
		{true, "Yes"},
		{false, "No"},
		{1, "Yes"},
		{0, "No"},
		{"1", "Yes"},
		{"true", "Yes"},
		{"yes", "No"},
		{float64(1), "Yes"},
		{nil, "No"},
	}
	for _, tt := range tests {
		cell := FormatCell(model.DataTypeBoolean, tt.value)
		if cell.Kind != model.CellBadge {
			t.Errorf("FormatCell(boolean, %v) kind = %q, want badge", tt.value, cell.Kind)
		}
		if cell.Display != tt.want {
			t.Errorf("FormatCell(boolean, %v) = %q, want %q", tt.value, cell.Display, tt.want)
		}
	}
}

func TestFormatCell_jsonStringifies(t *testing.T) {
	cell := FormatCell(model.DataTypeJSON, map[string]any{"tier": "gold"})
	if cell.Kind != model.CellJSON {
		t.Errorf("Kind = %q, want json", cell.Kind)
	}
	if cell.Display != `{"tier":"gold"}` {
		t.Errorf("Display = %q", cell.Display)
	}
}

func TestFormatCell_number(t *testing.T) {
	cell := FormatCell(model.DataTypeNumber, float64(12.5))
	if cell.Kind != model.CellNumber || cell.Display != "12.5" {
		t.Errorf("cell = %+v", cell)
	}
	cell = FormatCell(model.DataTypeNumber, json.Number("42"))
	if cell.Display != "42" {
		t.Errorf("Display = %q, want 42", cell.Display)
	}
}

func TestFormatCell_nilRendersEmpty(t *testing.T) {
	cell := FormatCell(model.DataTypeText, nil)
	if cell.Display != "" {
		t.Errorf("Display = %q, want empty", cell.Display)
	}
}

// --- FormatRows ---

func TestFormatRows_numbersAcrossPages(t *testing.T) {
	desc := model.TableDescriptor{
		Columns: []model.ColumnDescriptor{
			{Field: RowNumberField, Synthetic: true},
			{Field: "name", DataType: model.DataTypeText},
			{Field: ActionsField, Synthetic: true},
		},
	}
	rows := []map[string]any{
		{"name": "Alpha"},
		{"name": "Beta"},
	}
	q := Query{Page: 3, PerPage: 15}

	out := FormatRows(rows, desc, q)
	if len(out) != 2 {
		t.Fatalf("got %d rows, want 2", len(out))
	}
	if out[0][RowNumberField].Display != "31" || out[1][RowNumberField].Display != "32" {
		t.Errorf("row numbers = %q %q, want 31 32",
			out[0][RowNumberField].Display, out[1][RowNumberField].Display)
	}
	if out[0]["name"].Display != "Alpha" {
		t.Errorf("name cell = %+v", out[0]["name"])
	}
	if out[0][ActionsField].Kind != model.CellActions {
		t.Errorf("actions cell kind = %q", out[0][ActionsField].Kind)
	}
}

// --- Truthy ---

func TestTruthy(t *testing.T) {
	truthy := []any{true, 1, int64(1), float64(1), "1", "true", json.Number("1")}
	for _, v := range truthy {
		if !Truthy(v) {
			t.Errorf("Truthy(%v) = false, want true", v)
		}
	}
	falsy := []any{false, 0, 2, "yes", "TRUE", "", nil, 1.5}
	for _, v := range falsy {
		if Truthy(v) {
			t.Errorf("Truthy(%v) = true, want false", v)
		}
	}
}
