package matrix

import (
	"testing"

	"github.com/softrade/brokerdesk/model"
)

func textFormType() *model.FormType {
	return &model.FormType{
		Name: "text",
		Items: []model.FormFieldItem{
			{Name: "text", Control: "input", Required: true},
		},
	}
}

func testHeaders() ([]model.RowHeader, []model.ColumnHeader) {
	rows := []model.RowHeader{
		{Slug: "phase-1", Name: "Phase 1"},
		{Slug: "phase-2", Name: "Phase 2"},
	}
	cols := []model.ColumnHeader{
		{Slug: "profit-target", Name: "Profit Target", FormType: textFormType()},
		{Slug: "max-drawdown", Name: "Max Drawdown", FormType: textFormType()},
		{Slug: "leverage", Name: "Leverage", FormType: textFormType()},
	}
	return rows, cols
}

// --- NewGrid ---

func TestNewGrid_emptySynthesis(t *testing.T) {
	rows, cols := testHeaders()
	g := NewGrid(rows, cols, Capabilities{})

	if len(g.Cells) != 2 {
		t.Fatalf("got %d rows, want 2", len(g.Cells))
	}
	for i := range g.Cells {
		if len(g.Cells[i]) != 3 {
			t.Fatalf("row %d has %d cells, want 3", i, len(g.Cells[i]))
		}
		for j, cell := range g.Cells[i] {
			if cell.RowHeader != rows[i].Slug {
				t.Errorf("cell (%d,%d) RowHeader = %q, want %q", i, j, cell.RowHeader, rows[i].Slug)
			}
			if cell.ColHeader != cols[j].Slug {
				t.Errorf("cell (%d,%d) ColHeader = %q, want %q", i, j, cell.ColHeader, cols[j].Slug)
			}
			if v, ok := cell.Value["text"]; !ok || v != "" {
				t.Errorf("cell (%d,%d) Value = %v, want {text: \"\"}", i, j, cell.Value)
			}
			if v, ok := cell.PublicValue["text"]; !ok || v != "" {
				t.Errorf("cell (%d,%d) PublicValue = %v, want {text: \"\"}", i, j, cell.PublicValue)
			}
			if cell.IsUpdatedEntry {
				t.Errorf("cell (%d,%d) IsUpdatedEntry = true on a fresh grid", i, j)
			}
		}
	}
}

func TestNewGrid_defaultTextFieldWithoutFormType(t *testing.T) {
	g := NewGrid(
		[]model.RowHeader{{Slug: "r"}},
		[]model.ColumnHeader{{Slug: "c"}},
		Capabilities{},
	)
	if _, ok := g.Cells[0][0].Value["text"]; !ok {
		t.Errorf("Value = %v, want a text sub-field", g.Cells[0][0].Value)
	}
}

// --- ApplyEdit ---

func TestApplyEdit_brokerWritesSubmittedValue(t *testing.T) {
	rows, cols := testHeaders()
	g := NewGrid(rows, cols, Capabilities{})

	if err := g.ApplyEdit(0, 0, "text", "8%", model.RoleBroker); err != nil {
		t.Fatalf("ApplyEdit error: %v", err)
	}
	cell := g.Cells[0][0]
	if cell.Value["text"] != "8%" {
		t.Errorf("Value = %v", cell.Value)
	}
	if cell.PublicValue["text"] != "" {
		t.Errorf("broker edit touched PublicValue: %v", cell.PublicValue)
	}
	// Nothing published yet, so the cell is not marked updated.
	if cell.IsUpdatedEntry {
		t.Error("IsUpdatedEntry = true before anything was published")
	}
}

func TestApplyEdit_brokerMarksUpdatedWhenPublished(t *testing.T) {
	rows, cols := testHeaders()
	g := NewGrid(rows, cols, Capabilities{})
	g.Cells[0][0].PublicValue = map[string]string{"text": "5%"}

	if err := g.ApplyEdit(0, 0, "text", "8%", model.RoleBroker); err != nil {
		t.Fatalf("ApplyEdit error: %v", err)
	}
	if !g.Cells[0][0].IsUpdatedEntry {
		t.Error("IsUpdatedEntry = false after broker diverged from published value")
	}
}

func TestApplyEdit_capturesPreviousValueOnce(t *testing.T) {
	rows, cols := testHeaders()
	g := NewGrid(rows, cols, Capabilities{})
	g.Cells[0][0].Value = map[string]string{"text": "5%"}

	_ = g.ApplyEdit(0, 0, "text", "6%", model.RoleBroker)
	_ = g.ApplyEdit(0, 0, "text", "7%", model.RoleBroker)

	cell := g.Cells[0][0]
	if cell.PreviousValue["text"] != "5%" {
		t.Errorf("PreviousValue = %v, want the value before the first edit", cell.PreviousValue)
	}
	if cell.Value["text"] != "7%" {
		t.Errorf("Value = %v", cell.Value)
	}
}

func TestApplyEdit_adminWritesPublishedValue(t *testing.T) {
	rows, cols := testHeaders()
	g := NewGrid(rows, cols, Capabilities{})
	g.Cells[0][0].Value = map[string]string{"text": "8%"}

	if err := g.ApplyEdit(0, 0, "text", "10%", model.RoleAdmin); err != nil {
		t.Fatalf("ApplyEdit error: %v", err)
	}
	cell := g.Cells[0][0]
	if cell.PublicValue["text"] != "10%" {
		t.Errorf("PublicValue = %v", cell.PublicValue)
	}
	if cell.Value["text"] != "8%" {
		t.Errorf("admin edit touched Value: %v", cell.Value)
	}
}

func TestApplyEdit_outOfRange(t *testing.T) {
	rows, cols := testHeaders()
	g := NewGrid(rows, cols, Capabilities{})

	if err := g.ApplyEdit(5, 0, "text", "x", model.RoleBroker); err == nil {
		t.Error("expected error for out-of-range row")
	}
	if err := g.ApplyEdit(0, 9, "text", "x", model.RoleBroker); err == nil {
		t.Error("expected error for out-of-range column")
	}
}

// --- CopyForward ---

func TestCopyForward(t *testing.T) {
	rows, cols := testHeaders()
	g := NewGrid(rows, cols, Capabilities{})
	g.Cells[0][0].Value = map[string]string{"text": "8%"}
	g.Cells[0][0].PublicValue = map[string]string{"text": "5%"}
	g.Cells[0][0].IsUpdatedEntry = true

	if err := g.CopyForward(0, 0); err != nil {
		t.Fatalf("CopyForward error: %v", err)
	}
	cell := g.Cells[0][0]
	if cell.PublicValue["text"] != "8%" {
		t.Errorf("PublicValue = %v, want the submitted value", cell.PublicValue)
	}
	if cell.IsUpdatedEntry {
		t.Error("IsUpdatedEntry = true after copy forward")
	}
}

func TestCopyForward_idempotent(t *testing.T) {
	rows, cols := testHeaders()
	g := NewGrid(rows, cols, Capabilities{})
	g.Cells[0][0].Value = map[string]string{"text": "8%"}
	g.Cells[0][0].IsUpdatedEntry = true

	_ = g.CopyForward(0, 0)
	_ = g.CopyForward(0, 0)

	cell := g.Cells[0][0]
	if cell.PublicValue["text"] != "8%" || cell.IsUpdatedEntry {
		t.Errorf("cell = %+v after repeated copy forward", cell)
	}
}

func TestCopyForward_copyIsDetached(t *testing.T) {
	rows, cols := testHeaders()
	g := NewGrid(rows, cols, Capabilities{})
	g.Cells[0][0].Value = map[string]string{"text": "8%"}

	_ = g.CopyForward(0, 0)
	g.Cells[0][0].Value["text"] = "9%"

	if g.Cells[0][0].PublicValue["text"] != "8%" {
		t.Error("published value shares the submitted map")
	}
}

// --- dual value fallback ---

func TestEffective_adminFallsBackToSubmitted(t *testing.T) {
	cell := model.MatrixCell{
		Value:       map[string]string{"text": "8%"},
		PublicValue: map[string]string{"text": ""},
	}
	if got := cell.Effective(model.RoleAdmin); got["text"] != "8%" {
		t.Errorf("Effective(admin) = %v, want submitted fallback", got)
	}
}

func TestEffective_adminPrefersPublished(t *testing.T) {
	cell := model.MatrixCell{
		Value:       map[string]string{"text": "8%"},
		PublicValue: map[string]string{"text": "5%"},
	}
	if got := cell.Effective(model.RoleAdmin); got["text"] != "5%" {
		t.Errorf("Effective(admin) = %v, want published", got)
	}
}

func TestEffective_brokerSeesOwnSubmission(t *testing.T) {
	cell := model.MatrixCell{
		Value:       map[string]string{"text": "8%"},
		PublicValue: map[string]string{"text": "5%"},
	}
	if got := cell.Effective(model.RoleBroker); got["text"] != "8%" {
		t.Errorf("Effective(broker) = %v, want submitted", got)
	}
}

// --- SeedPublicValues ---

func TestSeedPublicValues(t *testing.T) {
	rows, cols := testHeaders()
	g := NewGrid(rows, cols, Capabilities{})
	g.Cells[0][0].Value = map[string]string{"text": "8%"}
	g.Cells[0][1].Value = map[string]string{"text": "12%"}
	g.Cells[0][1].PublicValue = map[string]string{"text": "10%"}

	g.SeedPublicValues()

	if g.Cells[0][0].PublicValue["text"] != "8%" {
		t.Errorf("empty published value not seeded: %v", g.Cells[0][0].PublicValue)
	}
	if g.Cells[0][1].PublicValue["text"] != "10%" {
		t.Errorf("non-empty published value was overwritten: %v", g.Cells[0][1].PublicValue)
	}
}

// --- Validate ---

func TestValidate_brokerBlockedOnEmptyRequiredCells(t *testing.T) {
	rows, cols := testHeaders()
	g := NewGrid(rows, cols, Capabilities{})
	g.Cells[0][0].Value["text"] = "8%"

	errs := g.Validate(model.RoleBroker)
	// 2x3 grid with one filled cell leaves five empty required cells.
	if len(errs) != 5 {
		t.Fatalf("got %d errors, want 5: %v", len(errs), errs)
	}
	if errs[0].Code != "required" {
		t.Errorf("Code = %q, want required", errs[0].Code)
	}
}

func TestValidate_adminMayPublishPartialGrid(t *testing.T) {
	rows, cols := testHeaders()
	g := NewGrid(rows, cols, Capabilities{})

	if errs := g.Validate(model.RoleAdmin); len(errs) != 0 {
		t.Errorf("admin validation errors = %v, want none", errs)
	}
}

func TestValidate_fullGridPasses(t *testing.T) {
	rows, cols := testHeaders()
	g := NewGrid(rows, cols, Capabilities{})
	for i := range g.Cells {
		for j := range g.Cells[i] {
			g.Cells[i][j].Value["text"] = "filled"
		}
	}
	if errs := g.Validate(model.RoleBroker); len(errs) != 0 {
		t.Errorf("errors = %v, want none", errs)
	}
}

// --- structural edits ---

func TestStructuralEdits_requireCapability(t *testing.T) {
	rows, cols := testHeaders()
	g := NewGrid(rows, cols, Capabilities{})

	if err := g.AddRow(model.RowHeader{Slug: "phase-3"}); err == nil {
		t.Error("AddRow allowed without capability")
	}
	if err := g.RemoveColumn(0); err == nil {
		t.Error("RemoveColumn allowed without capability")
	}
	if err := g.SetRowSubOptions(0, nil); err == nil {
		t.Error("SetRowSubOptions allowed without capability")
	}
}

func TestAddRow(t *testing.T) {
	rows, cols := testHeaders()
	g := NewGrid(rows, cols, Capabilities{AllowStructuralEdits: true})

	if err := g.AddRow(model.RowHeader{Slug: "phase-3", Name: "Phase 3"}); err != nil {
		t.Fatalf("AddRow error: %v", err)
	}
	if len(g.Rows) != 3 || len(g.Cells) != 3 || len(g.SubOptions) != 3 {
		t.Fatalf("dimensions = %d/%d/%d, want 3/3/3", len(g.Rows), len(g.Cells), len(g.SubOptions))
	}
	if len(g.Cells[2]) != 3 {
		t.Errorf("new row has %d cells, want 3", len(g.Cells[2]))
	}
	if g.Cells[2][0].RowHeader != "phase-3" {
		t.Errorf("new row cell RowHeader = %q", g.Cells[2][0].RowHeader)
	}
}

func TestRemoveRow(t *testing.T) {
	rows, cols := testHeaders()
	g := NewGrid(rows, cols, Capabilities{AllowStructuralEdits: true})
	g.Cells[1][0].Value["text"] = "keep"

	if err := g.RemoveRow(0); err != nil {
		t.Fatalf("RemoveRow error: %v", err)
	}
	if len(g.Rows) != 1 || len(g.Cells) != 1 {
		t.Fatalf("dimensions = %d/%d, want 1/1", len(g.Rows), len(g.Cells))
	}
	if g.Cells[0][0].Value["text"] != "keep" {
		t.Error("wrong row removed")
	}
}

func TestAddAndRemoveColumn(t *testing.T) {
	rows, cols := testHeaders()
	g := NewGrid(rows, cols, Capabilities{AllowStructuralEdits: true})

	if err := g.AddColumn(model.ColumnHeader{Slug: "commission", FormType: textFormType()}); err != nil {
		t.Fatalf("AddColumn error: %v", err)
	}
	if len(g.Cols) != 4 || len(g.Cells[0]) != 4 {
		t.Fatalf("dimensions = %d/%d, want 4/4", len(g.Cols), len(g.Cells[0]))
	}
	if g.Cells[1][3].ColHeader != "commission" {
		t.Errorf("new column cell ColHeader = %q", g.Cells[1][3].ColHeader)
	}

	if err := g.RemoveColumn(3); err != nil {
		t.Fatalf("RemoveColumn error: %v", err)
	}
	if len(g.Cols) != 3 || len(g.Cells[0]) != 3 {
		t.Errorf("dimensions = %d/%d, want 3/3", len(g.Cols), len(g.Cells[0]))
	}
}

func TestSetRowSubOptions(t *testing.T) {
	rows, cols := testHeaders()
	rows[0].Options = []model.SelectOption{
		{Label: "EURUSD", Value: "eurusd"},
		{Label: "GBPUSD", Value: "gbpusd"},
	}
	g := NewGrid(rows, cols, Capabilities{AllowStructuralEdits: true})

	if err := g.SetRowSubOptions(0, []string{"eurusd"}); err != nil {
		t.Fatalf("SetRowSubOptions error: %v", err)
	}
	if len(g.SubOptions[0]) != 1 || g.SubOptions[0][0] != "eurusd" {
		t.Errorf("SubOptions[0] = %v", g.SubOptions[0])
	}

	if err := g.SetRowSubOptions(0, []string{"usdjpy"}); err == nil {
		t.Error("expected error for value outside the catalog")
	}
}

// --- MergePlaceholders ---

func TestMergePlaceholders(t *testing.T) {
	rows, cols := testHeaders()
	g := NewGrid(rows, cols, Capabilities{})

	placeholders := [][]model.MatrixCell{
		{{Value: map[string]string{"text": "e.g. 8%"}}},
	}
	g.MergePlaceholders(placeholders)

	if g.Cells[0][0].Placeholder != "e.g. 8%" {
		t.Errorf("Placeholder = %q", g.Cells[0][0].Placeholder)
	}
	if g.Cells[1][0].Placeholder != "" {
		t.Errorf("uncovered cell got placeholder %q", g.Cells[1][0].Placeholder)
	}
}

// --- ApplySubmission ---

func TestApplySubmission_brokerRoutesToSubmittedSide(t *testing.T) {
	rows, cols := testHeaders()
	g := NewGrid(rows, cols, Capabilities{})
	g.Cells[0][0].PublicValue = map[string]string{"text": "5%"}

	submitted := [][]model.MatrixCell{
		{
			{Value: map[string]string{"text": "8%"}, PublicValue: map[string]string{"text": "99%"}},
			{Value: map[string]string{"text": "10%"}},
		},
	}
	if err := g.ApplySubmission(submitted, model.RoleBroker); err != nil {
		t.Fatalf("ApplySubmission error: %v", err)
	}

	if g.Cells[0][0].Value["text"] != "8%" {
		t.Errorf("Value = %v", g.Cells[0][0].Value)
	}
	// The published side a broker submission carries is ignored.
	if g.Cells[0][0].PublicValue["text"] != "5%" {
		t.Errorf("PublicValue = %v, want untouched 5%%", g.Cells[0][0].PublicValue)
	}
	if g.Cells[0][1].Value["text"] != "10%" {
		t.Errorf("second cell Value = %v", g.Cells[0][1].Value)
	}
}

func TestApplySubmission_adminRoutesToPublishedSide(t *testing.T) {
	rows, cols := testHeaders()
	g := NewGrid(rows, cols, Capabilities{})
	g.Cells[0][0].Value = map[string]string{"text": "8%"}

	submitted := [][]model.MatrixCell{
		{{PublicValue: map[string]string{"text": "7%"}}},
	}
	if err := g.ApplySubmission(submitted, model.RoleAdmin); err != nil {
		t.Fatalf("ApplySubmission error: %v", err)
	}

	if g.Cells[0][0].PublicValue["text"] != "7%" {
		t.Errorf("PublicValue = %v", g.Cells[0][0].PublicValue)
	}
	if g.Cells[0][0].Value["text"] != "8%" {
		t.Errorf("admin submission touched Value: %v", g.Cells[0][0].Value)
	}
}

func TestApplySubmission_oversizedPayloadIsClipped(t *testing.T) {
	g := NewGrid(
		[]model.RowHeader{{Slug: "r"}},
		[]model.ColumnHeader{{Slug: "c"}},
		Capabilities{},
	)

	submitted := [][]model.MatrixCell{
		{
			{Value: map[string]string{"text": "a"}},
			{Value: map[string]string{"text": "extra col"}},
		},
		{{Value: map[string]string{"text": "extra row"}}},
	}
	if err := g.ApplySubmission(submitted, model.RoleBroker); err != nil {
		t.Fatalf("ApplySubmission error: %v", err)
	}
	if g.Cells[0][0].Value["text"] != "a" {
		t.Errorf("Value = %v", g.Cells[0][0].Value)
	}
}

// --- ApplyExtras ---

func TestApplyExtras_roleRouting(t *testing.T) {
	rows, cols := testHeaders()
	g := NewGrid(rows, cols, Capabilities{})
	g.Extras = model.MatrixExtras{
		AffiliateLink: model.DualScalar{Submitted: "https://aff/old", Published: "https://aff/live"},
	}

	g.ApplyExtras(model.MatrixExtras{
		AffiliateLink: model.DualScalar{Submitted: "https://aff/new", Published: "https://aff/hack"},
	}, model.RoleBroker)

	if g.Extras.AffiliateLink.Submitted != "https://aff/new" {
		t.Errorf("Submitted = %q", g.Extras.AffiliateLink.Submitted)
	}
	if g.Extras.AffiliateLink.Published != "https://aff/live" {
		t.Errorf("broker extras touched Published: %q", g.Extras.AffiliateLink.Published)
	}

	g.ApplyExtras(model.MatrixExtras{
		AffiliateLink: model.DualScalar{Published: "https://aff/next"},
	}, model.RoleAdmin)

	if g.Extras.AffiliateLink.Published != "https://aff/next" {
		t.Errorf("Published = %q", g.Extras.AffiliateLink.Published)
	}
	if g.Extras.AffiliateLink.Submitted != "https://aff/new" {
		t.Errorf("admin extras touched Submitted: %q", g.Extras.AffiliateLink.Submitted)
	}
}
