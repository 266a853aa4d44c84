package resource

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/softrade/brokerdesk/internal/table"
	"github.com/softrade/brokerdesk/model"
)

type listCall struct {
	resource string
	query    map[string]string
}

type fakeBackend struct {
	envelope  *model.Envelope
	listErr   error
	saveErr   error
	deleteErr error
	toggleErr error

	listCalls   []listCall
	savedBodies []map[string]any
	deletedIDs  []string
	toggledIDs  []string
}

func (f *fakeBackend) ListResource(_ context.Context, resource string, query map[string]string) (*model.Envelope, error) {
	f.listCalls = append(f.listCalls, listCall{resource: resource, query: query})
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.envelope, nil
}

func (f *fakeBackend) SaveResource(_ context.Context, resource string, body map[string]any) (*model.Envelope, error) {
	f.savedBodies = append(f.savedBodies, body)
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	return &model.Envelope{Success: true, Message: "Saved successfully"}, nil
}

func (f *fakeBackend) DeleteResource(_ context.Context, _, id string) error {
	f.deletedIDs = append(f.deletedIDs, id)
	return f.deleteErr
}

func (f *fakeBackend) ToggleResource(_ context.Context, _, id string) error {
	f.toggledIDs = append(f.toggledIDs, id)
	return f.toggleErr
}

func listEnvelope(rows []map[string]any, pg *model.Pagination) *model.Envelope {
	raw, _ := json.Marshal(rows)
	return &model.Envelope{
		Success:    true,
		Data:       raw,
		Pagination: pg,
		TableColumnsConfig: map[string]model.ColumnConfig{
			"name":   {Label: "Name", DataType: model.DataTypeText, Visible: true, Sortable: true},
			"active": {Label: "Active", DataType: model.DataTypeBoolean, Visible: true},
		},
		FiltersConfig: map[string]model.FilterConfig{
			"status": {Kind: model.FilterKindSelect, Label: "Status", Options: []model.SelectOption{
				{Label: "Active", Value: "active"},
				{Label: "Inactive", Value: "inactive"},
			}},
		},
		FormConfig: map[string]map[string]model.FieldDefinition{
			"general": {
				"name": {Type: model.FieldTypeText, Label: "Name"},
				"min_deposit": {Type: model.FieldTypeNumber, Label: "Minimum Deposit",
					Validation: map[string]any{"required": false, "min": 5.0}},
			},
		},
	}
}

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry([]Definition{
		{
			Key:        "brokers",
			Title:      "Brokers",
			Backend:    BackendBinding{Resource: "brokers"},
			Toggleable: true,
			Capabilities: CapabilityBinding{
				View:   "brokers:view",
				Edit:   "brokers:edit",
				Delete: "brokers:delete",
				Toggle: "brokers:edit",
			},
			Actions: []model.ActionDescriptor{{ID: "edit", Label: "Edit", Type: "edit"}},
		},
		{Key: "payouts", Title: "Payouts", Backend: BackendBinding{Resource: "payouts"}},
	})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return r
}

func newTestProvider(t *testing.T, backend Backend) (*Provider, *table.MemoryFilterStore) {
	t.Helper()
	filters := table.NewMemoryFilterStore()
	p := NewProvider(testRegistry(t), backend, filters, time.Hour, nil, nil)
	return p, filters
}

func testCtx() context.Context {
	return model.WithRequestContext(context.Background(), &model.RequestContext{SubjectID: "user-1"})
}

func adminCaps() model.CapabilitySet {
	return model.CapabilitySet{"*": true}
}

// --- List ---

func TestProvider_List(t *testing.T) {
	backend := &fakeBackend{envelope: listEnvelope(
		[]map[string]any{
			{"id": "b-1", "name": "Acme Markets", "active": true},
			{"id": "b-2", "name": "Globex", "active": false},
		},
		&model.Pagination{CurrentPage: 1, LastPage: 4, PerPage: 15, Total: 52, From: 1, To: 15},
	)}
	p, _ := newTestProvider(t, backend)

	result, err := p.List(testCtx(), adminCaps(), "brokers", url.Values{"status": {"active"}})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	if result.Descriptor.Key != "brokers" {
		t.Errorf("Descriptor.Key = %q", result.Descriptor.Key)
	}
	// Row number, name, active, actions.
	if len(result.Descriptor.Columns) != 4 {
		t.Fatalf("Columns = %d, want 4", len(result.Descriptor.Columns))
	}
	if len(result.Data.Rows) != 2 {
		t.Fatalf("Rows = %d, want 2", len(result.Data.Rows))
	}
	if result.Data.Rows[0]["name"].Display != "Acme Markets" {
		t.Errorf("name cell = %q", result.Data.Rows[0]["name"].Display)
	}
	if result.Data.Rows[1]["active"].Display != "No" {
		t.Errorf("active cell = %q", result.Data.Rows[1]["active"].Display)
	}
	if result.Data.Pagination.Total != 52 {
		t.Errorf("Total = %d, want 52", result.Data.Pagination.Total)
	}

	call := backend.listCalls[0]
	if call.resource != "brokers" {
		t.Errorf("backend resource = %q", call.resource)
	}
	if call.query["status"] != "active" {
		t.Errorf("status param = %q, want active", call.query["status"])
	}
}

func TestProvider_List_descriptor_carries_active_filter_values(t *testing.T) {
	backend := &fakeBackend{envelope: listEnvelope(nil, nil)}
	p, _ := newTestProvider(t, backend)

	result, err := p.List(testCtx(), adminCaps(), "brokers", url.Values{"status": {"inactive"}})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(result.Descriptor.Filters) != 1 {
		t.Fatalf("Filters = %d, want 1", len(result.Descriptor.Filters))
	}
	if result.Descriptor.Filters[0].Value != "inactive" {
		t.Errorf("filter value = %q, want inactive", result.Descriptor.Filters[0].Value)
	}
}

func TestProvider_List_persists_and_replays_filters(t *testing.T) {
	backend := &fakeBackend{envelope: listEnvelope(nil, nil)}
	p, _ := newTestProvider(t, backend)
	ctx := testCtx()

	if _, err := p.List(ctx, adminCaps(), "brokers", url.Values{"status": {"active"}}); err != nil {
		t.Fatalf("List() error = %v", err)
	}

	// A later request without the filter gets it replayed.
	if _, err := p.List(ctx, adminCaps(), "brokers", url.Values{}); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	second := backend.listCalls[1]
	if second.query["status"] != "active" {
		t.Errorf("replayed status = %q, want active", second.query["status"])
	}

	// An explicit value wins over the remembered one.
	if _, err := p.List(ctx, adminCaps(), "brokers", url.Values{"status": {"inactive"}}); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	third := backend.listCalls[2]
	if third.query["status"] != "inactive" {
		t.Errorf("explicit status = %q, want inactive", third.query["status"])
	}
}

func TestProvider_List_clamps_out_of_range_page(t *testing.T) {
	backend := &fakeBackend{envelope: listEnvelope(nil,
		&model.Pagination{CurrentPage: 3, LastPage: 3, PerPage: 15, Total: 45})}
	p, _ := newTestProvider(t, backend)

	result, err := p.List(testCtx(), adminCaps(), "brokers", url.Values{"page": {"99"}})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(backend.listCalls) != 2 {
		t.Fatalf("backend calls = %d, want 2 (original plus clamped re-fetch)", len(backend.listCalls))
	}
	if backend.listCalls[1].query["page"] != "3" {
		t.Errorf("re-fetch page = %q, want 3", backend.listCalls[1].query["page"])
	}
	if result.Query.Page != 3 {
		t.Errorf("Query.Page = %d, want 3", result.Query.Page)
	}
}

func TestProvider_List_unknown_resource(t *testing.T) {
	p, _ := newTestProvider(t, &fakeBackend{envelope: listEnvelope(nil, nil)})

	_, err := p.List(testCtx(), adminCaps(), "widgets", url.Values{})
	assertErrorCode(t, err, model.ErrNotFound)
}

func TestProvider_List_forbidden(t *testing.T) {
	p, _ := newTestProvider(t, &fakeBackend{envelope: listEnvelope(nil, nil)})

	_, err := p.List(testCtx(), model.CapabilitySet{"payouts:view": true}, "brokers", url.Values{})
	assertErrorCode(t, err, model.ErrForbidden)
}

func TestProvider_List_backend_error_passes_through(t *testing.T) {
	backend := &fakeBackend{listErr: model.NewBackendUnavailableError()}
	p, _ := newTestProvider(t, backend)

	_, err := p.List(testCtx(), adminCaps(), "brokers", url.Values{})
	assertErrorCode(t, err, model.ErrBackendUnavailable)
}

func TestProvider_List_open_resource_needs_no_capability(t *testing.T) {
	p, _ := newTestProvider(t, &fakeBackend{envelope: listEnvelope(nil, nil)})

	if _, err := p.List(testCtx(), model.CapabilitySet{}, "payouts", url.Values{}); err != nil {
		t.Fatalf("List() error = %v", err)
	}
}

// --- Form ---

func TestProvider_Form(t *testing.T) {
	backend := &fakeBackend{envelope: listEnvelope(nil, nil)}
	p, _ := newTestProvider(t, backend)

	desc, err := p.Form(testCtx(), adminCaps(), "brokers", "")
	if err != nil {
		t.Fatalf("Form() error = %v", err)
	}

	if desc.SubmitTo != "/ui/resources/brokers/save" {
		t.Errorf("SubmitTo = %q", desc.SubmitTo)
	}
	if len(desc.Fields) != 2 {
		t.Fatalf("Fields = %d, want 2", len(desc.Fields))
	}
	// Sorted field order within the section.
	if desc.Fields[0].Field != "min_deposit" || desc.Fields[1].Field != "name" {
		t.Errorf("field order = %q, %q", desc.Fields[0].Field, desc.Fields[1].Field)
	}
	if desc.Fields[1].Control != model.FieldTypeText {
		t.Errorf("name control = %q", desc.Fields[1].Control)
	}
	if !desc.Fields[1].Required {
		t.Error("name should be required by default")
	}
	if desc.Fields[0].Required {
		t.Error("min_deposit is explicitly optional")
	}
	if _, ok := desc.Schema["name"]; !ok {
		t.Error("Schema should contain name")
	}
	if desc.Values != nil {
		t.Errorf("create form should carry no values, got %v", desc.Values)
	}
}

func TestProvider_Form_edit_prefills_values(t *testing.T) {
	backend := &fakeBackend{envelope: listEnvelope(
		[]map[string]any{{"id": "b-1", "name": "Acme Markets"}}, nil)}
	p, _ := newTestProvider(t, backend)

	desc, err := p.Form(testCtx(), adminCaps(), "brokers", "b-1")
	if err != nil {
		t.Fatalf("Form() error = %v", err)
	}
	if desc.Values["name"] != "Acme Markets" {
		t.Errorf("Values[name] = %v", desc.Values["name"])
	}
	if backend.listCalls[0].query["id"] != "b-1" {
		t.Errorf("id param = %q, want b-1", backend.listCalls[0].query["id"])
	}
}

func TestProvider_Form_without_form_config(t *testing.T) {
	env := listEnvelope(nil, nil)
	env.FormConfig = nil
	p, _ := newTestProvider(t, &fakeBackend{envelope: env})

	_, err := p.Form(testCtx(), adminCaps(), "brokers", "")
	assertErrorCode(t, err, model.ErrNotFound)
}

// --- Save ---

func TestProvider_Save(t *testing.T) {
	backend := &fakeBackend{envelope: listEnvelope(nil, nil)}
	p, _ := newTestProvider(t, backend)

	msg, err := p.Save(testCtx(), adminCaps(), "brokers", map[string]any{
		"name":        "Acme Markets",
		"min_deposit": "25",
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if msg != "Saved successfully" {
		t.Errorf("message = %q", msg)
	}
	if len(backend.savedBodies) != 1 {
		t.Fatalf("saved bodies = %d, want 1", len(backend.savedBodies))
	}
}

func TestProvider_Save_invalid_payload_never_reaches_backend(t *testing.T) {
	backend := &fakeBackend{envelope: listEnvelope(nil, nil)}
	p, _ := newTestProvider(t, backend)

	_, err := p.Save(testCtx(), adminCaps(), "brokers", map[string]any{
		"min_deposit": "2",
	})
	var envErr *model.ErrorEnvelope
	if !errors.As(err, &envErr) {
		t.Fatalf("Save() error = %v, want ErrorEnvelope", err)
	}
	if envErr.Code != model.ErrValidationError {
		t.Errorf("Code = %q, want %q", envErr.Code, model.ErrValidationError)
	}
	if len(envErr.Details) == 0 {
		t.Error("validation error should carry field details")
	}
	if len(backend.savedBodies) != 0 {
		t.Errorf("save calls = %d, want 0", len(backend.savedBodies))
	}
}

func TestProvider_Save_backend_rejection_passes_through(t *testing.T) {
	backend := &fakeBackend{
		envelope: listEnvelope(nil, nil),
		saveErr:  model.NewBackendRejectedError("Broker name already taken"),
	}
	p, _ := newTestProvider(t, backend)

	_, err := p.Save(testCtx(), adminCaps(), "brokers", map[string]any{"name": "Acme Markets"})
	var envErr *model.ErrorEnvelope
	if !errors.As(err, &envErr) {
		t.Fatalf("Save() error = %v, want ErrorEnvelope", err)
	}
	if envErr.Message != "Broker name already taken" {
		t.Errorf("Message = %q", envErr.Message)
	}
}

// --- Delete / Toggle ---

func TestProvider_Delete(t *testing.T) {
	backend := &fakeBackend{envelope: listEnvelope(nil, nil)}
	p, _ := newTestProvider(t, backend)

	if err := p.Delete(testCtx(), adminCaps(), "brokers", "b-1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(backend.deletedIDs) != 1 || backend.deletedIDs[0] != "b-1" {
		t.Errorf("deletedIDs = %v", backend.deletedIDs)
	}

	err := p.Delete(testCtx(), adminCaps(), "brokers", "")
	assertErrorCode(t, err, model.ErrBadRequest)
}

func TestProvider_Toggle(t *testing.T) {
	backend := &fakeBackend{envelope: listEnvelope(nil, nil)}
	p, _ := newTestProvider(t, backend)

	if err := p.Toggle(testCtx(), adminCaps(), "brokers", "b-1"); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if len(backend.toggledIDs) != 1 {
		t.Errorf("toggledIDs = %v", backend.toggledIDs)
	}

	// payouts does not declare itself toggleable.
	err := p.Toggle(testCtx(), adminCaps(), "payouts", "p-1")
	assertErrorCode(t, err, model.ErrBadRequest)
}

// --- ClearFilter ---

func TestProvider_ClearFilter(t *testing.T) {
	backend := &fakeBackend{envelope: listEnvelope(nil, nil)}
	p, _ := newTestProvider(t, backend)
	ctx := testCtx()

	if _, err := p.List(ctx, adminCaps(), "brokers", url.Values{"status": {"active"}}); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if err := p.ClearFilter(ctx, "brokers", "status"); err != nil {
		t.Fatalf("ClearFilter() error = %v", err)
	}

	if _, err := p.List(ctx, adminCaps(), "brokers", url.Values{}); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	last := backend.listCalls[len(backend.listCalls)-1]
	if _, ok := last.query["status"]; ok {
		t.Errorf("cleared filter should not replay, got %q", last.query["status"])
	}
}

func assertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var envErr *model.ErrorEnvelope
	if !errors.As(err, &envErr) {
		t.Fatalf("error = %v, want ErrorEnvelope", err)
	}
	if envErr.Code != code {
		t.Errorf("Code = %q, want %q", envErr.Code, code)
	}
}
