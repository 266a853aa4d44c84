package resource

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/softrade/brokerdesk/internal/observability"
	"github.com/softrade/brokerdesk/internal/schema"
	"github.com/softrade/brokerdesk/internal/table"
	"github.com/softrade/brokerdesk/model"
)

// Backend is the slice of the rebate API client the provider needs.
type Backend interface {
	ListResource(ctx context.Context, resource string, query map[string]string) (*model.Envelope, error)
	SaveResource(ctx context.Context, resource string, body map[string]any) (*model.Envelope, error)
	DeleteResource(ctx context.Context, resource, id string) error
	ToggleResource(ctx context.Context, resource, id string) error
}

// ListResult is one resolved page of a resource listing: the table metadata,
// the formatted rows, and the effective query after filter replay and page
// clamping.
type ListResult struct {
	Descriptor model.TableDescriptor `json:"descriptor"`
	Data       model.TableData       `json:"data"`
	Query      table.Query           `json:"-"`
}

// Provider resolves resource listings, forms, and mutations. All listing
// shape (columns, filters, form fields) comes from the rebate service's
// envelope at request time; the provider owns query state, filter memory,
// formatting, and client-side validation.
type Provider struct {
	registry  *Registry
	backend   Backend
	filters   table.FilterStore
	filterTTL time.Duration
	schemas   *schema.Generator
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// NewProvider creates a Provider. A nil logger is replaced with a no-op.
func NewProvider(
	registry *Registry,
	backend Backend,
	filters table.FilterStore,
	filterTTL time.Duration,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		registry:  registry,
		backend:   backend,
		filters:   filters,
		filterTTL: filterTTL,
		schemas:   schema.NewGenerator(logger, metrics),
		logger:    logger,
		metrics:   metrics,
	}
}

// List fetches and resolves one page of a resource listing. Remembered
// filters replay into the query before the backend call; the applied filter
// state is persisted afterwards so it survives navigation. An out-of-range
// page is clamped and re-fetched once.
func (p *Provider) List(ctx context.Context, caps model.CapabilitySet, key string, values url.Values) (ListResult, error) {
	def, ok := p.registry.Get(key)
	if !ok {
		return ListResult{}, model.NewNotFoundError(fmt.Sprintf("unknown resource %q", key))
	}
	if err := allow(caps, def.Capabilities.View); err != nil {
		return ListResult{}, err
	}

	subject := subjectID(ctx)
	q := table.ParseQuery(values)

	if stored, found, err := p.filters.Get(ctx, subject, def.Key); err != nil {
		p.logger.Warn("filter store read failed",
			zap.String("resource", def.Key), zap.Error(err))
	} else if found {
		var replayed bool
		q, replayed = table.ReplayFilters(q, stored)
		if replayed && p.metrics != nil {
			p.metrics.RecordFilterReplay(def.Key)
		}
	}

	env, err := p.backend.ListResource(ctx, def.Backend.Resource, queryParams(q))
	if err != nil {
		p.recordRequest(def.Key, "list", "error")
		return ListResult{}, err
	}

	pg := paginationFor(env, q)
	if clamped := table.ClampPage(q, pg); clamped.Page != q.Page {
		q = clamped
		env, err = p.backend.ListResource(ctx, def.Backend.Resource, queryParams(q))
		if err != nil {
			p.recordRequest(def.Key, "list", "error")
			return ListResult{}, err
		}
		pg = paginationFor(env, q)
	}

	desc, err := table.Resolve(def.Key, def.Title, env.TableColumnsConfig, env.FiltersConfig, def.Actions)
	if err != nil {
		p.recordRequest(def.Key, "list", "error")
		return ListResult{}, err
	}
	for i := range desc.Filters {
		desc.Filters[i].Value = q.Filters[desc.Filters[i].Field]
	}
	desc.PerPage = q.PerPage
	desc.DefaultSort = q.OrderBy
	desc.SortDir = q.OrderDirection

	rows := table.FormatRows(env.Rows(), desc, q)

	if err := p.filters.Put(ctx, subject, def.Key, q.Filters, p.filterTTL); err != nil {
		p.logger.Warn("filter store write failed",
			zap.String("resource", def.Key), zap.Error(err))
	}

	p.recordRequest(def.Key, "list", "ok")
	return ListResult{
		Descriptor: desc,
		Data:       model.TableData{Rows: rows, Pagination: pg},
		Query:      q,
	}, nil
}

// Form resolves the create or edit form for a resource. The field tree comes
// from the listing envelope's form_config; a resource without one has no
// form, which is a structural NOT_FOUND rather than a validation problem.
// For an edit form, recordID selects the record whose values prefill the
// controls.
func (p *Provider) Form(ctx context.Context, caps model.CapabilitySet, key, recordID string) (model.FormDescriptor, error) {
	def, ok := p.registry.Get(key)
	if !ok {
		return model.FormDescriptor{}, model.NewNotFoundError(fmt.Sprintf("unknown resource %q", key))
	}
	if err := allow(caps, def.Capabilities.Edit); err != nil {
		return model.FormDescriptor{}, err
	}

	env, err := p.fetchFormConfig(ctx, def, recordID)
	if err != nil {
		p.recordRequest(def.Key, "form", "error")
		return model.FormDescriptor{}, err
	}

	compiled := p.schemas.Build(env.FormConfig)
	if p.metrics != nil {
		p.metrics.RecordSchemaGeneration(def.Key)
	}

	desc := model.FormDescriptor{
		Key:      def.Key,
		Title:    def.Title,
		Fields:   controlsFor(env.FormConfig),
		Schema:   compiled.Describe(),
		SubmitTo: "/ui/resources/" + def.Key + "/save",
	}
	if recordID != "" {
		if rows := env.Rows(); len(rows) > 0 {
			desc.Values = rows[0]
		}
	}

	p.recordRequest(def.Key, "form", "ok")
	return desc, nil
}

// Save validates a submitted payload against the generated schema and, only
// when it passes, forwards it to the rebate service. Invalid payloads never
// reach the network. The returned message is the service's own confirmation
// text.
func (p *Provider) Save(ctx context.Context, caps model.CapabilitySet, key string, payload map[string]any) (string, error) {
	def, ok := p.registry.Get(key)
	if !ok {
		return "", model.NewNotFoundError(fmt.Sprintf("unknown resource %q", key))
	}
	if err := allow(caps, def.Capabilities.Edit); err != nil {
		return "", err
	}

	env, err := p.fetchFormConfig(ctx, def, "")
	if err != nil {
		p.recordRequest(def.Key, "save", "error")
		return "", err
	}

	compiled := p.schemas.Build(env.FormConfig)
	if errs := compiled.Validate(payload); len(errs) > 0 {
		if p.metrics != nil {
			p.metrics.RecordResourceSaveFailure(def.Key, "validation")
		}
		return "", model.NewValidationError(errs)
	}

	saved, err := p.backend.SaveResource(ctx, def.Backend.Resource, payload)
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordResourceSaveFailure(def.Key, "backend")
		}
		p.recordRequest(def.Key, "save", "error")
		return "", err
	}

	p.recordRequest(def.Key, "save", "ok")
	return saved.Message, nil
}

// Delete removes one record.
func (p *Provider) Delete(ctx context.Context, caps model.CapabilitySet, key, id string) error {
	def, ok := p.registry.Get(key)
	if !ok {
		return model.NewNotFoundError(fmt.Sprintf("unknown resource %q", key))
	}
	if err := allow(caps, def.Capabilities.Delete); err != nil {
		return err
	}
	if id == "" {
		return model.NewBadRequestError("record id is required")
	}

	if err := p.backend.DeleteResource(ctx, def.Backend.Resource, id); err != nil {
		p.recordRequest(def.Key, "delete", "error")
		return err
	}
	p.recordRequest(def.Key, "delete", "ok")
	return nil
}

// Toggle flips a record's active flag. Only resources that declare
// themselves toggleable accept it.
func (p *Provider) Toggle(ctx context.Context, caps model.CapabilitySet, key, id string) error {
	def, ok := p.registry.Get(key)
	if !ok {
		return model.NewNotFoundError(fmt.Sprintf("unknown resource %q", key))
	}
	if !def.Toggleable {
		return model.NewBadRequestError(fmt.Sprintf("resource %q does not support toggling", key))
	}
	if err := allow(caps, def.Capabilities.Toggle); err != nil {
		return err
	}
	if id == "" {
		return model.NewBadRequestError("record id is required")
	}

	if err := p.backend.ToggleResource(ctx, def.Backend.Resource, id); err != nil {
		p.recordRequest(def.Key, "toggle", "error")
		return err
	}
	p.recordRequest(def.Key, "toggle", "ok")
	return nil
}

// ClearFilter forgets one remembered filter field for the calling subject.
// The next listing request no longer replays it.
func (p *Provider) ClearFilter(ctx context.Context, key, field string) error {
	def, ok := p.registry.Get(key)
	if !ok {
		return model.NewNotFoundError(fmt.Sprintf("unknown resource %q", key))
	}
	if field == "" {
		return model.NewBadRequestError("filter field is required")
	}
	return p.filters.DeleteField(ctx, subjectID(ctx), def.Key, field)
}

// fetchFormConfig fetches a minimal listing page to obtain the resource's
// form_config. When recordID is set the listing is filtered to that record
// so its values can prefill an edit form.
func (p *Provider) fetchFormConfig(ctx context.Context, def Definition, recordID string) (*model.Envelope, error) {
	query := map[string]string{"per_page": "1"}
	if recordID != "" {
		query["id"] = recordID
	}
	env, err := p.backend.ListResource(ctx, def.Backend.Resource, query)
	if err != nil {
		return nil, err
	}
	if len(env.FormConfig) == 0 {
		return nil, model.NewNotFoundError(fmt.Sprintf("resource %q has no form configuration", def.Key))
	}
	return env, nil
}

func (p *Provider) recordRequest(resource, operation, status string) {
	if p.metrics != nil {
		p.metrics.RecordResourceRequest(resource, operation, status)
	}
}

// controlsFor flattens the sectioned form_config into an ordered control
// list. Sections group fields visually only; ordering is sorted section key
// then sorted field key, matching schema compilation order.
func controlsFor(tree map[string]map[string]model.FieldDefinition) []model.ControlDescriptor {
	var controls []model.ControlDescriptor
	for _, sectionKey := range sortedKeys(tree) {
		for _, fieldKey := range sortedKeys(tree[sectionKey]) {
			controls = append(controls, controlFor(fieldKey, tree[sectionKey][fieldKey]))
		}
	}
	return controls
}

func controlFor(key string, def model.FieldDefinition) model.ControlDescriptor {
	ctrl := model.ControlDescriptor{
		Field:    key,
		Label:    def.Label,
		Control:  def.Type,
		Required: def.Required(),
		Options:  def.Options,
	}
	if ctrl.Label == "" {
		ctrl.Label = key
	}
	if ctrl.Control == "" {
		ctrl.Control = model.FieldTypeText
	}
	for _, childKey := range sortedKeys(def.Fields) {
		ctrl.Fields = append(ctrl.Fields, controlFor(childKey, def.Fields[childKey]))
	}
	return ctrl
}

// queryParams flattens the table query into the parameter map the generic
// listing endpoint expects.
func queryParams(q table.Query) map[string]string {
	params := map[string]string{
		"page":     strconv.Itoa(q.Page),
		"per_page": strconv.Itoa(q.PerPage),
	}
	if q.OrderBy != "" && q.OrderDirection != "" {
		params["order_by"] = q.OrderBy
		params["order_direction"] = q.OrderDirection
	}
	for k, v := range q.Filters {
		params[k] = v
	}
	return params
}

// paginationFor uses the envelope's pagination when present and synthesizes
// a single-page window otherwise.
func paginationFor(env *model.Envelope, q table.Query) model.Pagination {
	if env.Pagination != nil {
		return *env.Pagination
	}
	total := len(env.Rows())
	pg := model.Pagination{
		CurrentPage: 1,
		LastPage:    1,
		PerPage:     q.PerPage,
		Total:       total,
	}
	if total > 0 {
		pg.From = 1
		pg.To = total
	}
	return pg
}

func allow(caps model.CapabilitySet, required string) error {
	if required == "" || caps.Has(required) {
		return nil
	}
	return model.NewForbiddenError("You do not have permission to perform this action")
}

func subjectID(ctx context.Context) string {
	if rctx := model.RequestContextFrom(ctx); rctx != nil {
		return rctx.SubjectID
	}
	return ""
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
