package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/softrade/brokerdesk/internal/matrix"
	"github.com/softrade/brokerdesk/model"
)

// Operation ids of the rebate API consumed by the dashboard.
const (
	OpListResource       = "listResource"
	OpSaveResource       = "saveResource"
	OpDeleteResource     = "deleteResource"
	OpToggleResource     = "toggleResource"
	OpMatrixHeaders      = "matrixHeaders"
	OpMatrixData         = "matrixData"
	OpMatrixPlaceholders = "matrixPlaceholders"
	OpMatrixSave         = "matrixSave"
	OpListOptions        = "listOptions"
	OpSaveOptionValues   = "saveOptionValues"
)

// ListResource fetches one page of a resource listing. The query map carries
// paging, sort, and filter parameters verbatim; the returned envelope also
// carries the column/filter/form configuration the UI is rendered from.
func (c *Client) ListResource(ctx context.Context, resource string, query map[string]string) (*model.Envelope, error) {
	return c.Call(ctx, OpListResource, CallInput{
		PathParams:  map[string]string{"resource": resource},
		QueryParams: query,
	})
}

// SaveResource creates or updates one record. An editing save carries the
// record id inside the body, matching what the service's form config emits.
func (c *Client) SaveResource(ctx context.Context, resource string, body map[string]any) (*model.Envelope, error) {
	return c.Call(ctx, OpSaveResource, CallInput{
		PathParams: map[string]string{"resource": resource},
		Body:       body,
	})
}

// DeleteResource deletes one record.
func (c *Client) DeleteResource(ctx context.Context, resource, id string) error {
	_, err := c.Call(ctx, OpDeleteResource, CallInput{
		PathParams: map[string]string{"resource": resource, "id": id},
	})
	return err
}

// ToggleResource flips a record's active flag.
func (c *Client) ToggleResource(ctx context.Context, resource, id string) error {
	_, err := c.Call(ctx, OpToggleResource, CallInput{
		PathParams: map[string]string{"resource": resource, "id": id},
	})
	return err
}

// --- matrix operations (implements matrix.Backend) ---

// MatrixHeaders fetches the static grid shape for one (category, step) pair.
func (c *Client) MatrixHeaders(ctx context.Context, q matrix.HeaderQuery) (matrix.Headers, error) {
	env, err := c.Call(ctx, OpMatrixHeaders, CallInput{
		QueryParams: map[string]string{
			"language":  q.Language,
			"col_group": q.ColGroup,
			"row_group": q.RowGroup,
		},
	})
	if err != nil {
		return matrix.Headers{}, err
	}
	var headers matrix.Headers
	if err := decodeData(env, &headers); err != nil {
		return matrix.Headers{}, err
	}
	return headers, nil
}

// MatrixData fetches the persisted cells and extra fields of one matrix
// variant. A placeholder key routes to the placeholder endpoint.
func (c *Client) MatrixData(ctx context.Context, key model.MatrixKey) (matrix.Payload, error) {
	if key.IsPlaceholder {
		return c.MatrixPlaceholders(ctx, key)
	}
	env, err := c.Call(ctx, OpMatrixData, CallInput{
		PathParams:  map[string]string{"broker_id": key.BrokerID},
		QueryParams: matrixQuery(key),
	})
	if err != nil {
		return matrix.Payload{}, err
	}
	return decodePayload(env)
}

// MatrixPlaceholders fetches the placeholder variant, which varies only by
// step and carries no amount.
func (c *Client) MatrixPlaceholders(ctx context.Context, key model.MatrixKey) (matrix.Payload, error) {
	env, err := c.Call(ctx, OpMatrixPlaceholders, CallInput{
		QueryParams: matrixQuery(key),
	})
	if err != nil {
		return matrix.Payload{}, err
	}
	return decodePayload(env)
}

// MatrixSave POSTs the whole grid with its extras and identifying keys.
func (c *Client) MatrixSave(ctx context.Context, payload matrix.SavePayload) error {
	_, err := c.Call(ctx, OpMatrixSave, CallInput{
		PathParams: map[string]string{"broker_id": payload.Key.BrokerID},
		Body: map[string]any{
			"category_id":              payload.Key.CategoryID,
			"step_id":                  payload.Key.StepID,
			"step_slug":                payload.Key.StepSlug,
			"broker_id":                payload.Key.BrokerID,
			"is_placeholder":           strconv.FormatBool(payload.Key.IsPlaceholder),
			"amount_id":                payload.Key.AmountID,
			"zone_id":                  payload.Key.ZoneID,
			"matrix":                   payload.Matrix,
			"sub_options":              payload.SubOptions,
			"affiliate_link":           payload.Extras.AffiliateLink,
			"affiliate_master_link":    payload.Extras.AffiliateMasterLink,
			"evaluation_cost_discount": payload.Extras.EvaluationCostDiscount,
		},
	})
	return err
}

// --- option operations ---

// optionListing is the data shape of the listOptions response.
type optionListing struct {
	Options []model.Option      `json:"options"`
	Values  []model.OptionValue `json:"values"`
}

// ListOptions fetches the option descriptors and stored values for one
// category.
func (c *Client) ListOptions(ctx context.Context, category string) ([]model.Option, []model.OptionValue, error) {
	env, err := c.Call(ctx, OpListOptions, CallInput{
		PathParams: map[string]string{"category": category},
	})
	if err != nil {
		return nil, nil, err
	}
	var listing optionListing
	if err := decodeData(env, &listing); err != nil {
		return nil, nil, err
	}
	return listing.Options, listing.Values, nil
}

// SaveOptionValues submits a flattened option form payload.
func (c *Client) SaveOptionValues(ctx context.Context, category string, values map[string]any) error {
	_, err := c.Call(ctx, OpSaveOptionValues, CallInput{
		PathParams: map[string]string{"category": category},
		Body:       values,
	})
	return err
}

// --- helpers ---

func matrixQuery(key model.MatrixKey) map[string]string {
	return map[string]string{
		"category_id": key.CategoryID,
		"step_id":     key.StepID,
		"language":    key.Language,
		"amount_id":   key.AmountID,
		"zone_id":     key.ZoneID,
	}
}

func decodePayload(env *model.Envelope) (matrix.Payload, error) {
	var payload matrix.Payload
	if err := decodeData(env, &payload); err != nil {
		return matrix.Payload{}, err
	}
	return payload, nil
}

func decodeData(env *model.Envelope, target any) error {
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return fmt.Errorf("backend: decode envelope data: %w", err)
	}
	return nil
}
