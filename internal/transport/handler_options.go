package transport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/softrade/brokerdesk/internal/optionform"
	"github.com/softrade/brokerdesk/model"
)

// OptionBackend is the slice of the rebate service client the option form
// handlers need.
type OptionBackend interface {
	ListOptions(ctx context.Context, category string) ([]model.Option, []model.OptionValue, error)
	SaveOptionValues(ctx context.Context, category string, values map[string]any) error
}

func handleOptionForm(backend OptionBackend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		caps := CapabilitiesFrom(r.Context())
		category := chi.URLParam(r, "category")

		options, values, err := backend.ListOptions(r.Context(), category)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		desc := optionform.Resolve(category, category, options, values, model.RoleFor(caps))
		WriteJSON(w, http.StatusOK, desc)
	}
}

func handleOptionSubmit(backend OptionBackend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		category := chi.URLParam(r, "category")

		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			WriteError(w, r, model.NewBadRequestError("Request body must be a JSON object"))
			return
		}

		options, _, err := backend.ListOptions(r.Context(), category)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		// Validate the typed payload first; flattening is transport encoding
		// and would turn booleans and selections into strings.
		if errs := optionform.BuildSchema(options).Validate(payload); len(errs) > 0 {
			WriteError(w, r, model.NewValidationError(errs))
			return
		}

		if err := backend.SaveOptionValues(r.Context(), category, optionform.FlattenPayload(payload)); err != nil {
			WriteError(w, r, err)
			return
		}
		WriteMessage(w, http.StatusOK, "Saved successfully")
	}
}
