package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/softrade/brokerdesk/internal/resource"
	"github.com/softrade/brokerdesk/model"
)

func handleResourceDescriptor(resources *resource.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		caps := CapabilitiesFrom(r.Context())
		key := chi.URLParam(r, "key")

		result, err := resources.List(r.Context(), caps, key, r.URL.Query())
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, result)
	}
}

func handleResourceData(resources *resource.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		caps := CapabilitiesFrom(r.Context())
		key := chi.URLParam(r, "key")

		result, err := resources.List(r.Context(), caps, key, r.URL.Query())
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, result.Data)
	}
}

func handleResourceForm(resources *resource.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		caps := CapabilitiesFrom(r.Context())
		key := chi.URLParam(r, "key")
		recordID := r.URL.Query().Get("id")

		desc, err := resources.Form(r.Context(), caps, key, recordID)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, desc)
	}
}

func handleResourceSave(resources *resource.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		caps := CapabilitiesFrom(r.Context())
		key := chi.URLParam(r, "key")

		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			WriteError(w, r, model.NewBadRequestError("Request body must be a JSON object"))
			return
		}

		msg, err := resources.Save(r.Context(), caps, key, payload)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteMessage(w, http.StatusOK, msg)
	}
}

func handleResourceDelete(resources *resource.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		caps := CapabilitiesFrom(r.Context())
		key := chi.URLParam(r, "key")
		id := chi.URLParam(r, "id")

		if err := resources.Delete(r.Context(), caps, key, id); err != nil {
			WriteError(w, r, err)
			return
		}
		WriteMessage(w, http.StatusOK, "Deleted successfully")
	}
}

func handleResourceToggle(resources *resource.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		caps := CapabilitiesFrom(r.Context())
		key := chi.URLParam(r, "key")
		id := chi.URLParam(r, "id")

		if err := resources.Toggle(r.Context(), caps, key, id); err != nil {
			WriteError(w, r, err)
			return
		}
		WriteMessage(w, http.StatusOK, "Status updated")
	}
}

func handleResourceClearFilter(resources *resource.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := model.RequestContextFrom(r.Context())
		if rctx == nil {
			WriteError(w, r, model.NewUnauthorizedError("missing request context"))
			return
		}
		key := chi.URLParam(r, "key")
		field := chi.URLParam(r, "field")

		if err := resources.ClearFilter(r.Context(), key, field); err != nil {
			WriteError(w, r, err)
			return
		}
		WriteMessage(w, http.StatusOK, "Filter cleared")
	}
}
