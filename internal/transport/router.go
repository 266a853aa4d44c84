package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/softrade/brokerdesk/internal/config"
	"github.com/softrade/brokerdesk/internal/matrix"
	"github.com/softrade/brokerdesk/internal/observability"
	"github.com/softrade/brokerdesk/internal/resource"
	"github.com/softrade/brokerdesk/model"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config             *config.Config
	Authenticate       func(http.Handler) http.Handler
	CapabilityResolver model.CapabilityResolver
	Resources          *resource.Provider
	Matrix             *matrix.Engine
	Options            OptionBackend
	Metrics            *observability.Metrics
	Ready              observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, and metrics endpoints bypass the
// authentication middleware.
func NewRouter(deps Dependencies) chi.Router {
	r := chi.NewRouter()

	r.Use(Recovery)
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	// Public routes bypass authentication.
	r.Get("/ui/health", observability.HandleHealth())
	r.Get("/ui/ready", observability.HandleReady(deps.Ready))
	r.Method(http.MethodGet, "/metrics", observability.Handler())

	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(BuildRequestContext(deps.Config.Identity.ClaimPaths))
		r.Use(ResolveCapabilities(deps.CapabilityResolver))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging)
		r.Use(observability.TracingMiddleware)
		if deps.Metrics != nil {
			r.Use(deps.Metrics.MetricsMiddleware)
		}

		r.Get("/ui/resources/{key}", handleResourceDescriptor(deps.Resources))
		r.Get("/ui/resources/{key}/data", handleResourceData(deps.Resources))
		r.Get("/ui/resources/{key}/form", handleResourceForm(deps.Resources))
		r.Post("/ui/resources/{key}/save", handleResourceSave(deps.Resources))
		r.Delete("/ui/resources/{key}/{id}", handleResourceDelete(deps.Resources))
		r.Post("/ui/resources/{key}/{id}/toggle", handleResourceToggle(deps.Resources))
		r.Delete("/ui/resources/{key}/filters/{field}", handleResourceClearFilter(deps.Resources))

		r.Get("/ui/matrix/headers", handleMatrixHeaders(deps.Matrix))
		r.Get("/ui/matrix/data", handleMatrixData(deps.Matrix))
		r.Post("/ui/matrix/save", handleMatrixSave(deps.Matrix))
		r.Post("/ui/matrix/copy-forward", handleMatrixCopyForward(deps.Matrix))
		r.Post("/ui/matrix/draft", handleMatrixDraftStore(deps.Matrix))
		r.Get("/ui/matrix/draft", handleMatrixDraftGet(deps.Matrix))

		r.Get("/ui/options/{category}", handleOptionForm(deps.Options))
		r.Post("/ui/options/{category}/submit", handleOptionSubmit(deps.Options))
	})

	return r
}
