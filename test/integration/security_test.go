package integration

import (
	"net/http"
	"testing"

	"github.com/softrade/brokerdesk/internal/backend"
	"github.com/softrade/brokerdesk/model"
)

type errorBody struct {
	Error model.ErrorEnvelope `json:"error"`
}

func TestAuth_missingTokenIsRejected(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GET(t, "/ui/resources/brokers", "")
	AssertStatus(t, resp, http.StatusUnauthorized)

	var body errorBody
	ParseJSON(t, resp, &body)
	if body.Error.Code != "UNAUTHORIZED" {
		t.Errorf("error code = %q, want UNAUTHORIZED", body.Error.Code)
	}
}

func TestAuth_expiredTokenIsRejected(t *testing.T) {
	h := NewTestHarness(t)

	token, err := h.Issuer.GenerateExpiredToken(AdminClaims())
	if err != nil {
		t.Fatalf("generating expired token: %v", err)
	}
	resp := h.GET(t, "/ui/resources/brokers", token)
	AssertStatus(t, resp, http.StatusUnauthorized)
}

func TestAuth_garbageTokenIsRejected(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GET(t, "/ui/resources/brokers", "not.a.jwt")
	AssertStatus(t, resp, http.StatusUnauthorized)
}

func TestAuth_publicEndpointsNeedNoToken(t *testing.T) {
	h := NewTestHarness(t)

	for _, path := range []string{"/ui/health", "/ui/ready", "/metrics"} {
		resp := h.GET(t, path, "")
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestCapability_brokerCannotDelete(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.DELETE(t, "/ui/resources/brokers/1", h.TokenFor(t, BrokerClaims()))
	AssertStatus(t, resp, http.StatusForbidden)

	var body errorBody
	ParseJSON(t, resp, &body)
	if body.Error.Code != "FORBIDDEN" {
		t.Errorf("error code = %q, want FORBIDDEN", body.Error.Code)
	}
	if rec := h.Backend.LastRequest(http.MethodDelete, "/api/brokers/1"); rec != nil {
		t.Error("forbidden delete still reached the backend")
	}
}

func TestCapability_policyDrivenViewDenial(t *testing.T) {
	h := NewTestHarness(t, WithPolicy("roles:\n  broker:\n    - payouts:view\n"))
	h.Backend.RespondWith(backend.OpListResource, http.StatusOK, brokersListing)

	token := h.TokenFor(t, BrokerClaims())
	resp := h.GET(t, "/ui/resources/brokers/data", token)
	AssertStatus(t, resp, http.StatusForbidden)

	resp = h.GET(t, "/ui/resources/payouts/data", token)
	AssertStatus(t, resp, http.StatusOK)
}

func TestSecurityHeaders_onAuthenticatedResponse(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend.RespondWith(backend.OpListResource, http.StatusOK, brokersListing)

	resp := h.GET(t, "/ui/resources/brokers", h.TokenFor(t, AdminClaims()))
	AssertStatus(t, resp, http.StatusOK)

	want := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for header, value := range want {
		if got := resp.Header.Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}
}

func TestCorrelationID_generatedAndEchoed(t *testing.T) {
	h := NewTestHarness(t)

	resp := h.GET(t, "/ui/health", "")
	if resp.Header.Get("X-Correlation-Id") == "" {
		t.Error("response carries no generated correlation id")
	}

	req, err := http.NewRequest(http.MethodGet, h.Server.URL+"/ui/health", nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("X-Correlation-Id", "corr-it-1")
	echo, err := h.Server.Client().Do(req)
	if err != nil {
		t.Fatalf("GET /ui/health: %v", err)
	}
	defer echo.Body.Close()
	if got := echo.Header.Get("X-Correlation-Id"); got != "corr-it-1" {
		t.Errorf("correlation id = %q, want echoed corr-it-1", got)
	}
}

func TestCORS_preflightForAllowedOrigin(t *testing.T) {
	h := NewTestHarness(t)

	req, err := http.NewRequest(http.MethodOptions, h.Server.URL+"/ui/resources/brokers", nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Origin", "https://dashboard.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	resp, err := h.Server.Client().Do(req)
	if err != nil {
		t.Fatalf("preflight request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://dashboard.test" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestCORS_disallowedOriginGetsNoHeaders(t *testing.T) {
	h := NewTestHarness(t)

	req, err := http.NewRequest(http.MethodOptions, h.Server.URL+"/ui/resources/brokers", nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Origin", "https://evil.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	resp, err := h.Server.Client().Do(req)
	if err != nil {
		t.Fatalf("preflight request: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin = %q for disallowed origin", got)
	}
}

func TestBackendFailure_surfacesAsGatewayError(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend.RespondWith(backend.OpListResource, http.StatusInternalServerError,
		`{"success": false, "message": "boom"}`)

	resp := h.GET(t, "/ui/resources/brokers/data", h.TokenFor(t, AdminClaims()))
	if resp.StatusCode < 500 {
		t.Fatalf("status = %d, want a 5xx gateway error", resp.StatusCode)
	}

	var body errorBody
	ParseJSON(t, resp, &body)
	if body.Error.Code != "BACKEND_UNAVAILABLE" {
		t.Errorf("error code = %q, want BACKEND_UNAVAILABLE", body.Error.Code)
	}
	if body.Error.TraceID == "" {
		t.Error("gateway error carries no trace id")
	}
}

func TestBackendRejection_surfacesMessage(t *testing.T) {
	h := NewTestHarness(t)
	h.Backend.RespondWith(backend.OpSaveResource, http.StatusOK,
		`{"success": false, "message": "Duplicate broker name"}`)

	resp := h.POST(t, "/ui/resources/brokers/save", h.TokenFor(t, AdminClaims()),
		map[string]any{"name": "Acme Markets"})
	AssertStatus(t, resp, http.StatusUnprocessableEntity)

	var body errorBody
	ParseJSON(t, resp, &body)
	if body.Error.Code != "BACKEND_REJECTED" {
		t.Errorf("error code = %q, want BACKEND_REJECTED", body.Error.Code)
	}
	if body.Error.Message != "Duplicate broker name" {
		t.Errorf("message = %q, want the service's own message", body.Error.Message)
	}
}
