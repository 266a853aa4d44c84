// Package integration exercises the assembled dashboard service end to end:
// real router, real JWT verification against a test JWKS endpoint, and a mock
// rebate backend on the far side of the OpenAPI-indexed client.
package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/softrade/brokerdesk/internal/backend"
	"github.com/softrade/brokerdesk/internal/capability"
	"github.com/softrade/brokerdesk/internal/config"
	"github.com/softrade/brokerdesk/internal/matrix"
	"github.com/softrade/brokerdesk/internal/observability"
	"github.com/softrade/brokerdesk/internal/resource"
	"github.com/softrade/brokerdesk/internal/table"
	"github.com/softrade/brokerdesk/internal/transport"
)

// rebateAPISpec covers every operation id the dashboard's backend client
// resolves. Paths match what MockRebateService serves.
const rebateAPISpec = `openapi: "3.0.3"
info:
  title: Rebate API
  version: "1.0"
paths:
  /api/{resource}:
    get:
      operationId: listResource
      parameters:
        - name: resource
          in: path
          required: true
          schema:
            type: string
      responses:
        "200":
          description: OK
    post:
      operationId: saveResource
      parameters:
        - name: resource
          in: path
          required: true
          schema:
            type: string
      requestBody:
        required: true
        content:
          application/json:
            schema:
              type: object
      responses:
        "200":
          description: OK
  /api/{resource}/{id}:
    delete:
      operationId: deleteResource
      parameters:
        - name: resource
          in: path
          required: true
          schema:
            type: string
        - name: id
          in: path
          required: true
          schema:
            type: string
      responses:
        "200":
          description: OK
  /api/{resource}/{id}/toggle:
    post:
      operationId: toggleResource
      parameters:
        - name: resource
          in: path
          required: true
          schema:
            type: string
        - name: id
          in: path
          required: true
          schema:
            type: string
      responses:
        "200":
          description: OK
  /api/matrix/headers:
    get:
      operationId: matrixHeaders
      parameters:
        - name: language
          in: query
          schema:
            type: string
      responses:
        "200":
          description: OK
  /api/challenges/{broker_id}:
    get:
      operationId: matrixData
      parameters:
        - name: broker_id
          in: path
          required: true
          schema:
            type: string
      responses:
        "200":
          description: OK
  /api/challenges/{broker_id}/save:
    post:
      operationId: matrixSave
      parameters:
        - name: broker_id
          in: path
          required: true
          schema:
            type: string
      requestBody:
        required: true
        content:
          application/json:
            schema:
              type: object
      responses:
        "200":
          description: OK
  /api/challenges/placeholders:
    get:
      operationId: matrixPlaceholders
      responses:
        "200":
          description: OK
  /api/options/{category}:
    get:
      operationId: listOptions
      parameters:
        - name: category
          in: path
          required: true
          schema:
            type: string
      responses:
        "200":
          description: OK
    post:
      operationId: saveOptionValues
      parameters:
        - name: category
          in: path
          required: true
          schema:
            type: string
      requestBody:
        required: true
        content:
          application/json:
            schema:
              type: object
      responses:
        "200":
          description: OK
`

const brokersDefinition = `key: brokers
title: Brokers
backend:
  resource: brokers
capabilities:
  view: brokers:view
  edit: brokers:edit
  delete: brokers:delete
`

const payoutsDefinition = `key: payouts
title: Payout Schedules
backend:
  resource: payouts
toggleable: true
capabilities:
  view: payouts:view
  edit: payouts:edit
  toggle: payouts:toggle
`

const policyFixture = `roles:
  admin:
    - "*"
  broker:
    - brokers:view
    - payouts:view
    - matrix:edit
    - options:edit
`

// TestHarness runs the whole dashboard stack against a mock rebate service.
type TestHarness struct {
	Server  *httptest.Server
	Backend *MockRebateService
	Issuer  *tokenIssuer
	Drafts  *matrix.MemoryDraftStore
}

type harnessConfig struct {
	policy      string
	definitions map[string]string
}

// HarnessOption adjusts the fixtures written before the stack is wired.
type HarnessOption func(*harnessConfig)

// WithPolicy replaces the capability policy YAML.
func WithPolicy(policy string) HarnessOption {
	return func(hc *harnessConfig) { hc.policy = policy }
}

// WithResourceDefinition adds or replaces one resource definition file.
func WithResourceDefinition(name, definition string) HarnessOption {
	return func(hc *harnessConfig) { hc.definitions[name] = definition }
}

// NewTestHarness writes the OpenAPI, resource, and policy fixtures into a
// temp dir, wires the service exactly as main does (memory-backed stores),
// and starts it on an httptest server. Everything is torn down via t.Cleanup.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := harnessConfig{
		policy: policyFixture,
		definitions: map[string]string{
			"brokers.yaml": brokersDefinition,
			"payouts.yaml": payoutsDefinition,
		},
	}
	for _, opt := range opts {
		opt(&hc)
	}

	dir := t.TempDir()
	specPath := filepath.Join(dir, "rebates-api.yaml")
	writeFixture(t, specPath, rebateAPISpec)

	resourceDir := filepath.Join(dir, "resources")
	if err := os.Mkdir(resourceDir, 0755); err != nil {
		t.Fatalf("creating resource dir: %v", err)
	}
	for name, def := range hc.definitions {
		writeFixture(t, filepath.Join(resourceDir, name), def)
	}

	policyPath := filepath.Join(dir, "policy.yaml")
	writeFixture(t, policyPath, hc.policy)

	issuer, err := newTokenIssuer()
	if err != nil {
		t.Fatalf("starting token issuer: %v", err)
	}
	t.Cleanup(issuer.Close)

	mock := newMockRebateService()
	t.Cleanup(mock.Close)

	idx := backend.NewIndex()
	if err := idx.Load(specPath); err != nil {
		t.Fatalf("loading OpenAPI spec: %v", err)
	}

	defs, err := resource.NewLoader().LoadAll([]string{resourceDir})
	if err != nil {
		t.Fatalf("loading resource definitions: %v", err)
	}
	registry, err := resource.NewRegistry(defs)
	if err != nil {
		t.Fatalf("building resource registry: %v", err)
	}

	evaluator, err := capability.NewStaticPolicyEvaluator(policyPath)
	if err != nil {
		t.Fatalf("loading capability policy: %v", err)
	}
	resolver := capability.NewResolver(evaluator, time.Minute, 256, nil)

	cfg := config.Defaults()
	cfg.Identity = config.IdentityConfig{
		Issuer:       testIssuer,
		Audience:     testAudience,
		JWKSURL:      issuer.JWKSURL(),
		JWKSCacheTTL: time.Minute,
		Algorithms:   []string{"RS256"},
	}
	cfg.Backend.BaseURL = mock.URL()
	cfg.Backend.Timeout = 5 * time.Second
	cfg.Server.HandlerTimeout = 10 * time.Second
	cfg.Server.CORS.AllowedOrigins = []string{"https://dashboard.test"}

	client := backend.NewClient(idx, cfg.Backend, nil, nil)
	drafts := matrix.NewMemoryDraftStore()
	engine := matrix.NewEngine(client, drafts, nil, nil)
	provider := resource.NewProvider(registry, client,
		table.NewMemoryFilterStore(), time.Minute, nil, nil)

	jwks := transport.NewJWKSClient(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL)
	router := transport.NewRouter(transport.Dependencies{
		Config:             cfg,
		Authenticate:       transport.JWTAuthenticator(cfg.Identity, jwks),
		CapabilityResolver: resolver,
		Resources:          provider,
		Matrix:             engine,
		Options:            client,
		Ready: observability.ReadinessChecks{
			ResourcesLoaded: func() bool { return registry.Len() > 0 },
			OpenAPILoaded:   func() bool { return idx.Len() > 0 },
		},
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &TestHarness{
		Server:  server,
		Backend: mock,
		Issuer:  issuer,
		Drafts:  drafts,
	}
}

func writeFixture(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing fixture %s: %v", path, err)
	}
}

// --- claim presets ---

// AdminClaims is a published-side operator with the wildcard capability.
func AdminClaims() TestClaims {
	return TestClaims{
		SubjectID: "admin-1",
		Email:     "ops@softrade.test",
		Roles:     []string{"admin"},
	}
}

// BrokerClaims is a partner-side user pinned to broker-7.
func BrokerClaims() TestClaims {
	return TestClaims{
		SubjectID: "broker-user-7",
		BrokerID:  "broker-7",
		Email:     "partner@acme.test",
		Roles:     []string{"broker"},
	}
}

// TokenFor signs a valid token for the given claims.
func (h *TestHarness) TokenFor(t *testing.T, tc TestClaims) string {
	t.Helper()
	token, err := h.Issuer.GenerateToken(tc)
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}
	return token
}

// --- request helpers ---

// GET performs an authenticated GET. An empty token sends no Authorization
// header.
func (h *TestHarness) GET(t *testing.T, path, token string) *http.Response {
	t.Helper()
	return h.do(t, http.MethodGet, path, token, nil)
}

// POST performs an authenticated POST with a JSON body.
func (h *TestHarness) POST(t *testing.T, path, token string, body any) *http.Response {
	t.Helper()
	return h.do(t, http.MethodPost, path, token, body)
}

// DELETE performs an authenticated DELETE.
func (h *TestHarness) DELETE(t *testing.T, path, token string) *http.Response {
	t.Helper()
	return h.do(t, http.MethodDelete, path, token, nil)
}

func (h *TestHarness) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, h.Server.URL+path, reader)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.Server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// ParseJSON decodes the response body into target.
func ParseJSON(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response body: %v", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		t.Fatalf("decoding response %q: %v", raw, err)
	}
}

// AssertStatus fails the test when the response status differs.
func AssertStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode, want, raw)
	}
}
