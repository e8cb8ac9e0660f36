package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mercator-hq/switchboard/pkg/audit"
	"mercator-hq/switchboard/pkg/cache"
	"mercator-hq/switchboard/pkg/callflow"
	"mercator-hq/switchboard/pkg/config"
	"mercator-hq/switchboard/pkg/policy"
	"mercator-hq/switchboard/pkg/policy/compiler"
	"mercator-hq/switchboard/pkg/telemetry/metrics"
	"mercator-hq/switchboard/pkg/tenant"
	"mercator-hq/switchboard/pkg/triage"
)

const policyJSON = `{
  "version": "v1",
  "edgeCases": [{"id": "hours", "priority": 1, "trigger": "\\bhours\\b", "response": "We're open 8 to 6."}],
  "triageCards": [
    {"id": "book", "priority": 10, "mustHaveKeywords": ["appointment"], "action": "START_BOOKING"}
  ]
}`

const policyYAML = `version: v2
status: draft
triage_cards:
  - id: bye
    priority: 1
    must_have_keywords: [goodbye]
    action: END_CALL
`

type testEnv struct {
	srv   *Server
	repo  *tenant.MemoryRepository
	audit *audit.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := cache.NewMemoryStore(0, 0)
	t.Cleanup(func() { store.Close() })

	repo := tenant.NewMemoryRepository()
	auditStore := audit.NewMemoryStore()
	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true}, nil)

	c := compiler.New(repo, store, compiler.Options{Metrics: collector})
	source := triage.NewActiveSource(store, nil, collector)
	machine := callflow.NewMachine(source, callflow.NewStateStore(store, 0), callflow.Options{Metrics: collector})

	cfg := config.DefaultConfig()
	srv := New(cfg, Deps{
		Compiler:  c,
		Calls:     machine,
		Artifacts: source,
		Audit:     auditStore,
		Metrics:   collector,
		Build:     BuildInfo{Version: "1.2.3", Commit: "abc123"},
	})

	return &testEnv{srv: srv, repo: repo, audit: auditStore}
}

func (e *testEnv) do(t *testing.T, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestSavePolicy(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/v1/tenants/acme/policy", "application/json", policyJSON)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	res := decode[CompileResponse](t, rec)
	if res.TenantID != "acme" || res.Version != "v1" || res.Checksum == "" {
		t.Errorf("response = %+v", res)
	}
	if !res.Published || !res.Activated {
		t.Errorf("Published/Activated = %v/%v", res.Published, res.Activated)
	}
	if res.Conflicts == nil {
		t.Error("conflicts should encode as an empty list")
	}

	rec = env.do(t, http.MethodGet, "/v1/tenants/acme/artifact", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("artifact status = %d", rec.Code)
	}
	artifact := decode[policy.Artifact](t, rec)
	if artifact.Checksum != res.Checksum {
		t.Errorf("active checksum = %q, want %q", artifact.Checksum, res.Checksum)
	}
}

func TestSavePolicy_YAMLDraftAndActivate(t *testing.T) {
	env := newTestEnv(t)

	live := decode[CompileResponse](t, env.do(t, http.MethodPut, "/v1/tenants/acme/policy", "application/json", policyJSON))

	rec := env.do(t, http.MethodPut, "/v1/tenants/acme/policy", "application/yaml", policyYAML)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	draft := decode[CompileResponse](t, rec)
	if draft.Status != policy.StatusDraft || draft.Activated {
		t.Fatalf("draft = %+v", draft)
	}

	active := decode[policy.Artifact](t, env.do(t, http.MethodGet, "/v1/tenants/acme/artifact", "", ""))
	if active.Checksum != live.Checksum {
		t.Errorf("draft compile moved the active pointer")
	}

	rec = env.do(t, http.MethodGet, "/v1/tenants/acme/artifact?key="+draft.CacheKey, "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("draft artifact status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPut, "/v1/tenants/acme/active", "application/json", `{"cacheKey":"`+draft.CacheKey+`"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("activate status = %d, body %s", rec.Code, rec.Body.String())
	}
	active = decode[policy.Artifact](t, env.do(t, http.MethodGet, "/v1/tenants/acme/artifact", "", ""))
	if active.Checksum != draft.Checksum {
		t.Errorf("active checksum = %q, want draft %q", active.Checksum, draft.Checksum)
	}
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPut, "/v1/tenants/acme/policy", "application/json", policyJSON)

	tests := []struct {
		name        string
		method      string
		path        string
		contentType string
		body        string
		wantStatus  int
		wantCode    string
	}{
		{
			name:   "duplicate rule ids",
			method: http.MethodPut, path: "/v1/tenants/acme/policy", contentType: "application/json",
			body:       `{"triageCards":[{"id":"a","mustHaveKeywords":["x"],"action":"END_CALL"},{"id":"a","mustHaveKeywords":["y"],"action":"END_CALL"}]}`,
			wantStatus: http.StatusBadRequest, wantCode: CodeValidationFailed,
		},
		{
			name:   "unknown field",
			method: http.MethodPut, path: "/v1/tenants/acme/policy", contentType: "application/json",
			body:       `{"rules":[]}`,
			wantStatus: http.StatusBadRequest, wantCode: CodeInvalidRequest,
		},
		{
			name:   "compile unknown tenant",
			method: http.MethodPost, path: "/v1/tenants/globex/compile",
			wantStatus: http.StatusNotFound, wantCode: CodeNotFound,
		},
		{
			name:   "activate missing artifact",
			method: http.MethodPut, path: "/v1/tenants/acme/active", contentType: "application/json",
			body:       `{"cacheKey":"policy:artifact:acme:v9:nope"}`,
			wantStatus: http.StatusNotFound, wantCode: CodeNotFound,
		},
		{
			name:   "activate foreign artifact",
			method: http.MethodPut, path: "/v1/tenants/acme/active", contentType: "application/json",
			body:       `{"cacheKey":"policy:artifact:globex:v1:abc"}`,
			wantStatus: http.StatusBadRequest, wantCode: CodeInvalidRequest,
		},
		{
			name:   "activate without key",
			method: http.MethodPut, path: "/v1/tenants/acme/active", contentType: "application/json",
			body:       `{}`,
			wantStatus: http.StatusBadRequest, wantCode: CodeInvalidRequest,
		},
		{
			name:   "no active artifact",
			method: http.MethodGet, path: "/v1/tenants/globex/artifact",
			wantStatus: http.StatusNotFound, wantCode: CodeNotFound,
		},
		{
			name:   "foreign artifact key",
			method: http.MethodGet, path: "/v1/tenants/acme/artifact?key=policy:artifact:globex:v1:abc",
			wantStatus: http.StatusBadRequest, wantCode: CodeInvalidRequest,
		},
		{
			name:   "turn without tenant",
			method: http.MethodPost, path: "/v1/calls/c1/turns", contentType: "application/json",
			body:       `{"utterance":"hello"}`,
			wantStatus: http.StatusBadRequest, wantCode: CodeInvalidRequest,
		},
		{
			name:   "unknown call",
			method: http.MethodGet, path: "/v1/calls/nope",
			wantStatus: http.StatusNotFound, wantCode: CodeNotFound,
		},
		{
			name:   "bad audit limit",
			method: http.MethodGet, path: "/v1/audit?limit=-1",
			wantStatus: http.StatusBadRequest, wantCode: CodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.contentType, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			body := decode[errorBody](t, rec)
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestValidationErrorListsFields(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/v1/tenants/acme/policy", "application/json",
		`{"status":"paused"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode[errorBody](t, rec)
	if len(body.Fields) == 0 {
		t.Errorf("expected field errors, got %+v", body)
	}
}

func TestCompileContention(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.repo.AcquireCompileLock(ctx, "acme", "someone-else", time.Now()); err != nil {
		t.Fatalf("AcquireCompileLock: %v", err)
	}

	rec := env.do(t, http.MethodPut, "/v1/tenants/acme/policy", "application/json", policyJSON)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 (body %s)", rec.Code, rec.Body.String())
	}
	if body := decode[errorBody](t, rec); body.Code != "COMPILE_IN_PROGRESS" {
		t.Errorf("code = %q", body.Code)
	}

	// The policy was saved; once the lock is free it compiles as is.
	if err := env.repo.ReleaseCompileLock(ctx, "acme", "someone-else"); err != nil {
		t.Fatalf("ReleaseCompileLock: %v", err)
	}
	rec = env.do(t, http.MethodPost, "/v1/tenants/acme/compile", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("compile after release status = %d (body %s)", rec.Code, rec.Body.String())
	}
	if res := decode[CompileResponse](t, rec); res.Checksum == "" {
		t.Errorf("compile response = %+v", res)
	}
}

func TestCallLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPut, "/v1/tenants/acme/policy", "application/json", policyJSON)

	rec := env.do(t, http.MethodPost, "/v1/calls/call-1/turns", "application/json",
		`{"tenantId":"acme","utterance":"what are your hours","decision":{"action":"ROUTE_TO_SCENARIO_ENGINE","confidence":0.9}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("turn status = %d, body %s", rec.Code, rec.Body.String())
	}
	res := decode[callflow.TurnResult](t, rec)
	if res.CallID != "call-1" || !strings.Contains(res.Response, "open 8 to 6") {
		t.Errorf("turn result = %+v", res)
	}

	rec = env.do(t, http.MethodPost, "/v1/calls/call-1/turns", "application/json",
		`{"tenantId":"acme","utterance":"I need an appointment","decision":{"action":"START_BOOKING","confidence":0.9}}`)
	res = decode[callflow.TurnResult](t, rec)
	if !res.BookingLocked {
		t.Errorf("booking should be locked: %+v", res)
	}

	rec = env.do(t, http.MethodGet, "/v1/calls/call-1", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("state status = %d", rec.Code)
	}
	state := decode[callflow.CallTurnState](t, rec)
	if state.TurnCount != 2 || state.TenantID != "acme" {
		t.Errorf("state = %+v", state)
	}

	if rec := env.do(t, http.MethodDelete, "/v1/calls/call-1", "", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/v1/calls/call-1", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("state after delete = %d, want 404", rec.Code)
	}
}

func TestAuditQuery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for _, r := range []*audit.Record{
		{ID: "1", Kind: audit.KindTurn, TenantID: "acme", CallID: "c1", Timestamp: now},
		{ID: "2", Kind: audit.KindTurn, TenantID: "acme", CallID: "c2", Timestamp: now},
		{ID: "3", Kind: audit.KindCompile, TenantID: "acme", Timestamp: now},
	} {
		if err := env.audit.Append(ctx, r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	rec := env.do(t, http.MethodGet, "/v1/audit?tenant=acme&kind=turn&call=c2", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	records := decode[[]audit.Record](t, rec)
	if len(records) != 1 || records[0].ID != "2" {
		t.Errorf("records = %+v", records)
	}

	rec = env.do(t, http.MethodGet, "/v1/audit?tenant=globex", "", "")
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("empty query body = %s, want []", got)
	}
}

func TestOperationalEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPut, "/v1/tenants/acme/policy", "application/json", policyJSON)

	if rec := env.do(t, http.MethodGet, "/healthz", "", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/readyz", "", ""); rec.Code != http.StatusOK {
		t.Errorf("readyz = %d", rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/version", "", "")
	if !strings.Contains(rec.Body.String(), `"version":"1.2.3"`) {
		t.Errorf("version body = %s", rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "switchboard_compile_total") {
		t.Errorf("metrics status = %d, missing compile counter", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.CORS.Enabled = true
	srv := New(cfg, Deps{})

	req := httptest.NewRequest(http.MethodOptions, "/v1/tenants/acme/compile", nil)
	req.Header.Set("Origin", "https://console.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestStartShutdown(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.ListenAddress = "127.0.0.1:0"
	srv := New(cfg, Deps{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	deadline := time.Now().Add(time.Second)
	for !srv.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	if srv.IsRunning() {
		t.Error("IsRunning() after shutdown")
	}
}
