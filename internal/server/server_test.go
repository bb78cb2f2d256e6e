package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/andrehe001/semanticworkbench/internal/config"
	"github.com/andrehe001/semanticworkbench/internal/db"
	"github.com/andrehe001/semanticworkbench/internal/detector"
	"github.com/andrehe001/semanticworkbench/internal/domain"
	"github.com/andrehe001/semanticworkbench/internal/engine"
	"github.com/andrehe001/semanticworkbench/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default("launch")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg, func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) })
	d, err := detector.New(cfg.Detector)
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	handler, err := New(Config{Engine: e, Detector: d, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestCoordinatorLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/projects/launch"

	res, data := doJSON(t, client, http.MethodPost, base+"/brief", map[string]any{
		"name":        "Launch",
		"description": "Ship v1",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create brief: %d %s", res.StatusCode, string(data))
	}
	var project ProjectResponse
	if err := json.Unmarshal(data, &project); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	if project.Readiness != domain.ReadinessDrafting {
		t.Fatalf("expected DRAFTING, got %s", project.Readiness)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/goals", map[string]any{
		"text":     "Write docs",
		"criteria": []string{"Draft complete", "Reviewed"},
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add goal: %d %s", res.StatusCode, string(data))
	}
	var goal GoalResponse
	if err := json.Unmarshal(data, &goal); err != nil {
		t.Fatalf("unmarshal goal: %v", err)
	}
	if len(goal.Criteria) != 2 {
		t.Fatalf("expected two criteria, got %d", len(goal.Criteria))
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/info", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("info: %d %s", res.StatusCode, string(data))
	}
	var info ProjectInfoResponse
	if err := json.Unmarshal(data, &info); err != nil {
		t.Fatalf("unmarshal info: %v", err)
	}
	if info.Project == nil || info.Project.Readiness != domain.ReadinessDrafting {
		t.Fatalf("still drafting expected: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/ready", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("mark ready: %d %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &project); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	if project.Readiness != domain.ReadinessReadyForWorking {
		t.Fatalf("expected READY_FOR_WORKING, got %s", project.Readiness)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/detect", map[string]any{
		"message": "I don't have access to the repo",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("detect: %d %s", res.StatusCode, string(data))
	}
	var detection DetectResponse
	if err := json.Unmarshal(data, &detection); err != nil {
		t.Fatalf("unmarshal detection: %v", err)
	}
	if !detection.IsRequest {
		t.Fatalf("expected a positive detection: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/requests", map[string]any{
		"title":       detection.Title,
		"description": detection.Description,
		"priority":    detection.Priority,
		"requester":   "alice",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create request: %d %s", res.StatusCode, string(data))
	}
	var request RequestResponse
	if err := json.Unmarshal(data, &request); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, base+"/requests/"+request.ID+"/resolve", map[string]any{
		"resolution": "Access granted",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("resolve: %d %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &request); err != nil {
		t.Fatalf("unmarshal resolved: %v", err)
	}
	if request.Status != domain.RequestResolved || request.Resolution == nil || *request.Resolution != "Access granted" {
		t.Fatalf("unexpected resolved record: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, base+"/requests?status=RESOLVED", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list requests: %d %s", res.StatusCode, string(data))
	}
	var resolved []RequestResponse
	if err := json.Unmarshal(data, &resolved); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(resolved) != 1 {
		t.Fatalf("expected one resolved request, got %d", len(resolved))
	}
}

func TestMarkReadyReturnsMissingItems(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/projects/launch"

	if res, data := doJSON(t, client, http.MethodPost, base+"/brief", map[string]any{"name": "Launch"}, nil); res.StatusCode != http.StatusCreated {
		t.Fatalf("create brief: %d %s", res.StatusCode, string(data))
	}
	res, data := doJSON(t, client, http.MethodPost, base+"/ready", nil, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Details struct {
				Missing []string `json:"missing"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if envelope.Error.Code != "not_ready" || len(envelope.Error.Details.Missing) == 0 {
		t.Fatalf("expected not_ready with missing items: %s", string(data))
	}
}

func TestDuplicateBriefConflicts(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/projects/launch"

	if res, data := doJSON(t, client, http.MethodPost, base+"/brief", map[string]any{"name": "Launch"}, nil); res.StatusCode != http.StatusCreated {
		t.Fatalf("create brief: %d %s", res.StatusCode, string(data))
	}
	res, data := doJSON(t, client, http.MethodPost, base+"/brief", map[string]any{"name": "Launch again"}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
}

func TestResolveRejectsFreeTextAndStaleIDs(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/projects/launch"

	if res, data := doJSON(t, client, http.MethodPost, base+"/brief", map[string]any{"name": "Launch"}, nil); res.StatusCode != http.StatusCreated {
		t.Fatalf("create brief: %d %s", res.StatusCode, string(data))
	}

	// a human-readable title is not an id
	res, data := doJSON(t, client, http.MethodPost, base+"/requests/the-vpn-thing/resolve", map[string]any{
		"resolution": "done",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for free text, got %d %s", res.StatusCode, string(data))
	}

	// well-formed uuid absent from the snapshot
	res, data = doJSON(t, client, http.MethodPost, base+"/requests/4b8f6f2e-8c3a-4f5e-9d2b-1a2b3c4d5e6f/resolve", map[string]any{
		"resolution": "done",
	}, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for stale id, got %d %s", res.StatusCode, string(data))
	}
}

func TestConflictingReResolution(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/projects/launch"

	if res, data := doJSON(t, client, http.MethodPost, base+"/brief", map[string]any{"name": "Launch"}, nil); res.StatusCode != http.StatusCreated {
		t.Fatalf("create brief: %d %s", res.StatusCode, string(data))
	}
	res, data := doJSON(t, client, http.MethodPost, base+"/requests", map[string]any{
		"title":       "Need staging creds",
		"description": "Cannot run the smoke tests",
		"requester":   "bob",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create request: %d %s", res.StatusCode, string(data))
	}
	var request RequestResponse
	if err := json.Unmarshal(data, &request); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}

	if res, data = doJSON(t, client, http.MethodPost, base+"/requests/"+request.ID+"/resolve", map[string]any{"resolution": "Sent via vault"}, nil); res.StatusCode != http.StatusOK {
		t.Fatalf("resolve: %d %s", res.StatusCode, string(data))
	}
	// identical text is an idempotent success
	if res, data = doJSON(t, client, http.MethodPost, base+"/requests/"+request.ID+"/resolve", map[string]any{"resolution": "Sent via vault"}, nil); res.StatusCode != http.StatusOK {
		t.Fatalf("idempotent resolve: %d %s", res.StatusCode, string(data))
	}
	// differing text conflicts
	res, data = doJSON(t, client, http.MethodPost, base+"/requests/"+request.ID+"/resolve", map[string]any{"resolution": "Denied"}, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
}

func TestSuggestFollowsLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	base := srv.URL + "/v0/projects/launch"

	var suggestion SuggestionResponse
	res, data := doJSON(t, client, http.MethodGet, base+"/suggest", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("suggest: %d %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &suggestion); err != nil {
		t.Fatalf("unmarshal suggestion: %v", err)
	}
	if suggestion.Action != "create_project_brief" {
		t.Fatalf("expected create_project_brief, got %s", suggestion.Action)
	}

	doJSON(t, client, http.MethodPost, base+"/brief", map[string]any{"name": "Launch"}, nil)
	doJSON(t, client, http.MethodPost, base+"/goals", map[string]any{"text": "Write docs", "criteria": []string{"Reviewed"}}, nil)
	doJSON(t, client, http.MethodPost, base+"/ready", nil, nil)
	doJSON(t, client, http.MethodPost, base+"/requests", map[string]any{
		"title": "Need API key", "description": "blocked on credentials", "priority": "high", "requester": "alice",
	}, nil)

	res, data = doJSON(t, client, http.MethodGet, base+"/suggest", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("suggest: %d %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &suggestion); err != nil {
		t.Fatalf("unmarshal suggestion: %v", err)
	}
	if suggestion.Action != "resolve_information_request" || suggestion.RequestID == "" {
		t.Fatalf("expected a resolve suggestion: %s", string(data))
	}
}
