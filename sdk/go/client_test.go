package swbsdk_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/andrehe001/semanticworkbench/internal/config"
	"github.com/andrehe001/semanticworkbench/internal/db"
	"github.com/andrehe001/semanticworkbench/internal/detector"
	"github.com/andrehe001/semanticworkbench/internal/engine"
	"github.com/andrehe001/semanticworkbench/internal/migrate"
	"github.com/andrehe001/semanticworkbench/internal/server"
	swbsdk "github.com/andrehe001/semanticworkbench/sdk/go"
)

func startServer(t *testing.T) string {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default("launch")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg, func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) })
	d, err := detector.New(cfg.Detector)
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	handler, err := server.New(server.Config{Engine: e, Detector: d, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		ln.Close()
	})
	return "http://" + ln.Addr().String()
}

func TestClientRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := swbsdk.New(startServer(t), "launch")
	c.ActorID = "coordinator"

	p, err := c.CreateBrief(ctx, "Launch", "Ship v1")
	if err != nil {
		t.Fatalf("create brief: %v", err)
	}
	if p.Readiness != "DRAFTING" {
		t.Fatalf("new brief should be drafting, got %s", p.Readiness)
	}

	g, err := c.AddGoal(ctx, "Write docs", []string{"Draft complete", "Reviewed"})
	if err != nil {
		t.Fatalf("add goal: %v", err)
	}
	if len(g.Criteria) != 2 {
		t.Fatalf("expected two criteria, got %d", len(g.Criteria))
	}

	if _, err := c.MarkReady(ctx); err != nil {
		t.Fatalf("mark ready: %v", err)
	}

	det, err := c.Detect(ctx, nil, "I don't have access to the repo")
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if !det.IsRequest {
		t.Fatalf("expected a positive detection: %+v", det)
	}

	req, err := c.CreateRequest(ctx, det.Title, det.Description, det.Priority)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}

	info, err := c.Info(ctx)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.OpenRequests != 1 || len(info.Requests) != 1 || info.Requests[0].ID != req.ID {
		t.Fatalf("snapshot should carry the open request: %+v", info)
	}

	resolved, err := c.ResolveRequest(ctx, info.Requests[0].ID, "Access granted")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != "RESOLVED" {
		t.Fatalf("expected RESOLVED, got %s", resolved.Status)
	}

	s, err := c.Suggest(ctx)
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if s.Action != "monitor_progress" {
		t.Fatalf("nothing left to do, expected monitor_progress: %+v", s)
	}

	crit, err := c.CompleteCriterion(ctx, g.ID, g.Criteria[0].ID)
	if err != nil {
		t.Fatalf("complete criterion: %v", err)
	}
	if !crit.Completed {
		t.Fatalf("criterion should be completed: %+v", crit)
	}
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	ctx := context.Background()
	c := swbsdk.New(startServer(t), "launch")

	_, err := c.ResolveRequest(ctx, "the-vpn-thing", "done")
	var apiErr *swbsdk.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("free-text id should be rejected with 400, got %d", apiErr.StatusCode)
	}
}
