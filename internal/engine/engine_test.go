package engine_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andrehe001/semanticworkbench/internal/config"
	"github.com/andrehe001/semanticworkbench/internal/db"
	"github.com/andrehe001/semanticworkbench/internal/domain"
	"github.com/andrehe001/semanticworkbench/internal/engine"
	"github.com/andrehe001/semanticworkbench/internal/migrate"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("proj-1")
	eng := engine.New(conn, cfg, func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) })
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func seedBrief(t *testing.T, env testEnv) domain.Project {
	t.Helper()
	p, err := env.Engine.CreateBrief(env.Ctx, engine.CreateBriefOptions{
		ProjectID: "proj-1",
		Name:      "Data migration",
		ActorID:   "coordinator",
	})
	if err != nil {
		t.Fatalf("create brief: %v", err)
	}
	return p
}

func engineErr(t *testing.T, err error) *engine.Error {
	t.Helper()
	var e *engine.Error
	if !errors.As(err, &e) {
		t.Fatalf("expected engine error, got %v", err)
	}
	return e
}

func TestCreateBriefOnce(t *testing.T) {
	env := newTestEnv(t)
	p := seedBrief(t, env)
	if p.Readiness != domain.ReadinessDrafting {
		t.Fatalf("new brief should be drafting, got %s", p.Readiness)
	}
	_, err := env.Engine.CreateBrief(env.Ctx, engine.CreateBriefOptions{ProjectID: "proj-1", Name: "again", ActorID: "coordinator"})
	if e := engineErr(t, err); e.Kind != engine.KindAlreadyExists {
		t.Fatalf("expected already_exists, got %s", e.Kind)
	}
	// blank name rejected before touching the store
	_, err = env.Engine.CreateBrief(env.Ctx, engine.CreateBriefOptions{ProjectID: "proj-2", Name: "  "})
	if e := engineErr(t, err); e.Kind != engine.KindInvalidInput {
		t.Fatalf("expected invalid_input, got %s", e.Kind)
	}
}

func TestGoalOrdering(t *testing.T) {
	env := newTestEnv(t)
	seedBrief(t, env)
	for _, text := range []string{"first", "second", "third"} {
		if _, err := env.Engine.AddGoal(env.Ctx, engine.AddGoalOptions{ProjectID: "proj-1", Text: text, Criteria: []string{"done"}, ActorID: "coordinator"}); err != nil {
			t.Fatalf("add goal %s: %v", text, err)
		}
	}
	snap, err := env.Engine.ProjectInfo(env.Ctx, "proj-1")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	got := make([]string, 0, len(snap.Goals))
	for _, g := range snap.Goals {
		got = append(got, g.Text)
	}
	if strings.Join(got, ",") != "first,second,third" {
		t.Fatalf("goals out of order: %v", got)
	}
}

func TestAddGoalRequiresCriteria(t *testing.T) {
	env := newTestEnv(t)
	seedBrief(t, env)
	_, err := env.Engine.AddGoal(env.Ctx, engine.AddGoalOptions{ProjectID: "proj-1", Text: "ship it", ActorID: "coordinator"})
	if e := engineErr(t, err); e.Kind != engine.KindInvalidInput {
		t.Fatalf("expected invalid_input, got %s", e.Kind)
	}
}

func TestMarkReadyPreconditions(t *testing.T) {
	env := newTestEnv(t)
	seedBrief(t, env)

	// no goals yet
	_, err := env.Engine.MarkReady(env.Ctx, "proj-1", "coordinator")
	e := engineErr(t, err)
	if e.Kind != engine.KindNotReady || len(e.Missing) != 1 || e.Missing[0] != "no goals defined" {
		t.Fatalf("unexpected not_ready detail: %+v", e)
	}

	// a goal row without criteria (imported state) blocks, and is named
	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	bare := domain.Goal{ID: "g-bare", ProjectID: "proj-1", Position: 0, Text: "ship it", CreatedAt: "2025-06-01T00:00:00Z"}
	if err := env.Engine.Repo.InsertGoal(env.Ctx, tx, bare); err != nil {
		t.Fatalf("insert goal: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.MarkReady(env.Ctx, "proj-1", "coordinator")
	e = engineErr(t, err)
	if e.Kind != engine.KindNotReady || !strings.Contains(e.Missing[0], "ship it") {
		t.Fatalf("expected goal named in missing list: %+v", e)
	}

	// state must be unchanged after the failed attempts
	snap, _ := env.Engine.ProjectInfo(env.Ctx, "proj-1")
	if snap.Project.Readiness != domain.ReadinessDrafting {
		t.Fatalf("failed mark must not change readiness")
	}

	// healing the deficient goal unblocks the transition
	if _, err := env.Engine.AddCriteria(env.Ctx, "proj-1", "g-bare", []string{"shipped"}, "coordinator"); err != nil {
		t.Fatalf("add criteria: %v", err)
	}
	p, err := env.Engine.MarkReady(env.Ctx, "proj-1", "coordinator")
	if err != nil || p.Readiness != domain.ReadinessReadyForWorking {
		t.Fatalf("mark ready after healing: %v", err)
	}
}

func TestMarkReadyIdempotent(t *testing.T) {
	env := newTestEnv(t)
	seedBrief(t, env)
	if _, err := env.Engine.AddGoal(env.Ctx, engine.AddGoalOptions{ProjectID: "proj-1", Text: "goal", Criteria: []string{"crit"}, ActorID: "coordinator"}); err != nil {
		t.Fatalf("add goal: %v", err)
	}
	p, err := env.Engine.MarkReady(env.Ctx, "proj-1", "coordinator")
	if err != nil || p.Readiness != domain.ReadinessReadyForWorking {
		t.Fatalf("mark ready: %v", err)
	}
	// second call is a no-op and must not emit a second ready event
	if _, err := env.Engine.MarkReady(env.Ctx, "proj-1", "coordinator"); err != nil {
		t.Fatalf("repeat mark ready: %v", err)
	}
	var count int
	if err := env.Engine.DB.QueryRowContext(env.Ctx, `SELECT count(*) FROM events WHERE type='project.ready'`).Scan(&count); err != nil {
		t.Fatalf("query events: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one ready event, got %d", count)
	}
}

func TestCriterionCompletionMonotonic(t *testing.T) {
	env := newTestEnv(t)
	seedBrief(t, env)
	g, err := env.Engine.AddGoal(env.Ctx, engine.AddGoalOptions{ProjectID: "proj-1", Text: "goal", Criteria: []string{"crit"}, ActorID: "coordinator"})
	if err != nil {
		t.Fatalf("add goal: %v", err)
	}
	c, err := env.Engine.CompleteCriterion(env.Ctx, "proj-1", g.ID, g.Criteria[0].ID, "alice")
	if err != nil || !c.Completed {
		t.Fatalf("complete: %v", err)
	}
	if c.CompletedBy == nil || *c.CompletedBy != "alice" {
		t.Fatalf("completion record missing actor")
	}
	// completing again keeps the original record
	again, err := env.Engine.CompleteCriterion(env.Ctx, "proj-1", g.ID, g.Criteria[0].ID, "bob")
	if err != nil {
		t.Fatalf("repeat complete: %v", err)
	}
	if again.CompletedBy == nil || *again.CompletedBy != "alice" {
		t.Fatalf("repeat completion must not overwrite, got %v", again.CompletedBy)
	}
}

func TestResolveRequestLifecycle(t *testing.T) {
	env := newTestEnv(t)
	seedBrief(t, env)
	req, err := env.Engine.CreateRequest(env.Ctx, engine.CreateRequestOptions{
		ProjectID:   "proj-1",
		Requester:   "alice",
		Title:       "Need VPN access",
		Description: "Cannot reach the staging database",
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if req.Priority != domain.PriorityMedium || req.Status != domain.RequestOpen {
		t.Fatalf("unexpected defaults: %+v", req)
	}

	resolved, err := env.Engine.ResolveRequest(env.Ctx, "proj-1", req.ID, "Granted via IT ticket 42", "coordinator")
	if err != nil || resolved.Status != domain.RequestResolved {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Resolution == nil || *resolved.Resolution != "Granted via IT ticket 42" {
		t.Fatalf("resolution not recorded")
	}

	// same text again is an idempotent no-op
	if _, err := env.Engine.ResolveRequest(env.Ctx, "proj-1", req.ID, "Granted via IT ticket 42", "coordinator"); err != nil {
		t.Fatalf("idempotent resolve: %v", err)
	}
	var count int
	if err := env.Engine.DB.QueryRowContext(env.Ctx, `SELECT count(*) FROM events WHERE type='request.resolved'`).Scan(&count); err != nil {
		t.Fatalf("query events: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one resolved event, got %d", count)
	}

	// a different resolution must not overwrite the first
	_, err = env.Engine.ResolveRequest(env.Ctx, "proj-1", req.ID, "Denied", "coordinator")
	if e := engineErr(t, err); e.Kind != engine.KindAlreadyResolved {
		t.Fatalf("expected already_resolved, got %s", e.Kind)
	}
	kept, err := env.Engine.Repo.GetRequest(env.Ctx, "proj-1", req.ID)
	if err != nil || kept.Resolution == nil || *kept.Resolution != "Granted via IT ticket 42" {
		t.Fatalf("first resolution must survive: %+v", kept)
	}
}

func TestResolveRequestRejectsBadIDs(t *testing.T) {
	env := newTestEnv(t)
	seedBrief(t, env)
	// free text instead of a store-issued id
	_, err := env.Engine.ResolveRequest(env.Ctx, "proj-1", "the VPN thing", "done", "coordinator")
	if e := engineErr(t, err); e.Kind != engine.KindInvalidInput {
		t.Fatalf("expected invalid_input, got %s", e.Kind)
	}
	// well-formed but unknown id
	_, err = env.Engine.ResolveRequest(env.Ctx, "proj-1", "4b8f6f2e-8c3a-4f5e-9d2b-1a2b3c4d5e6f", "done", "coordinator")
	if e := engineErr(t, err); e.Kind != engine.KindNotFound {
		t.Fatalf("expected not_found, got %s", e.Kind)
	}
}

func TestConcurrentResolveSameText(t *testing.T) {
	env := newTestEnv(t)
	seedBrief(t, env)
	req, err := env.Engine.CreateRequest(env.Ctx, engine.CreateRequestOptions{
		ProjectID:   "proj-1",
		Requester:   "alice",
		Title:       "Need credentials",
		Description: "API key missing",
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.ResolveRequest(env.Ctx, "proj-1", req.ID, "rotated the key", "coordinator")
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("racer %d: %v", i, err)
		}
	}
	var count int
	if err := env.Engine.DB.QueryRowContext(env.Ctx, `SELECT count(*) FROM events WHERE type='request.resolved' AND entity_id=?`, req.ID).Scan(&count); err != nil {
		t.Fatalf("query events: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one resolved event, got %d", count)
	}
}

func TestProjectInfoSnapshot(t *testing.T) {
	env := newTestEnv(t)

	// before any brief exists the snapshot carries no project
	snap, err := env.Engine.ProjectInfo(env.Ctx, "proj-1")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if snap.Project != nil {
		t.Fatalf("expected nil project before brief")
	}

	seedBrief(t, env)
	first, _ := env.Engine.CreateRequest(env.Ctx, engine.CreateRequestOptions{ProjectID: "proj-1", Requester: "alice", Title: "one", Description: "d", Priority: domain.PriorityLow})
	second, _ := env.Engine.CreateRequest(env.Ctx, engine.CreateRequestOptions{ProjectID: "proj-1", Requester: "bob", Title: "two", Description: "d", Priority: domain.PriorityCritical})
	if _, err := env.Engine.ResolveRequest(env.Ctx, "proj-1", first.ID, "answered", "coordinator"); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	snap, err = env.Engine.ProjectInfo(env.Ctx, "proj-1")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if len(snap.Requests) != 2 || snap.OpenRequests != 1 {
		t.Fatalf("unexpected request counts: %d/%d", len(snap.Requests), snap.OpenRequests)
	}
	// creation order regardless of priority or status
	if snap.Requests[0].ID != first.ID || snap.Requests[1].ID != second.ID {
		t.Fatalf("requests not in creation order")
	}
}
