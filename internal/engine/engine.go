package engine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andrehe001/semanticworkbench/internal/config"
	"github.com/andrehe001/semanticworkbench/internal/domain"
	"github.com/andrehe001/semanticworkbench/internal/events"
	"github.com/andrehe001/semanticworkbench/internal/repo"
)

// Engine applies project lifecycle operations transactionally: every
// mutation validates its input, takes the project lock, writes the entity
// and its event inside one transaction, and commits.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time

	locks *projectLocks
}

// projectLocks serializes mutations per project. Engine is passed by
// value, so the registry lives behind a pointer.
type projectLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (l *projectLocks) forProject(id string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.m == nil {
		l.m = make(map[string]*sync.Mutex)
	}
	lk, ok := l.m[id]
	if !ok {
		lk = &sync.Mutex{}
		l.m[id] = lk
	}
	return lk
}

func New(db *sql.DB, cfg *config.Config, now func() time.Time) Engine {
	if now == nil {
		now = time.Now
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db, Now: now},
		Config: cfg,
		Now:    now,
		locks:  &projectLocks{},
	}
}

func (e Engine) timestamp() string {
	return e.Now().UTC().Format(time.RFC3339)
}

// CreateBriefOptions names a new project and optionally describes it.
type CreateBriefOptions struct {
	ProjectID   string
	Name        string
	Description string
	ActorID     string
}

// CreateBrief creates the project brief. A project has exactly one brief;
// a second call fails with AlreadyExists.
func (e Engine) CreateBrief(ctx context.Context, opts CreateBriefOptions) (domain.Project, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return domain.Project{}, invalidInput("project name is required")
	}
	projectID := opts.ProjectID
	if projectID == "" {
		projectID = uuid.NewString()
	}

	lk := e.locks.forProject(projectID)
	lk.Lock()
	defer lk.Unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetProjectTx(ctx, tx, projectID); err == nil {
		return domain.Project{}, alreadyExists("project %s already has a brief", projectID)
	} else if err != repo.ErrNotFound {
		return domain.Project{}, err
	}

	p := domain.Project{
		ID:          projectID,
		Name:        strings.TrimSpace(opts.Name),
		Description: strings.TrimSpace(opts.Description),
		Readiness:   domain.ReadinessDrafting,
		CreatedAt:   e.timestamp(),
	}
	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	cfg := e.Config
	if cfg == nil {
		cfg = config.Default(projectID)
	}
	if err := e.Repo.UpsertProjectConfigTx(ctx, tx, projectID, cfg); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.brief.created", projectID, "project", projectID, opts.ActorID, events.EventPayload{
		"name": p.Name,
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// AddGoalOptions describes one goal and its success criteria.
type AddGoalOptions struct {
	ProjectID string
	Text      string
	Criteria  []string
	ActorID   string
}

// AddGoal appends a goal to the brief. Goals keep their insertion order.
func (e Engine) AddGoal(ctx context.Context, opts AddGoalOptions) (domain.Goal, error) {
	if strings.TrimSpace(opts.Text) == "" {
		return domain.Goal{}, invalidInput("goal text is required")
	}
	if len(opts.Criteria) == 0 {
		return domain.Goal{}, invalidInput("at least one success criterion is required")
	}
	for i, c := range opts.Criteria {
		if strings.TrimSpace(c) == "" {
			return domain.Goal{}, invalidInput("success criterion %d is empty", i+1)
		}
	}

	lk := e.locks.forProject(opts.ProjectID)
	lk.Lock()
	defer lk.Unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Goal{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetProjectTx(ctx, tx, opts.ProjectID); err == repo.ErrNotFound {
		return domain.Goal{}, notFound("project %s not found", opts.ProjectID)
	} else if err != nil {
		return domain.Goal{}, err
	}

	pos, err := e.Repo.NextGoalPosition(ctx, tx, opts.ProjectID)
	if err != nil {
		return domain.Goal{}, err
	}
	g := domain.Goal{
		ID:        uuid.NewString(),
		ProjectID: opts.ProjectID,
		Position:  pos,
		Text:      strings.TrimSpace(opts.Text),
		CreatedAt: e.timestamp(),
	}
	for i, c := range opts.Criteria {
		g.Criteria = append(g.Criteria, domain.SuccessCriterion{
			ID:          uuid.NewString(),
			GoalID:      g.ID,
			Position:    i,
			Description: strings.TrimSpace(c),
		})
	}
	if err := e.Repo.InsertGoal(ctx, tx, g); err != nil {
		return domain.Goal{}, err
	}
	if err := e.Events.Append(ctx, tx, "goal.added", opts.ProjectID, "goal", g.ID, opts.ActorID, events.EventPayload{
		"text":     g.Text,
		"position": g.Position,
		"criteria": len(g.Criteria),
	}); err != nil {
		return domain.Goal{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Goal{}, err
	}
	return g, nil
}

// AddCriteria appends success criteria to an existing goal. It is how a
// goal that slipped in without criteria is healed before marking ready.
func (e Engine) AddCriteria(ctx context.Context, projectID, goalID string, descriptions []string, actorID string) ([]domain.SuccessCriterion, error) {
	if len(descriptions) == 0 {
		return nil, invalidInput("at least one success criterion is required")
	}
	for i, d := range descriptions {
		if strings.TrimSpace(d) == "" {
			return nil, invalidInput("success criterion %d is empty", i+1)
		}
	}

	lk := e.locks.forProject(projectID)
	lk.Lock()
	defer lk.Unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetGoalTx(ctx, tx, projectID, goalID); err == repo.ErrNotFound {
		return nil, notFound("goal %s not found in project %s", goalID, projectID)
	} else if err != nil {
		return nil, err
	}
	pos, err := e.Repo.NextCriterionPosition(ctx, tx, goalID)
	if err != nil {
		return nil, err
	}
	var added []domain.SuccessCriterion
	for i, d := range descriptions {
		c := domain.SuccessCriterion{
			ID:          uuid.NewString(),
			GoalID:      goalID,
			Position:    pos + i,
			Description: strings.TrimSpace(d),
		}
		if err := e.Repo.InsertCriterion(ctx, tx, c); err != nil {
			return nil, err
		}
		added = append(added, c)
	}
	if err := e.Events.Append(ctx, tx, "criterion.added", projectID, "goal", goalID, actorID, events.EventPayload{
		"count": len(added),
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return added, nil
}

// MarkReady transitions the project to READY_FOR_WORKING. The transition
// requires a brief with at least one goal, each goal carrying at least one
// success criterion; otherwise it fails with NotReady and lists what is
// missing. Re-marking an already ready project is a no-op and emits no
// second event.
func (e Engine) MarkReady(ctx context.Context, projectID, actorID string) (domain.Project, error) {
	lk := e.locks.forProject(projectID)
	lk.Lock()
	defer lk.Unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err == repo.ErrNotFound {
		return domain.Project{}, notFound("project %s not found", projectID)
	} else if err != nil {
		return domain.Project{}, err
	}
	if p.Readiness == domain.ReadinessReadyForWorking {
		return p, nil
	}

	goals, err := e.Repo.ListGoalsTx(ctx, tx, projectID)
	if err != nil {
		return domain.Project{}, err
	}
	var missing []string
	if len(goals) == 0 {
		missing = append(missing, "no goals defined")
	}
	for _, g := range goals {
		if len(g.Criteria) == 0 {
			missing = append(missing, fmt.Sprintf("goal %q has no success criteria", g.Text))
		}
	}
	if len(missing) > 0 {
		return domain.Project{}, notReady(missing)
	}

	if err := e.Repo.SetReadiness(ctx, tx, projectID, domain.ReadinessReadyForWorking); err != nil {
		return domain.Project{}, err
	}
	if err := e.Events.Append(ctx, tx, "project.ready", projectID, "project", projectID, actorID, events.EventPayload{
		"share_label": "Start working on: " + p.Name,
		"share_ref":   "swb://project/" + projectID + "/join",
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	p.Readiness = domain.ReadinessReadyForWorking
	return p, nil
}

// CompleteCriterion marks a success criterion as done. Completion is
// monotonic: completing an already completed criterion returns it
// unchanged, keeping the original completion record.
func (e Engine) CompleteCriterion(ctx context.Context, projectID, goalID, criterionID, actorID string) (domain.SuccessCriterion, error) {
	lk := e.locks.forProject(projectID)
	lk.Lock()
	defer lk.Unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.SuccessCriterion{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetProjectTx(ctx, tx, projectID); err == repo.ErrNotFound {
		return domain.SuccessCriterion{}, notFound("project %s not found", projectID)
	} else if err != nil {
		return domain.SuccessCriterion{}, err
	}

	c, err := e.Repo.GetCriterionTx(ctx, tx, projectID, goalID, criterionID)
	if err == repo.ErrNotFound {
		return domain.SuccessCriterion{}, notFound("criterion %s not found in goal %s", criterionID, goalID)
	} else if err != nil {
		return domain.SuccessCriterion{}, err
	}
	if c.Completed {
		return c, nil
	}

	ts := e.timestamp()
	if err := e.Repo.MarkCriterionCompleted(ctx, tx, criterionID, actorID, ts); err != nil {
		return domain.SuccessCriterion{}, err
	}
	if err := e.Events.Append(ctx, tx, "criterion.completed", projectID, "criterion", criterionID, actorID, events.EventPayload{
		"goal_id":     goalID,
		"description": c.Description,
	}); err != nil {
		return domain.SuccessCriterion{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.SuccessCriterion{}, err
	}
	c.Completed = true
	c.CompletedAt = &ts
	if actorID != "" {
		c.CompletedBy = &actorID
	}
	return c, nil
}

// CreateRequestOptions captures a team member's information need.
type CreateRequestOptions struct {
	ProjectID   string
	Requester   string
	Title       string
	Description string
	Priority    string
	ActorID     string
}

// CreateRequest opens an information request. Priority defaults to medium
// when omitted. The store assigns the identifier; callers never pick ids.
func (e Engine) CreateRequest(ctx context.Context, opts CreateRequestOptions) (domain.InformationRequest, error) {
	if strings.TrimSpace(opts.Title) == "" {
		return domain.InformationRequest{}, invalidInput("request title is required")
	}
	if strings.TrimSpace(opts.Description) == "" {
		return domain.InformationRequest{}, invalidInput("request description is required")
	}
	if strings.TrimSpace(opts.Requester) == "" {
		return domain.InformationRequest{}, invalidInput("requester is required")
	}
	priority := opts.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if !domain.ValidPriority(priority) {
		return domain.InformationRequest{}, invalidInput("unknown priority %q", priority)
	}

	lk := e.locks.forProject(opts.ProjectID)
	lk.Lock()
	defer lk.Unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.InformationRequest{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetProjectTx(ctx, tx, opts.ProjectID); err == repo.ErrNotFound {
		return domain.InformationRequest{}, notFound("project %s not found", opts.ProjectID)
	} else if err != nil {
		return domain.InformationRequest{}, err
	}

	req := domain.InformationRequest{
		ID:          uuid.NewString(),
		ProjectID:   opts.ProjectID,
		Requester:   strings.TrimSpace(opts.Requester),
		Title:       strings.TrimSpace(opts.Title),
		Description: strings.TrimSpace(opts.Description),
		Priority:    priority,
		Status:      domain.RequestOpen,
		CreatedAt:   e.timestamp(),
	}
	if err := e.Repo.InsertRequest(ctx, tx, req); err != nil {
		return domain.InformationRequest{}, err
	}
	actor := opts.ActorID
	if actor == "" {
		actor = req.Requester
	}
	if err := e.Events.Append(ctx, tx, "request.created", opts.ProjectID, "request", req.ID, actor, events.EventPayload{
		"title":    req.Title,
		"priority": req.Priority,
	}); err != nil {
		return domain.InformationRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.InformationRequest{}, err
	}
	return req, nil
}

// ResolveRequest resolves an open information request. Resolving an
// already resolved request with the same resolution text is an idempotent
// no-op; a different resolution fails with AlreadyResolved, keeping the
// first resolution intact. Request ids are store-issued uuids; anything
// else is rejected before touching the store.
func (e Engine) ResolveRequest(ctx context.Context, projectID, requestID, resolution, actorID string) (domain.InformationRequest, error) {
	if _, err := uuid.Parse(requestID); err != nil {
		return domain.InformationRequest{}, invalidInput("request_id %q is not a request id; use an id from get_project_info", requestID)
	}
	if strings.TrimSpace(resolution) == "" {
		return domain.InformationRequest{}, invalidInput("resolution text is required")
	}
	resolution = strings.TrimSpace(resolution)

	lk := e.locks.forProject(projectID)
	lk.Lock()
	defer lk.Unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.InformationRequest{}, err
	}
	defer tx.Rollback()

	req, err := e.Repo.GetRequestTx(ctx, tx, projectID, requestID)
	if err == repo.ErrNotFound {
		return domain.InformationRequest{}, notFound("information request %s not found in project %s", requestID, projectID)
	} else if err != nil {
		return domain.InformationRequest{}, err
	}

	if req.Status == domain.RequestResolved {
		if req.Resolution != nil && *req.Resolution == resolution {
			return req, nil
		}
		return domain.InformationRequest{}, alreadyResolved("information request %s is already resolved", requestID)
	}

	ts := e.timestamp()
	if err := e.Repo.MarkRequestResolved(ctx, tx, requestID, resolution, ts); err != nil {
		return domain.InformationRequest{}, err
	}
	if err := e.Events.Append(ctx, tx, "request.resolved", projectID, "request", requestID, actorID, events.EventPayload{
		"title":      req.Title,
		"resolution": resolution,
	}); err != nil {
		return domain.InformationRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.InformationRequest{}, err
	}
	req.Status = domain.RequestResolved
	req.Resolution = &resolution
	req.ResolvedAt = &ts
	return req, nil
}

// ProjectInfo returns a read-consistent snapshot of the project. A
// workspace whose brief does not exist yet yields a snapshot with a nil
// Project so callers can still advise on next steps.
func (e Engine) ProjectInfo(ctx context.Context, projectID string) (domain.ProjectSnapshot, error) {
	tx, err := e.DB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return domain.ProjectSnapshot{}, err
	}
	defer tx.Rollback()

	snap := domain.ProjectSnapshot{}
	p, err := e.Repo.GetProjectTx(ctx, tx, projectID)
	if err == repo.ErrNotFound {
		return snap, nil
	} else if err != nil {
		return domain.ProjectSnapshot{}, err
	}
	snap.Project = &p

	snap.Goals, err = e.Repo.ListGoalsTx(ctx, tx, projectID)
	if err != nil {
		return domain.ProjectSnapshot{}, err
	}
	snap.Requests, err = e.Repo.ListRequestsTx(ctx, tx, projectID)
	if err != nil {
		return domain.ProjectSnapshot{}, err
	}
	for _, r := range snap.Requests {
		if r.Status == domain.RequestOpen {
			snap.OpenRequests++
		}
	}
	return snap, nil
}
