package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/andrehe001/semanticworkbench/internal/config"
	"github.com/andrehe001/semanticworkbench/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,name,description,readiness,created_at) VALUES (?,?,?,?,?)`,
		p.ID, p.Name, nullable(p.Description), p.Readiness, p.CreatedAt)
	return err
}

func scanProject(row *sql.Row) (domain.Project, error) {
	var p domain.Project
	var desc sql.NullString
	err := row.Scan(&p.ID, &p.Name, &desc, &p.Readiness, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if desc.Valid {
		p.Description = desc.String
	}
	return p, err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	return scanProject(r.DB.QueryRowContext(ctx, `SELECT id,name,description,readiness,created_at FROM projects WHERE id=?`, id))
}

func (r Repo) GetProjectTx(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	return scanProject(tx.QueryRowContext(ctx, `SELECT id,name,description,readiness,created_at FROM projects WHERE id=?`, id))
}

// SingleProject returns the only project in the workspace, or an error
// telling the caller to disambiguate.
func (r Repo) SingleProject(ctx context.Context) (domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(description,''),readiness,created_at FROM projects`)
	if err != nil {
		return domain.Project{}, err
	}
	defer rows.Close()
	var projects []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Readiness, &p.CreatedAt); err != nil {
			return domain.Project{}, err
		}
		projects = append(projects, p)
	}
	if len(projects) == 0 {
		return domain.Project{}, ErrNotFound
	}
	if len(projects) > 1 {
		return domain.Project{}, fmt.Errorf("multiple projects exist; specify --project")
	}
	return projects[0], nil
}

func (r Repo) ListProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(description,''),readiness,created_at FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Readiness, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}

func (r Repo) SetReadiness(ctx context.Context, tx *sql.Tx, projectID, readiness string) error {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET readiness=? WHERE id=?`, readiness, projectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteProject(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- goals and criteria ---

func (r Repo) NextGoalPosition(ctx context.Context, tx *sql.Tx, projectID string) (int, error) {
	var pos int
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position)+1,0) FROM goals WHERE project_id=?`, projectID).Scan(&pos)
	return pos, err
}

func (r Repo) InsertGoal(ctx context.Context, tx *sql.Tx, g domain.Goal) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO goals(id,project_id,position,text,created_at) VALUES (?,?,?,?,?)`,
		g.ID, g.ProjectID, g.Position, g.Text, g.CreatedAt); err != nil {
		return err
	}
	for _, c := range g.Criteria {
		if _, err := tx.ExecContext(ctx, `INSERT INTO criteria(id,goal_id,position,description,completed) VALUES (?,?,?,?,0)`,
			c.ID, g.ID, c.Position, c.Description); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) ListGoals(ctx context.Context, projectID string) ([]domain.Goal, error) {
	return r.listGoals(ctx, querier{db: r.DB}, projectID)
}

func (r Repo) ListGoalsTx(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.Goal, error) {
	return r.listGoals(ctx, querier{tx: tx}, projectID)
}

type querier struct {
	db *sql.DB
	tx *sql.Tx
}

func (q querier) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if q.tx != nil {
		return q.tx.QueryContext(ctx, query, args...)
	}
	return q.db.QueryContext(ctx, query, args...)
}

func (r Repo) listGoals(ctx context.Context, q querier, projectID string) ([]domain.Goal, error) {
	rows, err := q.query(ctx, `SELECT id,project_id,position,text,created_at FROM goals WHERE project_id=? ORDER BY position ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var goals []domain.Goal
	for rows.Next() {
		var g domain.Goal
		if err := rows.Scan(&g.ID, &g.ProjectID, &g.Position, &g.Text, &g.CreatedAt); err != nil {
			return nil, err
		}
		goals = append(goals, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range goals {
		criteria, err := r.listCriteria(ctx, q, goals[i].ID)
		if err != nil {
			return nil, err
		}
		goals[i].Criteria = criteria
	}
	return goals, nil
}

func (r Repo) listCriteria(ctx context.Context, q querier, goalID string) ([]domain.SuccessCriterion, error) {
	rows, err := q.query(ctx, `SELECT id,goal_id,position,description,completed,completed_at,completed_by FROM criteria WHERE goal_id=? ORDER BY position ASC`, goalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SuccessCriterion
	for rows.Next() {
		var c domain.SuccessCriterion
		var completed int
		var completedAt, completedBy sql.NullString
		if err := rows.Scan(&c.ID, &c.GoalID, &c.Position, &c.Description, &completed, &completedAt, &completedBy); err != nil {
			return nil, err
		}
		c.Completed = completed != 0
		if completedAt.Valid {
			c.CompletedAt = &completedAt.String
		}
		if completedBy.Valid {
			c.CompletedBy = &completedBy.String
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) GetGoalTx(ctx context.Context, tx *sql.Tx, projectID, goalID string) (domain.Goal, error) {
	var g domain.Goal
	err := tx.QueryRowContext(ctx, `SELECT id,project_id,position,text,created_at FROM goals WHERE project_id=? AND id=?`, projectID, goalID).
		Scan(&g.ID, &g.ProjectID, &g.Position, &g.Text, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return g, ErrNotFound
	}
	return g, err
}

func (r Repo) NextCriterionPosition(ctx context.Context, tx *sql.Tx, goalID string) (int, error) {
	var pos int
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position)+1,0) FROM criteria WHERE goal_id=?`, goalID).Scan(&pos)
	return pos, err
}

func (r Repo) InsertCriterion(ctx context.Context, tx *sql.Tx, c domain.SuccessCriterion) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO criteria(id,goal_id,position,description,completed) VALUES (?,?,?,?,0)`,
		c.ID, c.GoalID, c.Position, c.Description)
	return err
}

// GetCriterion looks up a criterion within a goal of the given project.
func (r Repo) GetCriterionTx(ctx context.Context, tx *sql.Tx, projectID, goalID, criterionID string) (domain.SuccessCriterion, error) {
	var c domain.SuccessCriterion
	var completed int
	var completedAt, completedBy sql.NullString
	err := tx.QueryRowContext(ctx, `
SELECT c.id,c.goal_id,c.position,c.description,c.completed,c.completed_at,c.completed_by
FROM criteria c JOIN goals g ON g.id=c.goal_id
WHERE g.project_id=? AND c.goal_id=? AND c.id=?`, projectID, goalID, criterionID).
		Scan(&c.ID, &c.GoalID, &c.Position, &c.Description, &completed, &completedAt, &completedBy)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.Completed = completed != 0
	if completedAt.Valid {
		c.CompletedAt = &completedAt.String
	}
	if completedBy.Valid {
		c.CompletedBy = &completedBy.String
	}
	return c, nil
}

func (r Repo) MarkCriterionCompleted(ctx context.Context, tx *sql.Tx, criterionID, actorID, ts string) error {
	_, err := tx.ExecContext(ctx, `UPDATE criteria SET completed=1, completed_at=?, completed_by=? WHERE id=?`, ts, actorID, criterionID)
	return err
}

// --- project config ---

func (r Repo) UpsertProjectConfig(ctx context.Context, projectID string, cfg *config.Config) error {
	return upsertProjectConfig(ctx, r.DB, nil, projectID, cfg)
}

func (r Repo) UpsertProjectConfigTx(ctx context.Context, tx *sql.Tx, projectID string, cfg *config.Config) error {
	return upsertProjectConfig(ctx, nil, tx, projectID, cfg)
}

func upsertProjectConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, projectID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Project.ID = projectID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO project_configs(project_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(project_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, projectID, string(payload), now, now)
	return err
}

func (r Repo) GetProjectConfig(ctx context.Context, projectID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM project_configs WHERE project_id=?`, projectID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Project.ID == "" {
		cfg.Project.ID = projectID
	}
	return &cfg, cfg.Validate()
}

// --- events ---

func (r Repo) LatestEvents(ctx context.Context, limit int, projectID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if projectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,project_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with IDs greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, projectID string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if projectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,project_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id ASC LIMIT ?`, where)
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var projectID, entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &projectID, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if projectID.Valid {
			e.ProjectID = projectID.String
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEventID returns the most recent event ID for a project.
func (r Repo) LatestEventID(ctx context.Context, projectID string) (int64, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events WHERE project_id=?`, projectID)
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
