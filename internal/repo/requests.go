package repo

import (
	"context"
	"database/sql"

	"github.com/andrehe001/semanticworkbench/internal/domain"
)

func (r Repo) InsertRequest(ctx context.Context, tx *sql.Tx, req domain.InformationRequest) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO requests(id,project_id,requester,title,description,priority,status,resolution,created_at,resolved_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		req.ID, req.ProjectID, req.Requester, req.Title, req.Description, req.Priority,
		req.Status, nullableStringPtr(req.Resolution), req.CreatedAt, nullableStringPtr(req.ResolvedAt))
	return err
}

func scanRequest(scan func(dest ...any) error) (domain.InformationRequest, error) {
	var req domain.InformationRequest
	var resolution, resolvedAt sql.NullString
	err := scan(&req.ID, &req.ProjectID, &req.Requester, &req.Title, &req.Description,
		&req.Priority, &req.Status, &resolution, &req.CreatedAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return req, ErrNotFound
	}
	if err != nil {
		return req, err
	}
	if resolution.Valid {
		req.Resolution = &resolution.String
	}
	if resolvedAt.Valid {
		req.ResolvedAt = &resolvedAt.String
	}
	return req, nil
}

const requestColumns = `id,project_id,requester,title,description,priority,status,resolution,created_at,resolved_at`

func (r Repo) GetRequest(ctx context.Context, projectID, requestID string) (domain.InformationRequest, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE project_id=? AND id=?`, projectID, requestID)
	return scanRequest(row.Scan)
}

func (r Repo) GetRequestTx(ctx context.Context, tx *sql.Tx, projectID, requestID string) (domain.InformationRequest, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE project_id=? AND id=?`, projectID, requestID)
	return scanRequest(row.Scan)
}

// ListRequests returns a project's requests in creation order.
func (r Repo) ListRequests(ctx context.Context, projectID string) ([]domain.InformationRequest, error) {
	return r.listRequests(ctx, querier{db: r.DB}, projectID, "")
}

func (r Repo) ListRequestsTx(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.InformationRequest, error) {
	return r.listRequests(ctx, querier{tx: tx}, projectID, "")
}

// ListOpenRequests returns only OPEN requests, creation order.
func (r Repo) ListOpenRequests(ctx context.Context, projectID string) ([]domain.InformationRequest, error) {
	return r.listRequests(ctx, querier{db: r.DB}, projectID, domain.RequestOpen)
}

func (r Repo) listRequests(ctx context.Context, q querier, projectID, status string) ([]domain.InformationRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE project_id=?`
	args := []any{projectID}
	if status != "" {
		query += ` AND status=?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at ASC, rowid ASC`
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.InformationRequest
	for rows.Next() {
		req, err := scanRequest(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, req)
	}
	return res, rows.Err()
}

func (r Repo) MarkRequestResolved(ctx context.Context, tx *sql.Tx, requestID, resolution, resolvedAt string) error {
	_, err := tx.ExecContext(ctx, `UPDATE requests SET status=?, resolution=?, resolved_at=? WHERE id=?`,
		domain.RequestResolved, resolution, resolvedAt, requestID)
	return err
}

func (r Repo) CountOpenRequests(ctx context.Context, projectID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM requests WHERE project_id=? AND status=?`, projectID, domain.RequestOpen).Scan(&n)
	return n, err
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
