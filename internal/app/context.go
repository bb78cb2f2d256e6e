// Package app resolves the active project and its config for CLI entry
// points.
package app

import (
	"context"
	"errors"

	"github.com/andrehe001/semanticworkbench/internal/config"
	"github.com/andrehe001/semanticworkbench/internal/repo"
)

const defaultProjectID = "default"

// ResolveProjectAndConfig picks the active project id and loads its
// config. Precedence for the id: explicit override, the single project
// in the database, the workspace swb.yml, then "default". The config is
// read from the database when present, otherwise from swb.yml, otherwise
// seeded with defaults. The project row itself is created only by an
// explicit brief creation.
func ResolveProjectAndConfig(ctx context.Context, workspace, projectOverride string, r repo.Repo) (string, *config.Config, error) {
	fileCfg, err := config.LoadOptional(workspace)
	if err != nil {
		return "", nil, err
	}

	projectID := projectOverride
	if projectID == "" {
		if p, err := r.SingleProject(ctx); err == nil {
			projectID = p.ID
		} else if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
	}
	if projectID == "" && fileCfg != nil && fileCfg.Project.ID != "" {
		projectID = fileCfg.Project.ID
	}
	if projectID == "" {
		projectID = defaultProjectID
	}

	cfg, err := r.GetProjectConfig(ctx, projectID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		cfg = fileCfg
	}
	if cfg == nil {
		cfg = config.Default(projectID)
	}
	cfg.Project.ID = projectID
	return projectID, cfg, nil
}
