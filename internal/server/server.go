// Package server exposes the coordinator tool surface over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/andrehe001/semanticworkbench/internal/advisor"
	"github.com/andrehe001/semanticworkbench/internal/detector"
	"github.com/andrehe001/semanticworkbench/internal/engine"
	"github.com/andrehe001/semanticworkbench/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	Detector detector.Detector
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_ready"`
	Message string         `json:"message" example:"project is not ready for working"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"missing\":[\"no goals defined\"]}"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the workbench API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors are the caller's fault.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Semantic Workbench API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerBrief(group, cfg.Engine)
	registerInfo(group, cfg.Engine)
	registerGoals(group, cfg.Engine)
	registerRequests(group, cfg.Engine)
	registerReady(group, cfg.Engine)
	registerSuggest(group, cfg.Engine)
	registerDetect(group, cfg.Detector)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// handleError maps engine error kinds onto the HTTP taxonomy.
func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ee *engine.Error
	if errors.As(err, &ee) {
		switch ee.Kind {
		case engine.KindInvalidInput:
			return newAPIError(http.StatusBadRequest, string(ee.Kind), ee.Message, nil)
		case engine.KindNotFound:
			return newAPIError(http.StatusNotFound, string(ee.Kind), ee.Message, nil)
		case engine.KindAlreadyExists, engine.KindAlreadyResolved:
			return newAPIError(http.StatusConflict, string(ee.Kind), ee.Message, nil)
		case engine.KindNotReady:
			return newAPIError(http.StatusUnprocessableEntity, string(ee.Kind), ee.Message, map[string]any{"missing": ee.Missing})
		}
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "not_ready"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Semantic Workbench API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerBrief(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project-brief",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/brief",
		Summary:       "Create the project brief",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string             `path:"project_id"`
		Body      CreateBriefRequest `json:"body"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		desc := ""
		if input.Body.Description != nil {
			desc = *input.Body.Description
		}
		p, err := e.CreateBrief(ctx, engine.CreateBriefOptions{
			ProjectID:   input.ProjectID,
			Name:        input.Body.Name,
			Description: desc,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})
}

func registerInfo(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-project-info",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/info",
		Summary:     "Project snapshot: brief, goals, requests",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectInfoResponse `json:"body"`
	}, error) {
		snap, err := e.ProjectInfo(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectInfoResponse `json:"body"`
		}{Body: infoResponse(snap)}, nil
	})
}

func registerGoals(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-project-goal",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/goals",
		Summary:       "Add a goal with success criteria",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string         `path:"project_id"`
		Body      AddGoalRequest `json:"body"`
	}) (*struct {
		Body GoalResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		g, err := e.AddGoal(ctx, engine.AddGoalOptions{
			ProjectID: input.ProjectID,
			Text:      input.Body.Text,
			Criteria:  input.Body.Criteria,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GoalResponse `json:"body"`
		}{Body: goalResponse(g)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-success-criteria",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/goals/{goal_id}/criteria",
		Summary:       "Append success criteria to a goal",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string             `path:"project_id"`
		GoalID    string             `path:"goal_id"`
		Body      AddCriteriaRequest `json:"body"`
	}) (*struct {
		Body []CriterionResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		added, err := e.AddCriteria(ctx, input.ProjectID, input.GoalID, input.Body.Criteria, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]CriterionResponse, 0, len(added))
		for _, c := range added {
			out = append(out, criterionResponse(c))
		}
		return &struct {
			Body []CriterionResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-success-criterion",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/goals/{goal_id}/criteria/{criterion_id}/complete",
		Summary:     "Mark a success criterion completed",
		Errors: []int{
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID   string `path:"project_id"`
		GoalID      string `path:"goal_id"`
		CriterionID string `path:"criterion_id"`
	}) (*struct {
		Body CriterionResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CompleteCriterion(ctx, input.ProjectID, input.GoalID, input.CriterionID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CriterionResponse `json:"body"`
		}{Body: criterionResponse(c)}, nil
	})
}

func registerRequests(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-information-request",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/requests",
		Summary:       "Open an information request",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      CreateRequestRequest `json:"body"`
	}) (*struct {
		Body RequestResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		requester := actorID
		if input.Body.Requester != nil && strings.TrimSpace(*input.Body.Requester) != "" {
			requester = *input.Body.Requester
		}
		req, err := e.CreateRequest(ctx, engine.CreateRequestOptions{
			ProjectID:   input.ProjectID,
			Requester:   requester,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Priority:    input.Body.Priority,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RequestResponse `json:"body"`
		}{Body: requestResponse(req)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-information-requests",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/requests",
		Summary:     "List information requests in creation order",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Status    string `query:"status" enum:"OPEN,RESOLVED" required:"false"`
	}) (*struct {
		Body []RequestResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListRequests(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		out := []RequestResponse{}
		for _, r := range items {
			if input.Status != "" && r.Status != input.Status {
				continue
			}
			out = append(out, requestResponse(r))
		}
		return &struct {
			Body []RequestResponse `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-information-request",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/requests/{request_id}/resolve",
		Summary:     "Resolve an information request by store-issued id",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                `path:"project_id"`
		RequestID string                `path:"request_id"`
		Body      ResolveRequestRequest `json:"body"`
	}) (*struct {
		Body RequestResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		req, err := e.ResolveRequest(ctx, input.ProjectID, input.RequestID, input.Body.Resolution, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RequestResponse `json:"body"`
		}{Body: requestResponse(req)}, nil
	})
}

func registerReady(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "mark-project-ready-for-working",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/ready",
		Summary:     "Mark the project ready for working",
		Errors: []int{
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body ProjectResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.MarkReady(ctx, input.ProjectID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProjectResponse `json:"body"`
		}{Body: projectResponse(p)}, nil
	})
}

func registerSuggest(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "suggest-next-action",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/suggest",
		Summary:     "Recommend the coordinator's next step",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body SuggestionResponse `json:"body"`
	}, error) {
		snap, err := e.ProjectInfo(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SuggestionResponse `json:"body"`
		}{Body: suggestionResponse(advisor.Suggest(snap))}, nil
	})
}

func registerDetect(api huma.API, d detector.Detector) {
	huma.Register(api, huma.Operation{
		OperationID: "detect-information-request",
		Method:      http.MethodPost,
		Path:        "/detect",
		Summary:     "Classify a team message as a potential information request",
	}, func(ctx context.Context, input *struct {
		Body DetectRequest `json:"body"`
	}) (*struct {
		Body DetectResponse `json:"body"`
	}, error) {
		res := d.Detect(ctx, input.Body.History, input.Body.Message)
		return &struct {
			Body DetectResponse `json:"body"`
		}{Body: DetectResponse(res)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/events",
		Summary:     "Latest project events",
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Limit     int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
		Type      string `query:"type" required:"false"`
	}) (*struct {
		Body []EventResponse `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 {
			limit = 50
		}
		items, err := e.Repo.LatestEvents(ctx, limit, input.ProjectID, input.Type, "", "")
		if err != nil {
			return nil, handleError(err)
		}
		out := []EventResponse{}
		for _, evt := range items {
			out = append(out, eventResponse(evt))
		}
		return &struct {
			Body []EventResponse `json:"body"`
		}{Body: out}, nil
	})
}
