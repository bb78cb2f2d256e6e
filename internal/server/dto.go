package server

import (
	"github.com/andrehe001/semanticworkbench/internal/advisor"
	"github.com/andrehe001/semanticworkbench/internal/domain"
)

// Request payloads

type CreateBriefRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

type AddGoalRequest struct {
	Text     string   `json:"text"`
	Criteria []string `json:"criteria"`
}

type AddCriteriaRequest struct {
	Criteria []string `json:"criteria"`
}

type CreateRequestRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Priority    string  `json:"priority,omitempty" enum:"low,medium,high,critical"`
	Requester   *string `json:"requester,omitempty"`
}

type ResolveRequestRequest struct {
	Resolution string `json:"resolution"`
}

type DetectRequest struct {
	History []domain.Message `json:"history,omitempty"`
	Message string           `json:"message"`
}

// Response payloads

// DetectResponse is the detector wire contract.
type DetectResponse domain.DetectionResult

type ProjectResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Readiness   string `json:"readiness" enum:"DRAFTING,READY_FOR_WORKING"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type CriterionResponse struct {
	ID          string  `json:"id"`
	Position    int     `json:"position"`
	Description string  `json:"description"`
	Completed   bool    `json:"completed"`
	CompletedAt *string `json:"completed_at,omitempty" format:"date-time"`
	CompletedBy *string `json:"completed_by,omitempty"`
}

type GoalResponse struct {
	ID        string              `json:"id"`
	Position  int                 `json:"position"`
	Text      string              `json:"text"`
	Criteria  []CriterionResponse `json:"criteria"`
	CreatedAt string              `json:"created_at" format:"date-time"`
}

type RequestResponse struct {
	ID          string  `json:"id"`
	Requester   string  `json:"requester"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Priority    string  `json:"priority" enum:"low,medium,high,critical"`
	Status      string  `json:"status" enum:"OPEN,RESOLVED"`
	Resolution  *string `json:"resolution,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	ResolvedAt  *string `json:"resolved_at,omitempty" format:"date-time"`
}

type ProjectInfoResponse struct {
	Project      *ProjectResponse  `json:"project,omitempty"`
	Goals        []GoalResponse    `json:"goals"`
	Requests     []RequestResponse `json:"requests"`
	OpenRequests int               `json:"open_requests"`
}

type SuggestionResponse struct {
	Action    string `json:"action"`
	Reason    string `json:"reason"`
	RequestID string `json:"request_id,omitempty"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json,omitempty"`
}

// Mappers

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Readiness:   p.Readiness,
		CreatedAt:   p.CreatedAt,
	}
}

func criterionResponse(c domain.SuccessCriterion) CriterionResponse {
	return CriterionResponse{
		ID:          c.ID,
		Position:    c.Position,
		Description: c.Description,
		Completed:   c.Completed,
		CompletedAt: c.CompletedAt,
		CompletedBy: c.CompletedBy,
	}
}

func goalResponse(g domain.Goal) GoalResponse {
	out := GoalResponse{
		ID:        g.ID,
		Position:  g.Position,
		Text:      g.Text,
		Criteria:  []CriterionResponse{},
		CreatedAt: g.CreatedAt,
	}
	for _, c := range g.Criteria {
		out.Criteria = append(out.Criteria, criterionResponse(c))
	}
	return out
}

func requestResponse(r domain.InformationRequest) RequestResponse {
	return RequestResponse{
		ID:          r.ID,
		Requester:   r.Requester,
		Title:       r.Title,
		Description: r.Description,
		Priority:    r.Priority,
		Status:      r.Status,
		Resolution:  r.Resolution,
		CreatedAt:   r.CreatedAt,
		ResolvedAt:  r.ResolvedAt,
	}
}

func infoResponse(snap domain.ProjectSnapshot) ProjectInfoResponse {
	out := ProjectInfoResponse{
		Goals:        []GoalResponse{},
		Requests:     []RequestResponse{},
		OpenRequests: snap.OpenRequests,
	}
	if snap.Project != nil {
		p := projectResponse(*snap.Project)
		out.Project = &p
	}
	for _, g := range snap.Goals {
		out.Goals = append(out.Goals, goalResponse(g))
	}
	for _, r := range snap.Requests {
		out.Requests = append(out.Requests, requestResponse(r))
	}
	return out
}

func suggestionResponse(s advisor.Suggestion) SuggestionResponse {
	return SuggestionResponse{
		Action:    string(s.Action),
		Reason:    s.Reason,
		RequestID: s.RequestID,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    e.Payload,
	}
}
