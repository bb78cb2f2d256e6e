// Package advisor recommends the coordinator's next step from a project
// snapshot. It reads state and never mutates it.
package advisor

import (
	"fmt"
	"strings"

	"github.com/andrehe001/semanticworkbench/internal/domain"
)

// Action names a coordinator tool the suggestion points at.
type Action string

const (
	ActionCreateBrief    Action = "create_project_brief"
	ActionAddGoal        Action = "add_project_goal"
	ActionMarkReady      Action = "mark_project_ready_for_working"
	ActionResolveRequest Action = "resolve_information_request"
	ActionMonitor        Action = "monitor_progress"
)

// Suggestion is the advisor's recommendation. RequestID is set only when
// the action is resolving a specific information request.
type Suggestion struct {
	Action    Action `json:"action"`
	Reason    string `json:"reason"`
	RequestID string `json:"request_id,omitempty"`
}

// Suggest evaluates a fixed decision table top to bottom and returns the
// first matching recommendation.
func Suggest(snap domain.ProjectSnapshot) Suggestion {
	if snap.Project == nil {
		return Suggestion{
			Action: ActionCreateBrief,
			Reason: "no project brief exists yet; create one to define the work",
		}
	}
	if len(snap.Goals) == 0 {
		return Suggestion{
			Action: ActionAddGoal,
			Reason: "the brief has no goals; add at least one goal with success criteria",
		}
	}
	var bare []string
	for _, g := range snap.Goals {
		if len(g.Criteria) == 0 {
			bare = append(bare, fmt.Sprintf("%q", g.Text))
		}
	}
	if len(bare) > 0 {
		return Suggestion{
			Action: ActionAddGoal,
			Reason: "add success criteria to goals " + strings.Join(bare, ", "),
		}
	}
	if snap.Project.Readiness != domain.ReadinessReadyForWorking {
		return Suggestion{
			Action: ActionMarkReady,
			Reason: "all goals have success criteria; mark the project ready so the team can start",
		}
	}
	if urgent := pickOpen(snap.Requests, true); urgent != nil {
		return Suggestion{
			Action:    ActionResolveRequest,
			Reason:    fmt.Sprintf("open %s-priority request %q is blocking the team", urgent.Priority, urgent.Title),
			RequestID: urgent.ID,
		}
	}
	if open := pickOpen(snap.Requests, false); open != nil {
		return Suggestion{
			Action:    ActionResolveRequest,
			Reason:    fmt.Sprintf("open request %q awaits a resolution", open.Title),
			RequestID: open.ID,
		}
	}
	return Suggestion{
		Action: ActionMonitor,
		Reason: "no open requests; monitor the team's progress",
	}
}

// pickOpen returns the highest-priority open request, oldest first among
// equals. With urgentOnly it considers only high and critical requests.
func pickOpen(requests []domain.InformationRequest, urgentOnly bool) *domain.InformationRequest {
	var best *domain.InformationRequest
	for i := range requests {
		r := &requests[i]
		if r.Status != domain.RequestOpen {
			continue
		}
		if urgentOnly && domain.PriorityRank(r.Priority) < domain.PriorityRank(domain.PriorityHigh) {
			continue
		}
		if best == nil || domain.PriorityRank(r.Priority) > domain.PriorityRank(best.Priority) {
			best = r
		}
	}
	return best
}
