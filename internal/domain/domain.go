package domain

// Readiness gates when a project's goals are shared with the team.
const (
	ReadinessDrafting        = "DRAFTING"
	ReadinessReadyForWorking = "READY_FOR_WORKING"
)

// Request status values. RESOLVED is terminal.
const (
	RequestOpen     = "OPEN"
	RequestResolved = "RESOLVED"
)

// Priority levels for information requests.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// ValidPriority reports whether p is a known priority level.
func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// PriorityRank orders priorities; higher is more urgent.
func PriorityRank(p string) int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 0
	}
	return -1
}

type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Readiness   string `json:"readiness" enum:"DRAFTING,READY_FOR_WORKING"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Goal struct {
	ID        string             `json:"id"`
	ProjectID string             `json:"project_id"`
	Position  int                `json:"position"`
	Text      string             `json:"text"`
	Criteria  []SuccessCriterion `json:"criteria"`
	CreatedAt string             `json:"created_at" format:"date-time"`
}

type SuccessCriterion struct {
	ID          string  `json:"id"`
	GoalID      string  `json:"goal_id"`
	Position    int     `json:"position"`
	Description string  `json:"description"`
	Completed   bool    `json:"completed"`
	CompletedAt *string `json:"completed_at,omitempty" format:"date-time"`
	CompletedBy *string `json:"completed_by,omitempty"`
}

type InformationRequest struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	Requester   string  `json:"requester"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Priority    string  `json:"priority" enum:"low,medium,high,critical"`
	Status      string  `json:"status" enum:"OPEN,RESOLVED"`
	Resolution  *string `json:"resolution,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	ResolvedAt  *string `json:"resolved_at,omitempty" format:"date-time"`
}

// DetectionResult is the request-detector output consumed by the host
// conversational layer. Field names follow the wire contract.
type DetectionResult struct {
	IsRequest   bool    `json:"is_information_request"`
	Reason      string  `json:"reason"`
	Title       string  `json:"potential_title"`
	Description string  `json:"potential_description"`
	Priority    string  `json:"suggested_priority" enum:"low,medium,high,critical"`
	Confidence  float64 `json:"confidence" minimum:"0" maximum:"1"`
}

// Message is one turn of the conversation handed to the detector.
type Message struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// ProjectSnapshot is a read-consistent view of one project: brief, goals
// with criteria, and every information request in creation order. Project
// is nil when no brief has been created yet.
type ProjectSnapshot struct {
	Project      *Project             `json:"project,omitempty"`
	Goals        []Goal               `json:"goals"`
	Requests     []InformationRequest `json:"requests"`
	OpenRequests int                  `json:"open_requests"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
