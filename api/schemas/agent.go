package schemas

import "time"

// -- Page Snapshot Schemas --

// ElementInfo is the compact description of a clickable element (button or
// link) as presented to the decision layer.
type ElementInfo struct {
	Text string `json:"text"`
	ID   string `json:"id,omitempty"`
	Href string `json:"href,omitempty"`
}

// InputInfo describes a visible form input. The label is resolved from an
// associated <label> element when one exists, otherwise left empty.
type InputInfo struct {
	Type        string `json:"type"`
	Name        string `json:"name,omitempty"`
	ID          string `json:"id,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Label       string `json:"label,omitempty"`
}

// PageSnapshot is a bounded, textual summary of the current page. It is the
// only view of the page the decision layer ever sees, so everything a
// decision could depend on must be captured here.
type PageSnapshot struct {
	URL         string        `json:"url"`
	Title       string        `json:"title"`
	Buttons     []ElementInfo `json:"buttons"`
	Links       []ElementInfo `json:"links"`
	Inputs      []InputInfo   `json:"inputs"`
	Headings    []string      `json:"headings"`
	Alerts      []string      `json:"alerts"`
	VisibleText string        `json:"visible_text"`
}

// -- Agent Action Schemas --

// AgentActionType enumerates the primitive actions the agent can take on a page.
type AgentActionType string

const (
	ActionClick    AgentActionType = "click"
	ActionTypeText AgentActionType = "type"
	ActionNavigate AgentActionType = "navigate"
	ActionWait     AgentActionType = "wait"
	ActionScroll   AgentActionType = "scroll"
)

// AgentAction is a single step the agent wants performed against the page.
// Target is interpreted per action type: element text or selector for click,
// a field descriptor for type, a URL for navigate.
type AgentAction struct {
	Type   AgentActionType `json:"action"`
	Target string          `json:"target,omitempty"`
	Value  string          `json:"value,omitempty"`
}

// AgentDecision is the full output of one decision step, whether it came
// from a deterministic handler or from the model.
type AgentDecision struct {
	Observation  string      `json:"observation"`
	Reasoning    string      `json:"reasoning"`
	Action       AgentAction `json:"action"`
	GoalAchieved bool        `json:"goal_achieved"`
	Confidence   float64     `json:"confidence"`
}

// ActionRecord is one entry in the running action history: what was
// attempted, on which page, and how it went.
type ActionRecord struct {
	Iteration int         `json:"iteration"`
	URL       string      `json:"url"`
	Action    AgentAction `json:"action"`
	Succeeded bool        `json:"succeeded"`
	Detail    string      `json:"detail,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// -- Agent Result Schemas --

// AgentResult is the terminal outcome of running the agent against a goal
// sequence. Exactly one of Success, PausedForUser, or a non-empty Error
// describes how the run ended.
type AgentResult struct {
	Success       bool           `json:"success"`
	PausedForUser bool           `json:"paused_for_user"`
	PauseReason   string         `json:"pause_reason,omitempty"`
	Error         string         `json:"error,omitempty"`
	FinalURL      string         `json:"final_url"`
	Iterations    int            `json:"iterations"`
	Screenshots   []string       `json:"screenshots"`
	ActionHistory []ActionRecord `json:"action_history"`
}
