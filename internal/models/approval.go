package models

// DecisionAction is the outcome a reviewer picked for a pending plugin.
type DecisionAction string

const (
	DecisionApprove DecisionAction = "approve"
	DecisionReject  DecisionAction = "reject"
)

// Valid reports whether a is a known action.
func (a DecisionAction) Valid() bool {
	return a == DecisionApprove || a == DecisionReject
}

// ApprovalDecision is a single human decision on a pending plugin.
type ApprovalDecision struct {
	Action   DecisionAction `json:"action"`
	PluginID int64          `json:"plugin_id"`
}

// Approved reports whether the decision approves the plugin.
func (d ApprovalDecision) Approved() bool {
	return d.Action == DecisionApprove
}

// PendingNotice is what an approval channel renders for a newly discovered plugin.
type PendingNotice struct {
	Plugin  StoredPlugin `json:"plugin"`
	LogoURL string       `json:"logo_url"`
}
