package models

import "time"

// Approval decisions.
const (
	DecisionApproved = "approved"
	DecisionRejected = "rejected"
)

// Approval is a pending authorization of a troubleshooting plan in
// human-in-the-loop mode. IDs are monotonic integers rendered as strings.
type Approval struct {
	ID        string    `json:"id"`
	SiteID    string    `json:"siteId"`
	Actions   []string  `json:"actions"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"createdAt"`
}
