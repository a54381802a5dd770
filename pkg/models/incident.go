package models

import "time"

// Incident closure reasons.
const (
	CloseReasonWindowElapsed   = "window_elapsed"
	CloseReasonAlarmCleared    = "alarm_cleared"
	CloseReasonServiceRestored = "service_restored"
)

// Incident is a correlation-window-merged cluster of alarm events for one
// site. Open incidents live in the correlation agent's per-site buffer;
// closed incidents carry a Reason.
type Incident struct {
	SiteID string     `json:"siteId"`
	Start  time.Time  `json:"start"`
	End    time.Time  `json:"end"`
	Count  int        `json:"count"`
	Types  []string   `json:"types"`
	Events []BusEvent `json:"events"`
	Reason string     `json:"reason,omitempty"`
}

// AddType appends an alarm code, preserving set semantics and insertion order.
func (i *Incident) AddType(alarm string) {
	for _, t := range i.Types {
		if t == alarm {
			return
		}
	}
	i.Types = append(i.Types, alarm)
}

// HasType reports whether the incident already contains the alarm code.
func (i *Incident) HasType(alarm string) bool {
	for _, t := range i.Types {
		if t == alarm {
			return true
		}
	}
	return false
}
