package models

import "time"

// Case resolutions.
const (
	ResolutionInvestigating = "investigating"
	ResolutionRestored      = "restored"
	ResolutionStabilized    = "stabilized"
	ResolutionUnknown       = "unknown"
)

// Case is a persisted RCA record: what happened at a site, what was done
// about it, and whether a field dispatch is suggested.
type Case struct {
	TS                time.Time `json:"ts"`
	SiteID            string    `json:"siteId"`
	Cause             string    `json:"cause"`
	Actions           []string  `json:"actions"`
	Resolution        string    `json:"resolution"`
	Ongoing           bool      `json:"ongoing"`
	DispatchSuggested bool      `json:"dispatchSuggested"`
	Summary           string    `json:"summary"`
}
