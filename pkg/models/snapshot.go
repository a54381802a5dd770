// Package models defines the shared domain types for the fleet control
// plane: tower snapshots, normalized bus events, incidents, RCA cases,
// and approvals.
package models

// Service state values reported by the simulator for an antenna.
const (
	ServiceAvailable   = "Available"
	ServiceUnavailable = "Unavailable"
)

// Mains state values.
const (
	MainsOn  = "on"
	MainsOff = "off"
)

// AntennaState is the per-antenna portion of a site snapshot.
type AntennaState struct {
	Service string `json:"service"`
}

// SiteState is the simulator's view of a single cell site.
type SiteState struct {
	Mains          string       `json:"mains"`
	SiteAlive      bool         `json:"siteAlive"`
	BatteryPercent int          `json:"batteryPercent"`
	Antenna1       AntennaState `json:"antenna1"`
	Antenna2       AntennaState `json:"antenna2"`
	Alarms         []string     `json:"alarms"`
}

// Snapshot is the full fleet state keyed by site ID.
type Snapshot map[string]SiteState

// Site returns the state for a site and whether it exists.
func (s Snapshot) Site(siteID string) (SiteState, bool) {
	st, ok := s[siteID]
	return st, ok
}

// Clone returns a deep copy of the snapshot. Snapshots cross component
// boundaries by value; callers must never share the alarm slices.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	out := make(Snapshot, len(s))
	for id, st := range s {
		alarms := make([]string, len(st.Alarms))
		copy(alarms, st.Alarms)
		st.Alarms = alarms
		out[id] = st
	}
	return out
}
