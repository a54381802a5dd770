package models

import (
	"strconv"
	"strings"
	"time"
)

// EventType tags a normalized bus event.
type EventType string

// Normalized bus event types.
const (
	EventAlarmRaised     EventType = "alarm.raised"
	EventAlarmCleared    EventType = "alarm.cleared"
	EventServiceChanged  EventType = "service.changed"
	EventStateUpdate     EventType = "state.update"
	EventBusDisconnected EventType = "bus.disconnected"
	EventBusReconnected  EventType = "bus.reconnected"
)

// Antenna identifiers used in service.changed events.
const (
	AntennaOne = "antenna1"
	AntennaTwo = "antenna2"
)

// SiteAll is the siteId carried by fleet-wide snapshot events.
const SiteAll = "all"

// BusEvent is a normalized event on the incident bus. The populated fields
// depend on Type. TS is preserved as the original string because the
// supervisor's duplicate ledger keys on it verbatim.
type BusEvent struct {
	Type      EventType `json:"type"`
	SiteID    string    `json:"siteId"`
	Alarm     string    `json:"alarm,omitempty"`
	Antenna   string    `json:"antenna,omitempty"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	TS        string    `json:"ts"`
	Source    string    `json:"source,omitempty"`
	Bootstrap bool      `json:"bootstrap,omitempty"`
	Payload   Snapshot  `json:"payload,omitempty"`
}

// LedgerKey is the exact-duplicate identity of an event: (type, siteId,
// alarm, ts). The timestamp participates string-for-string; normalizing it
// would break the intended dedup semantics.
func (e BusEvent) LedgerKey() string {
	return string(e.Type) + "|" + e.SiteID + "|" + e.Alarm + "|" + e.TS
}

// Time parses the event timestamp.
func (e BusEvent) Time() (time.Time, bool) {
	return ParseTimestamp(e.TS)
}

// ParseTimestamp parses a bus event timestamp. Accepts RFC 3339 (with or
// without sub-second precision) and integer Unix milliseconds.
func ParseTimestamp(ts string) (time.Time, bool) {
	if ts == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		return t, true
	}
	if !strings.ContainsAny(ts, "-:TZ") {
		if ms, err := strconv.ParseInt(ts, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), true
		}
	}
	return time.Time{}, false
}

// FormatTimestamp renders a timestamp the way the delta emitter and the
// cold-start sweep stamp their events.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
