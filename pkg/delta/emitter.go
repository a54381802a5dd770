// Package delta converts successive fleet snapshots into discrete
// normalized events by diffing two compact views: alarms-by-site and
// service-by-site.
package delta

import (
	"sort"
	"sync"
	"time"

	"github.com/drak0niii/Launch-CTRL/pkg/models"
)

type serviceView struct {
	antenna1 string
	antenna2 string
}

// Emitter is the stateful snapshot differ. Ingest is safe for concurrent
// use; view replacement is atomic relative to further ingests.
type Emitter struct {
	mu            sync.Mutex
	alarms        map[string]map[string]struct{}
	service       map[string]serviceView
	primed        bool
	bootstrapEmit bool
	now           func() time.Time
}

// NewEmitter creates a delta emitter. When bootstrapEmit is set, the first
// ingest after construction (or Reset) emits one alarm.raised per
// already-present alarm, flagged bootstrap=true.
func NewEmitter(bootstrapEmit bool) *Emitter {
	return &Emitter{
		bootstrapEmit: bootstrapEmit,
		now:           time.Now,
	}
}

// Reset clears the stored views so no events are emitted for state that
// predates a new stream connection.
func (e *Emitter) Reset() {
	e.mu.Lock()
	e.alarms = nil
	e.service = nil
	e.primed = false
	e.mu.Unlock()
}

// Ingest diffs the snapshot against the stored views and returns the
// resulting events in a fixed order: all raised, then all cleared, then all
// service changes, each pass walking sites in ascending key order. Every
// event from one call carries the same timestamp.
func (e *Emitter) Ingest(snap models.Snapshot, source string) []models.BusEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	ts := models.FormatTimestamp(e.now())
	nextAlarms, nextService := buildViews(snap)

	if !e.primed {
		var events []models.BusEvent
		if e.bootstrapEmit {
			for _, siteID := range sortedKeys(nextAlarms) {
				for _, alarm := range sortedSet(nextAlarms[siteID]) {
					events = append(events, models.BusEvent{
						Type:      models.EventAlarmRaised,
						SiteID:    siteID,
						Alarm:     alarm,
						TS:        ts,
						Source:    source,
						Bootstrap: true,
					})
				}
			}
		}
		e.alarms = nextAlarms
		e.service = nextService
		e.primed = true
		return events
	}

	sites := unionKeys(e.alarms, nextAlarms, e.service, nextService)

	var events []models.BusEvent
	for _, siteID := range sites {
		prev := e.alarms[siteID]
		next := nextAlarms[siteID]
		for _, alarm := range sortedSet(next) {
			if _, ok := prev[alarm]; !ok {
				events = append(events, models.BusEvent{
					Type:   models.EventAlarmRaised,
					SiteID: siteID,
					Alarm:  alarm,
					TS:     ts,
					Source: source,
				})
			}
		}
	}
	for _, siteID := range sites {
		prev := e.alarms[siteID]
		next := nextAlarms[siteID]
		for _, alarm := range sortedSet(prev) {
			if _, ok := next[alarm]; !ok {
				events = append(events, models.BusEvent{
					Type:   models.EventAlarmCleared,
					SiteID: siteID,
					Alarm:  alarm,
					TS:     ts,
					Source: source,
				})
			}
		}
	}
	for _, siteID := range sites {
		prev, hadPrev := e.service[siteID]
		next, hasNext := nextService[siteID]
		if !hadPrev || !hasNext {
			continue
		}
		if prev.antenna1 != next.antenna1 {
			events = append(events, serviceChanged(siteID, models.AntennaOne, prev.antenna1, next.antenna1, ts, source))
		}
		if prev.antenna2 != next.antenna2 {
			events = append(events, serviceChanged(siteID, models.AntennaTwo, prev.antenna2, next.antenna2, ts, source))
		}
	}

	e.alarms = nextAlarms
	e.service = nextService
	return events
}

// SetNow overrides the clock; used by tests.
func (e *Emitter) SetNow(now func() time.Time) {
	e.mu.Lock()
	e.now = now
	e.mu.Unlock()
}

func serviceChanged(siteID, antenna, from, to, ts, source string) models.BusEvent {
	return models.BusEvent{
		Type:    models.EventServiceChanged,
		SiteID:  siteID,
		Antenna: antenna,
		From:    from,
		To:      to,
		TS:      ts,
		Source:  source,
	}
}

func buildViews(snap models.Snapshot) (map[string]map[string]struct{}, map[string]serviceView) {
	alarms := make(map[string]map[string]struct{}, len(snap))
	service := make(map[string]serviceView, len(snap))
	for siteID, site := range snap {
		set := make(map[string]struct{}, len(site.Alarms))
		for _, a := range site.Alarms {
			set[a] = struct{}{}
		}
		alarms[siteID] = set
		service[siteID] = serviceView{
			antenna1: site.Antenna1.Service,
			antenna2: site.Antenna2.Service,
		}
	}
	return alarms, service
}

func sortedKeys(m map[string]map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for a := range set {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

func unionKeys(a map[string]map[string]struct{}, b map[string]map[string]struct{}, c, d map[string]serviceView) []string {
	seen := make(map[string]struct{})
	for k := range a {
		seen[k] = struct{}{}
	}
	for k := range b {
		seen[k] = struct{}{}
	}
	for k := range c {
		seen[k] = struct{}{}
	}
	for k := range d {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
