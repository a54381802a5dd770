// Package correlation implements the correlation agent: per-site
// time-window clustering of alarm events into incidents, with a noise
// filter and a policy-conditioned critical-only filter.
package correlation

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/drak0niii/Launch-CTRL/pkg/agents"
	"github.com/drak0niii/Launch-CTRL/pkg/config"
	"github.com/drak0niii/Launch-CTRL/pkg/metrics"
	"github.com/drak0niii/Launch-CTRL/pkg/models"
	"github.com/drak0niii/Launch-CTRL/pkg/policy"
)

// noiseAlarms are rejected outright (case-insensitive).
var noiseAlarms = map[string]struct{}{
	"unknown":   {},
	"heartbeat": {},
	"noop":      {},
}

// criticalPatterns match alarm codes kept under "Critical First"
// prioritization (case-insensitive substring).
var criticalPatterns = []string{
	"serviceunavailable",
	"heartbeatfailure",
	"mainsfailure",
}

// PolicyReader is the read-only policy view the agent consults at decision
// time. Reconfiguration mid-stream applies to the next event, never
// retroactively.
type PolicyReader interface {
	Get() policy.Policy
}

// Notifier receives incident lifecycle callbacks from streaming mode.
type Notifier func(event string, incident models.Incident)

type siteBuffer struct {
	open   *models.Incident
	closed []models.Incident
}

// Agent is the correlation agent.
type Agent struct {
	agents.Base
	window time.Duration
	policy PolicyReader
	notify Notifier

	mu    sync.Mutex
	sites map[string]*siteBuffer

	logger *slog.Logger
}

// New creates the correlation agent. notify may be nil.
func New(cfg config.CorrelationConfig, pol PolicyReader, notify Notifier) *Agent {
	return &Agent{
		Base:   agents.NewBase("correlation", 500),
		window: cfg.Window,
		policy: pol,
		notify: notify,
		sites:  make(map[string]*siteBuffer),
		logger: slog.With("agent", "correlation"),
	}
}

// HandleEvent is streaming mode: it maintains the per-site open incident
// across live bus events.
func (a *Agent) HandleEvent(evt models.BusEvent) {
	if !a.Running() {
		return
	}

	if evt.Type == models.EventStateUpdate {
		a.handleStateUpdate(evt)
		return
	}
	if evt.Type != models.EventAlarmRaised && evt.Type != models.EventAlarmCleared {
		return
	}
	if !a.accepts(evt) {
		return
	}
	ts, ok := evt.Time()
	if !ok {
		a.logger.Debug("Dropping event with unparseable timestamp", "ts", evt.TS)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	buf := a.site(evt.SiteID)
	if buf.open == nil {
		buf.open = newIncident(evt, ts)
		metrics.IncidentsOpened.Inc()
		a.Log.Appendf("incident.started site=%s alarm=%s", evt.SiteID, evt.Alarm)
		if a.notify != nil {
			a.notify("incident.started", *buf.open)
		}
		return
	}

	// The window is anchored at the incident start; extending an incident
	// never slides it.
	if ts.Sub(buf.open.Start) <= a.window {
		extend(buf.open, evt, ts)
		if evt.Type == models.EventAlarmCleared && !hasCritical(buf.open.Types) {
			a.closeLocked(evt.SiteID, buf, models.CloseReasonAlarmCleared)
		}
		return
	}

	a.closeLocked(evt.SiteID, buf, models.CloseReasonWindowElapsed)
	buf.open = newIncident(evt, ts)
	metrics.IncidentsOpened.Inc()
	a.Log.Appendf("incident.started site=%s alarm=%s", evt.SiteID, evt.Alarm)
	if a.notify != nil {
		a.notify("incident.started", *buf.open)
	}
}

// handleStateUpdate closes a site's open incident when the snapshot shows
// the site healthy again.
func (a *Agent) handleStateUpdate(evt models.BusEvent) {
	if evt.Payload == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for siteID, buf := range a.sites {
		if buf.open == nil {
			continue
		}
		site, ok := evt.Payload.Site(siteID)
		if !ok {
			continue
		}
		if site.Mains == models.MainsOn && site.SiteAlive {
			a.closeLocked(siteID, buf, models.CloseReasonServiceRestored)
		}
	}
}

// Correlate is batch mode: the same noise and critical filters, then per
// site a timestamp sort and the identical window-grouping, returning every
// resulting incident. The supervisor calls it with one event as a cheap
// "anything worth escalating?" probe.
func (a *Agent) Correlate(events []models.BusEvent) []models.Incident {
	bySite := make(map[string][]models.BusEvent)
	for _, evt := range events {
		if evt.Type != models.EventAlarmRaised && evt.Type != models.EventAlarmCleared {
			continue
		}
		if !a.accepts(evt) {
			continue
		}
		if _, ok := evt.Time(); !ok {
			continue
		}
		bySite[evt.SiteID] = append(bySite[evt.SiteID], evt)
	}

	siteIDs := make([]string, 0, len(bySite))
	for siteID := range bySite {
		siteIDs = append(siteIDs, siteID)
	}
	sort.Strings(siteIDs)

	var incidents []models.Incident
	for _, siteID := range siteIDs {
		evts := bySite[siteID]
		sort.SliceStable(evts, func(i, j int) bool {
			ti, _ := evts[i].Time()
			tj, _ := evts[j].Time()
			return ti.Before(tj)
		})

		var open *models.Incident
		for _, evt := range evts {
			ts, _ := evt.Time()
			if open == nil {
				open = newIncident(evt, ts)
				continue
			}
			if ts.Sub(open.Start) <= a.window {
				extend(open, evt, ts)
				continue
			}
			incidents = append(incidents, *open)
			open = newIncident(evt, ts)
		}
		if open != nil {
			incidents = append(incidents, *open)
		}
	}
	return incidents
}

// ClosedIncidents returns a copy of the closed incidents for a site.
func (a *Agent) ClosedIncidents(siteID string) []models.Incident {
	a.mu.Lock()
	defer a.mu.Unlock()
	buf, ok := a.sites[siteID]
	if !ok {
		return nil
	}
	out := make([]models.Incident, len(buf.closed))
	copy(out, buf.closed)
	return out
}

// OpenIncident returns the site's open incident, if any.
func (a *Agent) OpenIncident(siteID string) (models.Incident, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	buf, ok := a.sites[siteID]
	if !ok || buf.open == nil {
		return models.Incident{}, false
	}
	return *buf.open, true
}

// accepts applies the noise filter and, under "Critical First"
// prioritization, the critical-pattern filter. Policy is read here, at
// decision time.
func (a *Agent) accepts(evt models.BusEvent) bool {
	if evt.SiteID == "" || strings.EqualFold(evt.SiteID, "unknown") {
		return false
	}
	if _, noisy := noiseAlarms[strings.ToLower(evt.Alarm)]; noisy {
		return false
	}
	if a.policy != nil && a.policy.Get().AlarmPrioritization == policy.PrioritizationCriticalFirst {
		if !isCritical(evt.Alarm) {
			return false
		}
	}
	return true
}

func (a *Agent) site(siteID string) *siteBuffer {
	buf, ok := a.sites[siteID]
	if !ok {
		buf = &siteBuffer{}
		a.sites[siteID] = buf
	}
	return buf
}

func (a *Agent) closeLocked(siteID string, buf *siteBuffer, reason string) {
	inc := *buf.open
	inc.Reason = reason
	buf.closed = append(buf.closed, inc)
	buf.open = nil
	metrics.IncidentsClosed.WithLabelValues(reason).Inc()
	a.Log.Appendf("incident.closed site=%s reason=%s count=%d", siteID, reason, inc.Count)
	if a.notify != nil {
		a.notify("incident.closed", inc)
	}
}

func newIncident(evt models.BusEvent, ts time.Time) *models.Incident {
	inc := &models.Incident{
		SiteID: evt.SiteID,
		Start:  ts,
		End:    ts,
		Count:  1,
		Events: []models.BusEvent{evt},
	}
	inc.AddType(evt.Alarm)
	return inc
}

func extend(inc *models.Incident, evt models.BusEvent, ts time.Time) {
	if ts.After(inc.End) {
		inc.End = ts
	}
	inc.Count++
	inc.AddType(evt.Alarm)
	inc.Events = append(inc.Events, evt)
}

func isCritical(alarm string) bool {
	needle := strings.ToLower(alarm)
	for _, p := range criticalPatterns {
		if strings.Contains(needle, p) {
			return true
		}
	}
	return false
}

func hasCritical(types []string) bool {
	for _, t := range types {
		if isCritical(t) {
			return true
		}
	}
	return false
}
