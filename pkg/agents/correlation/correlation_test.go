package correlation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drak0niii/Launch-CTRL/pkg/config"
	"github.com/drak0niii/Launch-CTRL/pkg/models"
	"github.com/drak0niii/Launch-CTRL/pkg/policy"
)

type policyStub struct {
	prioritization string
}

func (p *policyStub) Get() policy.Policy {
	prio := p.prioritization
	if prio == "" {
		prio = policy.PrioritizationAdaptive
	}
	return policy.Policy{
		AlarmPrioritization: prio,
		WaysOfWorking:       policy.WaysOfWorkingE2E,
		KPIAlignment:        policy.KPIAlignmentHigh,
	}
}

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func raised(siteID, alarm string, at time.Time) models.BusEvent {
	return models.BusEvent{
		Type:   models.EventAlarmRaised,
		SiteID: siteID,
		Alarm:  alarm,
		TS:     models.FormatTimestamp(at),
	}
}

func newTestAgent(pol PolicyReader) *Agent {
	a := New(config.CorrelationConfig{Window: 5 * time.Minute}, pol, nil)
	a.Start()
	return a
}

func TestCorrelate_GroupsWithinWindow(t *testing.T) {
	a := newTestAgent(&policyStub{})

	incidents := a.Correlate([]models.BusEvent{
		raised("S1", "MainsFailure", t0),
		raised("S1", "SiteDown", t0.Add(4*time.Minute)),
		raised("S1", "MainsFailure", t0.Add(6*time.Minute)),
	})
	require.Len(t, incidents, 2)

	assert.Equal(t, 2, incidents[0].Count)
	assert.Equal(t, t0, incidents[0].Start)
	assert.Equal(t, t0.Add(4*time.Minute), incidents[0].End)
	assert.ElementsMatch(t, []string{"MainsFailure", "SiteDown"}, incidents[0].Types)

	assert.Equal(t, 1, incidents[1].Count)
	assert.Equal(t, t0.Add(6*time.Minute), incidents[1].Start)
}

func TestCorrelate_WindowBoundaryInclusive(t *testing.T) {
	a := newTestAgent(&policyStub{})

	// Exactly one window after the incident start still joins; one
	// nanosecond past it starts a new incident.
	incidents := a.Correlate([]models.BusEvent{
		raised("S1", "A", t0),
		raised("S1", "B", t0.Add(5*time.Minute)),
	})
	require.Len(t, incidents, 1)
	assert.Equal(t, 2, incidents[0].Count)

	incidents = a.Correlate([]models.BusEvent{
		raised("S1", "A", t0),
		raised("S1", "B", t0.Add(5*time.Minute+time.Nanosecond)),
	})
	assert.Len(t, incidents, 2)
}

func TestCorrelate_WindowAnchoredAtIncidentStart(t *testing.T) {
	a := newTestAgent(&policyStub{})

	// A chain of events each within the window of its predecessor must not
	// keep one incident open forever: the third event is 4 minutes after the
	// second but 8 minutes after the incident start, so it opens a new one.
	incidents := a.Correlate([]models.BusEvent{
		raised("S1", "MainsFailure", t0),
		raised("S1", "SiteDown", t0.Add(4*time.Minute)),
		raised("S1", "MainsFailure", t0.Add(8*time.Minute)),
	})
	require.Len(t, incidents, 2)
	assert.Equal(t, 2, incidents[0].Count)
	assert.Equal(t, t0.Add(8*time.Minute), incidents[1].Start)
	assert.Equal(t, 1, incidents[1].Count)
}

func TestCorrelate_PerSiteGrouping(t *testing.T) {
	a := newTestAgent(&policyStub{})

	incidents := a.Correlate([]models.BusEvent{
		raised("S2", "A", t0),
		raised("S1", "A", t0),
		raised("S2", "B", t0.Add(time.Minute)),
	})
	require.Len(t, incidents, 2)
	assert.Equal(t, "S1", incidents[0].SiteID)
	assert.Equal(t, 1, incidents[0].Count)
	assert.Equal(t, "S2", incidents[1].SiteID)
	assert.Equal(t, 2, incidents[1].Count)
}

func TestCorrelate_FiltersNoise(t *testing.T) {
	a := newTestAgent(&policyStub{})

	tests := []struct {
		name string
		evt  models.BusEvent
	}{
		{"noise alarm", raised("S1", "Heartbeat", t0)},
		{"unknown site", raised("unknown", "MainsFailure", t0)},
		{"empty site", raised("", "MainsFailure", t0)},
		{"unparseable timestamp", models.BusEvent{Type: models.EventAlarmRaised, SiteID: "S1", Alarm: "A", TS: "not-a-time"}},
		{"wrong type", models.BusEvent{Type: models.EventStateUpdate, SiteID: "S1", TS: models.FormatTimestamp(t0)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Empty(t, a.Correlate([]models.BusEvent{tc.evt}))
		})
	}
}

func TestCorrelate_CriticalFirstFilter(t *testing.T) {
	a := newTestAgent(&policyStub{prioritization: policy.PrioritizationCriticalFirst})

	incidents := a.Correlate([]models.BusEvent{
		raised("S1", "FanDegraded", t0),
		raised("S1", "MainsFailure", t0.Add(time.Minute)),
		raised("S1", "Antenna.ServiceUnavailable", t0.Add(2*time.Minute)),
	})
	require.Len(t, incidents, 1)
	assert.Equal(t, 2, incidents[0].Count)
	assert.NotContains(t, incidents[0].Types, "FanDegraded")
}

func TestHandleEvent_OpensAndExtendsIncident(t *testing.T) {
	a := newTestAgent(&policyStub{})

	a.HandleEvent(raised("S1", "MainsFailure", t0))
	open, ok := a.OpenIncident("S1")
	require.True(t, ok)
	assert.Equal(t, 1, open.Count)

	a.HandleEvent(raised("S1", "SiteDown", t0.Add(time.Minute)))
	open, ok = a.OpenIncident("S1")
	require.True(t, ok)
	assert.Equal(t, 2, open.Count)
	assert.Equal(t, t0.Add(time.Minute), open.End)
}

func TestHandleEvent_WindowAnchoredAtIncidentStart(t *testing.T) {
	a := newTestAgent(&policyStub{})

	a.HandleEvent(raised("S1", "MainsFailure", t0))
	a.HandleEvent(raised("S1", "SiteDown", t0.Add(4*time.Minute)))
	a.HandleEvent(raised("S1", "MainsFailure", t0.Add(8*time.Minute)))

	closed := a.ClosedIncidents("S1")
	require.Len(t, closed, 1)
	assert.Equal(t, 2, closed[0].Count)
	assert.Equal(t, models.CloseReasonWindowElapsed, closed[0].Reason)

	open, ok := a.OpenIncident("S1")
	require.True(t, ok)
	assert.Equal(t, 1, open.Count)
	assert.Equal(t, t0.Add(8*time.Minute), open.Start)
}

func TestHandleEvent_WindowElapsedStartsNewIncident(t *testing.T) {
	var closedReasons []string
	a := New(config.CorrelationConfig{Window: 5 * time.Minute}, &policyStub{},
		func(event string, inc models.Incident) {
			if event == "incident.closed" {
				closedReasons = append(closedReasons, inc.Reason)
			}
		})
	a.Start()

	a.HandleEvent(raised("S1", "MainsFailure", t0))
	a.HandleEvent(raised("S1", "MainsFailure", t0.Add(10*time.Minute)))

	closed := a.ClosedIncidents("S1")
	require.Len(t, closed, 1)
	assert.Equal(t, models.CloseReasonWindowElapsed, closed[0].Reason)
	assert.Equal(t, []string{models.CloseReasonWindowElapsed}, closedReasons)

	_, ok := a.OpenIncident("S1")
	assert.True(t, ok)
}

func TestHandleEvent_ClearedClosesWhenNoCriticalRemains(t *testing.T) {
	a := newTestAgent(&policyStub{})

	a.HandleEvent(raised("S1", "FanDegraded", t0))
	cleared := models.BusEvent{
		Type:   models.EventAlarmCleared,
		SiteID: "S1",
		Alarm:  "FanDegraded",
		TS:     models.FormatTimestamp(t0.Add(time.Minute)),
	}
	a.HandleEvent(cleared)

	closed := a.ClosedIncidents("S1")
	require.Len(t, closed, 1)
	assert.Equal(t, models.CloseReasonAlarmCleared, closed[0].Reason)
}

func TestHandleEvent_ClearedKeepsCriticalIncidentOpen(t *testing.T) {
	a := newTestAgent(&policyStub{})

	a.HandleEvent(raised("S1", "MainsFailure", t0))
	a.HandleEvent(models.BusEvent{
		Type:   models.EventAlarmCleared,
		SiteID: "S1",
		Alarm:  "FanDegraded",
		TS:     models.FormatTimestamp(t0.Add(time.Minute)),
	})

	_, ok := a.OpenIncident("S1")
	assert.True(t, ok)
	assert.Empty(t, a.ClosedIncidents("S1"))
}

func TestHandleEvent_StateUpdateClosesHealthySites(t *testing.T) {
	a := newTestAgent(&policyStub{})

	a.HandleEvent(raised("S1", "MainsFailure", t0))
	a.HandleEvent(models.BusEvent{
		Type:   models.EventStateUpdate,
		SiteID: models.SiteAll,
		TS:     models.FormatTimestamp(t0.Add(time.Minute)),
		Payload: models.Snapshot{
			"S1": {Mains: models.MainsOn, SiteAlive: true},
		},
	})

	closed := a.ClosedIncidents("S1")
	require.Len(t, closed, 1)
	assert.Equal(t, models.CloseReasonServiceRestored, closed[0].Reason)
}

func TestHandleEvent_IgnoredWhenStopped(t *testing.T) {
	a := New(config.CorrelationConfig{Window: 5 * time.Minute}, &policyStub{}, nil)

	a.HandleEvent(raised("S1", "MainsFailure", t0))
	_, ok := a.OpenIncident("S1")
	assert.False(t, ok)
}
