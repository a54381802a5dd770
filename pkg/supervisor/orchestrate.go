package supervisor

import (
	"context"
	"errors"
	"sort"

	"github.com/drak0niii/Launch-CTRL/pkg/agents"
	"github.com/drak0niii/Launch-CTRL/pkg/bus"
	"github.com/drak0niii/Launch-CTRL/pkg/metrics"
	"github.com/drak0niii/Launch-CTRL/pkg/models"
)

// forwardLoop moves bus events into the inbox and feeds the correlation
// agent's streaming mode on the way through.
func (s *Supervisor) forwardLoop(ctx context.Context, sub *bus.Subscription, inbox chan models.BusEvent) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.C:
			if !ok {
				return
			}
			s.correlator.HandleEvent(evt)
			select {
			case inbox <- evt:
			case <-ctx.Done():
				return
			}
		}
	}
}

// processLoop drains the inbox one event at a time. This is the only
// goroutine that runs HandleEvent, which is what serializes orchestration.
func (s *Supervisor) processLoop(ctx context.Context, inbox chan models.BusEvent) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-inbox:
			s.HandleEvent(ctx, evt)
		}
	}
}

// coldStartSweep synthesizes one alarm.raised per alarm present in the
// current snapshot so pre-existing faults become actionable right after
// start.
func (s *Supervisor) coldStartSweep(ctx context.Context, inbox chan models.BusEvent) {
	defer s.wg.Done()

	snap, err := s.tower.Snapshot(ctx)
	if err != nil {
		s.Log.Appendf("cold-start sweep failed: %v", err)
		return
	}

	siteIDs := make([]string, 0, len(snap))
	for siteID := range snap {
		siteIDs = append(siteIDs, siteID)
	}
	sort.Strings(siteIDs)

	count := 0
	ts := models.FormatTimestamp(s.now())
	for _, siteID := range siteIDs {
		for _, alarm := range snap[siteID].Alarms {
			evt := models.BusEvent{
				Type:   models.EventAlarmRaised,
				SiteID: siteID,
				Alarm:  alarm,
				TS:     ts,
				Source: "cold-start",
			}
			select {
			case inbox <- evt:
				count++
			case <-ctx.Done():
				return
			}
		}
	}
	s.Log.Appendf("cold-start sweep queued %d alarm(s)", count)
}

// HandleEvent runs the per-event orchestration: ledger, lifecycle and
// shape gates, correlation probe, investigating case, then the auto or
// human-in-the-loop mitigation path. Errors never propagate to the bus.
func (s *Supervisor) HandleEvent(ctx context.Context, evt models.BusEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.Log.Appendf("event.panic site=%s type=%s: %v", evt.SiteID, evt.Type, r)
			s.logger.Error("Recovered panic in event handler",
				"site", evt.SiteID, "type", evt.Type, "panic", r)
		}
	}()

	key := evt.LedgerKey()
	s.mu.Lock()
	if _, seen := s.ledger[key]; seen {
		s.mu.Unlock()
		s.Log.Appendf("event.duplicate site=%s type=%s ts=%s", evt.SiteID, evt.Type, evt.TS)
		metrics.EventsDuplicate.Inc()
		return
	}
	s.rememberLocked(key)
	status := s.status
	s.mu.Unlock()

	if status != StatusRunning {
		s.Log.Appendf("event.ignored status=%s site=%s type=%s", status, evt.SiteID, evt.Type)
		return
	}
	if evt.SiteID == "" {
		s.Log.Appendf("event.skipped reason=no_site type=%s", evt.Type)
		return
	}
	if evt.Type != models.EventAlarmRaised && evt.Type != models.EventServiceChanged {
		s.Log.Appendf("event.skipped reason=type site=%s type=%s", evt.SiteID, evt.Type)
		return
	}

	metrics.EventsConsumed.Inc()

	if !s.correlator.Running() {
		s.correlator.Start()
	}
	incidents := s.correlator.Correlate([]models.BusEvent{evt})
	if len(incidents) == 0 {
		s.Log.Appendf("event.no_incident site=%s type=%s", evt.SiteID, evt.Type)
		return
	}

	cause := evt.Alarm
	if cause == "" {
		cause = string(evt.Type)
	}

	// Best-effort "investigating" marker; a rejection here never blocks
	// mitigation.
	outcome := s.recorder.Record(ctx, agents.CaseInput{
		SiteID:     evt.SiteID,
		Cause:      cause,
		Resolution: models.ResolutionInvestigating,
	})
	s.countCase(outcome)
	if outcome.Skipped {
		s.Log.Appendf("case.skipped site=%s reason=%s", evt.SiteID, outcome.Reason)
	}

	if !s.mitigator.Running() {
		s.mitigator.Start()
	}

	if !s.AutoEffective() {
		res, err := s.mitigator.MitigateSite(ctx, evt.SiteID)
		var approval *agents.ApprovalRequiredError
		if errors.As(err, &approval) {
			a := s.enqueueApproval(approval.SiteID, approval.Plan, "policy requires human approval for "+cause)
			s.Log.Appendf("approval.queued id=%s site=%s steps=%d", a.ID, a.SiteID, len(a.Actions))
			return
		}
		if err != nil {
			s.Log.Appendf("mitigation.error site=%s: %v", evt.SiteID, err)
			return
		}
		// Nothing needed approval (empty plan): record the outcome anyway.
		s.recordFinal(ctx, evt.SiteID, cause, res)
		return
	}

	s.mu.Lock()
	s.tasksRouted++
	s.mu.Unlock()

	res, err := s.mitigator.MitigateSite(ctx, evt.SiteID)
	if err != nil {
		s.Log.Appendf("mitigation.error site=%s: %v", evt.SiteID, err)
		return
	}
	s.recordFinal(ctx, evt.SiteID, cause, res)
}

// recordFinal writes the terminal RCA case for a completed mitigation.
func (s *Supervisor) recordFinal(ctx context.Context, siteID, cause string, res *agents.MitigationResult) {
	resolution := models.ResolutionStabilized
	if res.AllClear {
		resolution = models.ResolutionRestored
	}
	metrics.MitigationsRun.WithLabelValues(resolution).Inc()

	outcome := s.recorder.Record(ctx, agents.CaseInput{
		SiteID:     siteID,
		Cause:      cause,
		Actions:    res.ActionsTaken,
		Resolution: resolution,
	})
	s.countCase(outcome)
	s.Log.Appendf("mitigation.recorded site=%s resolution=%s actions=%d",
		siteID, resolution, len(res.ActionsTaken))
}

func (s *Supervisor) countCase(outcome agents.RecordOutcome) {
	switch {
	case outcome.OK:
		metrics.CasesRecorded.WithLabelValues("recorded").Inc()
	case outcome.Skipped:
		metrics.CasesRecorded.WithLabelValues(outcome.Reason).Inc()
	}
}
