// Package rca implements the root-cause-analysis agent: a bounded
// casebook with noise and dedup filters, and deterministic field-dispatch
// email composition.
package rca

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/drak0niii/Launch-CTRL/pkg/agents"
	"github.com/drak0niii/Launch-CTRL/pkg/config"
	"github.com/drak0niii/Launch-CTRL/pkg/models"
)

// noiseCauses are rejected outright (compared lowercased).
var noiseCauses = map[string]struct{}{
	"unknown":   {},
	"heartbeat": {},
	"noop":      {},
}

// SnapshotFetcher is the read-only device view the agent uses to enrich
// cases and dispatch emails with live site state.
type SnapshotFetcher interface {
	Snapshot(ctx context.Context) (models.Snapshot, error)
}

// DispatchEmail is a composed field-dispatch message.
type DispatchEmail struct {
	SiteID  string `json:"siteId"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type lastRecord struct {
	cause      string
	resolution string
	at         time.Time
}

// Agent is the RCA agent.
type Agent struct {
	agents.Base
	cfg    config.RCAConfig
	device SnapshotFetcher

	mu     sync.Mutex
	cases  []models.Case
	last   map[string]lastRecord
	tasks  int
	now    func() time.Time
	logger *slog.Logger
}

// New creates the RCA agent.
func New(cfg config.RCAConfig, device SnapshotFetcher) *Agent {
	return &Agent{
		Base:   agents.NewBase("rca", 500),
		cfg:    cfg,
		device: device,
		last:   make(map[string]lastRecord),
		now:    time.Now,
		logger: slog.With("agent", "rca"),
	}
}

// Record appends a case for an incident unless the noise or dedup filter
// rejects it. The agent auto-starts if it is not running.
func (a *Agent) Record(ctx context.Context, input agents.CaseInput) agents.RecordOutcome {
	if !a.Running() {
		a.Start()
	}

	if input.SiteID == "" || strings.EqualFold(input.SiteID, "unknown") {
		return agents.RecordOutcome{Skipped: true, Reason: agents.ReasonNoiseOrUnknown}
	}
	if _, noisy := noiseCauses[strings.ToLower(input.Cause)]; noisy {
		return agents.RecordOutcome{Skipped: true, Reason: agents.ReasonNoiseOrUnknown}
	}

	now := a.now().UTC()

	a.mu.Lock()
	if prev, ok := a.last[input.SiteID]; ok {
		if prev.cause == input.Cause && prev.resolution == input.Resolution &&
			now.Sub(prev.at) < a.cfg.DedupWindow {
			a.mu.Unlock()
			return agents.RecordOutcome{Skipped: true, Reason: agents.ReasonDedupSuppressed}
		}
	}
	a.mu.Unlock()

	// Live alarms on the site, battery excluded: RCA summaries report the
	// service picture, not the autonomy heuristics.
	var alarms []string
	if snap, err := a.device.Snapshot(ctx); err == nil {
		if site, ok := snap.Site(input.SiteID); ok {
			alarms = models.DetectAlarms(site, false)
		}
	} else {
		a.logger.Debug("Snapshot unavailable while recording case",
			"site", input.SiteID, "error", err)
	}

	ongoing := input.Resolution != models.ResolutionRestored || len(alarms) > 0
	c := models.Case{
		TS:                now,
		SiteID:            input.SiteID,
		Cause:             input.Cause,
		Actions:           append([]string(nil), input.Actions...),
		Resolution:        input.Resolution,
		Ongoing:           ongoing,
		DispatchSuggested: ongoing,
		Summary:           summarize(input, alarms, ongoing),
	}

	a.mu.Lock()
	a.cases = append(a.cases, c)
	if len(a.cases) > a.cfg.CasebookCapacity {
		a.cases = a.cases[len(a.cases)-a.cfg.CasebookCapacity:]
	}
	a.last[input.SiteID] = lastRecord{cause: input.Cause, resolution: input.Resolution, at: now}
	a.tasks++
	a.mu.Unlock()

	a.Log.Appendf("case.recorded site=%s cause=%s resolution=%s dispatch=%t",
		input.SiteID, input.Cause, input.Resolution, ongoing)
	return agents.RecordOutcome{OK: true, Case: &c}
}

// Cases returns a copy of the casebook, newest last.
func (a *Agent) Cases() []models.Case {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.Case, len(a.cases))
	copy(out, a.cases)
	return out
}

// Tasks returns the number of accepted cases.
func (a *Agent) Tasks() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tasks
}

// ComposeDispatchEmail builds the deterministic field-dispatch message for
// the site's most recent case with dispatchSuggested set.
func (a *Agent) ComposeDispatchEmail(ctx context.Context, siteID string) (*DispatchEmail, error) {
	a.mu.Lock()
	var latest *models.Case
	for i := len(a.cases) - 1; i >= 0; i-- {
		if a.cases[i].SiteID == siteID && a.cases[i].DispatchSuggested {
			c := a.cases[i]
			latest = &c
			break
		}
	}
	a.mu.Unlock()

	if latest == nil {
		return nil, fmt.Errorf("no_unresolved_case: %s", siteID)
	}

	var site models.SiteState
	var openAlarms []string
	if snap, err := a.device.Snapshot(ctx); err == nil {
		if s, ok := snap.Site(siteID); ok {
			site = s
			openAlarms = append(openAlarms, s.Alarms...)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Site: %s\n", siteID)
	fmt.Fprintf(&b, "Timestamp: %s\n", latest.TS.Format(time.RFC3339))
	fmt.Fprintf(&b, "Mains: %s | Alive: %t | A1: %s | A2: %s | Battery: %d%%\n",
		site.Mains, site.SiteAlive, site.Antenna1.Service, site.Antenna2.Service, site.BatteryPercent)
	if len(openAlarms) > 0 {
		fmt.Fprintf(&b, "Open alarms: %s\n", strings.Join(openAlarms, ", "))
	} else {
		b.WriteString("Open alarms: none\n")
	}
	b.WriteString("Actions taken so far:\n")
	if len(latest.Actions) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, action := range latest.Actions {
		fmt.Fprintf(&b, "  %s\n", action)
	}
	b.WriteString("Requested next step: field dispatch\n")
	fmt.Fprintf(&b, "Summary: %s\n", latest.Summary)

	return &DispatchEmail{
		SiteID:  siteID,
		Subject: fmt.Sprintf("[DISPATCH] %s – %s – Action required", siteID, latest.Cause),
		Body:    b.String(),
	}, nil
}

func summarize(input agents.CaseInput, alarms []string, ongoing bool) string {
	state := "resolved"
	if ongoing {
		state = "ongoing"
	}
	if len(alarms) > 0 {
		return fmt.Sprintf("%s at %s: %s after %d action(s), %d alarm(s) open (%s)",
			input.Cause, input.SiteID, state, len(input.Actions), len(alarms), strings.Join(alarms, ", "))
	}
	return fmt.Sprintf("%s at %s: %s after %d action(s)",
		input.Cause, input.SiteID, state, len(input.Actions))
}
