// Package troubleshoot implements the troubleshooting agent: it derives
// alarms from a site's snapshot, builds a bounded recovery plan, and — when
// policy allows autonomous execution — runs it against the device API with
// retries, a radio-heal loop per antenna, and post-plan alarm sweeps.
package troubleshoot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/drak0niii/Launch-CTRL/pkg/agents"
	"github.com/drak0niii/Launch-CTRL/pkg/config"
	"github.com/drak0niii/Launch-CTRL/pkg/models"
)

// Device is the subset of the tower client the agent drives. Antenna
// arguments use the wire names "a1"/"a2".
type Device interface {
	Snapshot(ctx context.Context) (models.Snapshot, error)
	SetPower(ctx context.Context, sites, state string) error
	SetRRU(ctx context.Context, site, antenna, state string) error
}

// Agent is the troubleshooting agent.
type Agent struct {
	agents.Base
	cfg    config.TroubleshootConfig
	device Device
	// auto reports whether autonomous execution is currently allowed. It is
	// consulted at decision time, after the plan is built; the supervisor
	// wires it to policy waysOfWorking OR the manual toggle.
	auto   func() bool
	logger *slog.Logger
}

// New creates the troubleshooting agent.
func New(cfg config.TroubleshootConfig, device Device, auto func() bool) *Agent {
	return &Agent{
		Base:   agents.NewBase("troubleshoot", 500),
		cfg:    cfg,
		device: device,
		auto:   auto,
		logger: slog.With("agent", "troubleshoot"),
	}
}

type planStep struct {
	label   string
	run     func(ctx context.Context) error
	settles bool // power.on steps need a boot-settle wait afterwards
}

// MitigateSite decides and (if allowed) executes a recovery plan for the
// site. In human-in-the-loop mode it returns *agents.ApprovalRequiredError
// carrying the plan instead of executing. Device request failures are
// swallowed per call; persistent antenna failures surface as remaining
// alarms, never as an overall error.
func (a *Agent) MitigateSite(ctx context.Context, siteID string) (*agents.MitigationResult, error) {
	if !a.Running() {
		return nil, agents.ErrNotRunning
	}

	snap, err := a.device.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("read fleet snapshot: %w", err)
	}
	site, ok := snap.Site(siteID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", agents.ErrSiteNotFound, siteID)
	}

	initial := models.DetectAlarms(site, true)
	plan := a.buildPlan(siteID, site, initial)
	labels := make([]string, len(plan))
	for i, step := range plan {
		labels[i] = step.label
	}
	a.Log.Appendf("plan.built site=%s alarms=%d steps=%d", siteID, len(initial), len(plan))

	if len(plan) > 0 && !a.auto() {
		a.Log.Appendf("plan.held site=%s awaiting approval", siteID)
		return nil, &agents.ApprovalRequiredError{SiteID: siteID, Plan: labels, Alarms: initial}
	}

	var actions []string
	for i, step := range plan {
		if i > 0 {
			if err := a.sleep(ctx, a.cfg.InterStep); err != nil {
				return nil, err
			}
		}
		if err := step.run(ctx); err != nil {
			// Device failures are observable as persistent alarms on the
			// next read; they never abort the run.
			a.Log.Appendf("step.failed site=%s step=%s err=%v", siteID, step.label, err)
		}
		actions = append(actions, step.label)
		if step.settles {
			if err := a.sleep(ctx, a.cfg.BootSettle); err != nil {
				return nil, err
			}
		}
	}

	site, remaining, passes, sweepActions, err := a.sweep(ctx, siteID, site)
	if err != nil {
		return nil, err
	}
	actions = append(actions, sweepActions...)

	result := &agents.MitigationResult{
		OK:              true,
		SiteID:          siteID,
		Site:            site,
		ActionsTaken:    actions,
		ClearedAlarms:   models.Diff(initial, remaining),
		RemainingAlarms: remaining,
		Passes:          passes,
		AllClear:        len(remaining) == 0,
	}
	a.Log.Appendf("mitigation.done site=%s allClear=%t remaining=%d passes=%d",
		siteID, result.AllClear, len(remaining), passes)
	return result, nil
}

// buildPlan derives the ordered recovery plan from the detected alarms.
func (a *Agent) buildPlan(siteID string, site models.SiteState, alarms []string) []planStep {
	has := func(code string) bool {
		for _, al := range alarms {
			if al == code {
				return true
			}
		}
		return false
	}

	var plan []planStep
	if has(models.AlarmMainsOff) {
		plan = append(plan, planStep{
			label:   fmt.Sprintf("power.on(%s)", siteID),
			run:     func(ctx context.Context) error { return a.device.SetPower(ctx, siteID, models.MainsOn) },
			settles: true,
		})
	}
	if has(models.AlarmAntennaA1) {
		plan = append(plan, a.ensureStep(siteID, "a1"))
	}
	if has(models.AlarmAntennaA2) {
		plan = append(plan, a.ensureStep(siteID, "a2"))
	}
	// Autonomy extension: on a draining battery with both antennas still
	// up, shed A2 so A1 outlasts the outage.
	if site.Mains == models.MainsOff &&
		site.BatteryPercent < models.BatteryLowThreshold &&
		site.Antenna1.Service == models.ServiceAvailable &&
		site.Antenna2.Service == models.ServiceAvailable {
		plan = append(plan, planStep{
			label: fmt.Sprintf("rru.off(%s, a2)", siteID),
			run:   func(ctx context.Context) error { return a.device.SetRRU(ctx, siteID, "a2", "off") },
		})
	}
	return plan
}

func (a *Agent) ensureStep(siteID, antenna string) planStep {
	return planStep{
		label: fmt.Sprintf("rru.ensure(%s, %s)", siteID, antenna),
		run:   func(ctx context.Context) error { return a.healAntenna(ctx, siteID, antenna) },
	}
}

// healAntenna is the radio-heal loop: up to HealAttempts tries to bring an
// antenna's service back to Available, each attempt ending in a full RRU
// power cycle. Exhausting the budget returns ErrRRUUnavailable for this
// antenna only.
func (a *Agent) healAntenna(ctx context.Context, siteID, antenna string) error {
	for attempt := 1; attempt <= a.cfg.HealAttempts; attempt++ {
		if err := a.device.SetRRU(ctx, siteID, antenna, "on"); err != nil {
			a.Log.Appendf("rru.on failed site=%s antenna=%s attempt=%d err=%v", siteID, antenna, attempt, err)
		}
		if err := a.sleep(ctx, a.cfg.HealOnWait); err != nil {
			return err
		}

		site, ok := a.readSite(ctx, siteID)
		if ok && antennaAvailable(site, antenna) {
			return nil
		}

		// Mains restored but the site is still booting: give it time
		// before concluding the radio is stuck.
		if ok && site.Mains == models.MainsOn && !site.SiteAlive {
			for i := 0; i < a.cfg.BootPolls; i++ {
				if err := a.sleep(ctx, a.cfg.BootPollWait); err != nil {
					return err
				}
				site, ok = a.readSite(ctx, siteID)
				if ok && site.SiteAlive {
					break
				}
			}
			if ok && antennaAvailable(site, antenna) {
				return nil
			}
		}

		if err := a.device.SetRRU(ctx, siteID, antenna, "off"); err != nil {
			a.Log.Appendf("rru.off failed site=%s antenna=%s err=%v", siteID, antenna, err)
		}
		if err := a.sleep(ctx, a.cfg.HealOffPause); err != nil {
			return err
		}
		if err := a.device.SetRRU(ctx, siteID, antenna, "on"); err != nil {
			a.Log.Appendf("rru.on failed site=%s antenna=%s err=%v", siteID, antenna, err)
		}
		if err := a.sleep(ctx, a.cfg.HealOnWait); err != nil {
			return err
		}

		site, ok = a.readSite(ctx, siteID)
		if ok && antennaAvailable(site, antenna) {
			return nil
		}
		a.Log.Appendf("heal.attempt exhausted site=%s antenna=%s attempt=%d", siteID, antenna, attempt)
	}
	return fmt.Errorf("%w: %s/%s", agents.ErrRRUUnavailable, siteID, antenna)
}

// sweep runs up to SweepPasses re-detect/re-heal rounds after the initial
// plan and returns the final site state, remaining alarms, and pass count.
func (a *Agent) sweep(ctx context.Context, siteID string, last models.SiteState) (models.SiteState, []string, int, []string, error) {
	var actions []string
	site := last
	remaining := models.DetectAlarms(site, true)
	passes := 0

	for pass := 1; pass <= a.cfg.SweepPasses; pass++ {
		passes = pass

		for i := 0; i < a.cfg.SweepPolls; i++ {
			if err := a.sleep(ctx, a.cfg.SweepPollWait); err != nil {
				return site, remaining, passes, actions, err
			}
			if s, ok := a.readSite(ctx, siteID); ok {
				site = s
				break
			}
		}
		if site.Mains == models.MainsOn && !site.SiteAlive {
			for i := 0; i < a.cfg.SweepBootPolls; i++ {
				if err := a.sleep(ctx, a.cfg.SweepBootPollWait); err != nil {
					return site, remaining, passes, actions, err
				}
				if s, ok := a.readSite(ctx, siteID); ok {
					site = s
					if site.SiteAlive {
						break
					}
				}
			}
		}

		remaining = models.DetectAlarms(site, true)
		if !models.HasBlockingAlarm(remaining) {
			break
		}

		for _, alarm := range remaining {
			antenna, ok := models.AntennaForAlarm(alarm)
			if !ok {
				continue
			}
			wire := rruName(antenna)
			actions = append(actions, fmt.Sprintf("rru.ensure(%s, %s)", siteID, wire))
			if err := a.healAntenna(ctx, siteID, wire); err != nil {
				if errors.Is(err, agents.ErrRRUUnavailable) {
					a.Log.Appendf("sweep.heal gave up site=%s antenna=%s", siteID, wire)
					continue
				}
				return site, remaining, passes, actions, err
			}
		}

		for _, alarm := range remaining {
			if alarm == models.AlarmMainsOff {
				actions = append(actions, fmt.Sprintf("power.on(%s)", siteID))
				if err := a.device.SetPower(ctx, siteID, models.MainsOn); err != nil {
					a.Log.Appendf("power.on failed site=%s err=%v", siteID, err)
				}
				if err := a.sleep(ctx, a.cfg.BootSettle); err != nil {
					return site, remaining, passes, actions, err
				}
				break
			}
		}
	}

	if s, ok := a.readSite(ctx, siteID); ok {
		site = s
		remaining = models.DetectAlarms(site, true)
	}
	return site, remaining, passes, actions, nil
}

// readSite fetches the current snapshot and extracts the site. Failures
// are logged and reported as ok=false; the caller keeps its last view.
func (a *Agent) readSite(ctx context.Context, siteID string) (models.SiteState, bool) {
	snap, err := a.device.Snapshot(ctx)
	if err != nil {
		a.logger.Debug("Snapshot read failed during mitigation", "site", siteID, "error", err)
		return models.SiteState{}, false
	}
	site, ok := snap.Site(siteID)
	return site, ok
}

// sleep waits for d unless the context is cancelled or the agent is
// stopped; a stop abandons the wait with ErrNotRunning.
func (a *Agent) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
	}
	if !a.Running() {
		return agents.ErrNotRunning
	}
	return nil
}

func antennaAvailable(site models.SiteState, antenna string) bool {
	switch antenna {
	case "a1":
		return site.Antenna1.Service == models.ServiceAvailable
	case "a2":
		return site.Antenna2.Service == models.ServiceAvailable
	}
	return false
}

func rruName(antenna string) string {
	if antenna == models.AntennaTwo {
		return "a2"
	}
	return "a1"
}
