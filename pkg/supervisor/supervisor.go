// Package supervisor implements the orchestrator: the lifecycle state
// machine, strictly serialized per-event orchestration of the three
// agents, the human-in-the-loop approval queue, the exact-duplicate
// ledger, and the operator log ring.
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/drak0niii/Launch-CTRL/pkg/agents"
	"github.com/drak0niii/Launch-CTRL/pkg/bus"
	"github.com/drak0niii/Launch-CTRL/pkg/config"
	"github.com/drak0niii/Launch-CTRL/pkg/logring"
	"github.com/drak0niii/Launch-CTRL/pkg/models"
	"github.com/drak0niii/Launch-CTRL/pkg/policy"
)

// Status is the supervisor lifecycle state.
type Status string

// Lifecycle states. Only running consumes bus events.
const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
	StatusStopped Status = "stopped"
)

// Correlator is the supervisor's view of the correlation agent.
type Correlator interface {
	agents.Agent
	HandleEvent(evt models.BusEvent)
	Correlate(events []models.BusEvent) []models.Incident
}

// Mitigator is the supervisor's view of the troubleshooting agent.
type Mitigator interface {
	agents.Agent
	MitigateSite(ctx context.Context, siteID string) (*agents.MitigationResult, error)
}

// Recorder is the supervisor's view of the RCA agent.
type Recorder interface {
	agents.Agent
	Record(ctx context.Context, input agents.CaseInput) agents.RecordOutcome
}

// SnapshotFetcher supplies the cold-start sweep's snapshot.
type SnapshotFetcher interface {
	Snapshot(ctx context.Context) (models.Snapshot, error)
}

// PolicyReader is the read-only policy view, consulted per event.
type PolicyReader interface {
	Get() policy.Policy
}

// Supervisor owns orchestration state. Events are processed one at a time
// by a single goroutine; the mutex only guards access from the control
// surface.
type Supervisor struct {
	cfg        config.SupervisorConfig
	bus        *bus.Bus
	pol        PolicyReader
	tower      SnapshotFetcher
	correlator Correlator
	mitigator  Mitigator
	recorder   Recorder

	// Log is the operator-visible supervisor log ring.
	Log *logring.Ring

	mu          sync.Mutex
	status      Status
	startedAt   time.Time
	accumulated time.Duration
	tasksRouted int
	lastNote    string
	autoToggle  bool

	approvals      []models.Approval
	nextApprovalID int

	ledger map[string]time.Time

	inbox     chan models.BusEvent
	sub       *bus.Subscription
	cancelRun context.CancelFunc
	wg        sync.WaitGroup

	now    func() time.Time
	logger *slog.Logger
}

// New creates a supervisor in the idle state. The agents are registered
// here once; the supervisor only ever addresses them through their
// interfaces.
func New(cfg config.SupervisorConfig, b *bus.Bus, pol PolicyReader, tower SnapshotFetcher,
	correlator Correlator, mitigator Mitigator, recorder Recorder) *Supervisor {
	return &Supervisor{
		cfg:            cfg,
		bus:            b,
		pol:            pol,
		tower:          tower,
		correlator:     correlator,
		mitigator:      mitigator,
		recorder:       recorder,
		Log:            logring.New(cfg.LogRingCapacity),
		status:         StatusIdle,
		nextApprovalID: 1,
		ledger:         make(map[string]time.Time),
		now:            time.Now,
		logger:         slog.With("component", "supervisor"),
	}
}

// Start transitions idle|stopped→running (paused delegates to Resume).
// It starts the agents, begins consuming the bus, and kicks off the
// one-shot cold-start sweep. The returned message describes the outcome.
func (s *Supervisor) Start() string {
	s.mu.Lock()
	switch s.status {
	case StatusRunning:
		s.mu.Unlock()
		return "Already running"
	case StatusPaused:
		s.mu.Unlock()
		return s.Resume()
	}

	s.status = StatusRunning
	s.startedAt = s.now()
	s.mu.Unlock()

	s.correlator.Start()
	s.mitigator.Start()
	s.recorder.Start()

	runCtx, cancel := context.WithCancel(context.Background())
	inbox := make(chan models.BusEvent, 256)
	sub := s.bus.Subscribe()

	s.mu.Lock()
	s.cancelRun = cancel
	s.inbox = inbox
	s.sub = sub
	s.mu.Unlock()

	s.wg.Add(3)
	go s.forwardLoop(runCtx, sub, inbox)
	go s.processLoop(runCtx, inbox)
	go s.coldStartSweep(runCtx, inbox)

	s.Log.Append("supervisor started")
	s.logger.Info("Supervisor started")
	return "Started"
}

// Stop transitions running|paused→stopped, accumulates runtime, and stops
// the agents. Pending agent sleeps are abandoned as soon as practical.
func (s *Supervisor) Stop() string {
	s.mu.Lock()
	if s.status != StatusRunning && s.status != StatusPaused {
		s.mu.Unlock()
		return "Not running"
	}
	if !s.startedAt.IsZero() {
		s.accumulated += s.now().Sub(s.startedAt)
		s.startedAt = time.Time{}
	}
	s.status = StatusStopped
	cancel := s.cancelRun
	sub := s.sub
	s.cancelRun = nil
	s.sub = nil
	s.mu.Unlock()

	s.correlator.Stop()
	s.mitigator.Stop()
	s.recorder.Stop()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		sub.Close()
	}
	s.wg.Wait()

	s.Log.Append("supervisor stopped")
	s.logger.Info("Supervisor stopped")
	return "Stopped"
}

// Pause transitions running→paused. Events received while paused are
// ledgered but otherwise ignored.
func (s *Supervisor) Pause() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusRunning {
		return "Not running"
	}
	if !s.startedAt.IsZero() {
		s.accumulated += s.now().Sub(s.startedAt)
		s.startedAt = time.Time{}
	}
	s.status = StatusPaused
	s.Log.Append("supervisor paused")
	return "Paused"
}

// Resume transitions paused→running and re-asserts the agents' running
// state.
func (s *Supervisor) Resume() string {
	s.mu.Lock()
	if s.status != StatusPaused {
		s.mu.Unlock()
		return "Not paused"
	}
	s.status = StatusRunning
	s.startedAt = s.now()
	s.mu.Unlock()

	s.correlator.Start()
	s.mitigator.Start()
	s.recorder.Start()

	s.Log.Append("supervisor resumed")
	return "Resumed"
}

// Status returns the lifecycle state.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Note records an operator note in the log ring and the summary.
func (s *Supervisor) Note(message string) {
	s.mu.Lock()
	s.lastNote = message
	s.mu.Unlock()
	s.Log.Appendf("note: %s", message)
}

// AutoToggle reports the manual auto override.
func (s *Supervisor) AutoToggle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoToggle
}

// SetAutoToggle sets the manual auto override.
func (s *Supervisor) SetAutoToggle(on bool) {
	s.mu.Lock()
	s.autoToggle = on
	s.mu.Unlock()
	s.Log.Appendf("auto toggle set to %t", on)
}

// AutoEffective is policy waysOfWorking == "E2E automation" OR the manual
// toggle. Policy is read here, at decision time.
func (s *Supervisor) AutoEffective() bool {
	if s.AutoToggle() {
		return true
	}
	return s.pol.Get().WaysOfWorking == policy.WaysOfWorkingE2E
}

// Summary is the operator-facing state digest.
type Summary struct {
	Status           Status     `json:"status"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`
	RuntimeSec       int64      `json:"accumulatedRuntimeSec"`
	TasksRouted      int        `json:"tasksRouted"`
	LastNote         string     `json:"lastNote,omitempty"`
	PendingApprovals int        `json:"pendingApprovals"`
	LogLines         int        `json:"logLines"`
	AutoToggle       bool       `json:"autoToggle"`
	AutoEffective    bool       `json:"autoEffective"`
}

// Summarize returns the current summary. Runtime accumulates across
// pause/stop windows and is monotonically non-decreasing.
func (s *Supervisor) Summarize() Summary {
	auto := s.AutoEffective()

	s.mu.Lock()
	defer s.mu.Unlock()

	runtime := s.accumulated
	var startedAt *time.Time
	if !s.startedAt.IsZero() {
		t := s.startedAt
		startedAt = &t
		runtime += s.now().Sub(s.startedAt)
	}
	return Summary{
		Status:           s.status,
		StartedAt:        startedAt,
		RuntimeSec:       int64(runtime.Seconds()),
		TasksRouted:      s.tasksRouted,
		LastNote:         s.lastNote,
		PendingApprovals: len(s.approvals),
		LogLines:         s.Log.Len(),
		AutoToggle:       s.autoToggle,
		AutoEffective:    auto,
	}
}

// SetNow overrides the clock; used by tests.
func (s *Supervisor) SetNow(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}
