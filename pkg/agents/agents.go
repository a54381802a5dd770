// Package agents defines the agent lifecycle contract shared by the
// correlation, troubleshooting, and RCA agents, plus the value types they
// exchange with the supervisor.
package agents

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/drak0niii/Launch-CTRL/pkg/logring"
	"github.com/drak0niii/Launch-CTRL/pkg/models"
)

// Agent is the lifecycle surface the supervisor holds for each agent. The
// supervisor registers concrete agents at construction time and only ever
// talks to them through interfaces, never by name.
type Agent interface {
	Name() string
	Start()
	Stop()
	Running() bool
}

// Sentinel errors shared across agents.
var (
	// ErrNotRunning is returned when an operation requires a started agent.
	ErrNotRunning = errors.New("agent not running")
	// ErrSiteNotFound is returned when a snapshot has no entry for a site.
	ErrSiteNotFound = errors.New("site not found")
	// ErrRRUUnavailable is returned when the radio-heal loop exhausts its
	// attempt budget for one antenna.
	ErrRRUUnavailable = errors.New("rru unavailable")
)

// ApprovalRequiredError signals that policy forbids autonomous execution;
// the prepared plan is carried for the approvals queue. It is a
// distinguishable error, not a failure.
type ApprovalRequiredError struct {
	SiteID string
	Plan   []string
	Alarms []string
}

func (e *ApprovalRequiredError) Error() string {
	return fmt.Sprintf("approval required for %s (%d steps)", e.SiteID, len(e.Plan))
}

// MitigationResult is the outcome of a troubleshooting run. OK stays true
// even when alarms remain; AllClear tells them apart.
type MitigationResult struct {
	OK              bool             `json:"ok"`
	SiteID          string           `json:"siteId"`
	Site            models.SiteState `json:"site"`
	ActionsTaken    []string         `json:"actionsTaken"`
	ClearedAlarms   []string         `json:"clearedAlarms"`
	RemainingAlarms []string         `json:"remainingAlarms"`
	Passes          int              `json:"passes"`
	AllClear        bool             `json:"allClear"`
}

// CaseInput is what the supervisor hands the RCA agent for recording.
type CaseInput struct {
	SiteID     string   `json:"siteId"`
	Cause      string   `json:"cause"`
	Actions    []string `json:"actions"`
	Resolution string   `json:"resolution"`
}

// RecordOutcome is the RCA agent's answer. Noise and dedup rejections are
// Skipped with a reason; they are not errors to the caller.
type RecordOutcome struct {
	OK      bool         `json:"ok"`
	Skipped bool         `json:"skipped,omitempty"`
	Reason  string       `json:"reason,omitempty"`
	Case    *models.Case `json:"case,omitempty"`
}

// Rejection reasons for RecordOutcome.
const (
	ReasonNoiseOrUnknown  = "noise_or_unknown"
	ReasonDedupSuppressed = "dedup_suppressed"
)

// Base provides the common lifecycle implementation embedded by every
// agent: a name, an atomic running flag, and an operator log ring.
type Base struct {
	name    string
	running atomic.Bool
	Log     *logring.Ring
}

// NewBase creates the shared lifecycle state for an agent.
func NewBase(name string, logCapacity int) Base {
	return Base{name: name, Log: logring.New(logCapacity)}
}

// Name returns the agent's registry name.
func (b *Base) Name() string { return b.name }

// Start marks the agent running. Safe to call repeatedly.
func (b *Base) Start() {
	if b.running.CompareAndSwap(false, true) {
		b.Log.Appendf("%s started", b.name)
	}
}

// Stop marks the agent stopped. Pending waits observe the flag and abandon.
func (b *Base) Stop() {
	if b.running.CompareAndSwap(true, false) {
		b.Log.Appendf("%s stopped", b.name)
	}
}

// Running reports the lifecycle flag.
func (b *Base) Running() bool { return b.running.Load() }
