package supervisor

import (
	"fmt"
	"strconv"

	"github.com/drak0niii/Launch-CTRL/pkg/metrics"
	"github.com/drak0niii/Launch-CTRL/pkg/models"
)

// ErrApprovalNotFound is the idempotent "not found" answer: resolving an
// unknown id is indistinguishable from a no-op.
var ErrApprovalNotFound = fmt.Errorf("approval not found")

// enqueueApproval creates a pending approval with the next monotonic id.
func (s *Supervisor) enqueueApproval(siteID string, actions []string, reason string) models.Approval {
	s.mu.Lock()
	a := models.Approval{
		ID:        strconv.Itoa(s.nextApprovalID),
		SiteID:    siteID,
		Actions:   append([]string(nil), actions...),
		Reason:    reason,
		CreatedAt: s.now().UTC(),
	}
	s.nextApprovalID++
	s.approvals = append(s.approvals, a)
	pending := len(s.approvals)
	s.mu.Unlock()

	metrics.ApprovalsEnqueued.Inc()
	metrics.ApprovalsPending.Set(float64(pending))
	return a
}

// Approvals returns a copy of the pending queue.
func (s *Supervisor) Approvals() []models.Approval {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Approval, len(s.approvals))
	copy(out, s.approvals)
	return out
}

// ResolveApproval removes an approval exactly once. Resolution is a pure
// record: it does not re-drive mitigation — the next alarm event for the
// site does.
func (s *Supervisor) ResolveApproval(id, decision string) (models.Approval, error) {
	if decision != models.DecisionApproved && decision != models.DecisionRejected {
		return models.Approval{}, fmt.Errorf("invalid decision %q", decision)
	}

	s.mu.Lock()
	idx := -1
	for i, a := range s.approvals {
		if a.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return models.Approval{}, ErrApprovalNotFound
	}
	resolved := s.approvals[idx]
	s.approvals = append(s.approvals[:idx], s.approvals[idx+1:]...)
	pending := len(s.approvals)
	s.mu.Unlock()

	metrics.ApprovalsResolved.WithLabelValues(decision).Inc()
	metrics.ApprovalsPending.Set(float64(pending))
	s.Log.Appendf("approval.resolved id=%s site=%s decision=%s", id, resolved.SiteID, decision)
	return resolved, nil
}
