// Package reconcile keeps a locally rendered approval status consistent
// with the server while actions are in flight. An action is shown
// optimistically the moment it is submitted, confirmed when the server
// accepts it, and rolled back to the exact pre-action snapshot when the
// server refuses or the submission times out. Authoritative snapshots from
// the server always win over any local view.
package reconcile

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"gotrip-be/internal/domain"
)

// State describes how the currently rendered snapshot relates to the server
type State string

const (
	// StateConfirmed means the rendered snapshot is server-acknowledged
	StateConfirmed State = "confirmed"
	// StatePending means an optimistic action is in flight
	StatePending State = "pending"
	// StateRolledBack means the last action failed and the pre-action
	// snapshot was restored
	StateRolledBack State = "rolled_back"
)

// DefaultTimeout bounds how long a submitted action may stay pending
const DefaultTimeout = 10 * time.Second

// Reconciler tracks the rendered approval status through optimistic updates
type Reconciler struct {
	mu      sync.Mutex
	current *domain.ApprovalStatus
	saved   *domain.ApprovalStatus
	state   State
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a reconciler with nothing rendered yet
func New(timeout time.Duration, logger *zap.Logger) *Reconciler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Reconciler{
		state:   StateConfirmed,
		timeout: timeout,
		logger:  logger,
	}
}

// Current returns a copy of the snapshot the caller should render, or nil
// when no snapshot has been applied yet
func (r *Reconciler) Current() *domain.ApprovalStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneStatus(r.current)
}

// State returns the reconciliation state of the rendered snapshot
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Begin renders a provisional snapshot and saves the one it replaces.
// Beginning another action while one is pending keeps the first saved
// snapshot, so a later rollback restores the view from before the whole
// chain of actions.
func (r *Reconciler) Begin(provisional *domain.ApprovalStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StatePending {
		r.saved = r.current
	}
	r.current = cloneStatus(provisional)
	r.state = StatePending

	r.logger.Debug("Optimistic update applied")
}

// Confirm marks the pending action as accepted by the server. The
// provisional snapshot stays rendered until the next authoritative one
// arrives. Confirming with nothing pending is a no-op.
func (r *Reconciler) Confirm() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StatePending {
		return
	}
	r.saved = nil
	r.state = StateConfirmed

	r.logger.Debug("Optimistic update confirmed")
}

// Fail rolls the rendered snapshot back to the exact one saved before the
// pending action. Failing with nothing pending is a no-op.
func (r *Reconciler) Fail() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StatePending {
		return
	}
	r.current = r.saved
	r.saved = nil
	r.state = StateRolledBack

	r.logger.Warn("Action failed, restored pre-action snapshot")
}

// ApplySnapshot renders an authoritative server snapshot. It replaces
// whatever is shown, pending or not, and discards any saved rollback
// snapshot. Applying the same snapshot repeatedly is harmless.
func (r *Reconciler) ApplySnapshot(status *domain.ApprovalStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.current = cloneStatus(status)
	r.saved = nil
	r.state = StateConfirmed

	r.logger.Debug("Authoritative snapshot applied")
}

// Submit runs an action optimistically: the provisional snapshot is
// rendered immediately, then confirmed or rolled back on the action's
// outcome. The action is cut off at the reconciler's timeout.
func (r *Reconciler) Submit(ctx context.Context, provisional *domain.ApprovalStatus, action func(context.Context) error) error {
	r.Begin(provisional)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := action(ctx); err != nil {
		r.Fail()
		return err
	}

	r.Confirm()
	return nil
}

// SpliceVote returns a provisional snapshot with the member's vote inserted
// or replaced, aggregated the same way the server will aggregate it. The
// input snapshot is not modified.
func SpliceVote(status *domain.ApprovalStatus, vote domain.PlanVote) *domain.ApprovalStatus {
	if vote.UpdatedAt.IsZero() {
		vote.UpdatedAt = time.Now()
	}

	votes := make([]domain.PlanVote, 0, len(status.Votes)+1)
	replaced := false
	for _, v := range status.Votes {
		if v.UserID == vote.UserID {
			votes = append(votes, vote)
			replaced = true
			continue
		}
		votes = append(votes, v)
	}
	if !replaced {
		votes = append(votes, vote)
	}

	provisional := domain.AggregateApproval(status.GroupID, votes, status.TotalMembers)
	return &provisional
}

func cloneStatus(status *domain.ApprovalStatus) *domain.ApprovalStatus {
	if status == nil {
		return nil
	}
	out := *status
	if status.Votes != nil {
		out.Votes = make([]domain.PlanVote, len(status.Votes))
		copy(out.Votes, status.Votes)
	}
	return &out
}
