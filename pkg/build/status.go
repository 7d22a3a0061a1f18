package build

import (
	"fmt"
	"time"

	"github.com/censor-ci/censor/pkg/types"
)

// Status returns the current status. A record that was never marked is
// reported as pending.
func (r *Record) Status() types.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.status == nil {
		return types.StatusPending
	}
	return *r.status
}

// IsSuccessful reports whether the build finished successfully
func (r *Record) IsSuccessful() bool {
	return r.Status() == types.StatusSuccess
}

// IsTerminal reports whether the build has finished
func (r *Record) IsTerminal() bool {
	return r.Status().IsTerminal()
}

// MarkPending initialises a freshly created build
func (r *Record) MarkPending(now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != nil && *r.status != types.StatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, *r.status, types.StatusPending)
	}
	s := types.StatusPending
	r.status = &s
	if r.createDate == nil {
		r.createDate = &now
	}
	return nil
}

// Start moves the build from pending to running and sets start_date
func (r *Record) Start(now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != nil && *r.status != types.StatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, *r.status, types.StatusRunning)
	}
	s := types.StatusRunning
	r.status = &s
	r.startDate = &now
	return nil
}

// Finish moves a running build to a terminal status and sets finish_date.
// Finishing again with the same terminal status is a no-op that leaves the
// timestamps untouched; every other transition is rejected.
func (r *Record) Finish(status types.Status, now time.Time) error {
	if !status.IsTerminal() {
		return fmt.Errorf("%w: %s is not terminal", ErrInvalidTransition, status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := types.StatusPending
	if r.status != nil {
		current = *r.status
	}

	switch {
	case current == status:
		return nil
	case current != types.StatusRunning:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status)
	}

	r.status = &status
	r.finishDate = &now
	return nil
}

// Duration returns the time between start and finish, or zero
func (r *Record) Duration() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.startDate == nil || r.finishDate == nil {
		return 0
	}
	return r.finishDate.Sub(*r.startDate)
}
