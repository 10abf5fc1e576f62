package order

import (
	"sync"

	domsaga "github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/saga"
)

// runs tracks the sagas executing in this process. A cancel only marks the
// run; the saga checks the mark between steps, so a collaborator call that is
// already in flight always finishes and its effect lands in the log.
type runs struct {
	mu     sync.Mutex
	active map[string]*run
}

type run struct {
	committing bool
	cancelled  bool
}

func newRuns() *runs {
	return &runs{active: make(map[string]*run)}
}

func (r *runs) add(orderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[orderID] = &run{}
}

func (r *runs) remove(orderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, orderID)
}

func (r *runs) live(orderID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[orderID]
	return ok
}

// cancel reports whether orderID had a live saga. It fails with
// ErrCommitInProgress once the saga began committing.
func (r *runs) cancel(orderID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ru, ok := r.active[orderID]
	if !ok {
		return false, nil
	}
	if ru.committing {
		return true, domsaga.ErrCommitInProgress
	}
	ru.cancelled = true
	return true, nil
}

func (r *runs) cancelled(orderID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ru, ok := r.active[orderID]
	return ok && ru.cancelled
}

// commit flips the run into its committing phase. It returns false when a
// cancel got in first.
func (r *runs) commit(orderID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ru, ok := r.active[orderID]
	if !ok {
		return true
	}
	if ru.cancelled {
		return false
	}
	ru.committing = true
	return true
}
