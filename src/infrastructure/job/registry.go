package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"rankguard/src/infrastructure/log"
	"rankguard/src/storage/resultstore"
)

// Registration is the outcome of Registry.Begin.
type Registration struct {
	// Job is the registered in-progress job, nil once completed.
	Job     Job
	State   JobState
	Started bool
}

// Registry tracks which jobs are in progress and which have completed. An id
// is never in both sets and never leaves the completed set.
type Registry struct {
	store resultstore.Store

	mu         sync.RWMutex
	inProgress map[string]Job
	completed  map[string]bool
	closed     bool
}

func NewRegistry(store resultstore.Store) *Registry {
	return &Registry{
		store:      store,
		inProgress: make(map[string]Job),
		completed:  make(map[string]bool),
	}
}

// Recover marks every id with a persisted result as completed. It must
// finish before the registry answers queries.
func (r *Registry) Recover(ctx context.Context) (int, error) {
	ids, err := r.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to scan persisted results: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if _, running := r.inProgress[id]; running {
			continue
		}
		r.completed[id] = true
	}
	return len(ids), nil
}

// Begin registers j unless its id is already known. A running job with the
// same id is returned instead of starting a second one. Ids the store
// cannot key are refused with *InvalidIDError before anything starts.
func (r *Registry) Begin(j Job) (Registration, error) {
	id := j.ID()
	if !resultstore.ValidID(id) {
		return Registration{}, &InvalidIDError{ID: id}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Registration{}, ErrRegistryClosed
	}
	if r.completed[id] {
		return Registration{State: JobStateCompleted}, nil
	}
	if existing, ok := r.inProgress[id]; ok {
		return Registration{Job: existing, State: JobStateInProgress}, nil
	}

	r.inProgress[id] = j
	return Registration{Job: j, State: JobStateInProgress, Started: true}, nil
}

// Get returns the in-progress job with the given id.
func (r *Registry) Get(id string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.inProgress[id]
	return j, ok
}

// Lookup reports the state of id.
func (r *Registry) Lookup(id string) Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.completed[id] {
		return Status{ID: id, State: JobStateCompleted, Progress: 100}
	}
	if j, ok := r.inProgress[id]; ok {
		return Status{ID: id, State: JobStateInProgress, Progress: clamp(j.Progress())}
	}
	return Status{ID: id, State: JobStateUnknown}
}

// Complete persists result for id and then moves it to the completed set.
// The result is written while the id is still in progress, so a concurrent
// Lookup sees either a running job or a completed one with a readable
// entry.
func (r *Registry) Complete(ctx context.Context, id string, result interface{}) error {
	if _, ok := r.Get(id); !ok {
		return ErrNotInProgress
	}

	if err := r.store.Save(ctx, id, result); err != nil {
		if !errors.Is(err, resultstore.ErrResultExists) {
			return err
		}
		log.Info("Result already persisted, keeping the first one", "job_id", id)
	}

	r.mu.Lock()
	delete(r.inProgress, id)
	r.completed[id] = true
	r.mu.Unlock()
	return nil
}

// Abandon forgets an in-progress job that cannot complete.
func (r *Registry) Abandon(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inProgress, id)
}

// Open returns the persisted result of a completed job.
func (r *Registry) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	return r.store.Open(ctx, id)
}

// Counts returns the number of in-progress and completed jobs.
func (r *Registry) Counts() (inProgress, completed int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.inProgress), len(r.completed)
}

// Close stops accepting new jobs and returns the ids still in progress.
func (r *Registry) Close() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	pending := make([]string, 0, len(r.inProgress))
	for id := range r.inProgress {
		pending = append(pending, id)
	}
	sort.Strings(pending)
	return pending
}

func clamp(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}
