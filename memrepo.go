package pipeline

import (
	"sync"

	"github.com/google/uuid"
)

// Repository is the job-bookkeeping collaborator a Pipeline consults (spec
// §6): add/remove/items/clear/close. Add fails with KindDuplicateID if tag
// is already present; the caller is expected to retry with a fresh tag.
type Repository[T any] interface {
	Add(tag string, job *Job[T]) error
	Remove(tag string)
	Items() map[string]*Job[T]
	Clear()
	Close()
}

// MemRepository is an in-memory Repository, mutex-guarded like the
// teacher's PipelineGraph.
type MemRepository[T any] struct {
	mu     sync.Mutex
	jobs   map[string]*Job[T]
	closed bool
}

// NewMemRepository constructs an empty in-memory Repository.
func NewMemRepository[T any]() *MemRepository[T] {
	return &MemRepository[T]{jobs: make(map[string]*Job[T])}
}

// KindDuplicateID: Add was called with a tag already present in the
// repository.
const KindDuplicateID Kind = "duplicate_id"

// NewTag generates a fresh, practically-unique tag for callers that don't
// supply their own.
func NewTag() string { return uuid.NewString() }

func (r *MemRepository[T]) Add(tag string, job *Job[T]) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return newErr(KindInternalInvariant, "repository is closed")
	}
	if _, exists := r.jobs[tag]; exists {
		return newErr(KindDuplicateID, "tag %q already present", tag)
	}
	r.jobs[tag] = job
	return nil
}

func (r *MemRepository[T]) Remove(tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, tag)
}

func (r *MemRepository[T]) Items() map[string]*Job[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]*Job[T], len(r.jobs))
	for k, v := range r.jobs {
		out[k] = v
	}
	return out
}

func (r *MemRepository[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = make(map[string]*Job[T])
}

func (r *MemRepository[T]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.jobs = make(map[string]*Job[T])
}
