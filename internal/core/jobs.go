package core

// jobs.go tracks in-flight ingest work per import.
//
// Async mode allows at most one background job per (filename, sheet) pair.
// The registry gives that guarantee without a global processing flag: the
// first request for a key starts the job, later requests join it and share
// its outcome.

import (
	"context"
	"fmt"
	"sync"
)

// ingestJob is one deferred normalization run for a single import.
type ingestJob struct {
	Key string

	// Done closes when the job finishes. Err is stable once Done closes.
	Done chan struct{}

	mu    sync.Mutex
	phase JobPhase
	err   error
}

// Phase returns the job's current scheduling phase.
func (j *ingestJob) Phase() JobPhase {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.phase
}

func (j *ingestJob) setPhase(p JobPhase) {
	j.mu.Lock()
	j.phase = p
	j.mu.Unlock()
}

// Err returns the job's terminal error. Call after Done closes.
func (j *ingestJob) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Wait blocks until the job finishes or ctx is done, returning the job's
// terminal error.
func (j *ingestJob) Wait(ctx context.Context) error {
	select {
	case <-j.Done:
		return j.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// importKey identifies one import within the job registry.
func importKey(filename string, sheetIndex int) string {
	return fmt.Sprintf("%s#%d", filename, sheetIndex)
}

// jobRegistry holds the at-most-one in-flight job per import key.
type jobRegistry struct {
	mu   sync.Mutex
	jobs map[string]*ingestJob
}

func newJobRegistry() *jobRegistry {
	return &jobRegistry{jobs: make(map[string]*ingestJob)}
}

// Begin returns the job for key, creating it when none is in flight.
// started reports whether the caller owns the returned job and must run it
// to completion via Finish. When started is false the caller has joined an
// existing job.
func (g *jobRegistry) Begin(key string) (*ingestJob, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if j, ok := g.jobs[key]; ok {
		return j, false
	}

	j := &ingestJob{
		Key:   key,
		Done:  make(chan struct{}),
		phase: PhaseDeferred,
	}
	g.jobs[key] = j
	return j, true
}

// Active returns the in-flight job for key, if any.
func (g *jobRegistry) Active(key string) (*ingestJob, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	j, ok := g.jobs[key]
	return j, ok
}

// Finish records the job's outcome, frees its key, and wakes joiners.
func (g *jobRegistry) Finish(j *ingestJob, err error) {
	g.mu.Lock()
	delete(g.jobs, j.Key)
	g.mu.Unlock()

	j.mu.Lock()
	j.err = err
	if err != nil {
		j.phase = PhaseFailed
	} else {
		j.phase = PhaseCompleted
	}
	j.mu.Unlock()

	close(j.Done)
}

// ActiveCount returns the number of jobs currently in flight.
func (g *jobRegistry) ActiveCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.jobs)
}
