// Package base provides base implementation for scheduler jobs.
package base

import (
	"sync"
	"time"
)

// JobBase records the outcome of a job's most recent run.
// Jobs embed it and the scheduler calls MarkRun after every execution.
type JobBase struct {
	mu      sync.RWMutex
	lastRun time.Time
	lastErr error
	runs    int
}

// MarkRun stores the time and result of a finished run.
func (j *JobBase) MarkRun(at time.Time, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.lastRun = at
	j.lastErr = err
	j.runs++
}

// LastRun returns when the job last finished and the error it returned.
func (j *JobBase) LastRun() (time.Time, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.lastRun, j.lastErr
}

// Runs returns how many times the job has run.
func (j *JobBase) Runs() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.runs
}
