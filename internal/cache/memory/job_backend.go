package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/betresolver/internal/domain"
)

type jobEntry struct {
	job      domain.ResolutionJob
	state    domain.JobState
	seq      uint64
	runAt    time.Time // delayed: when runnable; active: lease expiry
	expireAt time.Time // completed/failed: eviction time
}

// JobBackend implements domain.JobBackend in memory. It does not survive a
// restart.
type JobBackend struct {
	mu   sync.Mutex
	jobs map[string]*jobEntry
	seq  uint64
}

var _ domain.JobBackend = (*JobBackend)(nil)

// NewJobBackend creates an empty backend.
func NewJobBackend() *JobBackend {
	return &JobBackend{jobs: make(map[string]*jobEntry)}
}

func inFlight(s domain.JobState) bool {
	return s == domain.JobWaiting || s == domain.JobDelayed || s == domain.JobActive
}

// Enqueue implements domain.JobBackend.
func (b *JobBackend) Enqueue(_ context.Context, job domain.ResolutionJob) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e, ok := b.jobs[job.Key]; ok && inFlight(e.state) {
		return false, nil
	}
	b.seq++
	b.jobs[job.Key] = &jobEntry{job: job, state: domain.JobWaiting, seq: b.seq}
	return true, nil
}

// Dequeue implements domain.JobBackend. Due delayed jobs are promoted first.
func (b *JobBackend) Dequeue(_ context.Context, now time.Time, lease time.Duration) (domain.ResolutionJob, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.promote(now)
	var next *jobEntry
	for _, e := range b.jobs {
		if e.state != domain.JobWaiting {
			continue
		}
		if next == nil || e.seq < next.seq {
			next = e
		}
	}
	if next == nil {
		return domain.ResolutionJob{}, false, nil
	}
	next.state = domain.JobActive
	next.runAt = now.Add(lease)
	next.job.Attempts++
	return next.job, true, nil
}

func (b *JobBackend) promote(now time.Time) {
	for _, e := range b.jobs {
		if e.state == domain.JobDelayed && !now.Before(e.runAt) {
			b.seq++
			e.state = domain.JobWaiting
			e.seq = b.seq
		}
	}
}

// Complete implements domain.JobBackend.
func (b *JobBackend) Complete(_ context.Context, key string, now time.Time, retention time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.jobs[key]; ok {
		e.state = domain.JobCompleted
		e.expireAt = now.Add(retention)
	}
	return nil
}

// Retry implements domain.JobBackend.
func (b *JobBackend) Retry(_ context.Context, job domain.ResolutionJob, at time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.jobs[job.Key]
	if !ok {
		e = &jobEntry{}
		b.jobs[job.Key] = e
	}
	e.job = job
	e.state = domain.JobDelayed
	e.runAt = at
	return nil
}

// DeadLetter implements domain.JobBackend.
func (b *JobBackend) DeadLetter(_ context.Context, job domain.ResolutionJob, now time.Time, retention time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := now
	job.FailedAt = &t
	b.jobs[job.Key] = &jobEntry{job: job, state: domain.JobFailed, expireAt: now.Add(retention)}
	return nil
}

// Maintain implements domain.JobBackend.
func (b *JobBackend) Maintain(_ context.Context, now time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.promote(now)
	for key, e := range b.jobs {
		switch e.state {
		case domain.JobActive:
			if !now.Before(e.runAt) {
				b.seq++
				e.state = domain.JobWaiting
				e.seq = b.seq
			}
		case domain.JobCompleted, domain.JobFailed:
			if !now.Before(e.expireAt) {
				delete(b.jobs, key)
			}
		}
	}
	return nil
}

// Counts implements domain.JobBackend.
func (b *JobBackend) Counts(context.Context) (domain.JobCounts, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var c domain.JobCounts
	for _, e := range b.jobs {
		switch e.state {
		case domain.JobWaiting:
			c.Waiting++
		case domain.JobDelayed:
			c.Delayed++
		case domain.JobActive:
			c.Active++
		case domain.JobCompleted:
			c.Completed++
		case domain.JobFailed:
			c.Failed++
		}
	}
	return c, nil
}

// Failed implements domain.JobBackend, newest first.
func (b *JobBackend) Failed(_ context.Context, limit int) ([]domain.ResolutionJob, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.ResolutionJob
	for _, e := range b.jobs {
		if e.state == domain.JobFailed {
			out = append(out, e.job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FailedAt.After(*out[j].FailedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
