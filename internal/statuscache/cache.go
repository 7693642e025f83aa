package statuscache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("job status not found")

// closedChan is returned by Watch for entries that are already gone so a
// waiter wakes up immediately instead of blocking forever.
var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

type entry struct {
	status JobStatus
	// notify is closed and replaced on every mutation; waiters re-read after
	// selecting on it.
	notify chan struct{}
}

// Cache is the in-process, TTL-bounded store of job statuses. It is the
// single source of truth for what a client may currently learn about a job.
// Process restart loses everything, which is accepted.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration

	// nowFn is replaceable in tests.
	nowFn func() time.Time
}

type CacheOption func(*Cache)

// WithClock overrides the cache's time source.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) {
		c.nowFn = now
	}
}

// NewCache returns a cache that keeps terminal entries for ttl after their
// endedAt timestamp.
func NewCache(ttl time.Duration, opts ...CacheOption) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		ttl:     ttl,
		nowFn:   time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Put replaces the status record wholesale. The first write of a job sets
// version 1 and stamps startedAt; later writes preserve startedAt and bump
// the version. All attached watchers are woken.
func (c *Cache) Put(jobID string, status JobStatus) JobStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFn()
	status.JobID = jobID
	status.UpdatedAt = now

	prev, ok := c.entries[jobID]
	if ok {
		status.StartedAt = prev.status.StartedAt
		status.Version = prev.status.Version + 1
	} else {
		if status.StartedAt.IsZero() {
			status.StartedAt = now
		}
		status.Version = 1
	}

	stored := status.clone()
	if ok {
		close(prev.notify)
		prev.status = stored
		prev.notify = make(chan struct{})
	} else {
		c.entries[jobID] = &entry{status: stored, notify: make(chan struct{})}
	}

	return status
}

// Get returns a copy of the current status. Entries past their retention
// window are evicted lazily here.
func (c *Cache) Get(jobID string) (JobStatus, error) {
	c.mu.RLock()
	e, ok := c.entries[jobID]
	if ok && !c.expired(e.status) {
		status := e.status.clone()
		c.mu.RUnlock()
		return status, nil
	}
	c.mu.RUnlock()

	if ok {
		// expired, upgrade to a write lock and drop it
		c.mu.Lock()
		if e, ok := c.entries[jobID]; ok && c.expired(e.status) {
			close(e.notify)
			delete(c.entries, jobID)
		}
		c.mu.Unlock()
	}
	return JobStatus{}, ErrNotFound
}

// Watch returns the current status together with a channel that is closed on
// the next mutation or deletion of the entry.
func (c *Cache) Watch(jobID string) (JobStatus, <-chan struct{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[jobID]
	if !ok || c.expired(e.status) {
		return JobStatus{}, closedChan, ErrNotFound
	}
	return e.status.clone(), e.notify, nil
}

// Delete removes the entry and wakes its watchers.
func (c *Cache) Delete(jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[jobID]; ok {
		close(e.notify)
		delete(c.entries, jobID)
	}
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep drops every entry past its retention window and reports how many
// were evicted.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for id, e := range c.entries {
		if c.expired(e.status) {
			close(e.notify)
			delete(c.entries, id)
			evicted++
		}
	}
	return evicted
}

// RunSweeper periodically sweeps expired entries until the context is done.
func (c *Cache) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := jitterbug.New(interval, &jitterbug.Norm{Stdev: 100 * time.Millisecond, Mean: 0})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.S().Named("status_cache").Info("sweeper stopped")
			return
		case <-ticker.C:
		}

		if n := c.Sweep(); n > 0 {
			zap.S().Named("status_cache").Infof("evicted %d expired job entries", n)
		}
	}
}

// expired reports whether the entry's retention window has elapsed. Only
// terminal entries age out; a job still running stays visible.
func (c *Cache) expired(status JobStatus) bool {
	if status.EndedAt == nil {
		return false
	}
	return c.nowFn().Sub(*status.EndedAt) > c.ttl
}
