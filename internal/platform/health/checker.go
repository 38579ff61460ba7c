// Package health reports dependency health with a short-lived cache.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hallbook/hallbook/internal/platform/httpx"
)

// Check probes a single dependency.
type Check func(ctx context.Context) error

// Status is the cached result of the last probe round.
type Status struct {
	Healthy    bool              `json:"healthy"`
	CheckedAt  time.Time         `json:"checked_at"`
	Components map[string]string `json:"components,omitempty"`
}

// Checker runs the registered checks at most once per TTL.
type Checker struct {
	checks  map[string]Check
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time

	mu    sync.RWMutex
	last  Status
	valid bool
	group singleflight.Group
}

// NewChecker builds a checker. A zero ttl disables caching.
func NewChecker(ttl time.Duration, checks map[string]Check) *Checker {
	return &Checker{
		checks:  checks,
		ttl:     ttl,
		timeout: 3 * time.Second,
		now:     time.Now,
	}
}

// CheckHealth returns the cached status while it is fresh, otherwise probes
// every dependency. Concurrent callers share one probe round.
func (c *Checker) CheckHealth(ctx context.Context) Status {
	c.mu.RLock()
	if c.valid && c.now().Sub(c.last.CheckedAt) < c.ttl {
		st := c.last
		c.mu.RUnlock()
		return st
	}
	c.mu.RUnlock()

	v, _, _ := c.group.Do("probe", func() (any, error) {
		st := c.probe(ctx)
		c.mu.Lock()
		c.last = st
		c.valid = true
		c.mu.Unlock()
		return st, nil
	})
	return v.(Status)
}

func (c *Checker) probe(ctx context.Context) Status {
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	st := Status{Healthy: true, Components: make(map[string]string, len(names))}
	for _, name := range names {
		cctx, cancel := context.WithTimeout(ctx, c.timeout)
		err := c.checks[name](cctx)
		cancel()
		if err != nil {
			st.Healthy = false
			st.Components[name] = "down"
			continue
		}
		st.Components[name] = "up"
	}
	st.CheckedAt = c.now().UTC()
	return st
}

// Handler serves the status as JSON, 503 when unhealthy.
func (c *Checker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st := c.CheckHealth(r.Context())
		code := http.StatusOK
		if !st.Healthy {
			code = http.StatusServiceUnavailable
		}
		httpx.JSON(w, code, st)
	}
}
