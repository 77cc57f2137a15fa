// Package polling is the fallback observation channel: a recurring silent
// re-fetch that survives any number of project updates without its timer
// ever being rebuilt.
package polling

import (
	"sync"
	"sync/atomic"
	"time"

	"signoff/client/domain"
)

const DefaultInterval = 15 * time.Second

// Poller separates the timer's lifecycle from its data dependency. The
// ticker is created once in Start; RefreshObservedValue only swaps the value
// the next tick will read. Reschedule is the one rare operation allowed to
// touch the cadence, and even that keeps the same ticker identity.
type Poller struct {
	observed atomic.Pointer[domain.Project]

	mu      sync.Mutex
	ticker  *time.Ticker
	done    chan struct{}
	running bool
}

func New() *Poller {
	return &Poller{}
}

// Start begins ticking. fetch is expected to be silent: no loading state,
// errors logged by the caller and retried next tick. isTerminal short-
// circuits the fetch without stopping the ticker, so a terminal project
// stops generating traffic the moment its status lands in the observed cell.
func (p *Poller) Start(interval time.Duration, fetch func(domain.Project), isTerminal func(domain.Project) bool) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.ticker = time.NewTicker(interval)
	p.done = make(chan struct{})
	ticker := p.ticker
	done := p.done
	p.mu.Unlock()

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				current := p.observed.Load()
				if current == nil {
					continue
				}
				if isTerminal != nil && isTerminal(*current) {
					continue
				}
				fetch(*current)
			}
		}
	}()
}

// RefreshObservedValue updates what the next tick sees. It must never touch
// the ticker; resetting the schedule on every data change would quietly
// defeat cross-tick termination checks.
func (p *Poller) RefreshObservedValue(project domain.Project) {
	copied := project
	p.observed.Store(&copied)
}

// Reschedule changes the cadence in place. Rare by design.
func (p *Poller) Reschedule(interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running && interval > 0 {
		p.ticker.Reset(interval)
	}
}

// Stop clears the timer. Idempotent; must run on unmount so no detached
// ticker outlives the observing session.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	p.ticker.Stop()
	close(p.done)
}
