package checkout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"coffee-checkout/internal/model"
)

// DefaultIdleTimeout is how long an untouched wizard is kept.
const DefaultIdleTimeout = 30 * time.Minute

// Registry maps wizard ids to orchestrators and evicts idle ones.
type Registry struct {
	mu      sync.Mutex
	wizards map[string]*Orchestrator
	idle    time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// NewRegistry creates a registry. A zero idle uses DefaultIdleTimeout and
// a nil now uses time.Now.
func NewRegistry(idle time.Duration, now func() time.Time, logger *slog.Logger) *Registry {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		wizards: make(map[string]*Orchestrator),
		idle:    idle,
		now:     now,
		logger:  logger,
	}
}

// Add stores o under a new random id.
func (r *Registry) Add(o *Orchestrator) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.wizards[id] = o
	r.mu.Unlock()
	return id
}

// Get returns the wizard for id. Unknown ids are not found; a wizard that
// idled out is removed and reported as a fatal session error.
func (r *Registry) Get(id string) (*Orchestrator, error) {
	r.mu.Lock()
	o, ok := r.wizards[id]
	r.mu.Unlock()
	if !ok {
		return nil, model.NewNotFoundError("checkout session")
	}
	if r.expired(o) {
		r.Remove(id)
		return nil, model.NewSessionError("checkout session expired")
	}
	return o, nil
}

// Remove forgets id.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.wizards, id)
	r.mu.Unlock()
}

// Len returns the number of tracked wizards.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.wizards)
}

// Sweep evicts idle and ended wizards and returns how many were removed.
// Wizards with an operation in flight are never evicted.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, o := range r.wizards {
		if o.Busy() {
			continue
		}
		if o.Ended() || r.expired(o) {
			delete(r.wizards, id)
			removed++
		}
	}
	return removed
}

func (r *Registry) expired(o *Orchestrator) bool {
	return !o.Busy() && r.now().Sub(o.LastActivity()) > r.idle
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Info("evicted checkout sessions",
					slog.Int("evicted", n),
					slog.Int("active", r.Len()),
				)
			}
		}
	}
}
