package events

import (
	"context"
	"sync"
	"time"

	"github.com/shf-platform/credit_layer/internal/app/system"
	"github.com/shf-platform/credit_layer/pkg/logger"
)

// Refresher periodically merges persisted event state back into memory so an
// instance observes writes made by its peers. Staleness is bounded by the
// poll interval, not eliminated.
type Refresher struct {
	service  *Service
	interval time.Duration
	log      *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

var _ system.Service = (*Refresher)(nil)

// NewRefresher builds a refresher polling every two seconds.
func NewRefresher(service *Service, log *logger.Logger) *Refresher {
	if log == nil {
		log = logger.NewDefault("events-refresher")
	}
	return &Refresher{
		service:  service,
		interval: 2 * time.Second,
		log:      log,
	}
}

// WithInterval overrides the poll interval. Call before Start.
func (r *Refresher) WithInterval(d time.Duration) *Refresher {
	if d > 0 {
		r.interval = d
	}
	return r
}

func (r *Refresher) Name() string { return "events-refresher" }

func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				r.service.Reload(runCtx)
			}
		}
	}()
	return nil
}

func (r *Refresher) Stop(context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.cancel()
	r.running = false
	r.mu.Unlock()
	r.wg.Wait()
	return nil
}
