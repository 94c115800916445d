package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/arcaluminis/ledctl/internal/diagnostics"
	"github.com/arcaluminis/ledctl/internal/profile"
)

// Coordinator supervises the set of per-device workers and is the only
// way to publish a profile for a device: each Worker owns its own
// profile pointer, so two devices never share a Profile's script
// instances or output buffers, even when one profile descriptor is
// bound identically across several devices.
type Coordinator struct {
	sink diagnostics.Sink

	mu      sync.Mutex
	workers map[string]*Worker
}

func NewCoordinator(sink diagnostics.Sink) *Coordinator {
	return &Coordinator{sink: sink, workers: make(map[string]*Worker)}
}

// Swap publishes a newly bound profile for one device. The device's
// worker must already be registered via AddWorker. The profile being
// replaced, if any, has on_quit(reason="replaced") dispatched to its
// scripts before being dropped.
func (c *Coordinator) Swap(deviceID string, p *profile.Profile) error {
	c.mu.Lock()
	w, ok := c.workers[deviceID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: no worker registered for device %q", deviceID)
	}
	w.SetProfile(p)
	return nil
}

// Profiles returns a snapshot of every device's currently published
// profile, keyed by device id, for status reporting.
func (c *Coordinator) Profiles() map[string]*profile.Profile {
	c.mu.Lock()
	workers := make([]*Worker, 0, len(c.workers))
	for _, w := range c.workers {
		workers = append(workers, w)
	}
	c.mu.Unlock()

	out := make(map[string]*profile.Profile, len(workers))
	for _, w := range workers {
		if p := w.Profile(); p != nil {
			out[w.DeviceID] = p
		}
	}
	return out
}

// AddWorker registers a worker under this coordinator and starts it.
func (c *Coordinator) AddWorker(ctx context.Context, w *Worker) {
	c.mu.Lock()
	c.workers[w.DeviceID] = w
	c.mu.Unlock()
	go w.Run(ctx)
}

// StopAll stops every registered worker and waits for each to finish,
// the coordinator-level half of the shutdown bound.
func (c *Coordinator) StopAll() {
	c.mu.Lock()
	workers := make([]*Worker, 0, len(c.workers))
	for _, w := range c.workers {
		workers = append(workers, w)
	}
	c.mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *Worker) {
			defer wg.Done()
			w.Stop()
		}(w)
	}
	wg.Wait()
}
