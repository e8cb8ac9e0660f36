package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Probe checks one dependency. It returns nil when the dependency is usable.
type Probe func(ctx context.Context) error

// ProbeResult is the outcome of one probe.
type ProbeResult struct {
	Status   string  `json:"status"`
	Message  string  `json:"message,omitempty"`
	Duration float64 `json:"durationMs"`
}

// Report is the aggregated readiness state.
type Report struct {
	// Status is "ok" for liveness, "ready" or "degraded" for readiness.
	Status    string                 `json:"status"`
	Probes    map[string]ProbeResult `json:"probes,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Ready reports whether every probe passed.
func (r Report) Ready() bool {
	return r.Status != "degraded"
}

// Checker holds the registered readiness probes.
type Checker struct {
	mu      sync.RWMutex
	probes  map[string]Probe
	timeout time.Duration
}

// New creates a Checker. A zero timeout defaults to 5 seconds per probe.
func New(timeout time.Duration) *Checker {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		probes:  make(map[string]Probe),
		timeout: timeout,
	}
}

// Register adds or replaces the probe for a dependency.
func (c *Checker) Register(name string, probe Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = probe
}

// Names returns the registered probe names, sorted.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.probes))
	for name := range c.probes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Readiness runs every probe concurrently.
func (c *Checker) Readiness(ctx context.Context) Report {
	c.mu.RLock()
	probes := make(map[string]Probe, len(c.probes))
	for name, p := range c.probes {
		probes[name] = p
	}
	c.mu.RUnlock()

	results := make(map[string]ProbeResult, len(probes))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for name, probe := range probes {
		wg.Add(1)
		go func(name string, probe Probe) {
			defer wg.Done()
			res := c.run(ctx, probe)
			mu.Lock()
			results[name] = res
			mu.Unlock()
		}(name, probe)
	}
	wg.Wait()

	status := "ready"
	for _, res := range results {
		if res.Status != "ok" {
			status = "degraded"
		}
	}

	return Report{Status: status, Probes: results, Timestamp: time.Now()}
}

func (c *Checker) run(ctx context.Context, probe Probe) ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	errCh := make(chan error, 1)
	go func() {
		errCh <- probe(ctx)
	}()

	var err error
	select {
	case err = <-errCh:
	case <-ctx.Done():
		err = ctx.Err()
	}

	res := ProbeResult{Status: "ok", Duration: float64(time.Since(start).Microseconds()) / 1000}
	if err != nil {
		res.Status = "unhealthy"
		res.Message = err.Error()
	}
	return res
}
