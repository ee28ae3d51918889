package httpclient

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter gates outbound requests per host: a token-bucket rate and a
// cap on requests in flight. Many sources on one host, or thousands of
// stream URLs on one CDN, otherwise trip upstream throttling.
//
//	release, err := lim.Acquire(ctx, host)
//	if err != nil { ... }
//	defer release()
type HostLimiter struct {
	mu     sync.Mutex
	hosts  map[string]*hostGate
	rate   rate.Limit
	burst  int
	inflow int
}

type hostGate struct {
	lim *rate.Limiter
	sem chan struct{}
}

// NewHostLimiter allows perSecond requests per host (burst of the same
// size) with at most concurrency in flight. perSecond <= 0 means no rate
// limit; concurrency < 1 means 1.
func NewHostLimiter(perSecond float64, concurrency int) *HostLimiter {
	if concurrency < 1 {
		concurrency = 1
	}
	l := rate.Inf
	burst := 1
	if perSecond > 0 {
		l = rate.Limit(perSecond)
		burst = int(perSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &HostLimiter{hosts: make(map[string]*hostGate), rate: l, burst: burst, inflow: concurrency}
}

// Acquire blocks until host has a free slot and a rate token, or ctx ends.
// The wait is not charged to a budget carried by ctx.
func (h *HostLimiter) Acquire(ctx context.Context, host string) (func(), error) {
	g := h.gateFor(host)
	resume := Waiting(ctx)
	defer resume()
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err := g.lim.Wait(ctx); err != nil {
		<-g.sem
		return nil, err
	}
	return func() { <-g.sem }, nil
}

func (h *HostLimiter) gateFor(host string) *hostGate {
	host = strings.ToLower(host)
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.hosts[host]
	if !ok {
		g = &hostGate{lim: rate.NewLimiter(h.rate, h.burst), sem: make(chan struct{}, h.inflow)}
		h.hosts[host] = g
	}
	return g
}
