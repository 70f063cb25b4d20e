package fetcher

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HostLimit is the request budget for one host.
type HostLimit struct {
	RPS   float64
	Burst int
	// Adaptive halves the rate after a 429 and raises it by a fifth after
	// each success, staying within [RPS/4, RPS*2].
	Adaptive bool
}

// hostLimiter paces requests to one host.
type hostLimiter struct {
	host     string
	lim      *rate.Limiter
	adaptive bool

	mu               sync.Mutex
	cur, floor, ceil rate.Limit
}

func newHostLimiter(host string, l HostLimit) *hostLimiter {
	burst := l.Burst
	if burst < 1 {
		burst = 1
	}
	r := rate.Limit(l.RPS)
	if l.RPS <= 0 {
		r = rate.Inf
	}
	return &hostLimiter{
		host:     host,
		lim:      rate.NewLimiter(r, burst),
		adaptive: l.Adaptive && l.RPS > 0,
		cur:      r,
		floor:    r / 4,
		ceil:     r * 2,
	}
}

func (h *hostLimiter) wait(ctx context.Context) error {
	if h == nil {
		return nil
	}
	return h.lim.Wait(ctx)
}

func (h *hostLimiter) set(r rate.Limit) {
	h.cur = max(h.floor, min(h.ceil, r))
	h.lim.SetLimit(h.cur)
}

// succeeded nudges an adaptive limiter back up.
func (h *hostLimiter) succeeded() {
	if h == nil || !h.adaptive {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.set(h.cur * 1.2)
}

// throttled halves an adaptive limiter after a 429.
func (h *hostLimiter) throttled() {
	if h == nil || !h.adaptive {
		return
	}
	h.mu.Lock()
	h.set(h.cur / 2)
	cur := h.cur
	h.mu.Unlock()
	zap.L().Warn("fetcher: slowing host after 429",
		zap.String("host", h.host),
		zap.Float64("rps", float64(cur)),
	)
}

// limit reports the current rate.
func (h *hostLimiter) limit() rate.Limit {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cur
}
