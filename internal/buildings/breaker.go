package buildings

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/place2dxf/internal/failure"
	"github.com/sells-group/place2dxf/internal/model"
)

// BreakerState is the state of a BreakerSource.
type BreakerState int

// Breaker states.
const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerOptions tunes a BreakerSource.
type BreakerOptions struct {
	// Threshold is the number of consecutive failures that opens the
	// breaker. Default: 3.
	Threshold int
	// Cooldown is how long an open breaker rejects calls before letting a
	// single probe through. Default: 60s.
	Cooldown time.Duration
	// OnStateChange is called with the lock released.
	OnStateChange func(from, to BreakerState)
}

// BreakerSource stops calling a failing Source for a cooldown period, so a
// dead upstream costs one fast error instead of a full timeout per request.
type BreakerSource struct {
	inner Source
	opts  BreakerOptions
	now   func() time.Time

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreakerSource wraps inner.
func NewBreakerSource(inner Source, opts BreakerOptions) *BreakerSource {
	if opts.Threshold <= 0 {
		opts.Threshold = 3
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 60 * time.Second
	}
	return &BreakerSource{inner: inner, opts: opts, now: time.Now}
}

// Name reports the wrapped source's name.
func (b *BreakerSource) Name() string { return b.inner.Name() }

// State returns the current state.
func (b *BreakerSource) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Fetch calls the wrapped source unless the breaker is open. Context
// cancellation by the caller does not count as an upstream failure.
func (b *BreakerSource) Fetch(ctx context.Context, bbox model.BBox) (*FetchResult, error) {
	if err := b.admit(); err != nil {
		return nil, err
	}
	res, err := b.inner.Fetch(ctx, bbox)
	b.record(err, ctx.Err() != nil)
	return res, err
}

func (b *BreakerSource) admit() error {
	b.mu.Lock()
	var changed func()
	defer func() {
		b.mu.Unlock()
		if changed != nil {
			changed()
		}
	}()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.opts.Cooldown {
			return failure.Remotef(b.inner.Name(), "circuit open after %d consecutive failures", b.failures)
		}
		changed = b.setState(BreakerHalfOpen)
		b.probing = true
		return nil
	case BreakerHalfOpen:
		if b.probing {
			return failure.Remotef(b.inner.Name(), "circuit half-open, probe in flight")
		}
		b.probing = true
	}
	return nil
}

func (b *BreakerSource) record(err error, cancelled bool) {
	b.mu.Lock()
	var changed func()
	defer func() {
		b.mu.Unlock()
		if changed != nil {
			changed()
		}
	}()

	b.probing = false
	switch {
	case err == nil:
		b.failures = 0
		changed = b.setState(BreakerClosed)
	case cancelled:
		if b.state == BreakerHalfOpen {
			changed = b.setState(BreakerOpen)
		}
	default:
		b.failures++
		if b.state == BreakerHalfOpen || b.failures >= b.opts.Threshold {
			b.openedAt = b.now()
			changed = b.setState(BreakerOpen)
		}
	}
}

// setState must be called with mu held; the returned func runs the hook.
func (b *BreakerSource) setState(to BreakerState) func() {
	from := b.state
	if from == to {
		return nil
	}
	b.state = to
	name := b.inner.Name()
	hook := b.opts.OnStateChange
	return func() {
		zap.L().Warn("buildings: breaker state change",
			zap.String("source", name),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
		if hook != nil {
			hook(from, to)
		}
	}
}
