package config

import (
	"github.com/sells-group/place2dxf/internal/fetcher"
)

// Limits converts the configured host budgets into fetcher limits, keyed
// the way fetcher.HostOf reports hosts.
func (c HTTPConfig) Limits() map[string]fetcher.HostLimit {
	out := make(map[string]fetcher.HostLimit, len(c.RateLimits))
	for _, l := range c.RateLimits {
		out[l.Host] = fetcher.HostLimit{RPS: l.RPS, Burst: l.Burst, Adaptive: l.Adaptive}
	}
	return out
}
