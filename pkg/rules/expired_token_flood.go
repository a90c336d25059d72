package rules

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tokensentry/tokensentry/pkg/store"
	"github.com/tokensentry/tokensentry/pkg/types"
)

const expiredKeyPrefix = "waf:expired:"

// ExpiredTokenFloodConfig bounds the per-IP window for repeated expired-token
// attempts. The zero value of any field falls back to the default.
type ExpiredTokenFloodConfig struct {
	Window    time.Duration
	Threshold int64
	Score     int
}

// ExpiredTokenFlood flags a source IP repeatedly presenting expired tokens,
// the signature of a replayed credential or a stale automation loop.
type ExpiredTokenFlood struct {
	meta
	cfg ExpiredTokenFloodConfig
}

func NewExpiredTokenFlood(cfg *ExpiredTokenFloodConfig) *ExpiredTokenFlood {
	resolved := ExpiredTokenFloodConfig{
		Window:    60 * time.Second,
		Threshold: 5,
		Score:     30,
	}
	if cfg != nil {
		if cfg.Window > 0 {
			resolved.Window = cfg.Window
		}
		if cfg.Threshold > 0 {
			resolved.Threshold = cfg.Threshold
		}
		if cfg.Score > 0 {
			resolved.Score = cfg.Score
		}
	}
	return &ExpiredTokenFlood{
		meta: meta{
			name:        "expired_token_flood",
			description: "repeated expired-token attempts from one source IP",
			weight:      3,
			enabled:     true,
		},
		cfg: resolved,
	}
}

func (r *ExpiredTokenFlood) Analyze(ctx context.Context, event *types.RiskEvent, s store.Store) types.RuleResult {
	if event.IsValid || !strings.Contains(strings.ToLower(event.InvalidReason), "expired") {
		return pass(r.name, "token not expired")
	}
	if event.IP == "" {
		return pass(r.name, "cannot track: no source ip")
	}

	count, err := countInWindow(ctx, s, expiredKeyPrefix+event.IP, r.cfg.Window)
	if err != nil {
		return storeFailure(r.name, err)
	}
	if count < r.cfg.Threshold {
		return pass(r.name, fmt.Sprintf("expired attempt %d below threshold %d", count, r.cfg.Threshold))
	}
	return hit(r.name, r.cfg.Score,
		fmt.Sprintf("%d expired-token attempts from %s within %s", count, event.IP, r.cfg.Window),
		map[string]interface{}{"ip": event.IP, "attempts": count},
	)
}
