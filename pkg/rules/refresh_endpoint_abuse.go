package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/tokensentry/tokensentry/pkg/store"
	"github.com/tokensentry/tokensentry/pkg/types"
)

const refreshKeyPrefix = "waf:refresh:"

// defaultRefreshPaths are matched as case-insensitive substrings of the
// request path.
var defaultRefreshPaths = []string{"/refresh", "/token/renew", "/oauth/token"}

type RefreshEndpointAbuseConfig struct {
	Window    time.Duration
	Threshold int64
	Score     int
	Paths     []string
}

// RefreshEndpointAbuse flags a subject hammering the token-refresh endpoints.
// Tracking is per user when the token carries a subject, falling back to the
// source IP for anonymous traffic.
type RefreshEndpointAbuse struct {
	meta
	cfg RefreshEndpointAbuseConfig
}

func NewRefreshEndpointAbuse(cfg *RefreshEndpointAbuseConfig) *RefreshEndpointAbuse {
	resolved := RefreshEndpointAbuseConfig{
		Window:    600 * time.Second,
		Threshold: 20,
		Score:     35,
		Paths:     defaultRefreshPaths,
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
		if len(cfg.Paths) > 0 {
			resolved.Paths = cfg.Paths
		}
	}
	return &RefreshEndpointAbuse{
		meta: meta{
			name:        "refresh_endpoint_abuse",
			description: "excessive calls to token refresh endpoints per subject",
			weight:      4,
			enabled:     true,
		},
		cfg: resolved,
	}
}

func (r *RefreshEndpointAbuse) Analyze(ctx context.Context, event *types.RiskEvent, s store.Store) types.RuleResult {
	if !pathMatchesAny(event.Path, r.cfg.Paths) {
		return pass(r.name, "not a refresh endpoint")
	}

	subject, ok := event.Payload.Sub()
	if !ok {
		subject = event.IP
	}
	if subject == "" {
		return pass(r.name, "cannot track: no subject or source ip")
	}

	count, err := countInWindow(ctx, s, refreshKeyPrefix+subject, r.cfg.Window)
	if err != nil {
		return storeFailure(r.name, err)
	}
	if count < r.cfg.Threshold {
		return pass(r.name, fmt.Sprintf("refresh call %d below threshold %d", count, r.cfg.Threshold))
	}
	return hit(r.name, r.cfg.Score,
		fmt.Sprintf("%d refresh calls by %s within %s", count, subject, r.cfg.Window),
		map[string]interface{}{"subject": subject, "calls": count, "path": event.Path},
	)
}
