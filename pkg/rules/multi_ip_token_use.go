package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/tokensentry/tokensentry/pkg/store"
	"github.com/tokensentry/tokensentry/pkg/types"
)

const multiIPKeyPrefix = "waf:multi_ip:"

type MultiIPTokenUseConfig struct {
	Window    time.Duration
	Threshold int
	Score     int
}

// MultiIPTokenUse flags one JWT ID observed from several distinct source IPs
// inside the window, a strong indicator of a stolen or shared token. Each IP
// is recorded as its own sub-key under the token's prefix and distinct IPs
// are counted by prefix enumeration.
type MultiIPTokenUse struct {
	meta
	cfg MultiIPTokenUseConfig
}

func NewMultiIPTokenUse(cfg *MultiIPTokenUseConfig) *MultiIPTokenUse {
	resolved := MultiIPTokenUseConfig{
		Window:    600 * time.Second,
		Threshold: 3,
		Score:     45,
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
	return &MultiIPTokenUse{
		meta: meta{
			name:        "multi_ip_token_use",
			description: "one token id used from multiple source IPs",
			weight:      5,
			enabled:     true,
		},
		cfg: resolved,
	}
}

func (r *MultiIPTokenUse) Analyze(ctx context.Context, event *types.RiskEvent, s store.Store) types.RuleResult {
	jti, ok := event.Payload.Jti()
	if !ok {
		return pass(r.name, "cannot track: no jti claim")
	}
	if event.IP == "" {
		return pass(r.name, "cannot track: no source ip")
	}

	prefix := multiIPKeyPrefix + jti + ":"
	if err := s.Set(ctx, prefix+event.IP, "1", r.cfg.Window); err != nil {
		return storeFailure(r.name, err)
	}
	keys, err := s.Keys(ctx, prefix+"*")
	if err != nil {
		return storeFailure(r.name, err)
	}
	if len(keys) < r.cfg.Threshold {
		return pass(r.name, fmt.Sprintf("%d distinct ip(s) below threshold %d", len(keys), r.cfg.Threshold))
	}
	return hit(r.name, r.cfg.Score,
		fmt.Sprintf("token %s used from %d distinct IPs within %s", jti, len(keys), r.cfg.Window),
		map[string]interface{}{"jti": jti, "distinct_ips": len(keys)},
	)
}
