package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/tokensentry/tokensentry/pkg/store"
	"github.com/tokensentry/tokensentry/pkg/types"
)

const replayKeyPrefix = "waf:replay:"

type TokenReplayConfig struct {
	Window    time.Duration
	Threshold int64
	Score     int
}

// TokenReplayDetection flags one JWT ID reused at a rate no interactive
// client reaches, regardless of which IPs it comes from.
type TokenReplayDetection struct {
	meta
	cfg TokenReplayConfig
}

func NewTokenReplayDetection(cfg *TokenReplayConfig) *TokenReplayDetection {
	resolved := TokenReplayConfig{
		Window:    60 * time.Second,
		Threshold: 30,
		Score:     25,
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
	return &TokenReplayDetection{
		meta: meta{
			name:        "token_replay_detection",
			description: "one token id replayed at high frequency",
			weight:      3,
			enabled:     true,
		},
		cfg: resolved,
	}
}

func (r *TokenReplayDetection) Analyze(ctx context.Context, event *types.RiskEvent, s store.Store) types.RuleResult {
	jti, ok := event.Payload.Jti()
	if !ok {
		return pass(r.name, "cannot track: no jti claim")
	}

	count, err := countInWindow(ctx, s, replayKeyPrefix+jti, r.cfg.Window)
	if err != nil {
		return storeFailure(r.name, err)
	}
	if count < r.cfg.Threshold {
		return pass(r.name, fmt.Sprintf("token use %d below threshold %d", count, r.cfg.Threshold))
	}
	return hit(r.name, r.cfg.Score,
		fmt.Sprintf("token %s used %d times within %s", jti, count, r.cfg.Window),
		map[string]interface{}{"jti": jti, "uses": count},
	)
}
