package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/tokensentry/tokensentry/pkg/store"
	"github.com/tokensentry/tokensentry/pkg/token"
	"github.com/tokensentry/tokensentry/pkg/types"
)

const algorithmKeyPrefix = "waf:alg:"

type AlgorithmConfusionConfig struct {
	Window    time.Duration
	Threshold int64
	Score     int
}

// AlgorithmConfusion flags tokens whose header declares a missing, "none", or
// otherwise unlisted algorithm. It shares the allowlist with the decoder so
// the two checks cannot diverge.
type AlgorithmConfusion struct {
	meta
	cfg AlgorithmConfusionConfig
}

func NewAlgorithmConfusion(cfg *AlgorithmConfusionConfig) *AlgorithmConfusion {
	resolved := AlgorithmConfusionConfig{
		Window:    300 * time.Second,
		Threshold: 3,
		Score:     40,
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
	return &AlgorithmConfusion{
		meta: meta{
			name:        "algorithm_confusion",
			description: "token header declares an unsafe or missing signing algorithm",
			weight:      4,
			enabled:     true,
		},
		cfg: resolved,
	}
}

func (r *AlgorithmConfusion) Analyze(ctx context.Context, event *types.RiskEvent, s store.Store) types.RuleResult {
	header, err := token.DecodeHeader(event.Token)
	alg := ""
	if err == nil {
		alg, _ = header["alg"].(string)
	}
	if err == nil && alg != "" && token.IsSafeAlgorithm(alg) {
		return pass(r.name, "algorithm in allowlist")
	}
	if event.IP == "" {
		return pass(r.name, "cannot track: no source ip")
	}

	count, cerr := countInWindow(ctx, s, algorithmKeyPrefix+event.IP, r.cfg.Window)
	if cerr != nil {
		return storeFailure(r.name, cerr)
	}
	if count < r.cfg.Threshold {
		return pass(r.name, fmt.Sprintf("unsafe algorithm attempt %d below threshold %d", count, r.cfg.Threshold))
	}
	return hit(r.name, r.cfg.Score,
		fmt.Sprintf("%d unsafe-algorithm tokens from %s within %s", count, event.IP, r.cfg.Window),
		map[string]interface{}{"ip": event.IP, "attempts": count, "alg": alg},
	)
}
