package rules

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tokensentry/tokensentry/pkg/store"
	"github.com/tokensentry/tokensentry/pkg/types"
)

const signatureKeyPrefix = "waf:sig:"

type InvalidSignatureSpikeConfig struct {
	Window    time.Duration
	Threshold int64
	Score     int
}

// InvalidSignatureSpike flags a source IP accumulating signature failures,
// which usually means someone is forging or brute-forcing tokens.
type InvalidSignatureSpike struct {
	meta
	cfg InvalidSignatureSpikeConfig
}

func NewInvalidSignatureSpike(cfg *InvalidSignatureSpikeConfig) *InvalidSignatureSpike {
	resolved := InvalidSignatureSpikeConfig{
		Window:    300 * time.Second,
		Threshold: 10,
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
	return &InvalidSignatureSpike{
		meta: meta{
			name:        "invalid_signature_spike",
			description: "burst of signature verification failures from one source IP",
			weight:      4,
			enabled:     true,
		},
		cfg: resolved,
	}
}

func (r *InvalidSignatureSpike) Analyze(ctx context.Context, event *types.RiskEvent, s store.Store) types.RuleResult {
	if event.IsValid || !strings.Contains(strings.ToLower(event.InvalidReason), "signature") {
		return pass(r.name, "no signature failure")
	}
	if event.IP == "" {
		return pass(r.name, "cannot track: no source ip")
	}

	count, err := countInWindow(ctx, s, signatureKeyPrefix+event.IP, r.cfg.Window)
	if err != nil {
		return storeFailure(r.name, err)
	}
	if count < r.cfg.Threshold {
		return pass(r.name, fmt.Sprintf("signature failure %d below threshold %d", count, r.cfg.Threshold))
	}
	return hit(r.name, r.cfg.Score,
		fmt.Sprintf("%d signature failures from %s within %s", count, event.IP, r.cfg.Window),
		map[string]interface{}{"ip": event.IP, "attempts": count},
	)
}
