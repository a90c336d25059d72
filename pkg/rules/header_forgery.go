package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/tokensentry/tokensentry/pkg/store"
	"github.com/tokensentry/tokensentry/pkg/token"
	"github.com/tokensentry/tokensentry/pkg/types"
)

const forgeryKeyPrefix = "waf:forgery:"

// suspiciousHeaderFields never belong in a JWT header; their presence means
// someone is crafting tokens by hand.
var suspiciousHeaderFields = []string{"password", "secret", "admin", "role", "permissions"}

const maxHeaderFields = 5

type HeaderForgeryConfig struct {
	Window    time.Duration
	Threshold int64
	Score     int
}

// HeaderForgery flags tokens with structurally hostile headers: unparsable,
// a typ other than JWT, a missing alg, smuggled claim-like fields, or an
// implausible number of fields.
type HeaderForgery struct {
	meta
	cfg HeaderForgeryConfig
}

func NewHeaderForgery(cfg *HeaderForgeryConfig) *HeaderForgery {
	resolved := HeaderForgeryConfig{
		Window:    300 * time.Second,
		Threshold: 2,
		Score:     35,
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
	return &HeaderForgery{
		meta: meta{
			name:        "header_forgery",
			description: "token header fails structural plausibility checks",
			weight:      4,
			enabled:     true,
		},
		cfg: resolved,
	}
}

func (r *HeaderForgery) Analyze(ctx context.Context, event *types.RiskEvent, s store.Store) types.RuleResult {
	anomaly := headerAnomaly(event.Token)
	if anomaly == "" {
		return pass(r.name, "header structurally sound")
	}
	if event.IP == "" {
		return pass(r.name, "cannot track: no source ip")
	}

	count, err := countInWindow(ctx, s, forgeryKeyPrefix+event.IP, r.cfg.Window)
	if err != nil {
		return storeFailure(r.name, err)
	}
	if count < r.cfg.Threshold {
		return pass(r.name, fmt.Sprintf("forged header %d below threshold %d", count, r.cfg.Threshold))
	}
	return hit(r.name, r.cfg.Score,
		fmt.Sprintf("%d forged-header tokens from %s within %s: %s", count, event.IP, r.cfg.Window, anomaly),
		map[string]interface{}{"ip": event.IP, "attempts": count, "anomaly": anomaly},
	)
}

// headerAnomaly returns a description of the first structural problem found,
// or "" for a plausible header.
func headerAnomaly(tokenString string) string {
	header, err := token.DecodeHeader(tokenString)
	if err != nil {
		return "unparsable header"
	}
	if typ, ok := header["typ"].(string); ok && typ != "JWT" {
		return fmt.Sprintf("unexpected typ %q", typ)
	}
	if alg, _ := header["alg"].(string); alg == "" {
		return "missing alg"
	}
	for _, field := range suspiciousHeaderFields {
		if _, ok := header[field]; ok {
			return fmt.Sprintf("suspicious field %q", field)
		}
	}
	if len(header) > maxHeaderFields {
		return fmt.Sprintf("%d header fields", len(header))
	}
	return ""
}
