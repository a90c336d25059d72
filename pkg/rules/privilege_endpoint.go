package rules

import (
	"context"

	"github.com/tokensentry/tokensentry/pkg/store"
	"github.com/tokensentry/tokensentry/pkg/types"
)

var defaultPrivilegedPaths = []string{"/admin", "/internal", "/management", "/actuator", "/superuser"}

type PrivilegeEndpointConfig struct {
	Score int
	Paths []string
}

// PrivilegeEndpointWeighting adds a fixed score to every access of an
// administrative or otherwise privileged path. It is stateless: the weight
// applies on each request, so privileged traffic starts closer to the block
// threshold before any windowed rule fires.
type PrivilegeEndpointWeighting struct {
	meta
	cfg PrivilegeEndpointConfig
}

func NewPrivilegeEndpointWeighting(cfg *PrivilegeEndpointConfig) *PrivilegeEndpointWeighting {
	resolved := PrivilegeEndpointConfig{
		Score: 20,
		Paths: defaultPrivilegedPaths,
	}
	if cfg != nil {
		if cfg.Score > 0 {
			resolved.Score = cfg.Score
		}
		if len(cfg.Paths) > 0 {
			resolved.Paths = cfg.Paths
		}
	}
	return &PrivilegeEndpointWeighting{
		meta: meta{
			name:        "privilege_endpoint_weighting",
			description: "fixed weighting for access to privileged endpoints",
			weight:      2,
			enabled:     true,
		},
		cfg: resolved,
	}
}

func (r *PrivilegeEndpointWeighting) Analyze(ctx context.Context, event *types.RiskEvent, s store.Store) types.RuleResult {
	if !pathMatchesAny(event.Path, r.cfg.Paths) {
		return pass(r.name, "not a privileged endpoint")
	}
	return hit(r.name, r.cfg.Score,
		"access to privileged endpoint "+event.Path,
		map[string]interface{}{"path": event.Path, "method": event.Method},
	)
}
