package rules

import (
	"context"

	"github.com/tokensentry/tokensentry/pkg/blacklist"
	"github.com/tokensentry/tokensentry/pkg/store"
	"github.com/tokensentry/tokensentry/pkg/types"
)

type BlacklistTokenConfig struct {
	Score int
}

// BlacklistToken scores immediately when the event's JWT ID has a live entry
// in the operator-maintained blacklist namespace. No window applies.
type BlacklistToken struct {
	meta
	cfg BlacklistTokenConfig
}

func NewBlacklistToken(cfg *BlacklistTokenConfig) *BlacklistToken {
	resolved := BlacklistTokenConfig{Score: 50}
	if cfg != nil && cfg.Score > 0 {
		resolved.Score = cfg.Score
	}
	return &BlacklistToken{
		meta: meta{
			name:        "blacklist_token",
			description: "token id present in the operator blacklist",
			weight:      5,
			enabled:     true,
		},
		cfg: resolved,
	}
}

func (r *BlacklistToken) Analyze(ctx context.Context, event *types.RiskEvent, s store.Store) types.RuleResult {
	jti, ok := event.Payload.Jti()
	if !ok {
		return pass(r.name, "cannot track: no jti claim")
	}

	_, found, err := s.Get(ctx, blacklist.KeyPrefix+jti)
	if err != nil {
		return storeFailure(r.name, err)
	}
	if !found {
		return pass(r.name, "token not blacklisted")
	}
	return hit(r.name, r.cfg.Score,
		"blacklisted token "+jti,
		map[string]interface{}{"jti": jti},
	)
}
