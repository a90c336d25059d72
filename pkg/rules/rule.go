package rules

import (
	"context"
	"strings"
	"time"

	"github.com/tokensentry/tokensentry/pkg/store"
	"github.com/tokensentry/tokensentry/pkg/types"
)

// Rule is one independently-enabled detection unit. Analyze inspects the
// event and the shared store and returns a bounded score with a reason. It
// must not panic and must not surface store failures: a rule that cannot
// evaluate degrades to a zero-score pass so a store outage never causes a
// false block.
type Rule interface {
	Name() string
	Description() string
	// Weight is the rule's declared severity on a 1-10 scale. It is already
	// baked into the score the rule returns; the engine does no further
	// weighting.
	Weight() int
	Enabled() bool
	Analyze(ctx context.Context, event *types.RiskEvent, s store.Store) types.RuleResult
}

// meta carries the static identity every rule variant embeds.
type meta struct {
	name        string
	description string
	weight      int
	enabled     bool
}

func (m *meta) Name() string        { return m.name }
func (m *meta) Description() string { return m.description }
func (m *meta) Weight() int         { return m.weight }
func (m *meta) Enabled() bool       { return m.enabled }

// SetEnabled toggles the rule without reconstructing it.
func (m *meta) SetEnabled(enabled bool) { m.enabled = enabled }

// clampScore bounds a score into [0,100].
func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// pass is the zero-score result used when a rule does not trigger, cannot
// track the event, or hits a store failure.
func pass(ruleName, reason string) types.RuleResult {
	return types.RuleResult{RuleName: ruleName, Score: 0, Reason: reason}
}

// hit builds a scored result with clamping applied.
func hit(ruleName string, score int, reason string, details map[string]interface{}) types.RuleResult {
	return types.RuleResult{
		RuleName: ruleName,
		Score:    clampScore(score),
		Reason:   reason,
		Details:  details,
	}
}

// storeFailure converts a store error into a diagnostic pass result.
func storeFailure(ruleName string, err error) types.RuleResult {
	return pass(ruleName, "store error: "+err.Error())
}

// countInWindow increments the counter at key and establishes the window TTL
// on the first write only, so the window is anchored at the first observation
// and an increment never extends it. The returned count includes the current
// call: the request that crosses a threshold is scored on that same call.
func countInWindow(ctx context.Context, s store.Store, key string, window time.Duration) (int64, error) {
	count, err := s.Increment(ctx, key, 1)
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := s.Expire(ctx, key, window); err != nil {
			return count, nil
		}
	}
	return count, nil
}

// pathMatchesAny reports whether the path contains any of the patterns,
// case-insensitively.
func pathMatchesAny(path string, patterns []string) bool {
	lower := strings.ToLower(path)
	for _, p := range patterns {
		if p == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
