package rules_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tokensentry/tokensentry/pkg/rules"
)

func TestExpiredTokenFlood_FifthAttemptScores(t *testing.T) {
	s := newStore(t)
	rule := rules.NewExpiredTokenFlood(nil)
	ctx := context.Background()

	for attempt := 1; attempt <= 4; attempt++ {
		res := rule.Analyze(ctx, invalidEvent("10.0.0.1", "token expired"), s)
		assert.Zero(t, res.Score, "attempt %d", attempt)
	}

	res := rule.Analyze(ctx, invalidEvent("10.0.0.1", "token expired"), s)
	assert.Equal(t, 30, res.Score)
	assert.Contains(t, res.Reason, "10.0.0.1")
}

func TestExpiredTokenFlood_IgnoresOtherReasons(t *testing.T) {
	s := newStore(t)
	rule := rules.NewExpiredTokenFlood(nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		res := rule.Analyze(ctx, invalidEvent("10.0.0.1", "signature mismatch"), s)
		assert.Zero(t, res.Score)
	}
}

func TestExpiredTokenFlood_IgnoresValidEvents(t *testing.T) {
	s := newStore(t)
	rule := rules.NewExpiredTokenFlood(nil)

	res := rule.Analyze(context.Background(), validEvent("10.0.0.1", "/api", "jti-1"), s)
	assert.Zero(t, res.Score)
}

func TestExpiredTokenFlood_SeparateIPsTrackedIndependently(t *testing.T) {
	s := newStore(t)
	rule := rules.NewExpiredTokenFlood(nil)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		rule.Analyze(ctx, invalidEvent("10.0.0.1", "token expired"), s)
	}
	res := rule.Analyze(ctx, invalidEvent("10.0.0.2", "token expired"), s)
	assert.Zero(t, res.Score)
}

func TestExpiredTokenFlood_NoIPCannotTrack(t *testing.T) {
	s := newStore(t)
	rule := rules.NewExpiredTokenFlood(nil)

	res := rule.Analyze(context.Background(), invalidEvent("", "token expired"), s)
	assert.Zero(t, res.Score)
	assert.Contains(t, res.Reason, "cannot track")
}
