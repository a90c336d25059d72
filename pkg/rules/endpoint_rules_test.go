package rules_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokensentry/tokensentry/pkg/blacklist"
	"github.com/tokensentry/tokensentry/pkg/rules"
)

func TestPrivilegeEndpoint_ScoresEveryAccess(t *testing.T) {
	s := newStore(t)
	rule := rules.NewPrivilegeEndpointWeighting(nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res := rule.Analyze(ctx, validEvent("10.0.0.1", "/admin/users", "jti-1"), s)
		assert.Equal(t, 20, res.Score, "access %d", i)
	}
}

func TestPrivilegeEndpoint_NonPrivilegedPasses(t *testing.T) {
	s := newStore(t)
	rule := rules.NewPrivilegeEndpointWeighting(nil)

	res := rule.Analyze(context.Background(), validEvent("10.0.0.1", "/api/orders", "jti-1"), s)
	assert.Zero(t, res.Score)
}

func TestPrivilegeEndpoint_CustomPaths(t *testing.T) {
	s := newStore(t)
	rule := rules.NewPrivilegeEndpointWeighting(&rules.PrivilegeEndpointConfig{
		Paths: []string{"/ops"},
	})
	ctx := context.Background()

	res := rule.Analyze(ctx, validEvent("10.0.0.1", "/ops/restart", "jti-1"), s)
	assert.Equal(t, 20, res.Score)
	res = rule.Analyze(ctx, validEvent("10.0.0.1", "/admin", "jti-1"), s)
	assert.Zero(t, res.Score)
}

func TestRefreshEndpointAbuse_TwentiethCallScores(t *testing.T) {
	s := newStore(t)
	rule := rules.NewRefreshEndpointAbuse(nil)
	ctx := context.Background()

	for call := 1; call <= 19; call++ {
		res := rule.Analyze(ctx, validEvent("10.0.0.1", "/auth/refresh", "jti-1"), s)
		assert.Zero(t, res.Score, "call %d", call)
	}

	res := rule.Analyze(ctx, validEvent("10.0.0.1", "/auth/refresh", "jti-1"), s)
	assert.Equal(t, 35, res.Score)
	assert.Equal(t, "user-1", res.Details["subject"])
}

func TestRefreshEndpointAbuse_FallsBackToIP(t *testing.T) {
	s := newStore(t)
	rule := rules.NewRefreshEndpointAbuse(&rules.RefreshEndpointAbuseConfig{Threshold: 2})
	ctx := context.Background()

	event := invalidEvent("10.0.0.7", "token expired")
	event.Path = "/auth/refresh"

	res := rule.Analyze(ctx, event, s)
	assert.Zero(t, res.Score)
	res = rule.Analyze(ctx, event, s)
	assert.Equal(t, 35, res.Score)
	assert.Equal(t, "10.0.0.7", res.Details["subject"])
}

func TestRefreshEndpointAbuse_OtherPathsIgnored(t *testing.T) {
	s := newStore(t)
	rule := rules.NewRefreshEndpointAbuse(&rules.RefreshEndpointAbuseConfig{Threshold: 1})

	res := rule.Analyze(context.Background(), validEvent("10.0.0.1", "/api/orders", "jti-1"), s)
	assert.Zero(t, res.Score)
}

func TestBlacklistToken_ImmediateScore(t *testing.T) {
	s := newStore(t)
	rule := rules.NewBlacklistToken(nil)
	ctx := context.Background()

	res := rule.Analyze(ctx, validEvent("10.0.0.1", "/api", "bad-token"), s)
	assert.Zero(t, res.Score)

	manager := blacklist.NewManager(s, discardLogger(), nil)
	require.NoError(t, manager.Add(ctx, "bad-token", "credential theft"))

	res = rule.Analyze(ctx, validEvent("10.0.0.1", "/api", "bad-token"), s)
	assert.Equal(t, 50, res.Score)

	require.NoError(t, manager.Remove(ctx, "bad-token"))
	res = rule.Analyze(ctx, validEvent("10.0.0.1", "/api", "bad-token"), s)
	assert.Zero(t, res.Score)
}

func TestBlacklistToken_NoJtiCannotTrack(t *testing.T) {
	s := newStore(t)
	rule := rules.NewBlacklistToken(nil)

	res := rule.Analyze(context.Background(), validEvent("10.0.0.1", "/api", ""), s)
	assert.Zero(t, res.Score)
	assert.Contains(t, res.Reason, "cannot track")
}

func TestInvalidSignatureSpike_TenthFailureScores(t *testing.T) {
	s := newStore(t)
	rule := rules.NewInvalidSignatureSpike(nil)
	ctx := context.Background()

	for attempt := 1; attempt <= 9; attempt++ {
		res := rule.Analyze(ctx, invalidEvent("10.0.0.1", "signature mismatch"), s)
		assert.Zero(t, res.Score, "attempt %d", attempt)
	}

	res := rule.Analyze(ctx, invalidEvent("10.0.0.1", "signature mismatch"), s)
	assert.Equal(t, 40, res.Score)
}

func TestInvalidSignatureSpike_IgnoresOtherReasons(t *testing.T) {
	s := newStore(t)
	rule := rules.NewInvalidSignatureSpike(&rules.InvalidSignatureSpikeConfig{Threshold: 1})

	res := rule.Analyze(context.Background(), invalidEvent("10.0.0.1", "token expired"), s)
	assert.Zero(t, res.Score)
}
