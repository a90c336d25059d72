package middleware_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokensentry/tokensentry/pkg/middleware"
	"github.com/tokensentry/tokensentry/pkg/rules"
	"github.com/tokensentry/tokensentry/pkg/store"
	"github.com/tokensentry/tokensentry/pkg/types"
	"github.com/tokensentry/tokensentry/pkg/waf"
)

type fixedScoreRule struct {
	score int
}

func (fixedScoreRule) Name() string        { return "fixed_score" }
func (fixedScoreRule) Description() string { return "test rule" }
func (fixedScoreRule) Weight() int         { return 1 }
func (fixedScoreRule) Enabled() bool       { return true }

func (r fixedScoreRule) Analyze(context.Context, *types.RiskEvent, store.Store) types.RuleResult {
	return types.RuleResult{RuleName: "fixed_score", Score: r.score, Reason: "test"}
}

// brokenRule panics outside rule isolation so the whole analysis fails.
type brokenRule struct{ fixedScoreRule }

func (brokenRule) Enabled() bool { panic("broken") }

func newTestApp(t *testing.T, cfg waf.Config) *fiber.App {
	t.Helper()
	if cfg.Store == nil {
		s := store.NewMemoryStore(0, nil)
		t.Cleanup(func() { _ = s.Close() })
		cfg.Store = s
	}
	engine, err := waf.NewEngine(cfg, nil)
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	app := fiber.New()
	app.Use(middleware.NewWafMiddleware(engine, logger).Middleware())
	app.Get("/api/data", func(c *fiber.Ctx) error {
		result, ok := c.Locals(middleware.ResultKey).(*types.AnalysisResult)
		if !ok {
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"decision": "none"})
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"decision":    result.Decision,
			"total_score": result.TotalScore,
		})
	})
	return app
}

func bearerToken(t *testing.T) string {
	t.Helper()
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"jti": "req-1",
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tokenString
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	app := newTestApp(t, waf.Config{
		Mode:           types.ModeBlock,
		BlockThreshold: 80,
		Rules:          rules.Defaults(),
	})

	req := httptest.NewRequest("GET", "/api/data", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest("GET", "/api/data", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestMiddlewareAllowsLowRiskRequest(t *testing.T) {
	app := newTestApp(t, waf.Config{
		Mode:           types.ModeBlock,
		BlockThreshold: 80,
		Rules:          []rules.Rule{fixedScoreRule{score: 10}},
	})

	req := httptest.NewRequest("GET", "/api/data", nil)
	req.Header.Set("Authorization", "Bearer "+bearerToken(t))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "allow", body["decision"])
	assert.Equal(t, float64(10), body["total_score"])
}

func TestMiddlewareBlocksHighRiskRequest(t *testing.T) {
	app := newTestApp(t, waf.Config{
		Mode:           types.ModeBlock,
		BlockThreshold: 50,
		Rules:          []rules.Rule{fixedScoreRule{score: 90}},
	})

	req := httptest.NewRequest("GET", "/api/data", nil)
	req.Header.Set("Authorization", "Bearer "+bearerToken(t))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "block", body["decision"])
	assert.Equal(t, float64(90), body["total_score"])
}

func TestMiddlewareObserveModePassesThrough(t *testing.T) {
	app := newTestApp(t, waf.Config{
		Mode:           types.ModeObserve,
		BlockThreshold: 50,
		Rules:          []rules.Rule{fixedScoreRule{score: 90}},
	})

	req := httptest.NewRequest("GET", "/api/data", nil)
	req.Header.Set("Authorization", "Bearer "+bearerToken(t))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "observe", body["decision"])
}

func TestMiddlewareFailOpenOnEngineError(t *testing.T) {
	app := newTestApp(t, waf.Config{
		Mode:           types.ModeBlock,
		BlockThreshold: 50,
		Rules:          []rules.Rule{brokenRule{}},
		FailurePolicy:  waf.FailOpen,
	})

	req := httptest.NewRequest("GET", "/api/data", nil)
	req.Header.Set("Authorization", "Bearer "+bearerToken(t))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestMiddlewareFailClosedOnEngineError(t *testing.T) {
	app := newTestApp(t, waf.Config{
		Mode:           types.ModeBlock,
		BlockThreshold: 50,
		Rules:          []rules.Rule{brokenRule{}},
		FailurePolicy:  waf.FailClosed,
	})

	req := httptest.NewRequest("GET", "/api/data", nil)
	req.Header.Set("Authorization", "Bearer "+bearerToken(t))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func TestMiddlewareUsesForwardedForHeader(t *testing.T) {
	s := store.NewMemoryStore(0, nil)
	t.Cleanup(func() { _ = s.Close() })
	app := newTestApp(t, waf.Config{
		Mode:           types.ModeBlock,
		BlockThreshold: 80,
		Rules:          rules.Defaults(),
		Store:          s,
	})

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"jti": "req-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/data", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	// The expired-token counter is keyed by client address, so the forwarded
	// address proves which IP the middleware resolved.
	count, ok, err := s.Get(context.Background(), "waf:expired:198.51.100.7")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", count)
}
