package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/tokensentry/tokensentry/pkg/types"
	"github.com/tokensentry/tokensentry/pkg/waf"
)

// ResultKey is where the middleware stores the AnalysisResult in the fiber
// context for downstream handlers.
const ResultKey = "waf_result"

// WafMiddleware adapts the engine to fiber: it extracts the bearer token and
// client IP, runs the analysis, and maps the decision to an HTTP response.
// When the engine itself fails it honors the engine's failure policy:
// fail-open lets the request through, fail-closed returns 503.
type WafMiddleware struct {
	engine *waf.Engine
	logger *logrus.Logger
}

func NewWafMiddleware(engine *waf.Engine, logger *logrus.Logger) *WafMiddleware {
	return &WafMiddleware{engine: engine, logger: logger}
}

func (m *WafMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		bearerToken := extractBearerToken(c)
		if bearerToken == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing bearer token",
			})
		}

		req := types.RequestInfo{
			Token:     bearerToken,
			IP:        resolveClientIP(c),
			Path:      c.Path(),
			Method:    c.Method(),
			UserAgent: c.Get(fiber.HeaderUserAgent),
		}

		result, err := m.engine.AnalyzeRequest(c.UserContext(), req)
		if err != nil {
			m.logger.WithError(err).Error("waf analysis failed")
			if m.engine.FailurePolicy() == waf.FailClosed {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "request analysis unavailable",
				})
			}
			return c.Next()
		}

		c.Locals(ResultKey, result)

		if result.Decision == types.DecisionBlock {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"decision":    result.Decision,
				"total_score": result.TotalScore,
			})
		}
		return c.Next()
	}
}

func extractBearerToken(c *fiber.Ctx) string {
	auth := c.Get(fiber.HeaderAuthorization)
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// resolveClientIP prefers the first X-Forwarded-For entry, then X-Real-IP,
// then the transport-level peer address.
func resolveClientIP(c *fiber.Ctx) string {
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		first := strings.SplitN(xff, ",", 2)[0]
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(c.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	return c.IP()
}
