package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/tokensentry/tokensentry/internal/logger"
	"github.com/tokensentry/tokensentry/pkg/config"
	"github.com/tokensentry/tokensentry/pkg/metrics"
	"github.com/tokensentry/tokensentry/pkg/middleware"
	"github.com/tokensentry/tokensentry/pkg/notifier"
	"github.com/tokensentry/tokensentry/pkg/store"
	"github.com/tokensentry/tokensentry/pkg/types"
	"github.com/tokensentry/tokensentry/pkg/version"
	"github.com/tokensentry/tokensentry/pkg/waf"
)

func main() {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Println("no .env file found, using system environment variables")
	}

	logr := logger.NewLogger()

	if err := config.Load("./config"); err != nil {
		logr.Fatalf("failed to load config: %v", err)
	}
	cfg := config.GetConfig()

	wafStore, err := buildStore(cfg, logr)
	if err != nil {
		logr.Fatalf("failed to initialize store: %v", err)
	}
	defer wafStore.Close()

	ruleSet, err := config.BuildRules(cfg.Waf.Rules)
	if err != nil {
		logr.Fatalf("failed to build rules: %v", err)
	}

	var notifiers []waf.Notifier
	if cfg.Notifiers.WebhookURL != "" {
		notifiers = append(notifiers, notifier.NewWebhookNotifier(
			"webhook", cfg.Notifiers.WebhookURL, cfg.Notifiers.WebhookHeaders, nil,
		))
	}
	if cfg.Notifiers.Console || len(notifiers) == 0 {
		notifiers = append(notifiers, notifier.NewConsoleNotifier(logr))
	}

	analysisTimeout, err := cfg.Waf.ParsedAnalysisTimeout()
	if err != nil {
		logr.Fatalf("invalid waf config: %v", err)
	}

	engine, err := waf.NewEngine(waf.Config{
		Mode:            types.Mode(cfg.Waf.Mode),
		BlockThreshold:  cfg.Waf.BlockThreshold,
		Rules:           ruleSet,
		Store:           wafStore,
		VerifySignature: cfg.Waf.VerifySignature,
		JwtSecret:       cfg.Waf.JwtSecret,
		Logger:          logr,
		Notifiers:       notifiers,
		FailurePolicy:   waf.FailurePolicy(cfg.Waf.FailurePolicy),
		AnalysisTimeout: analysisTimeout,
	}, nil)
	if err != nil {
		logr.Fatalf("failed to initialize waf engine: %v", err)
	}

	wafMiddleware := middleware.NewWafMiddleware(engine, logr)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	app.Get("/version", func(c *fiber.Ctx) error {
		return c.JSON(version.GetInfo())
	})
	app.Use(wafMiddleware.Middleware())
	app.All("/*", func(c *fiber.Ctx) error {
		result, _ := c.Locals(middleware.ResultKey).(*types.AnalysisResult)
		body := fiber.Map{"path": c.Path(), "method": c.Method()}
		if result != nil {
			body["decision"] = result.Decision
			body["total_score"] = result.TotalScore
		}
		return c.JSON(body)
	})

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		logr.WithField("addr", addr).Info("gateway listening")
		if err := app.Listen(addr); err != nil {
			logr.WithError(err).Error("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logr.Info("shutting down")
	if err := app.Shutdown(); err != nil {
		logr.WithError(err).Error("shutdown failed")
	}
}

func buildStore(cfg *config.Config, logr *logrus.Logger) (store.Store, error) {
	if cfg.Waf.Store == "redis" {
		return store.NewRedisStore(store.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logr)
	}
	sweepInterval, err := cfg.Waf.ParsedSweepInterval()
	if err != nil {
		return nil, err
	}
	return store.NewMemoryStore(sweepInterval, nil), nil
}
