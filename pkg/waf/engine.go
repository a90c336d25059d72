package waf

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tokensentry/tokensentry/pkg/metrics"
	"github.com/tokensentry/tokensentry/pkg/rules"
	"github.com/tokensentry/tokensentry/pkg/token"
	"github.com/tokensentry/tokensentry/pkg/types"
)

// Engine orchestrates decoding, event construction, sequential rule
// evaluation, score aggregation and decision resolution. It is immutable
// after construction and safe for concurrent use; the store is the only
// shared mutable state and owns its own atomicity.
type Engine struct {
	cfg          Config
	logger       *logrus.Logger
	timeProvider func() time.Time
	uuidProvider func() uuid.UUID
}

type EngineOpts struct {
	TimeProvider func() time.Time
	UuidProvider func() uuid.UUID
}

// NewEngine validates the configuration and fails fast on the first
// violation.
func NewEngine(cfg Config, opts *EngineOpts) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = FailOpen
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	timeProvider := time.Now
	uuidProvider := uuid.New
	if opts != nil {
		if opts.TimeProvider != nil {
			timeProvider = opts.TimeProvider
		}
		if opts.UuidProvider != nil {
			uuidProvider = opts.UuidProvider
		}
	}

	engine := &Engine{
		cfg:          cfg,
		logger:       logger,
		timeProvider: timeProvider,
		uuidProvider: uuidProvider,
	}

	logger.WithFields(logrus.Fields{
		"mode":             cfg.Mode,
		"block_threshold":  cfg.BlockThreshold,
		"rules":            len(cfg.Rules),
		"verify_signature": cfg.VerifySignature,
		"failure_policy":   cfg.FailurePolicy,
	}).Info("waf engine initialized")

	return engine, nil
}

// FailurePolicy exposes the configured policy to the HTTP adapter.
func (e *Engine) FailurePolicy() FailurePolicy {
	return e.cfg.FailurePolicy
}

// AnalyzeRequest decodes the bearer token, builds the risk event and
// delegates to Analyze.
func (e *Engine) AnalyzeRequest(ctx context.Context, req types.RequestInfo) (*types.AnalysisResult, error) {
	dec := token.Decode(req.Token, token.DecodeOptions{
		Verify: e.cfg.VerifySignature,
		Secret: e.cfg.JwtSecret,
	})
	event := BuildRiskEvent(req, dec, e.timeProvider())
	return e.Analyze(ctx, event)
}

// Analyze runs every enabled rule in declaration order, sums the scores and
// resolves the decision. Individual rule failures degrade to zero-score
// results; only a failure of the batch itself surfaces as an EngineError.
func (e *Engine) Analyze(ctx context.Context, event *types.RiskEvent) (result *types.AnalysisResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.EngineFailuresTotal.Inc()
			result = nil
			err = newEngineError("engine_failure", http.StatusInternalServerError,
				"analysis aborted", fmt.Errorf("%v", r))
			e.logger.WithField("panic", fmt.Sprintf("%v", r)).Error("waf analysis aborted")
		}
	}()

	if e.cfg.AnalysisTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.AnalysisTimeout)
		defer cancel()
	}

	totalScore := 0
	ruleResults := make([]types.RuleResult, 0, len(e.cfg.Rules))
	for _, rule := range e.cfg.Rules {
		if !rule.Enabled() {
			continue
		}
		res := e.runRule(ctx, rule, event)
		ruleResults = append(ruleResults, res)
		totalScore += res.Score
		if res.Score > 0 {
			metrics.RuleTriggersTotal.WithLabelValues(res.RuleName).Inc()
			e.logger.WithFields(logrus.Fields{
				"rule":   res.RuleName,
				"score":  res.Score,
				"reason": res.Reason,
				"ip":     event.IP,
				"path":   event.Path,
			}).Warn("rule triggered")
		}
	}

	decision := e.resolveDecision(totalScore)
	result = &types.AnalysisResult{
		ID:          e.uuidProvider().String(),
		Decision:    decision,
		TotalScore:  totalScore,
		RuleResults: ruleResults,
		Timestamp:   e.timeProvider(),
	}

	metrics.AnalysesTotal.WithLabelValues(string(decision)).Inc()
	metrics.RiskScore.Observe(float64(totalScore))

	e.logger.WithFields(logrus.Fields{
		"analysis_id": result.ID,
		"decision":    decision,
		"total_score": totalScore,
		"ip":          event.IP,
		"path":        event.Path,
	}).Info("analysis completed")

	if decision == types.DecisionBlock {
		e.notifyAll(NotificationEvent{
			Type:     "request_blocked",
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("blocked request from %s to %s", event.IP, event.Path),
			Details: map[string]interface{}{
				"analysis_id": result.ID,
				"total_score": totalScore,
				"ip":          event.IP,
				"path":        event.Path,
			},
		})
	} else if totalScore >= e.cfg.BlockThreshold && e.cfg.Mode == types.ModeObserve {
		e.logger.WithFields(logrus.Fields{
			"total_score":     totalScore,
			"block_threshold": e.cfg.BlockThreshold,
			"ip":              event.IP,
		}).Warn("threshold exceeded in observe mode")
		e.notifyAll(NotificationEvent{
			Type:     "high_risk_observed",
			Severity: SeverityWarning,
			Message:  fmt.Sprintf("high-risk request from %s to %s observed", event.IP, event.Path),
			Details: map[string]interface{}{
				"analysis_id": result.ID,
				"total_score": totalScore,
				"ip":          event.IP,
				"path":        event.Path,
			},
		})
	}

	return result, nil
}

// runRule isolates one rule invocation: a panic inside Analyze becomes a
// zero-score result instead of aborting the batch.
func (e *Engine) runRule(ctx context.Context, rule rules.Rule, event *types.RiskEvent) (res types.RuleResult) {
	defer func() {
		if r := recover(); r != nil {
			res = types.RuleResult{
				RuleName: rule.Name(),
				Score:    0,
				Reason:   fmt.Sprintf("rule error: %v", r),
			}
			e.logger.WithFields(logrus.Fields{
				"rule":  rule.Name(),
				"panic": fmt.Sprintf("%v", r),
			}).Error("rule execution failed")
		}
	}()
	return rule.Analyze(ctx, event, e.cfg.Store)
}

func (e *Engine) resolveDecision(totalScore int) types.Decision {
	if e.cfg.Mode == types.ModeObserve {
		return types.DecisionObserve
	}
	if totalScore >= e.cfg.BlockThreshold {
		return types.DecisionBlock
	}
	return types.DecisionAllow
}
