package waf

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tokensentry/tokensentry/pkg/rules"
	"github.com/tokensentry/tokensentry/pkg/store"
	"github.com/tokensentry/tokensentry/pkg/types"
)

// FailurePolicy decides what the HTTP adapter does when the engine itself
// fails. The reference behavior is fail-open: availability over detection.
type FailurePolicy string

const (
	FailOpen   FailurePolicy = "open"
	FailClosed FailurePolicy = "closed"
)

// Configuration errors, raised once at engine construction.
var (
	ErrNilConfig         = errors.New("waf: config is required")
	ErrMissingMode       = errors.New("waf: mode is required")
	ErrInvalidMode       = errors.New("waf: mode must be observe or block")
	ErrInvalidThreshold  = errors.New("waf: block threshold must be between 0 and 100")
	ErrUnnamedRule       = errors.New("waf: every rule requires a non-empty name")
	ErrDuplicateRuleName = errors.New("waf: duplicate rule name")
	ErrMissingStore      = errors.New("waf: store is required")
	ErrMissingSecret     = errors.New("waf: jwt secret is required when signature verification is enabled")
)

// Config is validated once at engine construction and read-only afterwards.
type Config struct {
	Mode           types.Mode
	BlockThreshold int
	// Rules are evaluated in declaration order. An empty set is valid and
	// scores every request at zero.
	Rules           []rules.Rule
	Store           store.Store
	VerifySignature bool
	JwtSecret       string
	Logger          *logrus.Logger
	Notifiers       []Notifier
	FailurePolicy   FailurePolicy
	// AnalysisTimeout bounds the store calls of one analysis. Zero disables
	// the deadline.
	AnalysisTimeout time.Duration
}

// Validate checks the configuration and fails on the first violation.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if c.Mode == "" {
		return ErrMissingMode
	}
	if c.Mode != types.ModeObserve && c.Mode != types.ModeBlock {
		return fmt.Errorf("%w, got %q", ErrInvalidMode, c.Mode)
	}
	if c.BlockThreshold < 0 || c.BlockThreshold > 100 {
		return fmt.Errorf("%w, got %d", ErrInvalidThreshold, c.BlockThreshold)
	}
	seen := make(map[string]struct{}, len(c.Rules))
	for _, rule := range c.Rules {
		name := rule.Name()
		if name == "" {
			return ErrUnnamedRule
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateRuleName, name)
		}
		seen[name] = struct{}{}
	}
	if c.Store == nil {
		return ErrMissingStore
	}
	if c.VerifySignature && c.JwtSecret == "" {
		return ErrMissingSecret
	}
	return nil
}
