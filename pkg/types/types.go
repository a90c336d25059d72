package types

import (
	"time"
)

// Mode controls how the engine resolves a decision from the total score.
type Mode string

const (
	ModeObserve Mode = "observe"
	ModeBlock   Mode = "block"
)

// Decision is the three-valued outcome of an analysis.
type Decision string

const (
	DecisionAllow   Decision = "allow"
	DecisionObserve Decision = "observe"
	DecisionBlock   Decision = "block"
)

// RequestInfo carries the request attributes extracted by the HTTP adapter.
type RequestInfo struct {
	Token     string `json:"token"`
	IP        string `json:"ip"`
	Path      string `json:"path"`
	Method    string `json:"method"`
	UserAgent string `json:"user_agent,omitempty"`
}

// JwtPayload is the open claim set decoded from a token. Reserved claims
// (sub, iss, aud, exp, iat, nbf, jti) are accessed through the helpers below;
// every other key is opaque to the engine.
type JwtPayload map[string]interface{}

// StringClaim returns the named claim when it is a non-empty string.
func (p JwtPayload) StringClaim(name string) (string, bool) {
	if p == nil {
		return "", false
	}
	v, ok := p[name].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// NumericClaim returns the named claim as epoch seconds. JSON numbers decode
// as float64; integer-typed values are accepted for callers that build
// payloads programmatically.
func (p JwtPayload) NumericClaim(name string) (int64, bool) {
	if p == nil {
		return 0, false
	}
	switch v := p[name].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// Jti returns the token's JWT ID claim.
func (p JwtPayload) Jti() (string, bool) {
	return p.StringClaim("jti")
}

// Sub returns the token's subject claim.
func (p JwtPayload) Sub() (string, bool) {
	return p.StringClaim("sub")
}

// RiskEvent is the normalized record all rules evaluate. It is built once per
// request and never mutated afterwards.
type RiskEvent struct {
	Token         string                 `json:"token"`
	Payload       JwtPayload             `json:"payload,omitempty"`
	IsValid       bool                   `json:"is_valid"`
	InvalidReason string                 `json:"invalid_reason,omitempty"`
	IP            string                 `json:"ip"`
	Path          string                 `json:"path"`
	Method        string                 `json:"method"`
	UserAgent     string                 `json:"user_agent,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// RuleResult is produced fresh by every rule invocation.
type RuleResult struct {
	RuleName string                 `json:"rule_name"`
	Score    int                    `json:"score"`
	Reason   string                 `json:"reason"`
	Details  map[string]interface{} `json:"details,omitempty"`
}

// AnalysisResult is the engine's verdict for one request. TotalScore is the
// exact sum of the rule scores; each rule bakes its own weight into the score
// it returns, so no further weighting happens at aggregation time.
type AnalysisResult struct {
	ID          string       `json:"id"`
	Decision    Decision     `json:"decision"`
	TotalScore  int          `json:"total_score"`
	RuleResults []RuleResult `json:"rule_results"`
	Timestamp   time.Time    `json:"timestamp"`
}
