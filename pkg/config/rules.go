package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/tokensentry/tokensentry/pkg/rules"
)

// ruleSettings is the wire shape of one rule's override block. Window is a
// duration string ("60s", "5m"); zero-valued fields keep the rule defaults.
type ruleSettings struct {
	Enabled   *bool    `mapstructure:"enabled"`
	Window    string   `mapstructure:"window"`
	Threshold int64    `mapstructure:"threshold"`
	Score     int      `mapstructure:"score"`
	Paths     []string `mapstructure:"paths"`
}

// BuildRules constructs the full rule set, applying any per-rule overrides
// from the config map. Unknown rule names are rejected so typos fail at
// startup instead of silently keeping defaults.
func BuildRules(overrides map[string]map[string]interface{}) ([]rules.Rule, error) {
	settings := make(map[string]ruleSettings, len(overrides))
	for name, raw := range overrides {
		var s ruleSettings
		if err := mapstructure.Decode(raw, &s); err != nil {
			return nil, fmt.Errorf("invalid settings for rule %q: %w", name, err)
		}
		settings[name] = s
	}

	builders := map[string]func(ruleSettings) (rules.Rule, error){
		"expired_token_flood": func(s ruleSettings) (rules.Rule, error) {
			window, err := parseWindow(s.Window)
			if err != nil {
				return nil, err
			}
			return rules.NewExpiredTokenFlood(&rules.ExpiredTokenFloodConfig{
				Window: window, Threshold: s.Threshold, Score: s.Score,
			}), nil
		},
		"invalid_signature_spike": func(s ruleSettings) (rules.Rule, error) {
			window, err := parseWindow(s.Window)
			if err != nil {
				return nil, err
			}
			return rules.NewInvalidSignatureSpike(&rules.InvalidSignatureSpikeConfig{
				Window: window, Threshold: s.Threshold, Score: s.Score,
			}), nil
		},
		"refresh_endpoint_abuse": func(s ruleSettings) (rules.Rule, error) {
			window, err := parseWindow(s.Window)
			if err != nil {
				return nil, err
			}
			return rules.NewRefreshEndpointAbuse(&rules.RefreshEndpointAbuseConfig{
				Window: window, Threshold: s.Threshold, Score: s.Score, Paths: s.Paths,
			}), nil
		},
		"privilege_endpoint_weighting": func(s ruleSettings) (rules.Rule, error) {
			return rules.NewPrivilegeEndpointWeighting(&rules.PrivilegeEndpointConfig{
				Score: s.Score, Paths: s.Paths,
			}), nil
		},
		"multi_ip_token_use": func(s ruleSettings) (rules.Rule, error) {
			window, err := parseWindow(s.Window)
			if err != nil {
				return nil, err
			}
			return rules.NewMultiIPTokenUse(&rules.MultiIPTokenUseConfig{
				Window: window, Threshold: int(s.Threshold), Score: s.Score,
			}), nil
		},
		"token_replay_detection": func(s ruleSettings) (rules.Rule, error) {
			window, err := parseWindow(s.Window)
			if err != nil {
				return nil, err
			}
			return rules.NewTokenReplayDetection(&rules.TokenReplayConfig{
				Window: window, Threshold: s.Threshold, Score: s.Score,
			}), nil
		},
		"algorithm_confusion": func(s ruleSettings) (rules.Rule, error) {
			window, err := parseWindow(s.Window)
			if err != nil {
				return nil, err
			}
			return rules.NewAlgorithmConfusion(&rules.AlgorithmConfusionConfig{
				Window: window, Threshold: s.Threshold, Score: s.Score,
			}), nil
		},
		"header_forgery": func(s ruleSettings) (rules.Rule, error) {
			window, err := parseWindow(s.Window)
			if err != nil {
				return nil, err
			}
			return rules.NewHeaderForgery(&rules.HeaderForgeryConfig{
				Window: window, Threshold: s.Threshold, Score: s.Score,
			}), nil
		},
		"blacklist_token": func(s ruleSettings) (rules.Rule, error) {
			return rules.NewBlacklistToken(&rules.BlacklistTokenConfig{Score: s.Score}), nil
		},
	}

	for name := range settings {
		if _, known := builders[name]; !known {
			return nil, fmt.Errorf("unknown rule %q in config", name)
		}
	}

	order := []string{
		"expired_token_flood",
		"invalid_signature_spike",
		"refresh_endpoint_abuse",
		"privilege_endpoint_weighting",
		"multi_ip_token_use",
		"token_replay_detection",
		"algorithm_confusion",
		"header_forgery",
		"blacklist_token",
	}

	ruleSet := make([]rules.Rule, 0, len(order))
	for _, name := range order {
		s := settings[name]
		rule, err := builders[name](s)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", name, err)
		}
		if s.Enabled != nil {
			type toggler interface{ SetEnabled(bool) }
			if t, ok := rule.(toggler); ok {
				t.SetEnabled(*s.Enabled)
			}
		}
		ruleSet = append(ruleSet, rule)
	}
	return ruleSet, nil
}

func parseWindow(window string) (time.Duration, error) {
	if window == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(window)
	if err != nil {
		return 0, fmt.Errorf("invalid window %q: %w", window, err)
	}
	return d, nil
}
