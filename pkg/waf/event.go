package waf

import (
	"fmt"
	"time"

	"github.com/avct/uasurfer"

	"github.com/tokensentry/tokensentry/pkg/token"
	"github.com/tokensentry/tokensentry/pkg/types"
)

// BuildRiskEvent combines the decode result with the request metadata into
// the one record every rule evaluates. The event is never mutated after this
// call.
func BuildRiskEvent(req types.RequestInfo, dec token.DecodeResult, now time.Time) *types.RiskEvent {
	return &types.RiskEvent{
		Token:         req.Token,
		Payload:       dec.Payload,
		IsValid:       dec.IsValid,
		InvalidReason: dec.InvalidReason,
		IP:            req.IP,
		Path:          req.Path,
		Method:        req.Method,
		UserAgent:     req.UserAgent,
		Timestamp:     now,
		Metadata:      userAgentMetadata(req.UserAgent),
	}
}

// userAgentMetadata annotates the event with the parsed user agent. The
// rules don't consume it; it feeds log and notification context.
func userAgentMetadata(uaString string) map[string]interface{} {
	if uaString == "" {
		return nil
	}
	ua := uasurfer.Parse(uaString)
	return map[string]interface{}{
		"browser":     fmt.Sprintf("%s %d.%d", ua.Browser.Name.String(), ua.Browser.Version.Major, ua.Browser.Version.Minor),
		"os":          ua.OS.Name.String(),
		"device_type": ua.DeviceType.String(),
		"is_bot":      ua.IsBot(),
	}
}
