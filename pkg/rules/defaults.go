package rules

// Defaults returns the full rule set with reference configuration, in the
// order the engine evaluates them.
func Defaults() []Rule {
	return []Rule{
		NewExpiredTokenFlood(nil),
		NewInvalidSignatureSpike(nil),
		NewRefreshEndpointAbuse(nil),
		NewPrivilegeEndpointWeighting(nil),
		NewMultiIPTokenUse(nil),
		NewTokenReplayDetection(nil),
		NewAlgorithmConfusion(nil),
		NewHeaderForgery(nil),
		NewBlacklistToken(nil),
	}
}
