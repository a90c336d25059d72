package token

// SigningAlgorithm is the only algorithm accepted for signature verification.
const SigningAlgorithm = "HS256"

// SafeAlgorithms is the allowlist shared between the decoder and the
// algorithm-confusion rule, so the two checks cannot drift apart. Anything
// outside this set, including "none", is treated as hostile.
var SafeAlgorithms = map[string]struct{}{
	"HS256": {},
	"HS384": {},
	"HS512": {},
	"RS256": {},
	"RS384": {},
	"RS512": {},
	"ES256": {},
	"ES384": {},
	"ES512": {},
}

// IsSafeAlgorithm reports whether alg is in the allowlist.
func IsSafeAlgorithm(alg string) bool {
	_, ok := SafeAlgorithms[alg]
	return ok
}
