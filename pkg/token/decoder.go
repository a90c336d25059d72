package token

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tokensentry/tokensentry/pkg/types"
)

// Invalid reasons reported by Decode. Rules match on these by substring, so
// the wording is part of the contract.
const (
	ReasonMalformed      = "malformed token structure"
	ReasonBadPayload     = "unparsable token payload"
	ReasonExpired        = "token expired"
	ReasonNotYetValid    = "token not yet valid"
	ReasonSecretRequired = "secret required for verification"
	ReasonBadSignature   = "signature mismatch"
	ReasonBadHeader      = "unparsable token header"
)

// DecodeOptions controls signature verification. When Verify is false the
// expiry claim is still enforced.
type DecodeOptions struct {
	Verify bool
	Secret string
}

// DecodeResult always carries whatever payload was structurally extractable,
// even when the token is invalid. Scoring unverified traffic is the point:
// the rules need claims out of forged and expired tokens.
type DecodeResult struct {
	Payload       types.JwtPayload
	Header        map[string]interface{}
	IsValid       bool
	InvalidReason string
}

var segmentDecoder = jwt.NewParser()

// Decode safely parses a JWT. It never panics: any unexpected failure is
// converted into an invalid result with a reason string.
func Decode(tokenString string, opts DecodeOptions) (result DecodeResult) {
	defer func() {
		if r := recover(); r != nil {
			result = DecodeResult{InvalidReason: fmt.Sprintf("decode failure: %v", r)}
		}
	}()
	return decode(tokenString, opts, time.Now())
}

// DecodeAt is Decode with an explicit clock, used by tests to pin expiry
// checks.
func DecodeAt(tokenString string, opts DecodeOptions, now time.Time) (result DecodeResult) {
	defer func() {
		if r := recover(); r != nil {
			result = DecodeResult{InvalidReason: fmt.Sprintf("decode failure: %v", r)}
		}
	}()
	return decode(tokenString, opts, now)
}

func decode(tokenString string, opts DecodeOptions, now time.Time) DecodeResult {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return DecodeResult{InvalidReason: ReasonMalformed}
	}

	payloadBytes, err := segmentDecoder.DecodeSegment(parts[1])
	if err != nil {
		return DecodeResult{InvalidReason: ReasonBadPayload}
	}
	var payload types.JwtPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return DecodeResult{InvalidReason: ReasonBadPayload}
	}

	header, _ := DecodeHeader(tokenString)

	result := DecodeResult{Payload: payload, Header: header}

	if !opts.Verify {
		if expired(payload, now) {
			result.InvalidReason = ReasonExpired
			return result
		}
		result.IsValid = true
		return result
	}

	if opts.Secret == "" {
		result.InvalidReason = ReasonSecretRequired
		return result
	}

	if header == nil {
		result.InvalidReason = ReasonBadHeader
		return result
	}
	alg, _ := header["alg"].(string)
	if alg != SigningAlgorithm {
		result.InvalidReason = fmt.Sprintf("unsupported algorithm %q", alg)
		return result
	}

	sig, err := segmentDecoder.DecodeSegment(parts[2])
	if err != nil {
		result.InvalidReason = ReasonBadSignature
		return result
	}
	signingString := parts[0] + "." + parts[1]
	if err := jwt.SigningMethodHS256.Verify(signingString, sig, []byte(opts.Secret)); err != nil {
		result.InvalidReason = ReasonBadSignature
		return result
	}

	if expired(payload, now) {
		result.InvalidReason = ReasonExpired
		return result
	}
	if notYetValid(payload, now) {
		result.InvalidReason = ReasonNotYetValid
		return result
	}

	result.IsValid = true
	return result
}

// DecodeHeader extracts the token's header segment without any validation.
// The forgery and algorithm-confusion rules inspect headers of tokens that
// may not even survive payload decoding.
func DecodeHeader(tokenString string) (map[string]interface{}, error) {
	parts := strings.SplitN(tokenString, ".", 3)
	if len(parts) < 2 || parts[0] == "" {
		return nil, fmt.Errorf("%s", ReasonMalformed)
	}
	headerBytes, err := segmentDecoder.DecodeSegment(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ReasonBadHeader, err)
	}
	var header map[string]interface{}
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("%s: %w", ReasonBadHeader, err)
	}
	return header, nil
}

func expired(payload types.JwtPayload, now time.Time) bool {
	exp, ok := payload.NumericClaim("exp")
	if !ok {
		return false
	}
	return now.Unix() >= exp
}

func notYetValid(payload types.JwtPayload, now time.Time) bool {
	nbf, ok := payload.NumericClaim("nbf")
	if !ok {
		return false
	}
	return now.Unix() < nbf
}
