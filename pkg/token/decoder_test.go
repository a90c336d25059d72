package token_test

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokensentry/tokensentry/pkg/token"
)

const testSecret = "test-secret"

func signedToken(t *testing.T, claims jwt.MapClaims, secret string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return tok
}

func rawToken(t *testing.T, header, payload map[string]interface{}) string {
	t.Helper()
	headerJSON, err := json.Marshal(header)
	require.NoError(t, err)
	payloadJSON, err := json.Marshal(payload)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(headerJSON) +
		"." + base64.RawURLEncoding.EncodeToString(payloadJSON) +
		"." + base64.RawURLEncoding.EncodeToString([]byte("sig"))
}

func TestDecode_ValidSignedToken(t *testing.T) {
	tok := signedToken(t, jwt.MapClaims{
		"sub": "user-1",
		"jti": "token-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}, testSecret)

	result := token.Decode(tok, token.DecodeOptions{Verify: true, Secret: testSecret})

	assert.True(t, result.IsValid)
	assert.Empty(t, result.InvalidReason)
	sub, ok := result.Payload.Sub()
	require.True(t, ok)
	assert.Equal(t, "user-1", sub)
}

func TestDecode_WrongSecretKeepsPayload(t *testing.T) {
	tok := signedToken(t, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}, testSecret)

	result := token.Decode(tok, token.DecodeOptions{Verify: true, Secret: "wrong-secret"})

	assert.False(t, result.IsValid)
	assert.Contains(t, result.InvalidReason, "signature")
	sub, ok := result.Payload.Sub()
	require.True(t, ok)
	assert.Equal(t, "user-1", sub)
}

func TestDecode_ExpiredAlwaysEnforced(t *testing.T) {
	tok := signedToken(t, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	}, testSecret)

	for _, verify := range []bool{false, true} {
		result := token.Decode(tok, token.DecodeOptions{Verify: verify, Secret: testSecret})
		assert.False(t, result.IsValid, "verify=%v", verify)
		assert.Contains(t, result.InvalidReason, "expired", "verify=%v", verify)
		assert.NotNil(t, result.Payload, "verify=%v", verify)
	}
}

func TestDecode_NotYetValid(t *testing.T) {
	tok := signedToken(t, jwt.MapClaims{
		"sub": "user-1",
		"nbf": time.Now().Add(time.Hour).Unix(),
	}, testSecret)

	result := token.Decode(tok, token.DecodeOptions{Verify: true, Secret: testSecret})

	assert.False(t, result.IsValid)
	assert.Equal(t, token.ReasonNotYetValid, result.InvalidReason)
}

func TestDecode_MalformedStructure(t *testing.T) {
	for _, tok := range []string{"", "only-one-part", "two.parts", "a.b.c.d"} {
		result := token.Decode(tok, token.DecodeOptions{})
		assert.False(t, result.IsValid, "token %q", tok)
		assert.Equal(t, token.ReasonMalformed, result.InvalidReason, "token %q", tok)
		assert.Nil(t, result.Payload, "token %q", tok)
	}
}

func TestDecode_UnparsablePayload(t *testing.T) {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	result := token.Decode(header+".!!!not-base64!!!.sig", token.DecodeOptions{})

	assert.False(t, result.IsValid)
	assert.Equal(t, token.ReasonBadPayload, result.InvalidReason)
	assert.Nil(t, result.Payload)
}

func TestDecode_NoVerifyValidWithoutExp(t *testing.T) {
	tok := rawToken(t,
		map[string]interface{}{"alg": "HS256", "typ": "JWT"},
		map[string]interface{}{"sub": "user-1"},
	)

	result := token.Decode(tok, token.DecodeOptions{})

	assert.True(t, result.IsValid)
}

func TestDecode_SecretRequired(t *testing.T) {
	tok := signedToken(t, jwt.MapClaims{"sub": "user-1"}, testSecret)

	result := token.Decode(tok, token.DecodeOptions{Verify: true})

	assert.False(t, result.IsValid)
	assert.Equal(t, token.ReasonSecretRequired, result.InvalidReason)
	assert.NotNil(t, result.Payload)
}

func TestDecode_NoneAlgorithmRejected(t *testing.T) {
	tok := rawToken(t,
		map[string]interface{}{"alg": "none", "typ": "JWT"},
		map[string]interface{}{"sub": "user-1"},
	)

	result := token.Decode(tok, token.DecodeOptions{Verify: true, Secret: testSecret})

	assert.False(t, result.IsValid)
	assert.Contains(t, result.InvalidReason, "unsupported algorithm")
	assert.NotNil(t, result.Payload)
}

func TestDecodeAt_PinsExpiry(t *testing.T) {
	exp := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tok := signedToken(t, jwt.MapClaims{"exp": exp.Unix()}, testSecret)

	before := token.DecodeAt(tok, token.DecodeOptions{}, exp.Add(-time.Minute))
	assert.True(t, before.IsValid)

	after := token.DecodeAt(tok, token.DecodeOptions{}, exp.Add(time.Minute))
	assert.False(t, after.IsValid)
	assert.Contains(t, after.InvalidReason, "expired")
}

func TestDecodeHeader(t *testing.T) {
	tok := signedToken(t, jwt.MapClaims{"sub": "user-1"}, testSecret)

	header, err := token.DecodeHeader(tok)
	require.NoError(t, err)
	assert.Equal(t, "HS256", header["alg"])

	_, err = token.DecodeHeader("garbage")
	assert.Error(t, err)
}

func TestIsSafeAlgorithm(t *testing.T) {
	assert.True(t, token.IsSafeAlgorithm("HS256"))
	assert.True(t, token.IsSafeAlgorithm("ES512"))
	assert.False(t, token.IsSafeAlgorithm("none"))
	assert.False(t, token.IsSafeAlgorithm(""))
	assert.False(t, token.IsSafeAlgorithm("HS1024"))
}
