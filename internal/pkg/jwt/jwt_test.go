package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &Manager{
		Generator: NewGenerator(priv, "mnetifi", "mnetifi-dashboard", "k1", time.Hour),
		Verifier:  NewVerifier(&priv.PublicKey, "mnetifi", "mnetifi-dashboard"),
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	m := newTestManager(t)

	tok, jti, err := m.Generator.GenerateAccessToken(Subject{IdentityID: 7, TenantID: 3, Roles: []string{RoleAdmin}, Device: "cli"})
	require.NoError(t, err)
	assert.NotEmpty(t, jti)

	claims, err := m.Verifier.VerifyAccessToken(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.IdentityID)
	assert.Equal(t, int64(3), claims.TenantID)
	assert.Equal(t, jti, claims.ID)
	assert.True(t, claims.IsAdmin())
	assert.False(t, claims.IsSuperAdmin())
}

func TestPurposeIsEnforced(t *testing.T) {
	m := newTestManager(t)

	refresh, _, err := m.Generator.GenerateRefreshToken(7, "cli")
	require.NoError(t, err)
	_, err = m.Verifier.VerifyAccessToken(refresh)
	assert.Error(t, err)

	challenge, _, err := m.Generator.GenerateTwoFactorChallenge(7, "cli")
	require.NoError(t, err)
	claims, err := m.Verifier.VerifyTwoFactorChallenge(challenge)
	require.NoError(t, err)
	assert.Equal(t, PurposeTwoFactor, claims.SessionPurpose)
}

func TestRejectsForeignIssuerAndExpiredTokens(t *testing.T) {
	m := newTestManager(t)
	other := newTestManager(t)

	tok, _, err := other.Generator.GenerateAccessToken(Subject{IdentityID: 1})
	require.NoError(t, err)
	_, err = m.Verifier.Verify(tok)
	assert.Error(t, err, "signed by a different key")

	expired, _, err := m.Generator.Generate(Subject{IdentityID: 1}, PurposeAccess, -time.Minute)
	require.NoError(t, err)
	_, err = m.Verifier.Verify(expired)
	assert.Error(t, err)
}

func TestParseKeys(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	gotPriv, err := ParseRSAPrivateKey(privPEM)
	require.NoError(t, err)
	assert.True(t, priv.Equal(gotPriv))

	gotPub, err := ParseRSAPublicKey(pubPEM)
	require.NoError(t, err)
	assert.True(t, priv.PublicKey.Equal(gotPub))

	_, err = ParseRSAPrivateKey([]byte("garbage"))
	assert.Error(t, err)
}

func pemPair(t *testing.T) (string, string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return string(privPEM), string(pubPEM)
}

func TestLoadAndBuildInlineKeys(t *testing.T) {
	privPEM, pubPEM := pemPair(t)

	m, err := LoadAndBuild(Config{PrivPEM: privPEM, PubPEM: pubPEM, Issuer: "mnetifi", Audience: "a", TTL: time.Hour, KID: "k"})
	require.NoError(t, err)
	tok, _, err := m.Generator.GenerateAccessToken(Subject{IdentityID: 2})
	require.NoError(t, err)
	_, err = m.Verifier.VerifyAccessToken(tok)
	assert.NoError(t, err)
}

func TestLoadAndBuildDerivesPublicKey(t *testing.T) {
	privPEM, _ := pemPair(t)
	m, err := LoadAndBuild(Config{PrivPEM: privPEM, Issuer: "mnetifi", Audience: "a", TTL: time.Hour})
	require.NoError(t, err)
	assert.NotNil(t, m.Verifier)
}

func TestLoadAndBuildRejectsMismatchedPair(t *testing.T) {
	privPEM, _ := pemPair(t)
	_, otherPub := pemPair(t)
	_, err := LoadAndBuild(Config{PrivPEM: privPEM, PubPEM: otherPub})
	assert.ErrorContains(t, err, "does not match")
}
