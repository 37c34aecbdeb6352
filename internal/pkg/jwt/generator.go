// internal/pkg/jwt/generator.go
package jwt

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

const (
	refreshTTL   = 30 * 24 * time.Hour
	twoFactorTTL = 5 * time.Minute
)

type Generator struct {
	priv     *rsa.PrivateKey
	issuer   string
	audience string
	kid      string
	TTL      time.Duration
}

func NewGenerator(priv *rsa.PrivateKey, issuer, audience, kid string, ttl time.Duration) *Generator {
	return &Generator{
		priv:     priv,
		issuer:   issuer,
		audience: audience,
		kid:      kid,
		TTL:      ttl,
	}
}

// Subject identifies who a token is issued to.
type Subject struct {
	IdentityID int64
	TenantID   int64
	Roles      []string
	Device     string
}

// Generate signs a token for purpose and returns it with its jti.
func (g *Generator) Generate(sub Subject, purpose string, ttl time.Duration) (string, string, error) {
	if g.priv == nil {
		return "", "", fmt.Errorf("jwt generator has nil private key")
	}

	now := time.Now()
	jti := ulid.Make().String()

	claims := &Claims{
		IdentityID:     sub.IdentityID,
		TenantID:       sub.TenantID,
		Roles:          sub.Roles,
		Device:         sub.Device,
		SessionPurpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.issuer,
			Subject:   fmt.Sprintf("%d", sub.IdentityID),
			Audience:  []string{g.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        jti,
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if g.kid != "" {
		tok.Header["kid"] = g.kid
	}

	signed, err := tok.SignedString(g.priv)
	return signed, jti, err
}

func (g *Generator) GenerateAccessToken(sub Subject) (string, string, error) {
	return g.Generate(sub, PurposeAccess, g.TTL)
}

// GenerateRefreshToken carries identity only; roles are reloaded on refresh.
func (g *Generator) GenerateRefreshToken(identityID int64, device string) (string, string, error) {
	return g.Generate(Subject{IdentityID: identityID, Device: device}, PurposeRefresh, refreshTTL)
}

// GenerateTwoFactorChallenge issues the short-lived token exchanged for a
// session once the TOTP code is verified.
func (g *Generator) GenerateTwoFactorChallenge(identityID int64, device string) (string, string, error) {
	return g.Generate(Subject{IdentityID: identityID, Device: device}, PurposeTwoFactor, twoFactorTTL)
}
