package service

import (
	"time"

	jose "github.com/go-jose/go-jose/v3"
	josejwt "github.com/go-jose/go-jose/v3/jwt"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"

	"github.com/insptop/inspirer-foundation/internal/auth/entity"
)

// AccessClaims are carried by access tokens.
type AccessClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// Tokens issues the tokens handed to relying parties. Access tokens are HS256
// JWTs keyed with the application's secret, so only the service and the
// application can verify them. ID tokens are signed with the service key and
// verifiable by anyone through the JWKS endpoint.
type Tokens struct {
	signer jose.Signer
	now    func() time.Time
}

func NewTokens(signer jose.Signer) *Tokens {
	return &Tokens{signer: signer, now: time.Now}
}

// AccessToken issues a token for user to access app.
func (t *Tokens) AccessToken(app *entity.Application, user *entity.User, scope string, ttl time.Duration) (string, error) {
	now := t.now()
	claims := AccessClaims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.UUID.String(),
			Audience:  jwt.ClaimStrings{app.UUID.String()},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(app.Secret)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign access token")
	}
	return s, nil
}

// ParseAccessToken verifies an access token issued for app.
func (t *Tokens) ParseAccessToken(app *entity.Application, token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return app.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(app.UUID.String()),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// IDToken issues an ID token asserting user's identity to app. scopes select
// the profile claims included.
//
// https://openid.net/specs/openid-connect-core-1_0.html#IDToken
func (t *Tokens) IDToken(issuer string, app *entity.Application, user *entity.User, nonce string, scopes []string, ttl time.Duration) (string, error) {
	now := t.now()
	std := josejwt.Claims{
		Issuer:   issuer,
		Subject:  user.UUID.String(),
		Audience: josejwt.Audience{app.UUID.String()},
		IssuedAt: josejwt.NewNumericDate(now),
		Expiry:   josejwt.NewNumericDate(now.Add(ttl)),
	}

	profile := user.Profile.Claims(scopes)
	delete(profile, "sub")
	if nonce != "" {
		profile["nonce"] = nonce
	}

	s, err := josejwt.Signed(t.signer).Claims(std).Claims(profile).CompactSerialize()
	if err != nil {
		return "", errors.Wrap(err, "failed to sign id token")
	}
	return s, nil
}
