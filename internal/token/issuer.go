// Package token mints the signed tokens conferencing tools expect when a
// participant opens an embedded conference room. Signing is purely local;
// no meeting-provider API is involved.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoSecret reports that token issuance is not configured.
var ErrNoSecret = errors.New("conference token secret not configured")

// Issuer signs HS256 conference tokens.
type Issuer struct {
	secret   string
	issuer   string
	audience string
	url      string
	validity time.Duration
	now      func() time.Time
}

// NewIssuer builds an issuer for the given conferencing deployment. An
// empty secret leaves issuance disabled.
func NewIssuer(secret, issuer, audience, url string) *Issuer {
	return &Issuer{
		secret:   secret,
		issuer:   issuer,
		audience: audience,
		url:      url,
		validity: 24 * time.Hour,
		now:      time.Now,
	}
}

// ConferenceToken signs a token admitting the holder into the named
// conference room, with the moderator claim set for room admins.
func (i *Issuer) ConferenceToken(conferenceRoom string, moderator bool) (string, error) {
	if i.secret == "" {
		return "", ErrNoSecret
	}
	now := i.now()
	claims := jwt.MapClaims{
		"aud":       i.audience,
		"iss":       i.issuer,
		"sub":       i.url,
		"room":      conferenceRoom,
		"moderator": moderator,
		"iat":       now.Unix(),
		"exp":       now.Add(i.validity).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.secret))
}
