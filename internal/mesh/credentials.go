// Package mesh issues the short-lived credentials peers present to the
// media relay when bringing up a mesh link. The scheme is the relay's
// shared-secret convention: the username is "expiry:participantID" and the
// password is the base64 HMAC-SHA1 of the username under the shared
// secret, so either peer (or the relay) can regenerate and verify a
// credential without a round trip.
package mesh

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Credentials is one ephemeral username/password pair.
type Credentials struct {
	Username string
	Password string
}

// Issuer derives credentials from a shared secret with a fixed forward
// validity window.
type Issuer struct {
	secret string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer builds an issuer. An empty secret disables issuance: Issue
// returns zero credentials and Enabled reports false.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 4 * time.Hour
	}
	return &Issuer{secret: secret, ttl: ttl, now: time.Now}
}

// Enabled reports whether a shared secret is configured.
func (i *Issuer) Enabled() bool { return i.secret != "" }

// Issue derives credentials for one participant, valid from now until the
// issuer's window elapses.
func (i *Issuer) Issue(participantID int32) Credentials {
	if i.secret == "" {
		return Credentials{}
	}
	expiry := i.now().Add(i.ttl).Unix()
	username := fmt.Sprintf("%d:%d", expiry, participantID)
	return Credentials{Username: username, Password: i.sign(username)}
}

// Verify checks a presented pair: the password must match the username's
// signature and the embedded expiry must be in the future.
func (i *Issuer) Verify(creds Credentials) bool {
	if i.secret == "" || creds.Username == "" {
		return false
	}
	if !hmac.Equal([]byte(i.sign(creds.Username)), []byte(creds.Password)) {
		return false
	}
	expiryField, _, ok := strings.Cut(creds.Username, ":")
	if !ok {
		return false
	}
	expiry, err := strconv.ParseInt(expiryField, 10, 64)
	if err != nil {
		return false
	}
	return i.now().Unix() < expiry
}

func (i *Issuer) sign(username string) string {
	mac := hmac.New(sha1.New, []byte(i.secret))
	mac.Write([]byte(username))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
