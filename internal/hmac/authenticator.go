// Package hmac implements the request authentication scheme of spec
// §4.1: HMAC-SHA256 signing and verification with timestamp-skew
// protection. Stateless over a fixed secret unless a nonce cache is
// attached with UseNonceCache.
package hmac

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strconv"
	"time"

	"github.com/kuiperzone/implink/internal/noncecache"
)

const defaultAllowedSkewSec = 30

// Header names of spec §6.
const (
	HeaderTimestamp = "IMP_TIMESTAMP"
	HeaderNonce     = "IMP_NONCE"
	HeaderSign      = "IMP_SIGN"
	HeaderAPI       = "IMP_API"
)

// HeaderGetter abstracts http.Header / map[string]string lookups so
// callers outside net/http can verify too.
type HeaderGetter interface {
	Get(key string) string
}

// Authenticator signs and verifies requests with a fixed secret.
type Authenticator struct {
	secret         []byte
	allowedSkewSec int64
	now            func() time.Time // overridable for tests

	nonceCache *noncecache.Cache
	cacheID    string
}

// New builds an Authenticator. An empty secret disables verification
// unconditionally, per spec §4.1.
func New(secret []byte, allowedSkewSec int) *Authenticator {
	skew := int64(allowedSkewSec)
	if skew <= 0 {
		skew = defaultAllowedSkewSec
	}
	return &Authenticator{secret: secret, allowedSkewSec: skew, now: time.Now}
}

// UseNonceCache opts this Authenticator into the §4.10 anti-replay
// extension: Verify will reject a (cacheID, nonce) pair it has already
// seen. cacheID scopes the shared cache to this Authenticator's own
// secret (e.g. a route or client id) so distinct secrets never collide
// on the same nonce value.
func (a *Authenticator) UseNonceCache(cache *noncecache.Cache, cacheID string) {
	a.nonceCache = cache
	a.cacheID = cacheID
}

// Sign produces the timestamp, nonce and signature for body.
func (a *Authenticator) Sign(body []byte) (timestamp, nonce, signature string, err error) {
	timestamp = strconv.FormatInt(a.now().UTC().Unix(), 10)

	raw := make([]byte, 16)
	if _, err = rand.Read(raw); err != nil {
		return "", "", "", err
	}
	nonce = base64.StdEncoding.EncodeToString(raw)

	signature = a.sign(timestamp, nonce, body)
	return timestamp, nonce, signature, nil
}

func (a *Authenticator) sign(timestamp, nonce string, body []byte) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte(nonce))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks headers and body against the fixed secret. It returns
// an empty reason on success, or a specific failure reason otherwise.
// Verification is unconditionally accepted when the secret is empty.
func (a *Authenticator) Verify(headers HeaderGetter, body []byte) string {
	if len(a.secret) == 0 {
		return ""
	}

	ts := headers.Get(HeaderTimestamp)
	if ts == "" {
		return "missing IMP_TIMESTAMP header"
	}
	nonce := headers.Get(HeaderNonce)
	if nonce == "" {
		return "missing IMP_NONCE header"
	}
	sign := headers.Get(HeaderSign)
	if sign == "" {
		return "missing IMP_SIGN header"
	}

	tsVal, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "timestamp is not an integer"
	}

	now := a.now().UTC().Unix()
	skew := now - tsVal
	if skew < 0 {
		skew = -skew
	}
	if skew > a.allowedSkewSec {
		return "timestamp outside allowed skew window"
	}

	expected := a.sign(ts, nonce, body)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(sign)) != 1 {
		return "signature mismatch"
	}

	if a.nonceCache != nil && a.nonceCache.Seen(a.cacheID, nonce) {
		return "nonce already used"
	}

	return ""
}
