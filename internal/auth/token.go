// Package auth signs and checks short-lived tokens for the event feed.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	ErrTokenFormat = errors.New("invalid token format")
	ErrTokenSig    = errors.New("invalid token signature")
	ErrTokenExp    = errors.New("token expired")
)

// DefaultSkew is the clock tolerance applied by Guard.
const DefaultSkew = 30 * time.Second

// Sign builds a token for subject valid until exp.
// Format: base64url(subject + "." + exp_unix + "." + hex(hmac_sha256(secret, subject+"."+exp)))
func Sign(secret, subject string, exp time.Time) string {
	msg := subject + "." + strconv.FormatInt(exp.Unix(), 10)
	return base64.RawURLEncoding.EncodeToString([]byte(msg + "." + mac(secret, msg)))
}

// Verify checks the signature and expiry and returns the embedded subject.
func Verify(secret, token string, now time.Time, skew time.Duration) (string, time.Time, error) {
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", time.Time{}, ErrTokenFormat
	}
	// The subject may itself contain dots; the last two fields are fixed.
	s := string(b)
	i := strings.LastIndex(s, ".")
	if i <= 0 {
		return "", time.Time{}, ErrTokenFormat
	}
	msg, sigHex := s[:i], s[i+1:]
	j := strings.LastIndex(msg, ".")
	if j < 0 {
		return "", time.Time{}, ErrTokenFormat
	}
	subject, expStr := msg[:j], msg[j+1:]
	expUnix, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return "", time.Time{}, ErrTokenFormat
	}
	got, err := hex.DecodeString(sigHex)
	if err != nil {
		return "", time.Time{}, ErrTokenFormat
	}
	want, _ := hex.DecodeString(mac(secret, msg))
	if !hmac.Equal(want, got) {
		return "", time.Time{}, ErrTokenSig
	}
	exp := time.Unix(expUnix, 0)
	if now.After(exp.Add(skew)) {
		return "", time.Time{}, ErrTokenExp
	}
	return subject, exp, nil
}

// Guard requires a valid token in the "token" query parameter or a Bearer
// Authorization header. An empty secret disables the check.
func Guard(secret string, next http.Handler) http.Handler {
	if secret == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := r.URL.Query().Get("token")
		if tok == "" {
			tok = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if _, _, err := Verify(secret, tok, time.Now(), DefaultSkew); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func mac(secret, msg string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(msg))
	return hex.EncodeToString(h.Sum(nil))
}
