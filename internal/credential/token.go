// Package credential owns the lifecycle of third-party authorization tokens:
// loading, expiry detection, silent refresh and the interactive fallback.
package credential

import (
	"errors"
	"sort"
	"strings"
	"time"
)

var (
	// ErrAuthorizationDenied means the interactive flow was rejected, timed out
	// or was cancelled, or produced a token without the needed scopes.
	ErrAuthorizationDenied = errors.New("authorization denied")
	// ErrCredentialIO means the token record or client document could not be
	// read or written.
	ErrCredentialIO = errors.New("credential storage error")
	// ErrScopeNotRegistered means a caller asked for a scope no registered
	// capability declared.
	ErrScopeNotRegistered = errors.New("scope not registered")
)

// expirySkew treats a token as expired slightly early so it does not lapse
// mid-request.
const expirySkew = 10 * time.Second

// Token is delegated authority to call a scoped external API.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitzero"`
	Scopes       []string  `json:"scopes"`
}

// Valid reports whether the token can still be used at now. A zero expiry
// never expires.
func (t Token) Valid(now time.Time) bool {
	if t.AccessToken == "" {
		return false
	}
	if t.Expiry.IsZero() {
		return true
	}
	return now.Add(expirySkew).Before(t.Expiry)
}

// Covers reports whether the granted scopes are a superset of required.
func (t Token) Covers(required []string) bool {
	granted := make(map[string]struct{}, len(t.Scopes))
	for _, s := range t.Scopes {
		granted[s] = struct{}{}
	}
	for _, s := range required {
		if _, ok := granted[s]; !ok {
			return false
		}
	}
	return true
}

func (t Token) clone() Token {
	t.Scopes = append([]string(nil), t.Scopes...)
	return t
}

// normalizeScopes trims, dedupes and sorts a scope list.
func normalizeScopes(scopes []string) []string {
	set := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(s)
		if s != "" {
			set[s] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
