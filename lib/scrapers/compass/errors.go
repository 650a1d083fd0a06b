package compass

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotAuthenticated is returned by fetch methods before a successful Login.
var ErrNotAuthenticated = errors.New("not authenticated, call Login first")

// TransportError wraps a network-level failure. It is retryable by the
// caller; the client never retries internally.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// AuthenticationError means the portal rejected the handshake itself, which
// is fatal for the session. Body preserves the upstream response so the
// failure can be diagnosed after the fact.
type AuthenticationError struct {
	Message string
	Body    string
}

func (e *AuthenticationError) Error() string {
	if e.Message == "" {
		return "login rejected"
	}
	return fmt.Sprintf("login rejected: %s", e.Message)
}

// challenge pages have a recognizable shape even when we can't tell exactly
// when they clear
var challengeMarkers = []string{
	"cloudflare",
	"checking your browser",
	"verifying you are human",
	"__cf_chl",
}

// Challenged reports whether the preserved body looks like a bot-detection
// interstitial rather than a credentials failure.
func (e *AuthenticationError) Challenged() bool {
	body := strings.ToLower(e.Body)
	for _, marker := range challengeMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}

// SessionError means login appeared to succeed but the session is unusable,
// typically because the portal never exposed the user identity the service
// endpoints require.
type SessionError struct {
	Reason string
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session unusable: %s", e.Reason)
}

// ChallengeTimeoutError records that the bounded wait for a challenge to
// clear expired. The browser client treats this as non-fatal and proceeds;
// callers only ever see it wrapped in the eventual SessionError if the
// session really was dead.
type ChallengeTimeoutError struct {
	Waited time.Duration
}

func (e *ChallengeTimeoutError) Error() string {
	return fmt.Sprintf("challenge did not clear within %s", e.Waited)
}
