package feed

import "fmt"

// ErrorKind classifies fetch failures. Kinds map one-to-one onto operator
// actions; string matching against upstream messages happens only in the
// per-platform boundary classifiers, never on these values.
type ErrorKind string

const (
	// KindTransport is a network or timeout failure; the caller may retry
	KindTransport ErrorKind = "transport_error"

	// KindMissingCredentials means no token and no username are configured
	KindMissingCredentials ErrorKind = "missing_credentials"

	// KindInvalidTokenFormat means the upstream could not parse the token
	KindInvalidTokenFormat ErrorKind = "invalid_token_format"

	// KindCorruptedToken means the stored token could not be decrypted
	KindCorruptedToken ErrorKind = "corrupted_token"

	// KindExpiredToken means upstream token validation failed
	KindExpiredToken ErrorKind = "expired_token"

	// KindDecryptionError is the upstream code-190 signal: the token is
	// expired, revoked, or malformed and must be regenerated
	KindDecryptionError ErrorKind = "decryption_error"

	// KindPrivateAccount means the profile is private; distinct from no data
	KindPrivateAccount ErrorKind = "private_account"

	// KindNoPostsFound means configuration looks valid but yielded nothing
	KindNoPostsFound ErrorKind = "no_posts_found"

	// KindUnexpectedSchema means the upstream changed its response shape
	KindUnexpectedSchema ErrorKind = "unexpected_schema"

	// KindAPI is any other upstream error response
	KindAPI ErrorKind = "api_error"
)

// Error is a classified fetch failure
type Error struct {
	Kind    ErrorKind
	Message string
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Retriable reports whether the caller may usefully retry. Only transport
// failures qualify; every token-shaped failure needs operator action first.
func (e *Error) Retriable() bool {
	return e.Kind == KindTransport
}

// NewError creates a classified fetch error
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
