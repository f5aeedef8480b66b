package feed

import "strings"

// ClassifyUpstreamError maps an upstream error payload to the error
// taxonomy. This is the single place where human-readable upstream messages
// are string-matched; everything downstream works with kinds.
func ClassifyUpstreamError(code int, message string) ErrorKind {
	if code == 190 {
		return KindDecryptionError
	}
	switch {
	case strings.Contains(message, "Cannot parse access token"):
		return KindInvalidTokenFormat
	case strings.Contains(message, "could not be decrypted"):
		return KindCorruptedToken
	case strings.Contains(message, "Error validating access token"):
		return KindExpiredToken
	case strings.Contains(message, "Code: 190"):
		return KindDecryptionError
	default:
		return KindAPI
	}
}

// IsTokenFailure reports whether a kind means the stored token itself is
// unusable and must be regenerated by the operator
func IsTokenFailure(kind ErrorKind) bool {
	switch kind {
	case KindInvalidTokenFormat, KindCorruptedToken, KindExpiredToken, KindDecryptionError:
		return true
	default:
		return false
	}
}

// SetsDecryptionFlag reports whether a kind should raise the durable
// decryption-error flag for operator diagnostics
func SetsDecryptionFlag(kind ErrorKind) bool {
	return kind == KindDecryptionError || kind == KindCorruptedToken
}
