package api

import (
	"net/http"

	"github.com/whatsondev/whatsfeed/internal/feed"
)

// errorStatus maps a fetch error to an HTTP status for the JSON surface
func errorStatus(kind feed.ErrorKind) int {
	switch kind {
	case feed.KindMissingCredentials:
		return http.StatusPreconditionFailed
	case feed.KindPrivateAccount, feed.KindNoPostsFound:
		return http.StatusNotFound
	case feed.KindTransport:
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}

// suggestionFor keys operator guidance to the error taxonomy; the
// connection-test surface shows it next to the failure message
func suggestionFor(kind feed.ErrorKind) string {
	switch kind {
	case feed.KindMissingCredentials:
		return "Configure a username or connect an account to get an access token."
	case feed.KindInvalidTokenFormat:
		return "The stored access token is malformed. Reconnect the account to generate a new token."
	case feed.KindCorruptedToken, feed.KindDecryptionError:
		return "The stored access token could not be decrypted. Clear the saved credentials and reconnect the account."
	case feed.KindExpiredToken:
		return "The access token has expired. Reconnect the account to refresh it."
	case feed.KindPrivateAccount:
		return "This account is private. Use a public account or connect with an access token."
	case feed.KindNoPostsFound:
		return "The account is reachable but returned no posts. Check the configured username and that the account has public posts."
	case feed.KindTransport:
		return "Could not reach the platform. Check outbound connectivity and try again."
	default:
		return ""
	}
}
