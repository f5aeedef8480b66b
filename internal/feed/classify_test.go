package feed

import "testing"

func TestClassifyUpstreamError(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		message string
		want    ErrorKind
	}{
		{
			name:    "code 190 dominates message",
			code:    190,
			message: "anything at all",
			want:    KindDecryptionError,
		},
		{
			name:    "unparsable token",
			code:    0,
			message: "Cannot parse access token",
			want:    KindInvalidTokenFormat,
		},
		{
			name:    "corrupted token",
			code:    0,
			message: "The access token could not be decrypted",
			want:    KindCorruptedToken,
		},
		{
			name:    "expired token",
			code:    0,
			message: "Error validating access token: session has expired",
			want:    KindExpiredToken,
		},
		{
			name:    "embedded 190 marker in message",
			code:    0,
			message: "Failed to decrypt (Type: OAuthException, Code: 190)",
			want:    KindDecryptionError,
		},
		{
			name:    "anything else is a generic api error",
			code:    100,
			message: "Unsupported request",
			want:    KindAPI,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyUpstreamError(tt.code, tt.message); got != tt.want {
				t.Errorf("ClassifyUpstreamError() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTokenFailureKinds(t *testing.T) {
	for _, kind := range []ErrorKind{KindInvalidTokenFormat, KindCorruptedToken, KindExpiredToken, KindDecryptionError} {
		if !IsTokenFailure(kind) {
			t.Errorf("IsTokenFailure(%s) should be true", kind)
		}
		if NewError(kind, "x").Retriable() {
			t.Errorf("%s must not be retriable", kind)
		}
	}
	for _, kind := range []ErrorKind{KindTransport, KindAPI, KindPrivateAccount, KindNoPostsFound} {
		if IsTokenFailure(kind) {
			t.Errorf("IsTokenFailure(%s) should be false", kind)
		}
	}
	if !NewError(KindTransport, "x").Retriable() {
		t.Error("transport errors are retriable")
	}
}
