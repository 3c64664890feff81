package auth

import (
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// SigningAlgorithm is the only algorithm session tokens are signed with.
var SigningAlgorithm = jwt.SigningMethodHS256

// Sign computes the HMAC-SHA256 of message with secret.
func Sign(message, secret []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, goerrors.New("signing secret must not be empty", goerrors.CategoryBadInput)
	}

	sig, err := SigningAlgorithm.Sign(string(message), secret)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign message")
	}
	return sig, nil
}

// VerifySignature reports whether signature is the HMAC of message.
// The comparison is constant time and it never panics on untrusted input.
func VerifySignature(message, signature, secret []byte) bool {
	if len(secret) == 0 || len(signature) == 0 {
		return false
	}
	return SigningAlgorithm.Verify(string(message), signature, secret) == nil
}
