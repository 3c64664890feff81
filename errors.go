package auth

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeTokenMalformed        = "TOKEN_MALFORMED"
	TextCodeTokenSignatureInvalid = "TOKEN_SIGNATURE_INVALID"
	TextCodeTokenPayloadMalformed = "TOKEN_PAYLOAD_MALFORMED"
	TextCodeTokenExpired          = "TOKEN_EXPIRED"
	TextCodeMalformedEncoding     = "MALFORMED_ENCODING"
)

// ErrTokenMalformed is returned when a token is not three dot separated segments
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenSignatureInvalid is returned when the signature does not match
var ErrTokenSignatureInvalid = goerrors.New("token signature is invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenSignatureInvalid).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenPayloadMalformed is returned when a signed payload cannot be decoded
var ErrTokenPayloadMalformed = goerrors.New("token payload is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenPayloadMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired is returned when a token is past its expiration
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrMalformedEncoding is returned when a segment is not valid base64url JSON
var ErrMalformedEncoding = goerrors.New("malformed segment encoding", goerrors.CategoryBadInput).
	WithTextCode(TextCodeMalformedEncoding).
	WithCode(goerrors.CodeBadRequest)

// FailureKind enumerates the ways token verification can fail.
type FailureKind string

const (
	FailureMalformedToken   FailureKind = "malformed_token"
	FailureBadSignature     FailureKind = "bad_signature"
	FailureMalformedPayload FailureKind = "malformed_payload"
	FailureExpired          FailureKind = "expired"
)

// VerificationFailure is the only error type returned by token verification.
// Callers switch on Kind; every kind means "treat the request as unauthenticated".
type VerificationFailure struct {
	Kind  FailureKind
	Cause error
}

func (f *VerificationFailure) Error() string {
	msg := f.Sentinel().Message
	if f.Cause != nil {
		return msg + ": " + f.Cause.Error()
	}
	return msg
}

// Unwrap exposes the sentinel for Kind plus the underlying cause.
func (f *VerificationFailure) Unwrap() []error {
	errs := []error{f.Sentinel()}
	if f.Cause != nil {
		errs = append(errs, f.Cause)
	}
	return errs
}

// Sentinel maps the failure kind to its rich error.
func (f *VerificationFailure) Sentinel() *goerrors.Error {
	switch f.Kind {
	case FailureBadSignature:
		return ErrTokenSignatureInvalid
	case FailureMalformedPayload:
		return ErrTokenPayloadMalformed
	case FailureExpired:
		return ErrTokenExpired
	default:
		return ErrTokenMalformed
	}
}

func failure(kind FailureKind, cause error) *VerificationFailure {
	return &VerificationFailure{Kind: kind, Cause: cause}
}

// AsVerificationFailure extracts a VerificationFailure from err.
func AsVerificationFailure(err error) (*VerificationFailure, bool) {
	var f *VerificationFailure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	f, ok := AsVerificationFailure(err)
	return ok && f.Kind == FailureExpired
}

// IsMalformedError reports failures caused by token shape rather than trust.
func IsMalformedError(err error) bool {
	f, ok := AsVerificationFailure(err)
	return ok && (f.Kind == FailureMalformedToken || f.Kind == FailureMalformedPayload)
}
