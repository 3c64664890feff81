package auth

// TokenValidator validates tokens and extracts the principal without tying
// callers to a specific signing implementation.
type TokenValidator interface {
	Validate(tokenString string) (*Principal, error)
}

// TokenValidatorFunc adapts a function into a TokenValidator.
type TokenValidatorFunc func(tokenString string) (*Principal, error)

// Validate satisfies the TokenValidator interface.
func (f TokenValidatorFunc) Validate(tokenString string) (*Principal, error) {
	if f == nil {
		return nil, failure(FailureMalformedToken, nil)
	}
	return f(tokenString)
}

// MultiTokenValidator tries validators in order until one succeeds.
// Bad signatures fall through to the next validator so a previous signing
// secret can stay accepted during rotation. Expired and malformed payloads
// are final: the token was authentic.
type MultiTokenValidator struct {
	validators []TokenValidator
}

// NewMultiTokenValidator filters nil validators and returns a composite validator.
func NewMultiTokenValidator(validators ...TokenValidator) *MultiTokenValidator {
	filtered := make([]TokenValidator, 0, len(validators))
	for _, v := range validators {
		if v != nil {
			filtered = append(filtered, v)
		}
	}
	return &MultiTokenValidator{validators: filtered}
}

// Validate satisfies the TokenValidator interface.
func (m *MultiTokenValidator) Validate(tokenString string) (*Principal, error) {
	var lastErr error
	for _, v := range m.validators {
		principal, err := v.Validate(tokenString)
		if err == nil {
			return principal, nil
		}
		if f, ok := AsVerificationFailure(err); ok && f.Kind == FailureBadSignature {
			lastErr = err
			continue
		}
		return nil, err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, failure(FailureMalformedToken, nil)
}
