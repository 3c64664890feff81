package auth

import (
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const tokenType = "JWT"

type tokenHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

// SessionPayload is the signed body of a session token.
type SessionPayload struct {
	SubjectID   string `json:"sub"`
	Email       string `json:"email"`
	DisplayName string `json:"name,omitempty"`
	IssuedAt    int64  `json:"iat"`
	ExpiresAt   int64  `json:"exp"`
}

// Principal returns the identity the payload describes
func (p SessionPayload) Principal() *Principal {
	return &Principal{
		ID:    p.SubjectID,
		Email: p.Email,
		Name:  p.DisplayName,
	}
}

// IssueToken mints a signed session token valid for ttl from now.
func IssueToken(subjectID, email, displayName string, ttl time.Duration, secret []byte) (string, error) {
	return issueTokenAt(time.Now(), subjectID, email, displayName, ttl, secret)
}

func issueTokenAt(now time.Time, subjectID, email, displayName string, ttl time.Duration, secret []byte) (string, error) {
	if strings.TrimSpace(subjectID) == "" {
		return "", goerrors.New("subject id is required", goerrors.CategoryBadInput)
	}

	ttlSeconds := int64(ttl / time.Second)
	if ttlSeconds < 1 {
		return "", goerrors.New("token TTL must be at least one second", goerrors.CategoryBadInput)
	}

	issuedAt := now.Unix()
	payload := SessionPayload{
		SubjectID:   subjectID,
		Email:       email,
		DisplayName: displayName,
		IssuedAt:    issuedAt,
		ExpiresAt:   issuedAt + ttlSeconds,
	}

	header, err := encodeJSONSegment(tokenHeader{Alg: SigningAlgorithm.Alg(), Typ: tokenType})
	if err != nil {
		return "", err
	}

	body, err := encodeJSONSegment(payload)
	if err != nil {
		return "", err
	}

	signingInput := header + "." + body
	sig, err := Sign([]byte(signingInput), secret)
	if err != nil {
		return "", err
	}

	return signingInput + "." + EncodeSegment(sig), nil
}

// VerifyToken checks token against secret at the unix time now.
// The signature is verified before any claim is read. Every error returned
// is a *VerificationFailure.
func VerifyToken(token string, secret []byte, now int64) (*Principal, error) {
	payload, err := verifyPayload(token, secret, now)
	if err != nil {
		return nil, err
	}
	return payload.Principal(), nil
}

func verifyPayload(token string, secret []byte, now int64) (*SessionPayload, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, failure(FailureMalformedToken, nil)
	}

	sig, err := DecodeSignatureSegment(parts[2])
	if err != nil {
		return nil, failure(FailureBadSignature, err)
	}

	signingInput := token[:len(parts[0])+1+len(parts[1])]
	if !VerifySignature([]byte(signingInput), sig, secret) {
		return nil, failure(FailureBadSignature, nil)
	}

	var header tokenHeader
	if err := decodeJSONSegment(parts[0], &header); err != nil {
		return nil, failure(FailureMalformedToken, err)
	}
	if header.Alg != SigningAlgorithm.Alg() {
		return nil, failure(FailureMalformedToken, errors.New("unexpected signing algorithm: "+header.Alg))
	}

	var payload SessionPayload
	if err := decodeJSONSegment(parts[1], &payload); err != nil {
		return nil, failure(FailureMalformedPayload, err)
	}
	if payload.SubjectID == "" || payload.ExpiresAt <= payload.IssuedAt {
		return nil, failure(FailureMalformedPayload, errors.New("missing subject or invalid validity window"))
	}

	if payload.ExpiresAt < now {
		return nil, failure(FailureExpired, nil)
	}

	return &payload, nil
}
