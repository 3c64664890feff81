package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	auth "github.com/goliatone/go-workspace-auth"
)

// DefaultStateTTL bounds how long a login round trip may take
const DefaultStateTTL = 10 * time.Minute

var (
	ErrInvalidState = goerrors.New("invalid login state", goerrors.CategoryAuth).
		WithTextCode("INVALID_LOGIN_STATE").
		WithCode(goerrors.CodeBadRequest)
	ErrStateExpired = goerrors.New("login state expired", goerrors.CategoryAuth).
		WithTextCode("LOGIN_STATE_EXPIRED").
		WithCode(goerrors.CodeBadRequest)
)

// LoginState is carried through the identity provider in the state
// parameter and mirrored in a cookie.
type LoginState struct {
	Nonce     string `json:"n"`
	ReturnTo  string `json:"r,omitempty"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// StateManager signs and verifies LoginState values.
type StateManager struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewStateManager derives a state key from secret so the session secret is
// never used directly for a second purpose.
func NewStateManager(secret []byte, ttl time.Duration) (*StateManager, error) {
	key, err := auth.Sign([]byte("login-state"), secret)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateManager{key: key, ttl: ttl, now: time.Now}, nil
}

func newRandomStateManager() *StateManager {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic(err)
	}
	sm, err := NewStateManager(secret, DefaultStateTTL)
	if err != nil {
		panic(err)
	}
	return sm
}

// Encode fills the nonce and validity window and returns payload.signature
func (sm *StateManager) Encode(state *LoginState) (string, error) {
	if state == nil {
		return "", ErrInvalidState
	}

	now := sm.now()
	state.IssuedAt = now.Unix()
	state.ExpiresAt = now.Add(sm.ttl).Unix()

	if state.Nonce == "" {
		nonce := make([]byte, 16)
		if _, err := rand.Read(nonce); err != nil {
			return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate state nonce")
		}
		state.Nonce = auth.EncodeSegment(nonce)
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode state")
	}

	payload := auth.EncodeSegment(raw)
	sig, err := auth.Sign([]byte(payload), sm.key)
	if err != nil {
		return "", err
	}

	return payload + "." + auth.EncodeSegment(sig), nil
}

// Decode verifies the signature before reading the payload
func (sm *StateManager) Decode(token string) (*LoginState, error) {
	payload, encodedSig, ok := strings.Cut(token, ".")
	if !ok {
		return nil, ErrInvalidState
	}

	sig, err := auth.DecodeSignatureSegment(encodedSig)
	if err != nil || !auth.VerifySignature([]byte(payload), sig, sm.key) {
		return nil, ErrInvalidState
	}

	raw, err := auth.DecodeSegment(payload)
	if err != nil {
		return nil, ErrInvalidState
	}

	var state LoginState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, ErrInvalidState
	}

	if sm.now().Unix() > state.ExpiresAt {
		return nil, ErrStateExpired
	}

	return &state, nil
}

// safeReturnTo only allows local absolute paths.
func safeReturnTo(target string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.Contains(target, "\\") {
		return ""
	}
	return target
}
