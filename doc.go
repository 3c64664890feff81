// Package auth provides stateless session tokens for a multi-tenant product:
// compact HS256 signed tokens that carry the principal, verified on every
// request without any server-side session storage.
//
// Tokens:
//   - IssueToken and TokenService.Issue build a header, a SessionPayload
//     (sub, email, name, iat, exp) and an HMAC-SHA256 signature, each encoded
//     as unpadded base64url and joined by ".".
//   - VerifyToken checks the signature before reading any claim, then decodes
//     the payload and checks expiry. Failures are always a *VerificationFailure
//     whose Kind is one of a closed set; callers treat every kind as
//     "unauthenticated".
//   - The signing secret travels in SessionConfig. Nothing reads it from
//     global state, so tests and tenants can run with different secrets.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by the login flow and
//     the workspace provisioning pipeline. Sinks run best-effort (errors are
//     logged) so you can forward to a database or queue without blocking
//     authentication.
//
// Workspace provisioning for first-time principals lives in the provisioning
// sub-package; storage adapters live in repository.
package auth
