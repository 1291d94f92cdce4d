package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// Verifier checks an opaque bearer token and returns the stable owner
// identifier it was issued for. Every inbound frame is re-verified; results
// are never cached.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// Error reports a token that could not be verified.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "auth: " + e.Reason + ": " + e.Err.Error()
	}
	return "auth: " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// IsAuthError reports whether err is a token verification failure.
func IsAuthError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// TokenVerifier validates HS256 identity tokens issued by the trusted
// authority and extracts the subject claim as the owner identifier.
type TokenVerifier struct {
	secret []byte
	issuer string
}

func NewTokenVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer}
}

func (v *TokenVerifier) Verify(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", &Error{Reason: "missing token"}
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	parsed, err := jwt.Parse(token, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", &Error{Reason: "invalid token", Err: err}
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", &Error{Reason: "token has no subject", Err: err}
	}
	return sub, nil
}

var _ Verifier = (*TokenVerifier)(nil)
