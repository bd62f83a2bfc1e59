package ws

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"dispatch/internal/core/application/presence"
	"dispatch/internal/core/domain/model/kernel"
	"dispatch/internal/pkg/errs"
)

// ErrInvalidToken is returned for tokens that are malformed or carry a bad
// signature. Connections presenting one are rejected outright.
var ErrInvalidToken = errors.New("invalid session token")

// Authenticator resolves a connection token to an identity and its kind.
type Authenticator interface {
	Authenticate(token string) (kernel.UUID, presence.Kind, error)
}

// TokenAuthenticator verifies HMAC-signed session tokens of the form
// kind:uuid:signature, issued by the identity service that shares the secret.
type TokenAuthenticator struct {
	secret []byte
}

// NewTokenAuthenticator creates an authenticator with the shared secret.
func NewTokenAuthenticator(secret string) (*TokenAuthenticator, error) {
	if secret == "" {
		return nil, errs.NewValueIsRequiredError("secret")
	}
	return &TokenAuthenticator{secret: []byte(secret)}, nil
}

// Issue signs a token for an identity. Used by tests and local tooling;
// production tokens come from the identity service.
func (a *TokenAuthenticator) Issue(id kernel.UUID, kind presence.Kind) string {
	subject := kindLabel(kind) + ":" + id.String()
	return subject + ":" + a.sign(subject)
}

// Authenticate implements Authenticator.
func (a *TokenAuthenticator) Authenticate(token string) (kernel.UUID, presence.Kind, error) {
	parts := strings.Split(token, ":")
	if len(parts) != 3 {
		return kernel.UUID{}, presence.KindUnknown, ErrInvalidToken
	}

	kind := parseKind(parts[0])
	if kind == presence.KindUnknown {
		return kernel.UUID{}, presence.KindUnknown, ErrInvalidToken
	}

	id, err := kernel.UUIDFromString(parts[1])
	if err != nil {
		return kernel.UUID{}, presence.KindUnknown, ErrInvalidToken
	}

	subject := parts[0] + ":" + parts[1]
	if !hmac.Equal([]byte(a.sign(subject)), []byte(parts[2])) {
		return kernel.UUID{}, presence.KindUnknown, ErrInvalidToken
	}

	return id, kind, nil
}

func (a *TokenAuthenticator) sign(subject string) string {
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(subject))
	return hex.EncodeToString(mac.Sum(nil))
}

func kindLabel(kind presence.Kind) string {
	if kind == presence.KindAgent {
		return "agent"
	}
	return "customer"
}

func parseKind(label string) presence.Kind {
	switch label {
	case "agent":
		return presence.KindAgent
	case "customer":
		return presence.KindCustomer
	default:
		return presence.KindUnknown
	}
}
