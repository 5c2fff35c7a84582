package identity

import (
	"context"
	"errors"

	"homedesk/internal/domain/chat"
)

// ErrUnknownToken is returned when a bearer token resolves to nobody.
var ErrUnknownToken = errors.New("identity: unknown token")

// Identity is the resolved principal of an inbound request or socket.
type Identity struct {
	ID   string
	Name string
	Role chat.Role
}

// Resolver maps an opaque bearer token to an identity. Session issuance and
// validation live in the platform's auth system; this service only consumes
// the result.
type Resolver interface {
	Resolve(ctx context.Context, token string) (Identity, error)
}
