package memory

import (
	"context"
	"sync"

	chatsvc "homedesk/internal/app/services/chat"
	"homedesk/internal/app/services/identity"
)

// ListingDirectory is a seeded read-only listing view for tests and the
// memory-backed runtime.
type ListingDirectory struct {
	mu    sync.RWMutex
	items map[string]chatsvc.ListingSummary
}

// NewListingDirectory builds an empty directory.
func NewListingDirectory() *ListingDirectory {
	return &ListingDirectory{items: make(map[string]chatsvc.ListingSummary)}
}

// Add seeds a listing.
func (d *ListingDirectory) Add(summary chatsvc.ListingSummary) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items[summary.ID] = summary
}

// Exists reports whether the listing is known.
func (d *ListingDirectory) Exists(ctx context.Context, id string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.items[id]
	return ok, nil
}

// Summary returns display fields for a listing.
func (d *ListingDirectory) Summary(ctx context.Context, id string) (chatsvc.ListingSummary, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	summary, ok := d.items[id]
	return summary, ok, nil
}

// UserDirectory is a seeded read-only user view.
type UserDirectory struct {
	mu    sync.RWMutex
	items map[string]chatsvc.UserSummary
}

// NewUserDirectory builds an empty directory.
func NewUserDirectory() *UserDirectory {
	return &UserDirectory{items: make(map[string]chatsvc.UserSummary)}
}

// Add seeds a user.
func (d *UserDirectory) Add(summary chatsvc.UserSummary) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items[summary.ID] = summary
}

// Summary returns display fields for a user.
func (d *UserDirectory) Summary(ctx context.Context, id string) (chatsvc.UserSummary, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	summary, ok := d.items[id]
	return summary, ok, nil
}

// IdentityResolver maps static bearer tokens to identities. The real
// platform resolves sessions elsewhere; this stands in for dev and tests.
type IdentityResolver struct {
	mu     sync.RWMutex
	tokens map[string]identity.Identity
}

// NewIdentityResolver builds an empty resolver.
func NewIdentityResolver() *IdentityResolver {
	return &IdentityResolver{tokens: make(map[string]identity.Identity)}
}

// Register seeds a token.
func (r *IdentityResolver) Register(token string, id identity.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token] = id
}

// Resolve returns the identity behind a token or identity.ErrUnknownToken.
func (r *IdentityResolver) Resolve(ctx context.Context, token string) (identity.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.tokens[token]
	if !ok {
		return identity.Identity{}, identity.ErrUnknownToken
	}
	return id, nil
}
