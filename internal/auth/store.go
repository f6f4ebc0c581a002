package auth

import "context"

// UserStore describes persistence operations required by the session
// core. Implementations must enforce case-insensitive email
// uniqueness and make RotateRefreshHash a single atomic conditional
// update.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	ListByOrganization(ctx context.Context, organization string) ([]*User, error)

	// SetRefreshHash unconditionally starts a new lineage, invalidating
	// any prior session.
	SetRefreshHash(ctx context.Context, userID, hash string) error

	// RotateRefreshHash is the compare-and-swap at the heart of refresh
	// rotation: the stored hash is replaced with newHash only if it
	// still equals oldHash. Returns ErrInvalidToken when the compare
	// fails (a concurrent rotation won the race or the lineage was
	// cleared).
	RotateRefreshHash(ctx context.Context, userID, oldHash, newHash string) error

	ClearRefreshHash(ctx context.Context, userID string) error
}
