package identity

import "context"

// UserStore persists local users. Implementations must enforce a unique
// constraint on email so concurrent creation of the same user resolves to a
// single row.
type UserStore interface {
	// FindByEmailOrUsername returns the user whose email or username
	// matches the given value, or ErrUserNotFound.
	FindByEmailOrUsername(ctx context.Context, value string) (*User, error)

	// Create inserts a new user and returns it with its assigned ID.
	// Creating a user whose email already exists returns ErrUserExists.
	Create(ctx context.Context, user *User) (*User, error)

	// Update overwrites the mutable profile fields of an existing user.
	Update(ctx context.Context, user *User) error

	// TouchLogin records a successful authentication for the user.
	TouchLogin(ctx context.Context, id int64) error

	// Delete removes the user row.
	Delete(ctx context.Context, id int64) error

	// Disable marks the user inactive without removing the row.
	Disable(ctx context.Context, id int64) error

	// AssignToDefaultGroup places a newly created user in the default
	// group so group-based authorization has a floor to stand on.
	AssignToDefaultGroup(ctx context.Context, id int64) error
}
