package store

import "context"

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, user User) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	UpsertOAuthUser(ctx context.Context, subject, email string) (*User, error)
	UpdateProfile(ctx context.Context, id, name, email string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// EventRepository handles event storage. Every call is scoped to one owner;
// records of other owners behave as missing.
type EventRepository interface {
	Create(ctx context.Context, event Event) (*Event, error)
	GetByID(ctx context.Context, ownerID, id string) (*Event, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Event, error)
	Update(ctx context.Context, ownerID, id string, patch EventPatch) error
	Delete(ctx context.Context, ownerID, id string) error
}
