package store

import "context"

// Store aggregates the repositories of one storage backend.
type Store struct {
	Users  UserRepository
	Events EventRepository

	ping  func(ctx context.Context) error
	close func(ctx context.Context) error
}

// HealthCheck verifies that the underlying database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	defer observeDB(ctx, "db.healthcheck")()
	return s.ping(ctx)
}

// Close releases the backend connection, if any.
func (s *Store) Close(ctx context.Context) error {
	if s.close == nil {
		return nil
	}
	return s.close(ctx)
}

// SetPing replaces the readiness probe, for backends wired by hand.
func (s *Store) SetPing(ping func(ctx context.Context) error) {
	s.ping = ping
}

// SetClose replaces the function Close calls.
func (s *Store) SetClose(close func(ctx context.Context) error) {
	s.close = close
}
