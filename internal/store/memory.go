package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NewMemory returns a Store that keeps everything in process memory. Events
// are listed in insertion order.
func NewMemory() *Store {
	return &Store{
		Users:  &memoryUserRepo{byID: make(map[string]*User)},
		Events: &memoryEventRepo{byID: make(map[string]*Event)},
	}
}

type memoryUserRepo struct {
	mu   sync.RWMutex
	byID map[string]*User
}

func (r *memoryUserRepo) Create(ctx context.Context, user User) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if strings.EqualFold(u.Username, user.Username) {
			return nil, ErrConflict
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	stored := user
	r.byID[user.ID] = &stored
	return &user, nil
}

func (r *memoryUserRepo) GetByID(ctx context.Context, id string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memoryUserRepo) GetByUsername(ctx context.Context, username string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.byID {
		if strings.EqualFold(u.Username, username) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryUserRepo) UpsertOAuthUser(ctx context.Context, subject, email string) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.OAuthSubject != nil && *u.OAuthSubject == subject {
			if email != "" {
				u.Email = email
			}
			cp := *u
			return &cp, nil
		}
	}
	sub := subject
	u := &User{
		ID:           uuid.NewString(),
		Username:     oauthUsername(subject, email),
		Email:        email,
		OAuthSubject: &sub,
		CreatedAt:    time.Now().UTC(),
	}
	r.byID[u.ID] = u
	cp := *u
	return &cp, nil
}

func (r *memoryUserRepo) UpdateProfile(ctx context.Context, id, name, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.Name = name
	u.Email = email
	return nil
}

func (r *memoryUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

type memoryEventRepo struct {
	mu    sync.RWMutex
	byID  map[string]*Event
	order []string
}

func (r *memoryEventRepo) Create(ctx context.Context, event Event) (*Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if _, exists := r.byID[event.ID]; exists {
		return nil, ErrConflict
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	stored := event
	r.byID[event.ID] = &stored
	r.order = append(r.order, event.ID)
	return &event, nil
}

func (r *memoryEventRepo) GetByID(ctx context.Context, ownerID, id string) (*Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ev, ok := r.byID[id]
	if !ok || ev.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	cp := *ev
	return &cp, nil
}

func (r *memoryEventRepo) ListByOwner(ctx context.Context, ownerID string) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Event
	for _, id := range r.order {
		if ev := r.byID[id]; ev.OwnerID == ownerID {
			out = append(out, *ev)
		}
	}
	return out, nil
}

func (r *memoryEventRepo) Update(ctx context.Context, ownerID, id string, patch EventPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.byID[id]
	if !ok || ev.OwnerID != ownerID {
		return ErrNotFound
	}
	patch.Apply(ev)
	return nil
}

func (r *memoryEventRepo) Delete(ctx context.Context, ownerID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev, ok := r.byID[id]
	if !ok || ev.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(r.byID, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// oauthUsername derives a login name for users created through OIDC.
func oauthUsername(subject, email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at] + "-" + shortSubject(subject)
	}
	return "oidc-" + shortSubject(subject)
}

func shortSubject(subject string) string {
	if len(subject) > 8 {
		return subject[:8]
	}
	return subject
}
