package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool represents the subset of pgxpool.Pool used by the store.
//
// This allows tests to supply a lightweight mock implementation without
// changing the public interface of the store package.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

const uniqueViolation = "23505"

// NewPostgres wires the PostgreSQL repositories around a shared pool.
func NewPostgres(pool PgxPool) *Store {
	return &Store{
		Users:  &userRepo{pool: pool},
		Events: &eventRepo{pool: pool},
		ping:   pool.Ping,
	}
}

// userRepo implements UserRepository.
type userRepo struct {
	pool PgxPool
}

const userColumns = `id, username, password_hash, name, email, oauth_subject, created_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Name, &u.Email, &u.OAuthSubject, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *userRepo) Create(ctx context.Context, user User) (*User, error) {
	defer observeDB(ctx, "users.create")()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	const q = `INSERT INTO users (id, username, password_hash, name, email, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.pool.Exec(ctx, q, user.ID, user.Username, user.PasswordHash, user.Name, user.Email, user.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &user, nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*User, error) {
	defer observeDB(ctx, "users.get_by_id")()
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

func (r *userRepo) GetByUsername(ctx context.Context, username string) (*User, error) {
	defer observeDB(ctx, "users.get_by_username")()
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(username)=lower($1)`, username))
}

func (r *userRepo) UpsertOAuthUser(ctx context.Context, subject, email string) (*User, error) {
	defer observeDB(ctx, "users.upsert_oauth")()
	const q = `INSERT INTO users (id, username, password_hash, name, email, oauth_subject, created_at)
VALUES ($1, $2, '', '', $3, $4, NOW())
ON CONFLICT (oauth_subject) DO UPDATE SET email = COALESCE(NULLIF(EXCLUDED.email, ''), users.email)
RETURNING ` + userColumns
	return scanUser(r.pool.QueryRow(ctx, q, uuid.NewString(), oauthUsername(subject, email), email, subject))
}

func (r *userRepo) UpdateProfile(ctx context.Context, id, name, email string) error {
	defer observeDB(ctx, "users.update_profile")()
	tag, err := r.pool.Exec(ctx, `UPDATE users SET name=$1, email=$2 WHERE id=$3`, name, email, id)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	defer observeDB(ctx, "users.update_password")()
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash=$1 WHERE id=$2`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// eventRepo implements EventRepository.
type eventRepo struct {
	pool PgxPool
}

const eventColumns = `id, user_id, title, start_at, end_at, description, event_type, recurrence, priority, completed, created_at`

func scanEvent(row pgx.Row) (*Event, error) {
	var (
		ev         Event
		eventType  string
		recurrence string
		priority   string
	)
	if err := row.Scan(&ev.ID, &ev.OwnerID, &ev.Title, &ev.Start, &ev.End, &ev.Description,
		&eventType, &recurrence, &priority, &ev.Completed, &ev.CreatedAt); err != nil {
		return nil, err
	}
	ev.Type = EventType(eventType)
	ev.Priority = Priority(priority)
	// Unknown values are kept verbatim so the expansion layer can report them.
	if rec, ok := ParseRecurrence(recurrence); ok {
		ev.Recurrence = rec
	} else {
		ev.Recurrence = Recurrence(recurrence)
	}
	return &ev, nil
}

func (r *eventRepo) Create(ctx context.Context, event Event) (*Event, error) {
	defer observeDB(ctx, "events.create")()
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.Recurrence == "" {
		event.Recurrence = RecurrenceNone
	}
	const q = `INSERT INTO events (` + eventColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	if _, err := r.pool.Exec(ctx, q, event.ID, event.OwnerID, event.Title, event.Start, event.End, event.Description,
		string(event.Type), string(event.Recurrence), string(event.Priority), event.Completed, event.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return &event, nil
}

func (r *eventRepo) GetByID(ctx context.Context, ownerID, id string) (*Event, error) {
	defer observeDB(ctx, "events.get_by_id")()
	ev, err := scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id=$1 AND user_id=$2`, id, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ev, err
}

func (r *eventRepo) ListByOwner(ctx context.Context, ownerID string) ([]Event, error) {
	defer observeDB(ctx, "events.list_by_owner")()
	rows, err := r.pool.Query(ctx, `SELECT `+eventColumns+` FROM events WHERE user_id=$1 ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

func (r *eventRepo) Update(ctx context.Context, ownerID, id string, patch EventPatch) error {
	defer observeDB(ctx, "events.update")()
	sets, args := patchAssignments(patch)
	if len(sets) == 0 {
		_, err := r.GetByID(ctx, ownerID, id)
		return err
	}
	args = append(args, id, ownerID)
	q := fmt.Sprintf("UPDATE events SET %s WHERE id=$%d AND user_id=$%d", strings.Join(sets, ", "), len(args)-1, len(args))
	tag, err := r.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *eventRepo) Delete(ctx context.Context, ownerID, id string) error {
	defer observeDB(ctx, "events.delete")()
	tag, err := r.pool.Exec(ctx, `DELETE FROM events WHERE id=$1 AND user_id=$2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// patchAssignments renders the SET list for the present patch fields in a
// fixed column order.
func patchAssignments(p EventPatch) ([]string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}
	if p.Title != nil {
		add("title", *p.Title)
	}
	if p.Start != nil {
		add("start_at", *p.Start)
	}
	if p.End != nil {
		add("end_at", *p.End)
	}
	if p.Description != nil {
		add("description", *p.Description)
	}
	if p.Type != nil {
		add("event_type", string(*p.Type))
	}
	if p.Recurrence != nil {
		add("recurrence", string(*p.Recurrence))
	}
	if p.Priority != nil {
		add("priority", string(*p.Priority))
	}
	if p.Completed != nil {
		add("completed", *p.Completed)
	}
	return sets, args
}
