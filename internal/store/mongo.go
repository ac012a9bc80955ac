package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// DefaultMongoDatabase is the database the application has always used.
const DefaultMongoDatabase = "ai_calendar_db"

// NewMongo wires repositories backed by the "users" and "events" collections
// of database. Closing the returned Store disconnects client.
func NewMongo(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		Users:  &mongoUserRepo{coll: db.Collection("users")},
		Events: &mongoEventRepo{coll: db.Collection("events")},
		ping: func(ctx context.Context) error {
			return client.Ping(ctx, readpref.Primary())
		},
		close: client.Disconnect,
	}
}

// EnsureMongoIndexes creates the indexes the repositories rely on. User
// documents written without username_lower get it derived from username
// first.
func EnsureMongoIndexes(ctx context.Context, client *mongo.Client, database string) error {
	db := client.Database(database)
	users := db.Collection("users")
	backfill := mongo.Pipeline{{{Key: "$set", Value: bson.D{
		{Key: "username_lower", Value: bson.D{{Key: "$toLower", Value: "$username"}}},
	}}}}
	if _, err := users.UpdateMany(ctx, bson.M{
		"username_lower": bson.M{"$exists": false},
		"username":       bson.M{"$type": "string"},
	}, backfill); err != nil {
		return fmt.Errorf("backfill username_lower: %w", err)
	}
	if _, err := users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "username_lower", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"username_lower": bson.M{"$type": "string"}}),
		},
		{Keys: bson.D{{Key: "oauth_subject", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
	}); err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	if _, err := db.Collection("events").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "_id", Value: 1}},
	}); err != nil {
		return fmt.Errorf("create event indexes: %w", err)
	}
	return nil
}

type userDocument struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	Username      string             `bson:"username"`
	UsernameLower string             `bson:"username_lower"`
	Password      string             `bson:"password"`
	Name          string             `bson:"name,omitempty"`
	Email         string             `bson:"email"`
	OAuthSubject  *string            `bson:"oauth_subject,omitempty"`
	CreatedAt     time.Time          `bson:"created_at"`
}

func (d userDocument) toUser() *User {
	return &User{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		PasswordHash: d.Password,
		Name:         d.Name,
		Email:        d.Email,
		OAuthSubject: d.OAuthSubject,
		CreatedAt:    d.CreatedAt,
	}
}

type mongoUserRepo struct {
	coll *mongo.Collection
}

func (r *mongoUserRepo) Create(ctx context.Context, user User) (*User, error) {
	defer observeDB(ctx, "users.create")()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	doc := userDocument{
		Username:      user.Username,
		UsernameLower: strings.ToLower(user.Username),
		Password:      user.PasswordHash,
		Name:          user.Name,
		Email:         user.Email,
		CreatedAt:     user.CreatedAt,
	}
	res, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	user.ID = res.InsertedID.(primitive.ObjectID).Hex()
	return &user, nil
}

func (r *mongoUserRepo) findOne(ctx context.Context, filter bson.M) (*User, error) {
	var doc userDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc.toUser(), nil
}

func (r *mongoUserRepo) GetByID(ctx context.Context, id string) (*User, error) {
	defer observeDB(ctx, "users.get_by_id")()
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid})
}

func (r *mongoUserRepo) GetByUsername(ctx context.Context, username string) (*User, error) {
	defer observeDB(ctx, "users.get_by_username")()
	return r.findOne(ctx, bson.M{"$or": bson.A{
		bson.M{"username_lower": strings.ToLower(username)},
		bson.M{"username_lower": bson.M{"$exists": false}, "username": username},
	}})
}

func (r *mongoUserRepo) UpsertOAuthUser(ctx context.Context, subject, email string) (*User, error) {
	defer observeDB(ctx, "users.upsert_oauth")()
	username := oauthUsername(subject, email)
	onInsert := bson.M{
		"username":       username,
		"username_lower": strings.ToLower(username),
		"password":       "",
		"created_at":     time.Now().UTC(),
	}
	update := bson.M{"$setOnInsert": onInsert}
	if email != "" {
		update["$set"] = bson.M{"email": email}
	} else {
		onInsert["email"] = ""
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc userDocument
	if err := r.coll.FindOneAndUpdate(ctx, bson.M{"oauth_subject": subject}, update, opts).Decode(&doc); err != nil {
		return nil, fmt.Errorf("upsert oauth user: %w", err)
	}
	return doc.toUser(), nil
}

func (r *mongoUserRepo) updateByID(ctx context.Context, id string, set bson.M) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoUserRepo) UpdateProfile(ctx context.Context, id, name, email string) error {
	defer observeDB(ctx, "users.update_profile")()
	return r.updateByID(ctx, id, bson.M{"name": name, "email": email})
}

func (r *mongoUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	defer observeDB(ctx, "users.update_password")()
	return r.updateByID(ctx, id, bson.M{"password": passwordHash})
}

// eventDocument mirrors the stored shape. Recurrence may be null in older
// documents.
type eventDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	UserID      string             `bson:"user_id"`
	Title       string             `bson:"title"`
	Start       string             `bson:"start"`
	End         string             `bson:"end"`
	Description string             `bson:"description"`
	Type        string             `bson:"type"`
	Recurrence  *string            `bson:"recurrence"`
	Priority    string             `bson:"priority"`
	Completed   bool               `bson:"completed"`
	CreatedAt   time.Time          `bson:"created_at"`
}

func (d eventDocument) toEvent() Event {
	ev := Event{
		ID:          d.ID.Hex(),
		OwnerID:     d.UserID,
		Title:       d.Title,
		Start:       d.Start,
		End:         d.End,
		Description: d.Description,
		Type:        EventType(d.Type),
		Priority:    Priority(d.Priority),
		Completed:   d.Completed,
		CreatedAt:   d.CreatedAt,
		Recurrence:  RecurrenceNone,
	}
	if ev.Type == "" {
		ev.Type = TypeEvent
	}
	if d.Recurrence != nil {
		if rec, ok := ParseRecurrence(*d.Recurrence); ok {
			ev.Recurrence = rec
		} else {
			ev.Recurrence = Recurrence(*d.Recurrence)
		}
	}
	return ev
}

type mongoEventRepo struct {
	coll *mongo.Collection
}

func (r *mongoEventRepo) Create(ctx context.Context, event Event) (*Event, error) {
	defer observeDB(ctx, "events.create")()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.Recurrence == "" {
		event.Recurrence = RecurrenceNone
	}
	rec := string(event.Recurrence)
	res, err := r.coll.InsertOne(ctx, eventDocument{
		UserID:      event.OwnerID,
		Title:       event.Title,
		Start:       event.Start,
		End:         event.End,
		Description: event.Description,
		Type:        string(event.Type),
		Recurrence:  &rec,
		Priority:    string(event.Priority),
		Completed:   event.Completed,
		CreatedAt:   event.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	event.ID = res.InsertedID.(primitive.ObjectID).Hex()
	return &event, nil
}

func (r *mongoEventRepo) GetByID(ctx context.Context, ownerID, id string) (*Event, error) {
	defer observeDB(ctx, "events.get_by_id")()
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var doc eventDocument
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid, "user_id": ownerID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	ev := doc.toEvent()
	return &ev, nil
}

func (r *mongoEventRepo) ListByOwner(ctx context.Context, ownerID string) ([]Event, error) {
	defer observeDB(ctx, "events.list_by_owner")()
	cur, err := r.coll.Find(ctx, bson.M{"user_id": ownerID}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	var docs []eventDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	out := make([]Event, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toEvent())
	}
	return out, nil
}

func (r *mongoEventRepo) Update(ctx context.Context, ownerID, id string, patch EventPatch) error {
	defer observeDB(ctx, "events.update")()
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	filter := bson.M{"_id": oid, "user_id": ownerID}
	set := patchDocument(patch)
	if len(set) == 0 {
		n, err := r.coll.CountDocuments(ctx, filter)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	}
	res, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoEventRepo) Delete(ctx context.Context, ownerID, id string) error {
	defer observeDB(ctx, "events.delete")()
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid, "user_id": ownerID})
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func patchDocument(p EventPatch) bson.M {
	set := bson.M{}
	if p.Title != nil {
		set["title"] = *p.Title
	}
	if p.Start != nil {
		set["start"] = *p.Start
	}
	if p.End != nil {
		set["end"] = *p.End
	}
	if p.Description != nil {
		set["description"] = *p.Description
	}
	if p.Type != nil {
		set["type"] = string(*p.Type)
	}
	if p.Recurrence != nil {
		set["recurrence"] = string(*p.Recurrence)
	}
	if p.Priority != nil {
		set["priority"] = string(*p.Priority)
	}
	if p.Completed != nil {
		set["completed"] = *p.Completed
	}
	return set
}
