package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iliyamo/event-checkin/internal/model"
)

// Collection names used by MongoStore.
const (
	eventsCollection        = "events"
	registrationsCollection = "registrations"
	tokensCollection        = "checkin_tokens"
)

// MongoStore implements Store on MongoDB.  When transactions is true the
// registration and token documents are written inside a session
// transaction, which requires a replica set.  Otherwise the token is
// written first so that a failure in between can leave at most an orphan
// token, never a registration without one.
type MongoStore struct {
	client        *mongo.Client
	events        *mongo.Collection
	registrations *mongo.Collection
	tokens        *mongo.Collection
	transactions  bool
}

// NewMongoStore returns a store backed by the collections of db.
func NewMongoStore(db *mongo.Database, transactions bool) *MongoStore {
	return &MongoStore{
		client:        db.Client(),
		events:        db.Collection(eventsCollection),
		registrations: db.Collection(registrationsCollection),
		tokens:        db.Collection(tokensCollection),
		transactions:  transactions,
	}
}

// EnsureIndexes creates the indexes the store relies on.  Creating an
// index that already exists with the same definition is a no-op.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	if _, err := s.registrations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "check_in_token", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "event_id", Value: 1}, {Key: "submitted_at", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("registrations indexes: %w", err)
	}
	if _, err := s.tokens.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "registration_id", Value: 1}},
		Options: unique,
	}); err != nil {
		return fmt.Errorf("checkin_tokens indexes: %w", err)
	}
	if _, err := s.events.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "starts_at", Value: 1}},
	}); err != nil {
		return fmt.Errorf("events indexes: %w", err)
	}
	return nil
}

func mongoWriteErr(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return ErrConflict
	}
	return err
}

// normalizeDocument turns the primitive.A values the driver produces for
// arrays inside an untyped map back into []string.
func normalizeDocument(d model.FormData) {
	for k, v := range d {
		if arr, ok := v.(primitive.A); ok {
			d[k] = []any(arr)
		}
	}
	d.Normalize()
}

func (s *MongoStore) CreateEvent(ctx context.Context, e *model.Event) error {
	_, err := s.events.InsertOne(ctx, e)
	return mongoWriteErr(err)
}

func (s *MongoStore) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	var e model.Event
	err := s.events.FindOne(ctx, bson.M{"_id": id}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *MongoStore) ListEvents(ctx context.Context) ([]model.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "starts_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.events.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	out := make([]model.Event, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) CreateRegistration(ctx context.Context, r *model.Registration) error {
	if _, err := s.GetEvent(ctx, r.EventID); err != nil {
		return err
	}
	tok := r.Token()

	if s.transactions {
		sess, err := s.client.StartSession()
		if err != nil {
			return err
		}
		defer sess.EndSession(ctx)
		_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
			if _, err := s.tokens.InsertOne(sc, tok); err != nil {
				return nil, err
			}
			if _, err := s.registrations.InsertOne(sc, r); err != nil {
				return nil, err
			}
			return nil, nil
		})
		return mongoWriteErr(err)
	}

	if _, err := s.tokens.InsertOne(ctx, tok); err != nil {
		return mongoWriteErr(err)
	}
	if _, err := s.registrations.InsertOne(ctx, r); err != nil {
		// Best effort: a leftover token resolves to no registration and is
		// reported as not found on lookup.
		_, _ = s.tokens.DeleteOne(context.WithoutCancel(ctx), bson.M{"_id": tok.Token})
		return mongoWriteErr(err)
	}
	return nil
}

func (s *MongoStore) findRegistration(ctx context.Context, filter bson.M) (*model.Registration, error) {
	var r model.Registration
	err := s.registrations.FindOne(ctx, filter).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrRegistrationNotFound
	}
	if err != nil {
		return nil, err
	}
	normalizeDocument(r.FormData)
	return &r, nil
}

func (s *MongoStore) GetRegistration(ctx context.Context, eventID, id string) (*model.Registration, error) {
	return s.findRegistration(ctx, bson.M{"_id": id, "event_id": eventID})
}

func (s *MongoStore) GetRegistrationByToken(ctx context.Context, eventID, token string) (*model.Registration, error) {
	var tok model.CheckInToken
	err := s.tokens.FindOne(ctx, bson.M{"_id": token, "event_id": eventID}).Decode(&tok)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrRegistrationNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.findRegistration(ctx, bson.M{"_id": tok.RegistrationID})
}

func (s *MongoStore) ListRegistrations(ctx context.Context, eventID string) ([]model.Registration, error) {
	opts := options.Find().SetSort(bson.D{{Key: "submitted_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.registrations.Find(ctx, bson.M{"event_id": eventID}, opts)
	if err != nil {
		return nil, err
	}
	out := make([]model.Registration, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	for i := range out {
		normalizeDocument(out[i].FormData)
	}
	return out, nil
}

// MarkCheckedIn matches on checked_in=false so that concurrent scans of the
// same token are serialized by the server; only one matches.
func (s *MongoStore) MarkCheckedIn(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.registrations.UpdateOne(ctx,
		bson.M{"_id": id, "checked_in": false},
		bson.M{"$set": bson.M{"checked_in": true, "check_in_time": at.UTC()}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// OverrideCheckIn sets the flag without the checked_in guard.  Forcing a
// check-in uses a pipeline update so a registration that is already
// checked in keeps its original check_in_time.
func (s *MongoStore) OverrideCheckIn(ctx context.Context, id string, checkedIn bool, at time.Time) error {
	var update any = bson.M{"$set": bson.M{"checked_in": false, "check_in_time": nil}}
	if checkedIn {
		update = mongo.Pipeline{{{Key: "$set", Value: bson.D{
			{Key: "check_in_time", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$eq", Value: bson.A{"$checked_in", true}}},
				"$check_in_time",
				at.UTC(),
			}}}},
			{Key: "checked_in", Value: true},
		}}}}
	}
	res, err := s.registrations.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrRegistrationNotFound
	}
	return nil
}
