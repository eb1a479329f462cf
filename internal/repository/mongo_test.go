package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func newMockMongo(t *testing.T) *mtest.T {
	t.Helper()
	return mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
}

func eventDoc() bson.D {
	return bson.D{
		{Key: "_id", Value: "ev-1"},
		{Key: "name", Value: "GopherCon"},
		{Key: "starts_at", Value: time.Date(2026, 6, 1, 18, 0, 0, 0, time.UTC)},
	}
}

func ns(mt *mtest.T, coll string) string { return mt.DB.Name() + "." + coll }

// commandNames lists the commands the store sent, in order.
func commandNames(mt *mtest.T) []string {
	var out []string
	for _, ev := range mt.GetAllStartedEvents() {
		out = append(out, ev.CommandName)
	}
	return out
}

func TestMongoMarkCheckedIn(t *testing.T) {
	mt := newMockMongo(t)

	mt.Run("first scan matches", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB, false)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		ok, err := s.MarkCheckedIn(context.Background(), "reg-1", time.Now())
		require.NoError(t, err)
		assert.True(t, ok)

		started := mt.GetStartedEvent()
		require.NotNil(t, started)
		filter := started.Command.Lookup("updates").Array().Index(0).Value().Document().Lookup("q").Document()
		assert.False(t, filter.Lookup("checked_in").Boolean())
	})

	mt.Run("already checked in does not match", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB, false)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))

		ok, err := s.MarkCheckedIn(context.Background(), "reg-1", time.Now())
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestMongoCreateRegistration(t *testing.T) {
	mt := newMockMongo(t)

	mt.Run("token then registration", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB, false)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns(mt, eventsCollection), mtest.FirstBatch, eventDoc()),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
		)

		require.NoError(t, s.CreateRegistration(context.Background(), testRegistration()))
		assert.Equal(t, []string{"find", "insert", "insert"}, commandNames(mt))
	})

	mt.Run("duplicate registration removes orphan token", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB, false)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns(mt, eventsCollection), mtest.FirstBatch, eventDoc()),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "E11000 duplicate key"}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
		)

		err := s.CreateRegistration(context.Background(), testRegistration())
		assert.ErrorIs(t, err, ErrConflict)

		started := mt.GetAllStartedEvents()
		require.Len(t, started, 4)
		del := started[3]
		assert.Equal(t, "delete", del.CommandName)
		assert.Equal(t, tokensCollection, del.Command.Lookup("delete").StringValue())
		q := del.Command.Lookup("deletes").Array().Index(0).Value().Document().Lookup("q").Document()
		assert.Equal(t, "tok-1", q.Lookup("_id").StringValue())
	})

	mt.Run("duplicate token writes nothing else", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB, false)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns(mt, eventsCollection), mtest.FirstBatch, eventDoc()),
			mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "E11000 duplicate key"}),
		)

		err := s.CreateRegistration(context.Background(), testRegistration())
		assert.ErrorIs(t, err, ErrConflict)
		assert.Equal(t, []string{"find", "insert"}, commandNames(mt))
	})

	mt.Run("unknown event", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB, false)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt, eventsCollection), mtest.FirstBatch))

		err := s.CreateRegistration(context.Background(), testRegistration())
		assert.ErrorIs(t, err, ErrEventNotFound)
	})

	mt.Run("inside a transaction", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB, true)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns(mt, eventsCollection), mtest.FirstBatch, eventDoc()),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			mtest.CreateSuccessResponse(),
		)

		require.NoError(t, s.CreateRegistration(context.Background(), testRegistration()))
		assert.Equal(t, []string{"find", "insert", "insert", "commitTransaction"}, commandNames(mt))
	})
}

func TestMongoGetRegistrationByToken(t *testing.T) {
	mt := newMockMongo(t)

	mt.Run("lists come back as strings", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB, false)
		checked := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns(mt, tokensCollection), mtest.FirstBatch, bson.D{
				{Key: "_id", Value: "tok-1"},
				{Key: "event_id", Value: "ev-1"},
				{Key: "registration_id", Value: "reg-1"},
			}),
			mtest.CreateCursorResponse(0, ns(mt, registrationsCollection), mtest.FirstBatch, bson.D{
				{Key: "_id", Value: "reg-1"},
				{Key: "event_id", Value: "ev-1"},
				{Key: "form_data", Value: bson.D{
					{Key: "email", Value: "a@example.com"},
					{Key: "topics", Value: bson.A{"Go", "Rust"}},
					{Key: "rodo", Value: true},
				}},
				{Key: "check_in_token", Value: "tok-1"},
				{Key: "checked_in", Value: true},
				{Key: "check_in_time", Value: checked},
			}),
		)

		got, err := s.GetRegistrationByToken(context.Background(), "ev-1", "tok-1")
		require.NoError(t, err)
		assert.Equal(t, "reg-1", got.ID)
		assert.Equal(t, []string{"Go", "Rust"}, got.FormData["topics"])
		assert.Equal(t, true, got.FormData["rodo"])
		require.NotNil(t, got.CheckInTime)
		assert.True(t, got.CheckInTime.Equal(checked))
	})

	mt.Run("unknown token", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB, false)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns(mt, tokensCollection), mtest.FirstBatch))

		_, err := s.GetRegistrationByToken(context.Background(), "ev-1", "nope")
		assert.ErrorIs(t, err, ErrRegistrationNotFound)
	})
}

func TestMongoOverrideCheckIn(t *testing.T) {
	mt := newMockMongo(t)

	mt.Run("force keeps an existing time", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB, false)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		require.NoError(t, s.OverrideCheckIn(context.Background(), "reg-1", true, time.Now()))

		started := mt.GetStartedEvent()
		require.NotNil(t, started)
		u := started.Command.Lookup("updates").Array().Index(0).Value().Document().Lookup("u")
		stages, ok := u.ArrayOK()
		require.True(t, ok, "force must be a pipeline update")
		set := stages.Index(0).Value().Document().Lookup("$set").Document()
		cond := set.Lookup("check_in_time", "$cond").Array()
		assert.Equal(t, "$check_in_time", cond.Index(1).Value().StringValue())
	})

	mt.Run("unknown registration", func(mt *mtest.T) {
		s := NewMongoStore(mt.DB, false)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))

		err := s.OverrideCheckIn(context.Background(), "nope", false, time.Now())
		assert.ErrorIs(t, err, ErrRegistrationNotFound)
	})
}
