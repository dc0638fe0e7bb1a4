package gather

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

type fakePointReader struct {
	profiles map[Id]json.RawMessage
	fetches  int
	fail     bool
}

func newFakePointReader() *fakePointReader {
	return &fakePointReader{
		profiles: map[Id]json.RawMessage{},
	}
}

func (self *fakePointReader) addProfile(profileId Id, name string) {
	self.profiles[profileId] = mustMarshal(map[string]any{
		"id":         profileId,
		"name":       name,
		"handle":     name,
		"updated_at": time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
	})
}

func (self *fakePointReader) GetProfileSync(profileId Id) (*GetProfileResult, error) {
	self.fetches += 1
	if self.fail {
		return nil, errors.New("unavailable")
	}
	return &GetProfileResult{
		Profile: self.profiles[profileId],
	}, nil
}

func TestDecodeEnvelope(t *testing.T) {
	store := NewEntityStore()
	decoder := NewChangeDecoder(store, newFakePointReader())

	eventId := NewId()
	t1 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	change, err := decoder.Decode(&PushEnvelope{
		Event: "event.insert",
		Payload: mustMarshal(map[string]any{
			"id":         eventId,
			"title":      "picnic",
			"updated_at": t1,
		}),
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, change.Kind, ChangeInsert)
	assert.Equal(t, change.EntityType, EntityEvent)
	assert.Equal(t, change.EntityId, eventId)
	assert.Equal(t, change.UpdatedAt, t1)

	// deletes carry only the ids
	parentId := NewId()
	commentId := NewId()
	change, err = decoder.Decode(&PushEnvelope{
		Event: "comment.delete",
		Payload: mustMarshal(map[string]any{
			"id":       commentId,
			"event_id": parentId,
		}),
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, change.Kind, ChangeDelete)
	assert.Equal(t, change.EntityType, EntityEventComment)
	assert.Equal(t, change.EntityId, commentId)
	assert.Equal(t, change.ParentId, parentId)

	_, err = decoder.Decode(&PushEnvelope{Event: "noseparator"})
	assert.NotEqual(t, err, nil)

	_, err = decoder.Decode(&PushEnvelope{Event: "unicorn.insert"})
	assert.NotEqual(t, err, nil)

	_, err = decoder.Decode(&PushEnvelope{Event: "event.upsert"})
	assert.NotEqual(t, err, nil)
}

func TestHandlePushFetchesMissingProfile(t *testing.T) {
	store := NewEntityStore()
	reader := newFakePointReader()
	decoder := NewChangeDecoder(store, reader)

	senderId := NewId()
	reader.addProfile(senderId, "ada")

	messageId := NewId()
	conversationId := NewId()
	scope := NewScope(EntityMessage, conversationId)

	decoder.HandlePush(scope, &PushEnvelope{
		Event: "message.insert",
		Payload: mustMarshal(map[string]any{
			"id":              messageId,
			"conversation_id": conversationId,
			"sender_id":       senderId,
			"body":            "on my way",
			"updated_at":      time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		}),
	})

	message, ok := store.GetMessage(messageId)
	assert.Equal(t, ok, true)
	assert.Equal(t, message.Body, "on my way")
	assert.Equal(t, reader.fetches, 1)

	profile, ok := store.GetProfile(senderId)
	assert.Equal(t, ok, true)
	assert.Equal(t, profile.Name, "ada")

	// the profile is cached now, so the next push does not refetch
	decoder.HandlePush(scope, &PushEnvelope{
		Event: "message.insert",
		Payload: mustMarshal(map[string]any{
			"id":              NewId(),
			"conversation_id": conversationId,
			"sender_id":       senderId,
			"body":            "here",
			"updated_at":      time.Date(2026, 5, 1, 12, 1, 0, 0, time.UTC),
		}),
	})
	assert.Equal(t, reader.fetches, 1)
}

func TestHandlePushUsesEmbeddedProfile(t *testing.T) {
	store := NewEntityStore()
	reader := newFakePointReader()
	reader.fail = true
	decoder := NewChangeDecoder(store, reader)

	actorId := NewId()
	notificationId := NewId()
	userId := NewId()

	decoder.HandlePush(NewScope(EntityNotification, userId), &PushEnvelope{
		Event: "notification.insert",
		Payload: mustMarshal(map[string]any{
			"id":         notificationId,
			"user_id":    userId,
			"kind":       "friend_request",
			"actor_id":   actorId,
			"updated_at": time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
			"actor": map[string]any{
				"id":         actorId,
				"name":       "Grace",
				"handle":     "grace",
				"updated_at": time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
			},
		}),
	})

	// the embedded row satisfied the ref without any fetch
	assert.Equal(t, reader.fetches, 0)

	_, ok := store.GetNotification(notificationId)
	assert.Equal(t, ok, true)
	profile, ok := store.GetProfile(actorId)
	assert.Equal(t, ok, true)
	assert.Equal(t, profile.Handle, "grace")
}

func TestHandlePushDropsOnFailedFetch(t *testing.T) {
	store := NewEntityStore()
	reader := newFakePointReader()
	reader.fail = true
	decoder := NewChangeDecoder(store, reader)

	messageId := NewId()
	conversationId := NewId()

	decoder.HandlePush(NewScope(EntityMessage, conversationId), &PushEnvelope{
		Event: "message.insert",
		Payload: mustMarshal(map[string]any{
			"id":              messageId,
			"conversation_id": conversationId,
			"sender_id":       NewId(),
			"body":            "lost",
			"updated_at":      time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		}),
	})

	// the event is dropped whole, never half-applied
	_, ok := store.GetMessage(messageId)
	assert.Equal(t, ok, false)
}
