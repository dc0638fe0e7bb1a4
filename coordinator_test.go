package gather

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

// a canned mutation backend: each path returns the configured body
type fakeBackend struct {
	responses map[string]any
	requests  map[string]int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		responses: map[string]any{},
		requests:  map[string]int{},
	}
}

func (self *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	self.requests[r.URL.Path] += 1
	response, ok := self.responses[r.URL.Path]
	if !ok {
		http.Error(w, "no such route", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func newTestCoordinator(t *testing.T, backend *fakeBackend) (*MutationCoordinator, *EntityStore, func()) {
	server := httptest.NewServer(backend)

	api := NewGatherApiWithContext(context.Background(), server.URL, testSessionHolder())
	store := NewEntityStore()
	coordinator := NewMutationCoordinator(api, store)

	return coordinator, store, func() {
		api.Close()
		server.Close()
	}
}

func TestCoordinatorCreateEventApplies(t *testing.T) {
	eventId := NewId()
	hostId := NewId()
	t1 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	backend := newFakeBackend()
	backend.responses["/event/create"] = map[string]any{
		"event": map[string]any{
			"id":         eventId,
			"host_id":    hostId,
			"title":      "picnic",
			"updated_at": t1,
		},
	}

	coordinator, store, stop := newTestCoordinator(t, backend)
	defer stop()

	event, err := coordinator.CreateEvent(&CreateEventArgs{
		Title: "picnic",
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, event.EventId, eventId)

	cached, ok := store.GetEvent(eventId)
	assert.Equal(t, ok, true)
	assert.Equal(t, cached.Title, "picnic")
	assert.Equal(t, cached.HostId, hostId)
}

func TestCoordinatorMutationErrorLeavesStoreUntouched(t *testing.T) {
	backend := newFakeBackend()
	backend.responses["/event/create"] = map[string]any{
		"error": map[string]any{
			"code":    "quota",
			"message": "too many events",
		},
	}

	coordinator, store, stop := newTestCoordinator(t, backend)
	defer stop()

	version := store.Version(EntityEvent)

	_, err := coordinator.CreateEvent(&CreateEventArgs{
		Title: "picnic",
	})
	assert.NotEqual(t, err, nil)

	mutationErr, ok := err.(*MutationError)
	assert.Equal(t, ok, true)
	assert.Equal(t, mutationErr.Code, "quota")

	assert.Equal(t, len(store.Events()), 0)
	assert.Equal(t, store.Version(EntityEvent), version)
}

func TestCoordinatorTransportErrorLeavesStoreUntouched(t *testing.T) {
	// no /event/delete route configured, so the call fails with a
	// transport-level error
	backend := newFakeBackend()

	coordinator, store, stop := newTestCoordinator(t, backend)
	defer stop()

	err := coordinator.DeleteEvent(&DeleteEventArgs{
		EventId: NewId(),
	})
	assert.NotEqual(t, err, nil)
	assert.Equal(t, len(store.Events()), 0)
}

func TestCoordinatorRsvpRefreshFailureIsAbsorbed(t *testing.T) {
	eventId := NewId()
	userId := NewId()
	participantId := NewId()
	t1 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	// the rsvp succeeds; the follow-up event read has no route and
	// fails. the rsvp result must still stand.
	backend := newFakeBackend()
	backend.responses["/event/rsvp"] = map[string]any{
		"participant": map[string]any{
			"id":         participantId,
			"event_id":   eventId,
			"user_id":    userId,
			"status":     "going",
			"updated_at": t1,
		},
	}

	coordinator, _, stop := newTestCoordinator(t, backend)
	defer stop()

	participant, err := coordinator.SetRsvp(&SetRsvpArgs{
		EventId: eventId,
		Status:  RsvpGoing,
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, participant.Status, RsvpGoing)
	assert.Equal(t, participant.UserId, userId)
}

func TestCoordinatorSendMessageBumpsConversation(t *testing.T) {
	conversationId := NewId()
	messageId := NewId()
	senderId := NewId()
	t1 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)

	backend := newFakeBackend()
	backend.responses["/conversation/message/send"] = map[string]any{
		"message": map[string]any{
			"id":              messageId,
			"conversation_id": conversationId,
			"sender_id":       senderId,
			"body":            "see you there",
			"created_at":      t2,
			"updated_at":      t2,
		},
		"conversation": map[string]any{
			"id":              conversationId,
			"last_message_at": t2,
			"updated_at":      t2,
		},
	}

	coordinator, store, stop := newTestCoordinator(t, backend)
	defer stop()

	// seed the conversation with an older last_message_at
	applyRow(t, store, ChangeInsert, EntityConversation, mustMarshal(map[string]any{
		"id":              conversationId,
		"last_message_at": t1,
		"updated_at":      t1,
	}))

	message, err := coordinator.SendMessage(&SendMessageArgs{
		ConversationId: conversationId,
		Body:           "see you there",
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, message.MessageId, messageId)

	conversation, ok := store.GetConversation(conversationId)
	assert.Equal(t, ok, true)
	assert.Equal(t, conversation.LastMessageAt, t2)

	cached, ok := store.GetMessage(messageId)
	assert.Equal(t, ok, true)
	assert.Equal(t, cached.Body, "see you there")
}

func TestCoordinatorPushReplayAfterMutationIsNoop(t *testing.T) {
	notificationId := NewId()
	userId := NewId()
	t1 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	row := map[string]any{
		"id":         notificationId,
		"user_id":    userId,
		"kind":       "rsvp",
		"read":       true,
		"updated_at": t1,
	}

	backend := newFakeBackend()
	backend.responses["/notification/read"] = map[string]any{
		"notification": row,
	}

	coordinator, store, stop := newTestCoordinator(t, backend)
	defer stop()

	_, err := coordinator.MarkNotificationRead(&MarkNotificationReadArgs{
		NotificationId: notificationId,
	})
	assert.Equal(t, err, nil)

	version := store.Version(EntityNotification)

	// the push event for the same mutation arrives moments later and
	// is absorbed by the idempotent merge
	decoder := NewChangeDecoder(store, newFakePointReader())
	decoder.HandlePush(NewScope(EntityNotification, userId), &PushEnvelope{
		Event:   "notification.update",
		Payload: mustMarshal(row),
	})

	assert.Equal(t, store.Version(EntityNotification), version)
}
