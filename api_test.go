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

func TestApiAttachesSession(t *testing.T) {
	eventId := NewId()

	var gotAuth string
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string]any{
			"event": map[string]any{
				"id":         eventId,
				"title":      "picnic",
				"updated_at": time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
			},
		})
	}))
	defer server.Close()

	holder := testSessionHolder()
	api := NewGatherApiWithContext(context.Background(), server.URL, holder)
	defer api.Close()

	result, err := api.GetEventSync(eventId)
	assert.Equal(t, err, nil)
	assert.NotEqual(t, len(result.Event), 0)
	assert.Equal(t, gotAuth, "Bearer test-jwt")
	assert.Equal(t, gotPath, "/event/"+eventId.String())
}

func TestApiNonOkStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session expired", http.StatusUnauthorized)
	}))
	defer server.Close()

	api := NewGatherApiWithContext(context.Background(), server.URL, newSessionHolder())
	defer api.Close()

	_, err := api.ListEventsSync()
	assert.NotEqual(t, err, nil)
	assert.Equal(t, err.Error(), "session expired")
}

func TestApiAsyncCallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"events": []any{},
		})
	}))
	defer server.Close()

	api := NewGatherApiWithContext(context.Background(), server.URL, newSessionHolder())
	defer api.Close()

	callback, c := NewBlockingApiCallback[*ListEventsResult]()
	api.ListEvents(callback)

	select {
	case result := <-c:
		assert.Equal(t, result.Error, nil)
	case <-time.After(5 * time.Second):
		t.Fatal("no callback")
	}
}
