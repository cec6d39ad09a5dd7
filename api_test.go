package collab

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestStoreApiSessions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == "POST" && r.URL.Path == "/sessions":
			args := &CreateSessionArgs{}
			json.NewDecoder(r.Body).Decode(args)
			assert.Equal(t, r.Header.Get("Authorization"), "Bearer test-jwt")
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(&SessionRecord{
				SessionId: "s1",
				Name:      args.Name,
				Language:  args.Language,
				ShareCode: "ABC123",
			})
		case r.Method == "GET" && r.URL.Path == "/sessions":
			json.NewEncoder(w).Encode([]*SessionRecord{
				{SessionId: "s1", Name: "one"},
				{SessionId: "s2", Name: "two"},
			})
		case r.Method == "GET" && r.URL.Path == "/sessions/missing":
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, "session not found")
		case r.Method == "POST" && r.URL.Path == "/sessions/join-by-code/ABC123":
			json.NewEncoder(w).Encode(&SessionRecord{
				SessionId: "s1",
				Name:      "one",
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	storeApi := NewStoreApi(server.URL)
	defer storeApi.Close()
	storeApi.SetByJwt("test-jwt")

	record, err := storeApi.CreateSessionSync(&CreateSessionArgs{
		Name:     "one",
		Language: "go",
	})
	assert.Equal(t, err, nil)
	assert.Equal(t, record.SessionId, "s1")
	assert.Equal(t, record.Language, "go")
	assert.Equal(t, record.ShareCode, "ABC123")

	sessions, err := storeApi.ListSessionsSync()
	assert.Equal(t, err, nil)
	assert.Equal(t, len(*sessions), 2)
	assert.Equal(t, (*sessions)[1].Name, "two")

	joined, err := storeApi.JoinSessionByCodeSync("ABC123")
	assert.Equal(t, err, nil)
	assert.Equal(t, joined.SessionId, "s1")

	// the error body is the error message
	_, err = storeApi.GetSessionSync("missing")
	assert.NotEqual(t, err, nil)
	assert.Equal(t, err.Error(), "session not found")
}

func TestStoreApiAsyncCallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(&SessionRecord{
			SessionId: "s1",
		})
	}))
	defer server.Close()

	storeApi := NewStoreApi(server.URL)
	defer storeApi.Close()

	callback, c := NewBlockingApiCallback[*SessionRecord](storeApi.ctx)
	storeApi.GetSession("s1", callback)
	result := <-c
	assert.Equal(t, result.Error, nil)
	assert.Equal(t, result.Result.SessionId, "s1")
}
