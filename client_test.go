package collab_test

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/assert/v2"

	"codecollab.dev/collab"
	"codecollab.dev/collab/hub"
)

func init() {
	gin.SetMode(gin.TestMode)
	flag.Set("logtostderr", "true")
	flag.Set("stderrthreshold", "INFO")
	flag.Set("v", "0")
}

func waitFor(t *testing.T, label string, condition func() bool) {
	t.Helper()
	end := time.Now().Add(10 * time.Second)
	for time.Now().Before(end) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", label)
}

type hubFixture struct {
	hub    *hub.Hub
	server *httptest.Server
	hubUrl string
}

func startHub(ctx context.Context) *hubFixture {
	h := hub.NewHubWithDefaults(ctx)
	server := httptest.NewServer(h.Router())
	return &hubFixture{
		hub:    h,
		server: server,
		hubUrl: "ws" + strings.TrimPrefix(server.URL, "http"),
	}
}

func (self *hubFixture) close() {
	self.server.Close()
	self.hub.Close()
}

// fakeStore is a stand-in document store that records session updates.
type fakeStore struct {
	mutex   sync.Mutex
	record  *collab.SessionRecord
	updates []*collab.UpdateSessionArgs
}

func (self *fakeStore) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case "GET":
			self.mutex.Lock()
			record := self.record
			self.mutex.Unlock()
			json.NewEncoder(w).Encode(record)
		case "PUT":
			update := &collab.UpdateSessionArgs{}
			json.NewDecoder(r.Body).Decode(update)
			self.mutex.Lock()
			self.updates = append(self.updates, update)
			self.mutex.Unlock()
			json.NewEncoder(w).Encode(self.record)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func (self *fakeStore) getUpdates() []*collab.UpdateSessionArgs {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	updates := make([]*collab.UpdateSessionArgs, len(self.updates))
	copy(updates, self.updates)
	return updates
}

func newClient(ctx context.Context, fixture *hubFixture, sessionId string, username string) *collab.SessionClient {
	auth := &collab.SessionAuth{
		Username: username,
	}
	return collab.NewSessionClientWithDefaults(ctx, fixture.hubUrl, sessionId, auth, nil)
}

func TestSessionCodeRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fixture := startHub(ctx)
	defer fixture.close()

	alice := newClient(ctx, fixture, "s1", "alice")
	defer alice.Close()
	bob := newClient(ctx, fixture, "s1", "bob")
	defer bob.Close()

	waitFor(t, "both connected", func() bool {
		return alice.Connected() && bob.Connected()
	})
	waitFor(t, "roster of two", func() bool {
		return len(alice.Participants()) == 2 && len(bob.Participants()) == 2
	})

	alice.SetLocalText("package main\n\nfunc main() {}\n")
	// the local buffer updates before the broadcast
	assert.Equal(t, alice.Text(), "package main\n\nfunc main() {}\n")

	waitFor(t, "bob received the edit", func() bool {
		return bob.Text() == "package main\n\nfunc main() {}\n"
	})
	// alice's own broadcast never comes back to overwrite her buffer
	assert.Equal(t, alice.Text(), "package main\n\nfunc main() {}\n")

	bob.SetLanguage("go")
	waitFor(t, "alice received the language", func() bool {
		return alice.Language() == "go"
	})
}

func TestSessionRoster(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fixture := startHub(ctx)
	defer fixture.close()

	alice := newClient(ctx, fixture, "s2", "alice")
	defer alice.Close()

	waitFor(t, "alice sees herself", func() bool {
		return len(alice.Participants()) == 1
	})
	participants := alice.Participants()
	assert.Equal(t, participants[0].Id, alice.ConnectionId())
	assert.Equal(t, participants[0].Username, "alice")
	assert.NotEqual(t, participants[0].Color, "")

	bob := newClient(ctx, fixture, "s2", "bob")

	waitFor(t, "roster of two", func() bool {
		return len(alice.Participants()) == 2
	})

	bob.Close()
	waitFor(t, "roster back to one", func() bool {
		return len(alice.Participants()) == 1
	})
	assert.Equal(t, alice.Participants()[0].Username, "alice")
}

func TestSessionCursorMarkers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fixture := startHub(ctx)
	defer fixture.close()

	alice := newClient(ctx, fixture, "s3", "alice")
	defer alice.Close()
	bob := newClient(ctx, fixture, "s3", "bob")
	defer bob.Close()

	waitFor(t, "roster of two", func() bool {
		return len(alice.Participants()) == 2 && len(bob.Participants()) == 2
	})

	alice.MoveCursor(3, 7)

	waitFor(t, "bob sees alice's cursor", func() bool {
		return len(bob.Markers()) == 1
	})
	marker := bob.Markers()[0]
	assert.Equal(t, marker.ParticipantId, alice.ConnectionId())
	assert.Equal(t, marker.Username, "alice")
	assert.Equal(t, marker.Position, collab.CursorPosition{Line: 3, Column: 7})

	// alice's own cursor is never a marker for alice
	assert.Equal(t, len(alice.Markers()), 0)
}

func TestSessionChat(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fixture := startHub(ctx)
	defer fixture.close()

	alice := newClient(ctx, fixture, "s4", "alice")
	defer alice.Close()
	bob := newClient(ctx, fixture, "s4", "bob")
	defer bob.Close()

	waitFor(t, "roster of two", func() bool {
		return len(alice.Participants()) == 2 && len(bob.Participants()) == 2
	})

	alice.SendChat("hello bob")

	// the sender appends locally since the hub never echoes chat back
	assert.Equal(t, len(alice.ChatMessages()), 1)
	assert.Equal(t, alice.ChatMessages()[0].Content, "hello bob")
	assert.Equal(t, alice.ChatMessages()[0].Username, "alice")

	waitFor(t, "bob received chat", func() bool {
		return len(bob.ChatMessages()) == 1
	})
	message := bob.ChatMessages()[0]
	assert.Equal(t, message.Content, "hello bob")
	assert.Equal(t, message.Username, "alice")
	assert.Equal(t, message.ParticipantId, alice.ConnectionId())

	bob.SendChat("hey alice")
	waitFor(t, "alice received reply", func() bool {
		return len(alice.ChatMessages()) == 2
	})
	assert.Equal(t, alice.ChatMessages()[1].Username, "bob")
}

func TestSessionReconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fixture := startHub(ctx)
	defer fixture.close()

	settings := collab.DefaultSessionClientSettings()
	settings.Transport.ReconnectTimeout = 100 * time.Millisecond
	auth := &collab.SessionAuth{
		Username: "alice",
	}
	alice := collab.NewSessionClient(ctx, fixture.hubUrl, "s5", auth, nil, collab.SystemClock(), settings)
	defer alice.Close()

	waitFor(t, "connected", func() bool {
		return alice.Connected() && len(alice.Participants()) == 1
	})
	firstId := alice.ConnectionId()

	fixture.server.CloseClientConnections()

	// a reconnect is a brand new identity, not a resumed one
	waitFor(t, "reconnected with a new id", func() bool {
		return alice.Connected() && !alice.ConnectionId().IsZero() && alice.ConnectionId() != firstId
	})
	waitFor(t, "roster repopulated", func() bool {
		participants := alice.Participants()
		return len(participants) == 1 && participants[0].Id == alice.ConnectionId()
	})
}

func TestSessionFlushOnClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fixture := startHub(ctx)
	defer fixture.close()

	store := &fakeStore{
		record: &collab.SessionRecord{
			SessionId: "s6",
		},
	}
	storeServer := httptest.NewServer(store.handler())
	defer storeServer.Close()

	storeApi := collab.NewStoreApiWithContext(ctx, storeServer.URL)
	defer storeApi.Close()

	settings := collab.DefaultSessionClientSettings()
	// the debounce must not fire during the test
	settings.Save.SaveTimeout = 1 * time.Hour
	auth := &collab.SessionAuth{
		Username: "alice",
	}
	alice := collab.NewSessionClient(ctx, fixture.hubUrl, "s6", auth, storeApi, collab.SystemClock(), settings)

	waitFor(t, "connected", func() bool {
		return alice.Connected()
	})

	alice.SetLanguage("python")
	alice.SetLocalText("print('hi')")
	alice.Close()

	waitFor(t, "flush arrived", func() bool {
		updates := store.getUpdates()
		if len(updates) == 0 {
			return false
		}
		last := updates[len(updates)-1]
		return last.Code != nil && *last.Code == "print('hi')" &&
			last.Language != nil && *last.Language == "python"
	})
}
