package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/golang/glog"

	"codecollab.dev/collab"
)

// participant display colors, assigned round-robin in join order and stable
// for the life of the connection
var participantColors = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#FFA07A",
	"#98D8C8", "#F7DC6F", "#BB8FCE", "#85C1E2",
}

type HubSettings struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingTimeout     time.Duration
	ReadLimit       int64
	SendBufferSize  int
	RelayBufferSize int
}

func DefaultHubSettings() *HubSettings {
	return &HubSettings{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingTimeout:     54 * time.Second,
		ReadLimit:       1024 * 1024,
		SendBufferSize:  256,
		RelayBufferSize: 256,
	}
}

// Hub relays envelopes between the clients of each session. It owns no
// document state: the clients hold the authoritative buffers and the
// document store holds the resting copies. The hub's only state is who is
// connected where.
type Hub struct {
	ctx    context.Context
	cancel context.CancelFunc

	settings *HubSettings

	register   chan *client
	unregister chan *client
	relay      chan *relayMessage

	mutex    sync.RWMutex
	sessions map[string]*session
}

type relayMessage struct {
	sessionId string
	message   []byte
	sender    *client
}

// session is one collaborative document's connected client set
type session struct {
	id string

	mutex    sync.RWMutex
	clients  map[collab.Id]*client
	order    []collab.Id
	colorSeq int
}

func NewHubWithDefaults(ctx context.Context) *Hub {
	return NewHub(ctx, DefaultHubSettings())
}

func NewHub(ctx context.Context, settings *HubSettings) *Hub {
	cancelCtx, cancel := context.WithCancel(ctx)
	h := &Hub{
		ctx:        cancelCtx,
		cancel:     cancel,
		settings:   settings,
		register:   make(chan *client),
		unregister: make(chan *client),
		relay:      make(chan *relayMessage, settings.RelayBufferSize),
		sessions:   map[string]*session{},
	}
	go h.run()
	return h
}

func (self *Hub) getOrCreateSession(sessionId string) *session {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	s, ok := self.sessions[sessionId]
	if !ok {
		s = &session{
			id:      sessionId,
			clients: map[collab.Id]*client{},
		}
		self.sessions[sessionId] = s
		glog.V(1).Infof("[h]created session %s\n", sessionId)
	}
	return s
}

func (self *Hub) getSession(sessionId string) *session {
	self.mutex.RLock()
	defer self.mutex.RUnlock()
	return self.sessions[sessionId]
}

func (self *Hub) run() {
	defer self.cancel()

	for {
		select {
		case <-self.ctx.Done():
			return

		case c := <-self.register:
			s := self.getOrCreateSession(c.sessionId)
			s.mutex.Lock()
			if _, ok := s.clients[c.id]; !ok {
				s.clients[c.id] = c
				s.order = append(s.order, c.id)
				c.color = participantColors[s.colorSeq%len(participantColors)]
				s.colorSeq += 1
			}
			count := len(s.clients)
			s.mutex.Unlock()

			glog.V(1).Infof("[h]%s joined %s (%d in session)\n", c.id, c.sessionId, count)
			self.broadcastParticipants(c.sessionId)

		case c := <-self.unregister:
			s := self.getSession(c.sessionId)
			if s == nil {
				continue
			}

			s.mutex.Lock()
			if _, ok := s.clients[c.id]; ok {
				delete(s.clients, c.id)
				for i, id := range s.order {
					if id == c.id {
						s.order = append(s.order[:i], s.order[i+1:]...)
						break
					}
				}
				close(c.send)
			}
			count := len(s.clients)
			s.mutex.Unlock()

			glog.V(1).Infof("[h]%s left %s (%d remaining)\n", c.id, c.sessionId, count)

			if count == 0 {
				self.mutex.Lock()
				delete(self.sessions, c.sessionId)
				self.mutex.Unlock()
				glog.V(1).Infof("[h]deleted empty session %s\n", c.sessionId)
			} else {
				self.broadcastParticipants(c.sessionId)
			}

		case msg := <-self.relay:
			s := self.getSession(msg.sessionId)
			if s == nil {
				continue
			}

			s.mutex.RLock()
			for _, c := range s.clients {
				// never relay a message back to its sender
				if c == msg.sender {
					continue
				}
				select {
				case c.send <- msg.message:
				default:
					glog.Infof("[h]%s backpressure, dropping relay\n", c.id)
				}
			}
			s.mutex.RUnlock()
		}
	}
}

// broadcastParticipants sends the full roster snapshot to everyone in the
// session, the sender included. The roster is always a snapshot, never a
// diff.
func (self *Hub) broadcastParticipants(sessionId string) {
	s := self.getSession(sessionId)
	if s == nil {
		return
	}

	s.mutex.RLock()
	participants := make([]collab.Participant, 0, len(s.order))
	for _, id := range s.order {
		c := s.clients[id]
		participants = append(participants, collab.Participant{
			Id:       c.id,
			Username: c.username,
			Color:    c.color,
		})
	}
	s.mutex.RUnlock()

	envelope := &collab.Envelope{
		Type:         collab.MessageTypeParticipantsUpdate,
		SessionId:    sessionId,
		Participants: participants,
	}
	message, err := json.Marshal(envelope)
	if err != nil {
		glog.Infof("[h]participants encode error = %s\n", err)
		return
	}

	s.mutex.RLock()
	for _, c := range s.clients {
		select {
		case c.send <- message:
		default:
			glog.Infof("[h]%s backpressure, dropping roster\n", c.id)
		}
	}
	s.mutex.RUnlock()
}

func (self *Hub) relayEnvelope(sender *client, envelope *collab.Envelope) {
	message, err := json.Marshal(envelope)
	if err != nil {
		glog.Infof("[h]%s relay encode error = %s\n", sender.id, err)
		return
	}
	select {
	case <-self.ctx.Done():
	case self.relay <- &relayMessage{
		sessionId: sender.sessionId,
		message:   message,
		sender:    sender,
	}:
	}
}

// Router builds the gin surface: health endpoints plus the websocket
// attach point per session.
func (self *Hub) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "collab-hub",
		})
	})

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": "collab-hub",
			"status":  "running",
		})
	})

	router.GET("/ws/:sessionId", self.handleWebSocket)

	return router
}

func (self *Hub) Close() {
	self.cancel()
}
