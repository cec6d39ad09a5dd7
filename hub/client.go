package hub

import (
	"net/http"
	"time"

	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/golang/glog"

	"github.com/google/uuid"

	"github.com/gorilla/websocket"

	"codecollab.dev/collab"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// the bearer credential on the join message is the access control;
		// the upgrade itself is open
		return true
	},
}

// client is one connected participant. The id is the connection id the
// client announced as its origin, so relays carry an origin every receiver
// can compare against its own.
type client struct {
	hub *Hub

	id        collab.Id
	sessionId string
	username  string
	color     string

	conn *websocket.Conn
	send chan []byte

	registered bool
}

func (self *Hub) handleWebSocket(ginCtx *gin.Context) {
	sessionId := ginCtx.Param("sessionId")

	conn, err := upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		glog.Infof("[h]upgrade error = %s\n", err)
		return
	}

	c := &client{
		hub:       self,
		sessionId: sessionId,
		username:  collab.AnonymousUsername,
		conn:      conn,
		send:      make(chan []byte, self.settings.SendBufferSize),
	}

	go c.writePump()
	go c.readPump()
}

func (self *client) readPump() {
	defer func() {
		if self.registered {
			select {
			case self.hub.unregister <- self:
			case <-self.hub.ctx.Done():
			}
		}
		self.conn.Close()
	}()

	self.conn.SetReadLimit(self.hub.settings.ReadLimit)
	self.conn.SetReadDeadline(time.Now().Add(self.hub.settings.ReadTimeout))
	self.conn.SetPongHandler(func(string) error {
		self.conn.SetReadDeadline(time.Now().Add(self.hub.settings.ReadTimeout))
		return nil
	})

	for {
		_, message, err := self.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				glog.Infof("[h]%s read error = %s\n", self.id, err)
			}
			return
		}
		self.conn.SetReadDeadline(time.Now().Add(self.hub.settings.ReadTimeout))

		var envelope collab.Envelope
		if err := json.Unmarshal(message, &envelope); err != nil {
			glog.Infof("[h]%s malformed message = %s\n", self.id, err)
			continue
		}

		self.handleEnvelope(&envelope)
	}
}

func (self *client) handleEnvelope(envelope *collab.Envelope) {
	if envelope.Type == collab.MessageTypeJoinSession {
		self.handleJoin(envelope)
		return
	}

	if !self.registered {
		// everything but the join announcement waits for registration
		glog.V(1).Infof("[h]drop %s before join\n", envelope.Type)
		return
	}

	switch envelope.Type {
	case collab.MessageTypeCodeChange:
		self.hub.relayEnvelope(self, &collab.Envelope{
			Type:      collab.MessageTypeCodeUpdate,
			SessionId: self.sessionId,
			Origin:    envelope.Origin,
			UserId:    self.id,
			Code:      envelope.Code,
		})

	case collab.MessageTypeCursorMove:
		if envelope.Cursor == nil {
			return
		}
		self.hub.relayEnvelope(self, &collab.Envelope{
			Type:      collab.MessageTypeCursorUpdate,
			SessionId: self.sessionId,
			Origin:    envelope.Origin,
			UserId:    self.id,
			Cursor:    envelope.Cursor,
		})

	case collab.MessageTypeLanguageChange:
		self.hub.relayEnvelope(self, &collab.Envelope{
			Type:      collab.MessageTypeLanguageUpdate,
			SessionId: self.sessionId,
			Origin:    envelope.Origin,
			UserId:    self.id,
			Language:  envelope.Language,
		})

	case collab.MessageTypeChatMessage:
		messageId := envelope.MessageId
		if messageId == "" {
			messageId = uuid.NewString()
		}
		timestamp := envelope.Timestamp
		if timestamp == 0 {
			timestamp = time.Now().UnixMilli()
		}
		self.hub.relayEnvelope(self, &collab.Envelope{
			Type:      collab.MessageTypeChatMessage,
			SessionId: self.sessionId,
			Origin:    envelope.Origin,
			UserId:    self.id,
			Username:  self.username,
			Content:   envelope.Content,
			MessageId: messageId,
			Timestamp: timestamp,
		})

	default:
		glog.V(1).Infof("[h]%s ignore %s\n", self.id, envelope.Type)
	}
}

func (self *client) handleJoin(envelope *collab.Envelope) {
	username := envelope.Username
	if username == "" {
		username = collab.UsernameFromJwt(envelope.Token)
	}

	if self.registered {
		// repeat join just refreshes the display name. The hub goroutine
		// reads usernames under the session lock, so the rename takes it too.
		if username != self.username {
			if s := self.hub.getSession(self.sessionId); s != nil {
				s.mutex.Lock()
				self.username = username
				s.mutex.Unlock()
			}
			self.hub.broadcastParticipants(self.sessionId)
		}
		return
	}

	self.username = username
	if !envelope.Origin.IsZero() {
		self.id = envelope.Origin
	} else {
		u := uuid.New()
		id, _ := collab.IdFromBytes(u[:])
		self.id = id
	}
	self.registered = true

	select {
	case self.hub.register <- self:
	case <-self.hub.ctx.Done():
	}
}

func (self *client) writePump() {
	ticker := time.NewTicker(self.hub.settings.PingTimeout)
	defer func() {
		ticker.Stop()
		self.conn.Close()
	}()

	for {
		select {
		case message, ok := <-self.send:
			self.conn.SetWriteDeadline(time.Now().Add(self.hub.settings.WriteTimeout))
			if !ok {
				self.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := self.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				glog.V(1).Infof("[h]%s write error = %s\n", self.id, err)
				return
			}

		case <-ticker.C:
			self.conn.SetWriteDeadline(time.Now().Add(self.hub.settings.WriteTimeout))
			if err := self.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
