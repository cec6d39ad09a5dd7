package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/golang/glog"

	"github.com/gorilla/websocket"
)

const transportBufferSize = 1

type ChannelState int

const (
	ChannelIdle ChannelState = iota
	ChannelConnecting
	ChannelOpen
	ChannelClosed
)

func (self ChannelState) String() string {
	switch self {
	case ChannelIdle:
		return "idle"
	case ChannelConnecting:
		return "connecting"
	case ChannelOpen:
		return "open"
	case ChannelClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int(self))
	}
}

type SessionAuth struct {
	ByJwt string
	// overrides the name decoded from the credential when set
	Username string
}

func (self *SessionAuth) DisplayName() string {
	if self.Username != "" {
		return self.Username
	}
	return UsernameFromJwt(self.ByJwt)
}

type TransportSettings struct {
	WsHandshakeTimeout time.Duration
	JoinTimeout        time.Duration
	ReconnectTimeout   time.Duration
	PingTimeout        time.Duration
	WriteTimeout       time.Duration
	ReadTimeout        time.Duration
}

func DefaultTransportSettings() *TransportSettings {
	return &TransportSettings{
		WsHandshakeTimeout: 2 * time.Second,
		JoinTimeout:        2 * time.Second,
		ReconnectTimeout:   3 * time.Second,
		PingTimeout:        10 * time.Second,
		WriteTimeout:       5 * time.Second,
		ReadTimeout:        30 * time.Second,
	}
}

// SessionChannel is one websocket connection to the hub. It announces the
// join immediately on open, then pumps envelopes both ways until the
// connection drops. A channel never redials itself; once closed it stays
// closed and the SessionTransport decides what happens next.
type SessionChannel struct {
	ctx    context.Context
	cancel context.CancelFunc

	conn *websocket.Conn

	// the connection id, stamped as origin on every outbound envelope.
	// unique per connection: a reconnect is a new participant identity.
	connectionId Id

	sessionId string
	auth      *SessionAuth
	receive   func(*Envelope)
	settings  *TransportSettings

	stateMutex sync.Mutex
	state      ChannelState

	send chan []byte
}

func openSessionChannel(
	ctx context.Context,
	hubUrl string,
	sessionId string,
	auth *SessionAuth,
	receive func(*Envelope),
	settings *TransportSettings,
) (*SessionChannel, error) {
	cancelCtx, cancel := context.WithCancel(ctx)

	channel := &SessionChannel{
		ctx:          cancelCtx,
		cancel:       cancel,
		connectionId: NewId(),
		sessionId:    sessionId,
		auth:         auth,
		receive:      receive,
		settings:     settings,
		state:        ChannelConnecting,
		send:         make(chan []byte, transportBufferSize),
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: settings.WsHandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(cancelCtx, fmt.Sprintf("%s/ws/%s", hubUrl, sessionId), nil)
	if err != nil {
		channel.setState(ChannelClosed)
		cancel()
		return nil, err
	}
	channel.conn = conn

	join := &Envelope{
		Type:      MessageTypeJoinSession,
		SessionId: sessionId,
		Origin:    channel.connectionId,
		Token:     auth.ByJwt,
		Username:  auth.DisplayName(),
	}
	joinBytes, err := json.Marshal(join)
	if err != nil {
		cancel()
		conn.Close()
		return nil, err
	}
	conn.SetWriteDeadline(time.Now().Add(settings.JoinTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, joinBytes); err != nil {
		channel.setState(ChannelClosed)
		cancel()
		conn.Close()
		return nil, err
	}

	channel.setState(ChannelOpen)

	go channel.writePump()
	go channel.readPump()
	go func() {
		<-cancelCtx.Done()
		channel.setState(ChannelClosed)
		conn.Close()
	}()

	return channel, nil
}

func (self *SessionChannel) setState(state ChannelState) {
	self.stateMutex.Lock()
	defer self.stateMutex.Unlock()
	self.state = state
}

func (self *SessionChannel) State() ChannelState {
	self.stateMutex.Lock()
	defer self.stateMutex.Unlock()
	return self.state
}

func (self *SessionChannel) ConnectionId() Id {
	return self.connectionId
}

func (self *SessionChannel) Done() <-chan struct{} {
	return self.ctx.Done()
}

// Send stamps the envelope with this connection's origin and queues it.
// Sending on a channel that is not open is a silent drop, not an error and
// not a retry: the durable save bridge is the safety net for edits that
// miss the realtime stream.
func (self *SessionChannel) Send(envelope *Envelope) {
	if self.State() != ChannelOpen {
		glog.V(1).Infof("[cs]%s drop %s while not open\n", self.connectionId, envelope.Type)
		return
	}

	envelope.Origin = self.connectionId
	message, err := json.Marshal(envelope)
	if err != nil {
		glog.Infof("[cs]%s encode error = %s\n", self.connectionId, err)
		return
	}

	select {
	case <-self.ctx.Done():
	case self.send <- message:
	}
}

func (self *SessionChannel) writePump() {
	defer self.cancel()

	for {
		select {
		case <-self.ctx.Done():
			return
		case message, ok := <-self.send:
			if !ok {
				return
			}
			self.conn.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
			if err := self.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				// a websocket deadline timeout cannot be recovered
				glog.Infof("[cs]%s-> error = %s\n", self.connectionId, err)
				return
			}
			glog.V(2).Infof("[cs]%s->\n", self.connectionId)
		case <-time.After(self.settings.PingTimeout):
			self.conn.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
			if err := self.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (self *SessionChannel) readPump() {
	defer self.cancel()

	self.conn.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
	self.conn.SetPongHandler(func(string) error {
		self.conn.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
		return nil
	})

	for {
		select {
		case <-self.ctx.Done():
			return
		default:
		}

		messageType, message, err := self.conn.ReadMessage()
		if err != nil {
			glog.V(1).Infof("[cr]%s<- error = %s\n", self.connectionId, err)
			return
		}
		self.conn.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))

		switch messageType {
		case websocket.TextMessage, websocket.BinaryMessage:
			if len(message) == 0 {
				continue
			}

			var envelope Envelope
			if err := json.Unmarshal(message, &envelope); err != nil {
				// malformed inbound messages are logged and discarded,
				// never fatal to the channel
				glog.Infof("[cr]%s malformed message = %s\n", self.connectionId, err)
				continue
			}

			// the one echo suppression point. Anything stamped with this
			// connection's own id was already applied at edit time.
			if !envelope.Origin.IsZero() && envelope.Origin == self.connectionId {
				glog.V(2).Infof("[cr]%s echo %s suppressed\n", self.connectionId, envelope.Type)
				continue
			}

			glog.V(2).Infof("[cr]%s<- %s\n", self.connectionId, envelope.Type)
			self.receive(&envelope)
		}
	}
}

func (self *SessionChannel) Close() {
	self.cancel()
}

// SessionTransport keeps one SessionChannel alive for a session. When the
// channel drops it waits a fixed delay, dials again with the same session id
// and credential, and re-announces the join, which makes the hub rebroadcast
// the roster. Retries are unbounded: a long-lived collaborative session is
// expected to ride out outages.
type SessionTransport struct {
	ctx    context.Context
	cancel context.CancelFunc

	hubUrl    string
	sessionId string
	auth      *SessionAuth
	receive   func(*Envelope)

	settings *TransportSettings

	stateCallbacks *CallbackList[func(ChannelState)]

	mutex   sync.Mutex
	channel *SessionChannel
}

func NewSessionTransportWithDefaults(
	ctx context.Context,
	hubUrl string,
	sessionId string,
	auth *SessionAuth,
	receive func(*Envelope),
) *SessionTransport {
	return NewSessionTransport(ctx, hubUrl, sessionId, auth, receive, DefaultTransportSettings())
}

func NewSessionTransport(
	ctx context.Context,
	hubUrl string,
	sessionId string,
	auth *SessionAuth,
	receive func(*Envelope),
	settings *TransportSettings,
) *SessionTransport {
	cancelCtx, cancel := context.WithCancel(ctx)
	transport := &SessionTransport{
		ctx:            cancelCtx,
		cancel:         cancel,
		hubUrl:         hubUrl,
		sessionId:      sessionId,
		auth:           auth,
		receive:        receive,
		settings:       settings,
		stateCallbacks: NewCallbackList[func(ChannelState)](),
	}
	go transport.run()
	return transport
}

func (self *SessionTransport) run() {
	defer func() {
		self.cancel()
		self.setChannel(nil)
	}()

	reconnect := backoff.NewConstantBackOff(self.settings.ReconnectTimeout)
	for {
		channel, err := openSessionChannel(
			self.ctx,
			self.hubUrl,
			self.sessionId,
			self.auth,
			self.receive,
			self.settings,
		)
		if err != nil {
			glog.Infof("[t]dial %s error = %s\n", self.sessionId, err)
		} else {
			glog.V(1).Infof("[t]open %s as %s\n", self.sessionId, channel.ConnectionId())
			self.setChannel(channel)
			self.announceState(ChannelOpen)

			select {
			case <-self.ctx.Done():
				channel.Close()
				return
			case <-channel.Done():
			}

			self.setChannel(nil)
			self.announceState(ChannelClosed)
		}

		select {
		case <-self.ctx.Done():
			return
		case <-time.After(reconnect.NextBackOff()):
			// dial again with the same session id and credential
		}
	}
}

// at most one live channel per session, enforced here rather than left to
// garbage collection
func (self *SessionTransport) setChannel(channel *SessionChannel) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	if channel != nil && self.channel != nil {
		glog.Errorf("[t]%s replacing a live channel\n", self.sessionId)
		self.channel.Close()
	}
	self.channel = channel
}

func (self *SessionTransport) currentChannel() *SessionChannel {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.channel
}

func (self *SessionTransport) announceState(state ChannelState) {
	for _, callback := range self.stateCallbacks.Get() {
		callback(state)
	}
}

// AddStateCallback registers for connected/disconnected transitions.
// Returns the unsubscribe.
func (self *SessionTransport) AddStateCallback(callback func(ChannelState)) func() {
	callbackId := self.stateCallbacks.Add(callback)
	return func() {
		self.stateCallbacks.Remove(callbackId)
	}
}

func (self *SessionTransport) State() ChannelState {
	if channel := self.currentChannel(); channel != nil {
		return channel.State()
	}
	return ChannelClosed
}

// ConnectionId is the current connection's id, or the zero id while
// disconnected.
func (self *SessionTransport) ConnectionId() Id {
	if channel := self.currentChannel(); channel != nil {
		return channel.ConnectionId()
	}
	return Id{}
}

// Send forwards to the live channel. While disconnected the envelope is
// dropped from the realtime stream.
func (self *SessionTransport) Send(envelope *Envelope) {
	channel := self.currentChannel()
	if channel == nil {
		glog.V(1).Infof("[t]%s drop %s while disconnected\n", self.sessionId, envelope.Type)
		return
	}
	channel.Send(envelope)
}

func (self *SessionTransport) Close() {
	self.cancel()
	if channel := self.currentChannel(); channel != nil {
		channel.Close()
	}
}
