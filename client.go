package collab

import (
	"context"

	"github.com/golang/glog"
)

type SessionClientSettings struct {
	Transport *TransportSettings
	Save      *SaveBridgeSettings
}

func DefaultSessionClientSettings() *SessionClientSettings {
	return &SessionClientSettings{
		Transport: DefaultTransportSettings(),
		Save:      DefaultSaveBridgeSettings(),
	}
}

// SessionClient is the session synchronization engine: one realtime
// connection to the hub, the authoritative local buffer, the roster, remote
// cursors, the chat log, and the debounced bridge to the document store.
// The editor surface talks to this and nothing else.
type SessionClient struct {
	ctx    context.Context
	cancel context.CancelFunc

	sessionId string
	auth      *SessionAuth

	storeApi *StoreApi
	clock    Clock

	save      *SaveBridge
	document  *DocumentSync
	roster    *Roster
	cursors   *CursorTracker
	chat      *ChatLog
	transport *SessionTransport

	rosterCallbacks       *CallbackList[func([]Participant)]
	markerCallbacks       *CallbackList[func([]CursorMarker)]
	chatCallbacks         *CallbackList[func(ChatMessage)]
	connectivityCallbacks *CallbackList[func(bool)]
}

// NewSessionClientWithDefaults fetches the resting copy from the store in
// the background and keeps the realtime channel alive until Close. storeApi
// may be nil, in which case the session lives purely in the realtime stream.
func NewSessionClientWithDefaults(
	ctx context.Context,
	hubUrl string,
	sessionId string,
	auth *SessionAuth,
	storeApi *StoreApi,
) *SessionClient {
	return NewSessionClient(ctx, hubUrl, sessionId, auth, storeApi, SystemClock(), DefaultSessionClientSettings())
}

func NewSessionClient(
	ctx context.Context,
	hubUrl string,
	sessionId string,
	auth *SessionAuth,
	storeApi *StoreApi,
	clock Clock,
	settings *SessionClientSettings,
) *SessionClient {
	cancelCtx, cancel := context.WithCancel(ctx)

	client := &SessionClient{
		ctx:                   cancelCtx,
		cancel:                cancel,
		sessionId:             sessionId,
		auth:                  auth,
		storeApi:              storeApi,
		clock:                 clock,
		roster:                NewRoster(),
		chat:                  NewChatLog(),
		rosterCallbacks:       NewCallbackList[func([]Participant)](),
		markerCallbacks:       NewCallbackList[func([]CursorMarker)](),
		chatCallbacks:         NewCallbackList[func(ChatMessage)](),
		connectivityCallbacks: NewCallbackList[func(bool)](),
	}

	client.save = NewSaveBridge(cancelCtx, sessionId, storeApi, clock, settings.Save)
	client.document = NewDocumentSync(sessionId, client.sendEnvelope, client.save)
	client.cursors = NewCursorTracker(sessionId, client.sendEnvelope, client.roster, client.localConnectionId)

	client.transport = NewSessionTransport(cancelCtx, hubUrl, sessionId, auth, client.dispatch, settings.Transport)
	client.transport.AddStateCallback(func(state ChannelState) {
		connected := state == ChannelOpen
		for _, callback := range client.connectivityCallbacks.Get() {
			callback(connected)
		}
	})

	if storeApi != nil {
		go client.fetchRestingCopy()
	}

	return client
}

func (self *SessionClient) fetchRestingCopy() {
	record, err := self.storeApi.GetSessionSync(self.sessionId)
	if err != nil {
		// the live stream still works; the save bridge will write a fresh
		// resting copy on the next edit
		glog.Infof("[c]%s resting copy fetch error = %s\n", self.sessionId, err)
		return
	}
	self.document.Seed(record.Code, record.Language)
}

func (self *SessionClient) sendEnvelope(envelope *Envelope) {
	self.transport.Send(envelope)
}

func (self *SessionClient) localConnectionId() Id {
	return self.transport.ConnectionId()
}

// dispatch routes inbound envelopes by type. Self-origin echoes never reach
// here; the channel drops them at read time.
func (self *SessionClient) dispatch(envelope *Envelope) {
	switch envelope.Type {
	case MessageTypeCodeUpdate:
		self.document.applyRemoteText(envelope.Code)

	case MessageTypeLanguageUpdate:
		self.document.applyRemoteLanguage(envelope.Language)

	case MessageTypeCursorUpdate:
		// a cursor for an id missing from the roster is a no-op
		if self.roster.ApplyCursor(envelope.UserId, envelope.Cursor) {
			self.announceMarkers()
		}

	case MessageTypeParticipantsUpdate:
		self.roster.ApplySnapshot(envelope.Participants)
		self.announceRoster()
		self.announceMarkers()

	case MessageTypeChatMessage:
		message := chatMessageFromEnvelope(envelope, self.clock)
		self.chat.append(message)
		self.announceChat(message)

	default:
		glog.V(1).Infof("[c]%s ignore %s\n", self.sessionId, envelope.Type)
	}
}

func (self *SessionClient) announceRoster() {
	participants := self.roster.Participants()
	for _, callback := range self.rosterCallbacks.Get() {
		callback(participants)
	}
}

func (self *SessionClient) announceMarkers() {
	markers := self.cursors.Markers()
	for _, callback := range self.markerCallbacks.Get() {
		callback(markers)
	}
}

func (self *SessionClient) announceChat(message ChatMessage) {
	for _, callback := range self.chatCallbacks.Get() {
		callback(message)
	}
}

func (self *SessionClient) SessionId() string {
	return self.sessionId
}

// the current connection id, which is also this client's participant id in
// the roster. Zero while disconnected.
func (self *SessionClient) ConnectionId() Id {
	return self.transport.ConnectionId()
}

func (self *SessionClient) Connected() bool {
	return self.transport.State() == ChannelOpen
}

func (self *SessionClient) Document() *DocumentSync {
	return self.document
}

func (self *SessionClient) Text() string {
	return self.document.Text()
}

func (self *SessionClient) Language() string {
	return self.document.Language()
}

func (self *SessionClient) SetLocalText(text string) {
	self.document.SetLocalText(text)
}

func (self *SessionClient) SetLanguage(language string) {
	self.document.SetLanguage(language)
}

func (self *SessionClient) MoveCursor(line int, column int) {
	self.cursors.MoveLocal(line, column)
}

func (self *SessionClient) Participants() []Participant {
	return self.roster.Participants()
}

func (self *SessionClient) Markers() []CursorMarker {
	return self.cursors.Markers()
}

// SendChat broadcasts a chat message and appends it to the local log. The
// hub does not echo chat back to the sender.
func (self *SessionClient) SendChat(content string) {
	content = truncateChatContent(content)
	messageId := NewId()
	now := self.clock.Now()
	username := self.auth.DisplayName()

	self.transport.Send(&Envelope{
		Type:      MessageTypeChatMessage,
		SessionId: self.sessionId,
		Username:  username,
		Content:   content,
		MessageId: messageId.String(),
		Timestamp: now.UnixMilli(),
	})

	message := ChatMessage{
		MessageId:     messageId,
		ParticipantId: self.transport.ConnectionId(),
		Username:      username,
		Content:       content,
		Timestamp:     now,
	}
	self.chat.append(message)
	self.announceChat(message)
}

func (self *SessionClient) ChatMessages() []ChatMessage {
	return self.chat.Messages()
}

func (self *SessionClient) AddTextCallback(callback func(string)) func() {
	return self.document.AddTextCallback(callback)
}

func (self *SessionClient) AddLanguageCallback(callback func(string)) func() {
	return self.document.AddLanguageCallback(callback)
}

func (self *SessionClient) AddRosterCallback(callback func([]Participant)) func() {
	callbackId := self.rosterCallbacks.Add(callback)
	return func() {
		self.rosterCallbacks.Remove(callbackId)
	}
}

func (self *SessionClient) AddMarkerCallback(callback func([]CursorMarker)) func() {
	callbackId := self.markerCallbacks.Add(callback)
	return func() {
		self.markerCallbacks.Remove(callbackId)
	}
}

func (self *SessionClient) AddChatCallback(callback func(ChatMessage)) func() {
	callbackId := self.chatCallbacks.Add(callback)
	return func() {
		self.chatCallbacks.Remove(callbackId)
	}
}

func (self *SessionClient) AddConnectivityCallback(callback func(bool)) func() {
	callbackId := self.connectivityCallbacks.Add(callback)
	return func() {
		self.connectivityCallbacks.Remove(callbackId)
	}
}

// FlushOnExit is the page-unload path: one best-effort save of the latest
// buffer and language, not awaited, skipped when nothing real ever loaded.
func (self *SessionClient) FlushOnExit() {
	self.save.FlushOnExit()
}

// Close is the single teardown path: flush the resting copy, close the
// channel, and detach everything from the connection lifecycle.
func (self *SessionClient) Close() {
	self.save.FlushOnExit()
	self.transport.Close()
	self.cancel()
}
