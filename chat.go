package collab

import (
	"sync"
	"time"
)

// chat content cap, enforced client-side only
const MaxChatContentLength = 500

type ChatMessage struct {
	MessageId     Id
	ParticipantId Id
	Username      string
	Content       string
	Timestamp     time.Time
}

// ChatLog is the append-only in-memory message log, oldest first. No history
// is fetched on join and nothing survives navigating away; the log exists
// for the life of the client only.
type ChatLog struct {
	mutex    sync.Mutex
	messages []ChatMessage
}

func NewChatLog() *ChatLog {
	return &ChatLog{}
}

func (self *ChatLog) append(message ChatMessage) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.messages = append(self.messages, message)
}

func (self *ChatLog) Messages() []ChatMessage {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	messages := make([]ChatMessage, len(self.messages))
	copy(messages, self.messages)
	return messages
}

func (self *ChatLog) Len() int {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return len(self.messages)
}

func truncateChatContent(content string) string {
	if MaxChatContentLength < len(content) {
		return content[:MaxChatContentLength]
	}
	return content
}

// chatMessageFromEnvelope fills in a locally generated id and receive time
// when the wire omits them.
func chatMessageFromEnvelope(envelope *Envelope, clock Clock) ChatMessage {
	messageId, err := ParseId(envelope.MessageId)
	if err != nil {
		messageId = NewId()
	}

	timestamp := clock.Now()
	if envelope.Timestamp != 0 {
		timestamp = time.UnixMilli(envelope.Timestamp)
	}

	return ChatMessage{
		MessageId:     messageId,
		ParticipantId: envelope.UserId,
		Username:      envelope.Username,
		Content:       truncateChatContent(envelope.Content),
		Timestamp:     timestamp,
	}
}
