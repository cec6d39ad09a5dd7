package collab

// message types carried over the session channel
const (
	MessageTypeJoinSession        = "join-session"
	MessageTypeCodeChange         = "code-change"
	MessageTypeCodeUpdate         = "code-update"
	MessageTypeCursorMove         = "cursor-move"
	MessageTypeCursorUpdate       = "cursor-update"
	MessageTypeParticipantsUpdate = "participants-update"
	MessageTypeLanguageChange     = "language-change"
	MessageTypeLanguageUpdate     = "language-update"
	MessageTypeChatMessage        = "chat_message"
)

// the language tag a session starts with when nothing was ever chosen
const LanguagePlainText = "plaintext"

// 1-based, editor-native coordinates
type CursorPosition struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// one connected client as the hub announces it. The id is the connection id,
// not a user id. The same human reconnecting shows up with a new id.
type Participant struct {
	Id       Id              `json:"id"`
	Username string          `json:"username"`
	Color    string          `json:"color"`
	Cursor   *CursorPosition `json:"cursor,omitempty"`
}

// Envelope is the wire unit exchanged over the session channel. One struct
// covers all message types; unused fields are omitted on the wire.
//
// Every envelope sent by a client carries the sender's connection id in
// `origin`. The hub relays it unchanged, so a receiver can discard its own
// echoes with a single comparison instead of per-type guessing.
type Envelope struct {
	Type      string `json:"type"`
	SessionId string `json:"sessionId,omitempty"`
	Origin    Id     `json:"origin,omitempty"`

	// join-session
	Token    string `json:"token,omitempty"`
	Username string `json:"username,omitempty"`

	// code-change / code-update. Always the full buffer, never a diff.
	Code string `json:"code,omitempty"`

	// language-change / language-update
	Language string `json:"language,omitempty"`

	// cursor-move / cursor-update
	Cursor *CursorPosition `json:"cursor,omitempty"`

	// chat_message
	Content   string `json:"content,omitempty"`
	MessageId string `json:"messageId,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`

	// server relays stamp the hub-side id of the sending participant
	UserId Id `json:"userId,omitempty"`

	// participants-update. Full roster snapshot, never a diff.
	Participants []Participant `json:"participants,omitempty"`
}
