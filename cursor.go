package collab

// CursorMarker is one remote cursor as the editor should draw it: a
// zero-width decoration at the position with the username as hover label.
type CursorMarker struct {
	ParticipantId Id
	Username      string
	Color         string
	Position      CursorPosition
}

// CursorTracker broadcasts the local cursor and derives remote markers from
// the roster. Markers are recomputed wholesale on every roster or cursor
// change; the set is small enough that diffing would buy nothing.
type CursorTracker struct {
	sessionId string

	send    func(*Envelope)
	roster  *Roster
	localId func() Id
}

func NewCursorTracker(sessionId string, send func(*Envelope), roster *Roster, localId func() Id) *CursorTracker {
	return &CursorTracker{
		sessionId: sessionId,
		send:      send,
		roster:    roster,
		localId:   localId,
	}
}

// MoveLocal emits the local cursor position. No throttling beyond the
// editor's native event cadence; cursor messages are small and infrequent
// next to keystrokes.
func (self *CursorTracker) MoveLocal(line int, column int) {
	self.send(&Envelope{
		Type:      MessageTypeCursorMove,
		SessionId: self.sessionId,
		Cursor: &CursorPosition{
			Line:   line,
			Column: column,
		},
	})
}

// Markers returns the full remote marker list, excluding the local
// participant and anyone who has not moved their cursor yet.
func (self *CursorTracker) Markers() []CursorMarker {
	localId := self.localId()

	markers := []CursorMarker{}
	for _, participant := range self.roster.Participants() {
		if participant.Id == localId {
			continue
		}
		if participant.Cursor == nil {
			continue
		}
		markers = append(markers, CursorMarker{
			ParticipantId: participant.Id,
			Username:      participant.Username,
			Color:         participant.Color,
			Position:      *participant.Cursor,
		})
	}
	return markers
}
