package collab

import (
	"testing"

	"github.com/go-playground/assert/v2"
)

func TestCursorMarkers(t *testing.T) {
	local := NewId()
	remote := NewId()
	idle := NewId()

	roster := NewRoster()
	roster.ApplySnapshot([]Participant{
		{Id: local, Username: "me", Color: "#FF6B6B"},
		{Id: remote, Username: "bob", Color: "#4ECDC4"},
		{Id: idle, Username: "carol", Color: "#45B7D1"},
	})
	roster.ApplyCursor(local, &CursorPosition{Line: 1, Column: 1})
	roster.ApplyCursor(remote, &CursorPosition{Line: 5, Column: 12})

	recorder := &sendRecorder{}
	tracker := NewCursorTracker("test", recorder.send, roster, func() Id {
		return local
	})

	// the local cursor and cursorless participants are not markers
	markers := tracker.Markers()
	assert.Equal(t, len(markers), 1)
	assert.Equal(t, markers[0].ParticipantId, remote)
	assert.Equal(t, markers[0].Username, "bob")
	assert.Equal(t, markers[0].Position, CursorPosition{Line: 5, Column: 12})
}

func TestCursorMoveLocal(t *testing.T) {
	roster := NewRoster()
	recorder := &sendRecorder{}
	tracker := NewCursorTracker("test", recorder.send, roster, func() Id {
		return Id{}
	})

	tracker.MoveLocal(3, 7)

	envelopes := recorder.get()
	assert.Equal(t, len(envelopes), 1)
	assert.Equal(t, envelopes[0].Type, MessageTypeCursorMove)
	assert.Equal(t, envelopes[0].Cursor.Line, 3)
	assert.Equal(t, envelopes[0].Cursor.Column, 7)
}
