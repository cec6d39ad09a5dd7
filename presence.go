package collab

import (
	"sync"
)

// Roster is the authoritative participant set for a session. The hub only
// ever sends full snapshots, so applying one discards every participant the
// snapshot does not name. Order is roster order as the hub sent it.
type Roster struct {
	mutex        sync.Mutex
	order        []Id
	participants map[Id]*Participant
}

func NewRoster() *Roster {
	return &Roster{
		participants: map[Id]*Participant{},
	}
}

// ApplySnapshot replaces the full participant set. Last-known cursors carry
// over for ids that survive the replace, since roster broadcasts do not
// repeat cursor state.
func (self *Roster) ApplySnapshot(participants []Participant) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	next := make(map[Id]*Participant, len(participants))
	order := make([]Id, 0, len(participants))
	for _, participant := range participants {
		entry := participant
		if previous, ok := self.participants[entry.Id]; ok && entry.Cursor == nil {
			entry.Cursor = previous.Cursor
		}
		if _, ok := next[entry.Id]; !ok {
			order = append(order, entry.Id)
		}
		next[entry.Id] = &entry
	}
	self.participants = next
	self.order = order
}

// ApplyCursor patches one participant's last-known cursor. A cursor for an
// id the roster does not know is ignored, not an error, and reports false.
func (self *Roster) ApplyCursor(participantId Id, cursor *CursorPosition) bool {
	if cursor == nil {
		return false
	}

	self.mutex.Lock()
	defer self.mutex.Unlock()

	participant, ok := self.participants[participantId]
	if !ok {
		return false
	}
	c := *cursor
	participant.Cursor = &c
	return true
}

// Participants returns a copy of the roster in roster order.
func (self *Roster) Participants() []Participant {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	participants := make([]Participant, 0, len(self.order))
	for _, participantId := range self.order {
		participants = append(participants, *self.participants[participantId])
	}
	return participants
}

func (self *Roster) Get(participantId Id) (Participant, bool) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	participant, ok := self.participants[participantId]
	if !ok {
		return Participant{}, false
	}
	return *participant, true
}

func (self *Roster) Len() int {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return len(self.order)
}
