package player

import (
	"slices"

	"gitlab.com/gomidi/midi/v2"
)

type noteKey struct {
	ch, note uint8
}

// noteTracker remembers which notes are sounding on an output.
type noteTracker struct {
	activeNotes map[noteKey]struct{}
}

func newNoteTracker() *noteTracker {
	return &noteTracker{
		activeNotes: map[noteKey]struct{}{},
	}
}

func (t *noteTracker) Playing() bool {
	return len(t.activeNotes) > 0
}

func (t *noteTracker) Handle(msg midi.Message) {
	var ch, note uint8
	if msg.GetNoteStart(&ch, &note, nil) {
		t.activeNotes[noteKey{ch, note}] = struct{}{}
		return
	}
	if msg.GetNoteEnd(&ch, &note) {
		delete(t.activeNotes, noteKey{ch, note})
	}
}

// AllOff returns Note Off messages for all sounding notes in a stable order
// and forgets them.
func (t *noteTracker) AllOff() []midi.Message {
	keys := make([]noteKey, 0, len(t.activeNotes))
	for k := range t.activeNotes {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b noteKey) int {
		if a.ch != b.ch {
			return int(a.ch) - int(b.ch)
		}
		return int(a.note) - int(b.note)
	})
	msgs := make([]midi.Message, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, midi.NoteOff(k.ch, k.note))
	}
	clear(t.activeNotes)
	return msgs
}
