package player

import (
	"fmt"
	"log"

	"github.com/divVerent/midistream/internal/decoder"
)

// Kind identifies what a Notification reports.
type Kind int

const (
	// MidiEvent is sent for every decoded event of an enabled track.
	MidiEvent Kind = iota

	// Playing is sent once per scheduling tick with the current tick.
	Playing

	// EndOfFile is sent once when playback reaches the end.
	EndOfFile

	// FileLoaded is sent after a file was loaded and dry run.
	FileLoaded

	// Paused is sent when playback pauses, including for seeks.
	Paused

	// Stopped is sent when playback is stopped explicitly.
	Stopped

	// Error is sent when playback was interrupted by an error.
	Error

	numKinds
)

var kindNames = [numKinds]string{
	MidiEvent:  "midiEvent",
	Playing:    "playing",
	EndOfFile:  "endOfFile",
	FileLoaded: "fileLoaded",
	Paused:     "paused",
	Stopped:    "stopped",
	Error:      "error",
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Notification is passed to listeners.
type Notification struct {
	Kind Kind

	// Tick is the event tick for MidiEvent, else the playback tick.
	Tick int64

	// Track and Event are set for MidiEvent.
	Track int
	Event *decoder.Event

	// Player is the sending player.
	Player *Player

	// Err is set for Error.
	Err error
}

// Listener receives notifications synchronously. Returning an error from a
// MidiEvent or Playing listener aborts the current tick and pauses playback.
type Listener func(n Notification) error

// On registers a listener. Listeners of one kind run in registration order.
func (p *Player) On(kind Kind, l Listener) {
	if kind < 0 || kind >= numKinds {
		log.Panicf("On: invalid kind %v", kind)
	}
	p.listenersMu.Lock()
	defer p.listenersMu.Unlock()
	p.listeners[kind] = append(p.listeners[kind], l)
}

// publish calls all listeners of n.Kind and stops at the first error.
func (p *Player) publish(n Notification) error {
	n.Player = p
	p.listenersMu.RLock()
	ls := p.listeners[n.Kind]
	p.listenersMu.RUnlock()
	for _, l := range ls {
		if err := l(n); err != nil {
			return fmt.Errorf("%v listener: %w", n.Kind, err)
		}
	}
	return nil
}

// notify publishes n where nobody could handle an error.
func (p *Player) notify(n Notification) {
	if err := p.publish(n); err != nil {
		log.Printf("Ignoring failed notification: %v.", err)
	}
}
