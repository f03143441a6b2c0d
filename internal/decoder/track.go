package decoder

import (
	"fmt"

	"github.com/divVerent/midistream/internal/tempo"
)

// Track decodes the events of one MTrk chunk incrementally.
type Track struct {
	data    []byte
	state   State
	enabled bool

	overlay tempo.Overlay
	tempo   float64

	events []Event
}

// NewTrack returns an enabled track decoding data. data must not be modified
// afterwards; decoded events share it.
func NewTrack(data []byte) *Track {
	return &Track{
		data:    data,
		enabled: true,
		tempo:   tempo.DefaultBPM,
	}
}

// Next decodes the next event if it is due at tick limit, or regardless of
// limit in a dry run. The track only advances when an event is returned.
func (t *Track) Next(limit int64, dryRun bool) (Event, bool, error) {
	ev, next, ok, err := Step(t.data, t.state, limit, dryRun)
	if err != nil || !ok {
		return Event{}, false, err
	}
	t.state = next
	t.events = append(t.events, ev)
	return ev, true, nil
}

// Reset rewinds the track to its start and forgets decoded events.
func (t *Track) Reset() {
	t.state = State{}
	t.events = nil
}

// State returns the current decode position.
func (t *Track) State() State {
	return t.state
}

// Restore continues decoding from a previously captured state.
func (t *Track) Restore(st State) error {
	if st.Cursor < 0 || st.Cursor > len(t.data) {
		return fmt.Errorf("cursor %d outside of track of %d bytes", st.Cursor, len(t.data))
	}
	if st.Tick < 0 {
		return fmt.Errorf("negative tick %d", st.Tick)
	}
	if st.Cursor > 0 && st.Status < 0x80 {
		return fmt.Errorf("invalid running status %#02x", st.Status)
	}
	t.state = st
	t.events = nil
	return nil
}

// Exhausted returns whether all events have been decoded.
func (t *Track) Exhausted() bool {
	return t.state.Exhausted(t.data)
}

// Len returns the size of the track payload in bytes.
func (t *Track) Len() int {
	return len(t.data)
}

// Events returns the events decoded since the last reset.
func (t *Track) Events() []Event {
	return t.events
}

func (t *Track) Enable() {
	t.enabled = true
}

func (t *Track) Disable() {
	t.enabled = false
}

func (t *Track) Enabled() bool {
	return t.enabled
}

// ForceTempo sets a forced tempo relative to the given file tempo.
func (t *Track) ForceTempo(forced, original float64) {
	t.overlay.Force(forced, original)
	t.tempo = forced
}

// ClearForcedTempo drops the forced tempo and returns to the given file tempo.
func (t *Track) ClearForcedTempo(supplied float64) {
	t.overlay.Clear()
	t.tempo = supplied
}

// SetTempo applies a file supplied tempo through the track's overlay and
// returns the resulting tempo.
func (t *Track) SetTempo(supplied float64) float64 {
	t.tempo = t.overlay.Effective(supplied)
	return t.tempo
}

// Tempo returns the tempo last applied to this track.
func (t *Track) Tempo() float64 {
	return t.tempo
}
