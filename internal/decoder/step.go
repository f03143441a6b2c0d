// Package decoder decodes Standard MIDI File track chunks one event at a time.
package decoder

import (
	"errors"
	"fmt"
)

var (
	ErrNoRunningStatus   = errors.New("data byte without running status")
	ErrUnsupportedStatus = errors.New("unsupported status byte")
	ErrBadTempo          = errors.New("malformed Set Tempo event")
)

// State is the decode position within one track. The zero value is the
// start of the track.
type State struct {
	// Cursor is the byte offset of the next undecoded event.
	Cursor int

	// Tick is the absolute tick of the last decoded event.
	Tick int64

	// Status is the running status byte; zero while undefined.
	Status byte

	// Done is set once End of Track was decoded.
	Done bool
}

// Exhausted returns whether no further events can be decoded from buf.
func (st State) Exhausted(buf []byte) bool {
	return st.Done || st.Cursor >= len(buf)
}

// Step decodes the event at st.Cursor in buf and returns it along with the
// state following it.
//
// Unless dryRun is set, an event whose tick lies beyond limit is not due yet:
// Step then returns ok == false and st unchanged. ok is also false if the
// track is exhausted. On error, st is returned unchanged.
func Step(buf []byte, st State, limit int64, dryRun bool) (ev Event, next State, ok bool, err error) {
	if st.Exhausted(buf) {
		return Event{}, st, false, nil
	}
	delta, n, err := ReadVLQ(buf, st.Cursor)
	if err != nil {
		return Event{}, st, false, fmt.Errorf("delta time at byte %d: %w", st.Cursor, err)
	}
	tick := st.Tick + int64(delta)
	if !dryRun && tick > limit {
		return Event{}, st, false, nil
	}

	pos := st.Cursor + n
	if pos >= len(buf) {
		return Event{}, st, false, fmt.Errorf("event at byte %d: %w", pos, ErrTruncated)
	}
	status := st.Status
	if buf[pos] >= 0x80 {
		status = buf[pos]
		pos++
	} else if status == 0 {
		return Event{}, st, false, fmt.Errorf("byte %d: %w", pos, ErrNoRunningStatus)
	}

	ev = Event{
		Tick:   tick,
		Status: status,
	}
	next = State{
		Tick:   tick,
		Status: status,
	}

	switch {
	case status == 0xFF:
		if pos >= len(buf) {
			return Event{}, st, false, fmt.Errorf("meta type at byte %d: %w", pos, ErrTruncated)
		}
		ev.Kind = KindMeta
		ev.MetaType = buf[pos]
		pos++
		ev.Data, pos, err = readPayload(buf, pos)
		if err != nil {
			return Event{}, st, false, fmt.Errorf("meta %#02x: %w", ev.MetaType, err)
		}
		switch ev.MetaType {
		case MetaEndOfTrack:
			next.Done = true
		case MetaTempo:
			if _, valid := ev.Tempo(); !valid {
				return Event{}, st, false, fmt.Errorf("byte %d: %w", st.Cursor, ErrBadTempo)
			}
		}
	case status == 0xF0 || status == 0xF7:
		ev.Kind = KindSysEx
		ev.Data, pos, err = readPayload(buf, pos)
		if err != nil {
			return Event{}, st, false, fmt.Errorf("sysex: %w", err)
		}
	case status >= 0x80 && status < 0xF0:
		l := dataLen[status>>4]
		if pos+l > len(buf) {
			return Event{}, st, false, fmt.Errorf("channel event at byte %d: %w", pos, ErrTruncated)
		}
		ev.Kind = KindNoteOff + Kind(status>>4-0x8)
		ev.Channel = status & 0x0F
		ev.Data = buf[pos : pos+l : pos+l]
		pos += l
	default:
		return Event{}, st, false, fmt.Errorf("byte %d: %w %#02x", pos-1, ErrUnsupportedStatus, status)
	}

	next.Cursor = pos
	return ev, next, true, nil
}

// readPayload reads a length-prefixed payload at buf[pos].
func readPayload(buf []byte, pos int) ([]byte, int, error) {
	l, n, err := ReadVLQ(buf, pos)
	if err != nil {
		return nil, pos, fmt.Errorf("length at byte %d: %w", pos, err)
	}
	pos += n
	if uint64(pos)+uint64(l) > uint64(len(buf)) {
		return nil, pos, fmt.Errorf("%d byte payload at byte %d: %w", l, pos, ErrTruncated)
	}
	end := pos + int(l)
	return buf[pos:end:end], end, nil
}
