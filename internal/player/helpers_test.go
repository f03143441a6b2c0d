package player

import (
	"encoding/binary"
	"sync"
	"testing"
	"time"
)

// smfBytes assembles a file from raw track payloads.
func smfBytes(format, division uint16, tracks ...[]byte) []byte {
	b := []byte("MThd")
	b = binary.BigEndian.AppendUint32(b, 6)
	b = binary.BigEndian.AppendUint16(b, format)
	b = binary.BigEndian.AppendUint16(b, uint16(len(tracks)))
	b = binary.BigEndian.AppendUint16(b, division)
	for _, tr := range tracks {
		b = append(b, "MTrk"...)
		b = binary.BigEndian.AppendUint32(b, uint32(len(tr)))
		b = append(b, tr...)
	}
	return b
}

var (
	// noteTrack plays one note for a quarter at division 96.
	noteTrack = []byte{
		0x00, 0x90, 0x3C, 0x64,
		0x60, 0x80, 0x3C, 0x00,
		0x00, 0xFF, 0x2F, 0x00,
	}

	// conductorTrack changes from 120 to 60 BPM at tick 96.
	conductorTrack = []byte{
		0x00, 0xFF, 0x51, 0x03, 0x07, 0xA1, 0x20,
		0x00, 0xC0, 0x05,
		0x00, 0x90, 0x3C, 0x64,
		0x60, 0x3C, 0x00,
		0x00, 0xFF, 0x51, 0x03, 0x0F, 0x42, 0x40,
		0x60, 0x90, 0x40, 0x50,
		0x60, 0x40, 0x00,
		0x00, 0xFF, 0x2F, 0x00,
	}

	// bassTrack plays on channel 1 and ends at tick 320.
	bassTrack = []byte{
		0x30, 0x91, 0x30, 0x40,
		0x81, 0x00, 0x30, 0x00,
		0x40, 0xB1, 0x07, 0x64,
		0x50, 0xFF, 0x2F, 0x00,
	}

	// tempo100Track sets 100 BPM and plays a note at tick 96.
	tempo100Track = []byte{
		0x00, 0xFF, 0x51, 0x03, 0x09, 0x27, 0xC0,
		0x60, 0x90, 0x3C, 0x64,
		0x00, 0xFF, 0x2F, 0x00,
	}

	// tempo60Track sets 60 BPM and holds a note until tick 960.
	tempo60Track = []byte{
		0x00, 0xFF, 0x51, 0x03, 0x0F, 0x42, 0x40,
		0x00, 0x90, 0x3C, 0x64,
		0x87, 0x40, 0x80, 0x3C, 0x00,
		0x00, 0xFF, 0x2F, 0x00,
	}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestPlayer(t *testing.T, clock *fakeClock, data []byte) *Player {
	t.Helper()
	p := New(&Options{Now: clock.Now, ManualTick: true})
	if err := p.Load(data); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return p
}

// recorder collects notifications.
type recorder struct {
	mu    sync.Mutex
	notes []Notification
}

func record(p *Player, kinds ...Kind) *recorder {
	r := &recorder{}
	for _, k := range kinds {
		p.On(k, func(n Notification) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			if n.Event != nil {
				ev := *n.Event
				n.Event = &ev
			}
			r.notes = append(r.notes, n)
			return nil
		})
	}
	return r
}

func (r *recorder) of(kind Kind) []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notification
	for _, n := range r.notes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}
