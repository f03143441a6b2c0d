package player

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2"
)

type fakeOut struct {
	name    string
	number  int
	open    bool
	sent    []midi.Message
	sendErr error
}

func (f *fakeOut) Open() error             { f.open = true; return nil }
func (f *fakeOut) Close() error            { f.open = false; return nil }
func (f *fakeOut) IsOpen() bool            { return f.open }
func (f *fakeOut) Number() int             { return f.number }
func (f *fakeOut) String() string          { return f.name }
func (f *fakeOut) Underlying() interface{} { return nil }

func (f *fakeOut) Send(data []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, midi.Message(append([]byte(nil), data...)))
	return nil
}

func (f *fakeOut) sentStrings() []string {
	var out []string
	for _, m := range f.sent {
		out = append(out, fmt.Sprintf("% X", []byte(m)))
	}
	return out
}

func TestOutputPlaysEvents(t *testing.T) {
	clock := newFakeClock()
	p := newTestPlayer(t, clock, smfBytes(0, 96, noteTrack))
	port := &fakeOut{name: "Synth"}
	out := NewOutput(port)
	out.Attach(p)

	p.Start()
	clock.Advance(time.Second)
	if err := p.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if !port.IsOpen() {
		t.Errorf("port not opened")
	}
	got := port.sentStrings()
	if len(got) != 2 || got[0] != "90 3C 64" || got[1] != "80 3C 00" {
		t.Errorf("sent %q, want note on and off without meta events", got)
	}
	if err := out.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if port.IsOpen() {
		t.Errorf("port still open after Close")
	}
}

func TestOutputSilencesOnPause(t *testing.T) {
	clock := newFakeClock()
	p := newTestPlayer(t, clock, smfBytes(0, 96, noteTrack))
	port := &fakeOut{name: "Synth"}
	NewOutput(port).Attach(p)

	p.Start()
	p.Tick()
	p.Pause()
	got := port.sentStrings()
	if len(got) != 2 || got[1] != "80 3C 00" {
		t.Errorf("sent %q, want a note off after pausing", got)
	}
	p.Stop()
	if n := len(port.sent); n != 2 {
		t.Errorf("stop with nothing sounding sent %d messages", n-2)
	}
}

func TestOutputSwitchesPortBetweenNotes(t *testing.T) {
	clock := newFakeClock()
	p := newTestPlayer(t, clock, smfBytes(0, 96, noteTrack))
	first := &fakeOut{name: "first"}
	second := &fakeOut{name: "second"}
	out := NewOutput(first)
	out.Attach(p)

	p.Start()
	p.Tick()
	out.SetPort(second)
	clock.Advance(time.Second)
	p.Tick()
	if len(first.sent) != 2 || len(second.sent) != 0 {
		t.Errorf("switched port while a note was sounding: %q, %q", first.sentStrings(), second.sentStrings())
	}

	p.Stop()
	p.Start()
	p.Tick()
	if len(second.sent) != 1 || first.IsOpen() {
		t.Errorf("did not switch port: first open %v, second sent %q", first.IsOpen(), second.sentStrings())
	}
}

func TestOutputSendError(t *testing.T) {
	boom := errors.New("boom")
	p := newTestPlayer(t, newFakeClock(), smfBytes(0, 96, noteTrack))
	NewOutput(&fakeOut{name: "broken", sendErr: boom}).Attach(p)
	p.Start()
	if err := p.Tick(); !errors.Is(err, boom) {
		t.Errorf("Tick = %v, want boom", err)
	}
}

func TestOutputWithoutPort(t *testing.T) {
	p := newTestPlayer(t, newFakeClock(), smfBytes(0, 96, noteTrack))
	NewOutput(nil).Attach(p)
	p.Start()
	if err := p.Tick(); err == nil {
		t.Errorf("Tick without a port succeeded")
	}
}
