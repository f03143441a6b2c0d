package decoder

import (
	"bytes"
	"errors"
	"testing"
)

// decodeAll steps through buf in dry-run mode.
func decodeAll(t *testing.T, buf []byte) ([]Event, State) {
	t.Helper()
	var evs []Event
	var st State
	for {
		ev, next, ok, err := Step(buf, st, 0, true)
		if err != nil {
			t.Fatalf("Step at %+v: %v", st, err)
		}
		if !ok {
			return evs, st
		}
		evs = append(evs, ev)
		st = next
	}
}

func TestStepRunningStatus(t *testing.T) {
	buf := []byte{
		0x00, 0x95, 0x3C, 0x64, // Note on ch 5.
		0x10, 0x3E, 0x50, // Running status.
		0x81, 0x00, 0x3C, 0x00, // Running status, delta 128.
		0x00, 0xFF, 0x2F, 0x00,
	}
	evs, st := decodeAll(t, buf)
	if len(evs) != 4 {
		t.Fatalf("got %d events, want 4: %v", len(evs), evs)
	}
	for i, want := range []struct {
		tick int64
		data []byte
	}{
		{0, []byte{0x3C, 0x64}},
		{16, []byte{0x3E, 0x50}},
		{144, []byte{0x3C, 0x00}},
	} {
		ev := evs[i]
		if ev.Kind != KindNoteOn || ev.Channel != 5 || ev.Status != 0x95 {
			t.Errorf("event %d = %v, want Note on ch=5", i, ev)
		}
		if ev.Tick != want.tick || !bytes.Equal(ev.Data, want.data) {
			t.Errorf("event %d = %v, want tick %d data % X", i, ev, want.tick, want.data)
		}
	}
	if got, want := evs[1].Message(), []byte{0x95, 0x3E, 0x50}; !bytes.Equal(got, want) {
		t.Errorf("Message() = % X, want % X", got, want)
	}
	if evs[3].Name() != "End of Track" {
		t.Errorf("last event = %q, want End of Track", evs[3].Name())
	}
	if !st.Done || st.Cursor != len(buf) || st.Tick != 144 {
		t.Errorf("final state = %+v", st)
	}
}

func TestStepNotDue(t *testing.T) {
	buf := []byte{
		0x00, 0x90, 0x3C, 0x64,
		0x20, 0x80, 0x3C, 0x00,
	}
	st := State{}
	ev, st, ok, err := Step(buf, st, 0, false)
	if err != nil || !ok || ev.Tick != 0 {
		t.Fatalf("first Step = %v, %v, %v", ev, ok, err)
	}
	before := st
	_, after, ok, err := Step(buf, st, 31, false)
	if err != nil || ok {
		t.Fatalf("early Step = %v, %v; want not due", ok, err)
	}
	if after != before {
		t.Errorf("not-due probe moved state from %+v to %+v", before, after)
	}
	ev, st, ok, err = Step(buf, after, 32, false)
	if err != nil || !ok {
		t.Fatalf("due Step = %v, %v", ok, err)
	}
	if ev.Kind != KindNoteOff || ev.Tick != 32 || st.Cursor != len(buf) {
		t.Errorf("due Step = %v, state %+v", ev, st)
	}
}

func TestStepTempo(t *testing.T) {
	for _, tc := range []struct {
		us   []byte
		want float64
	}{
		{[]byte{0x07, 0xA1, 0x20}, 120},
		{[]byte{0x0F, 0x42, 0x40}, 60},
	} {
		buf := append([]byte{0x00, 0xFF, 0x51, 0x03}, tc.us...)
		evs, _ := decodeAll(t, buf)
		if len(evs) != 1 {
			t.Fatalf("got %d events, want 1", len(evs))
		}
		bpm, ok := evs[0].Tempo()
		if !ok || bpm != tc.want {
			t.Errorf("Tempo() = %v, %v; want %v", bpm, ok, tc.want)
		}
		if evs[0].Name() != "Set Tempo" {
			t.Errorf("Name() = %q", evs[0].Name())
		}
	}
}

func TestStepEventKinds(t *testing.T) {
	buf := []byte{
		0x00, 0xC3, 0x05, // Program change, one data byte.
		0x00, 0xD3, 0x40, // Channel pressure, one data byte.
		0x00, 0xE3, 0x00, 0x40, // Pitch bend.
		0x00, 0xB3, 0x07, 0x7F, // Control change.
		0x00, 0xA3, 0x3C, 0x10, // Key pressure.
		0x00, 0xF0, 0x03, 0x7E, 0x7F, 0xF7, // SysEx.
		0x00, 0xFF, 0x03, 0x04, 'L', 'e', 'a', 'd', // Track name.
		0x00, 0xFF, 0x2F, 0x00,
	}
	evs, _ := decodeAll(t, buf)
	wantKinds := []Kind{KindProgramChange, KindChannelPressure, KindPitchBend, KindControlChange, KindKeyPressure, KindSysEx, KindMeta, KindMeta}
	if len(evs) != len(wantKinds) {
		t.Fatalf("got %d events, want %d", len(evs), len(wantKinds))
	}
	for i, k := range wantKinds {
		if evs[i].Kind != k {
			t.Errorf("event %d kind = %v, want %v", i, evs[i].Kind, k)
		}
	}
	if p, ok := evs[0].Program(); !ok || p != 5 || evs[0].Channel != 3 {
		t.Errorf("program change = %v", evs[0])
	}
	if !bytes.Equal(evs[5].Data, []byte{0x7E, 0x7F, 0xF7}) {
		t.Errorf("sysex data = % X", evs[5].Data)
	}
	if got, want := evs[5].Message(), []byte{0xF0, 0x7E, 0x7F, 0xF7}; !bytes.Equal(got, want) {
		t.Errorf("sysex Message() = % X, want % X", got, want)
	}
	if s, ok := evs[6].Text(); !ok || s != "Lead" {
		t.Errorf("track name = %q, %v", s, ok)
	}
	if got, want := evs[6].Message(), []byte{0xFF, 0x03, 0x04, 'L', 'e', 'a', 'd'}; !bytes.Equal(got, want) {
		t.Errorf("meta Message() = % X, want % X", got, want)
	}
}

func TestStepEndOfTrackStopsDecoding(t *testing.T) {
	buf := []byte{
		0x00, 0xFF, 0x2F, 0x00,
		0x00, 0x90, 0x3C, 0x64, // Trailing junk after End of Track.
	}
	evs, st := decodeAll(t, buf)
	if len(evs) != 1 || !st.Done || st.Cursor != 4 {
		t.Errorf("got %v, state %+v", evs, st)
	}
}

func TestStepErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		buf  []byte
		want error
	}{
		{"truncated delta", []byte{0x81}, ErrTruncated},
		{"missing status", []byte{0x00}, ErrTruncated},
		{"truncated channel data", []byte{0x00, 0x90, 0x3C}, ErrTruncated},
		{"meta length past end", []byte{0x00, 0xFF, 0x01, 0x05, 'a'}, ErrTruncated},
		{"sysex length past end", []byte{0x00, 0xF0, 0x7F}, ErrTruncated},
		{"overlong delta", []byte{0x80, 0x80, 0x80, 0x80, 0x00}, ErrVLQTooLong},
		{"no running status", []byte{0x00, 0x3C, 0x64}, ErrNoRunningStatus},
		{"realtime status", []byte{0x00, 0xF8}, ErrUnsupportedStatus},
		{"short tempo", []byte{0x00, 0xFF, 0x51, 0x02, 0x07, 0xA1}, ErrBadTempo},
		{"zero tempo", []byte{0x00, 0xFF, 0x51, 0x03, 0x00, 0x00, 0x00}, ErrBadTempo},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, next, ok, err := Step(tc.buf, State{}, 0, true)
			if !errors.Is(err, tc.want) {
				t.Errorf("Step error = %v, want %v", err, tc.want)
			}
			if ok || next != (State{}) {
				t.Errorf("Step returned ok=%v state %+v on error", ok, next)
			}
		})
	}
}
