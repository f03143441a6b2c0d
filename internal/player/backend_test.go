package player

import (
	"errors"
	"testing"
	"time"
)

func startBackend(t *testing.T, p *Player, quitAtEnd bool) (*Backend, chan error) {
	t.Helper()
	b := NewBackend(&BackendOptions{Player: p, File: "test.mid", QuitAtEnd: quitAtEnd})
	done := make(chan error, 1)
	go func() {
		done <- b.Loop()
	}()
	t.Cleanup(b.Close)
	return b, done
}

// waitUIState reads UI states until one satisfies ok.
func waitUIState(t *testing.T, b *Backend, ok func(UIState) bool) UIState {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ui := <-b.UIStates:
			if ok(ui) {
				return ui
			}
		case <-timeout:
			t.Fatalf("timed out waiting for UI state")
		}
	}
}

func waitLoop(t *testing.T, done chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatalf("Loop did not return")
	}
	return nil
}

func TestBackendCommands(t *testing.T) {
	clock := newFakeClock()
	p := newTestPlayer(t, clock, smfBytes(1, 96, conductorTrack, bassTrack))
	b, done := startBackend(t, p, false)

	ui := waitUIState(t, b, func(ui UIState) bool { return ui.Playing })
	if ui.CurrentFile != "test.mid" || len(ui.Tracks) != 2 || ui.PlaybackLen <= 0 {
		t.Errorf("initial UI state = %+v", ui)
	}

	b.Commands <- Command{TogglePause: true}
	waitUIState(t, b, func(ui UIState) bool { return !ui.Playing && ui.CurrentMessage == "paused" })
	if p.State() != StatePaused {
		t.Errorf("State = %v, want paused", p.State())
	}

	b.Commands <- Command{Tempo: 200}
	waitUIState(t, b, func(ui UIState) bool { return ui.Forced && ui.Tempo == 200 })

	b.Commands <- Command{ClearTempo: true}
	waitUIState(t, b, func(ui UIState) bool { return !ui.Forced && ui.Tempo == 120 })

	b.Commands <- Command{ToggleTrack: 2}
	waitUIState(t, b, func(ui UIState) bool { return len(ui.Tracks) == 2 && !ui.Tracks[1] })
	if p.TrackEnabled(1) {
		t.Errorf("track 2 still enabled")
	}

	b.Commands <- Command{ToggleTrack: 3}
	ui = waitUIState(t, b, func(ui UIState) bool { return ui.Err != nil })
	if !errors.Is(ui.Err, ErrNoTrack) {
		t.Errorf("Err = %v, want ErrNoTrack", ui.Err)
	}

	b.Commands <- Command{Skip: 1500 * time.Millisecond}
	waitUIState(t, b, func(ui UIState) bool { return ui.Err == nil && ui.PlaybackPos > time.Second })
	if got := p.CurrentTick(); got != 192 {
		t.Errorf("CurrentTick after skip = %d, want 192", got)
	}

	b.Commands <- Command{Quit: true}
	if err := waitLoop(t, done); !errors.Is(err, QuitError) {
		t.Errorf("Loop = %v, want QuitError", err)
	}
}

func TestBackendQuitAtEnd(t *testing.T) {
	clock := newFakeClock()
	p := newTestPlayer(t, clock, smfBytes(0, 96, noteTrack))
	b, done := startBackend(t, p, true)
	waitUIState(t, b, func(ui UIState) bool { return ui.Playing })

	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
		if err := p.Tick(); err != nil {
			t.Fatalf("Tick: %v", err)
		}
	}
	if err := waitLoop(t, done); !errors.Is(err, QuitError) {
		t.Errorf("Loop = %v, want QuitError", err)
	}
}

func TestBackendClosedCommands(t *testing.T) {
	p := newTestPlayer(t, newFakeClock(), smfBytes(0, 96, noteTrack))
	b, done := startBackend(t, p, false)
	close(b.Commands)
	if err := waitLoop(t, done); !errors.Is(err, QuitError) {
		t.Errorf("Loop = %v, want QuitError", err)
	}
}
