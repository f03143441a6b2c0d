package player

import (
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"time"
)

// Command is sent by a user interface to the backend.
type Command struct {
	// TogglePause pauses or resumes playback.
	TogglePause bool

	// Stop stops playback and rewinds.
	Stop bool

	// Tempo forces a tempo in BPM.
	Tempo float64

	// ClearTempo returns to the file's tempo.
	ClearTempo bool

	// Skip moves the playback position by the given time, at file tempo.
	Skip time.Duration

	// ToggleTrack mutes or unmutes the track with this 1-based number.
	ToggleTrack int

	// Quit quits the main loop.
	Quit bool
}

// IsZero returns if the command is an empty message. If so, this likely indicates a closed channel.
func (c Command) IsZero() bool {
	return c == Command{}
}

// UIState is the state of the user interface.
type UIState struct {
	// Err is set to show an error message.
	Err error

	// CurrentFile is the name of the file being played.
	CurrentFile string

	// CurrentMessage is a message for what is currently happening.
	CurrentMessage string

	// Playing is whether we are currently playing.
	Playing bool

	// Tempo is the tempo played at, in BPM.
	Tempo float64

	// FileTempo is the tempo the file asks for, in BPM.
	FileTempo float64

	// Forced is set while a forced tempo is in effect.
	Forced bool

	// PlaybackPosTime is the wall time PlaybackPos was last updated.
	PlaybackPosTime time.Time

	// PlaybackPos is the current playback position at file tempo.
	PlaybackPos time.Duration

	// PlaybackLen is the length of the current file at file tempo.
	PlaybackLen time.Duration

	// Tracks tells for each track whether it is audible.
	Tracks []bool
}

// ActualPlaybackPos extrapolates the playback position to now.
func (ui UIState) ActualPlaybackPos() time.Duration {
	if !ui.Playing || ui.FileTempo <= 0 {
		return ui.PlaybackPos
	}
	delta := time.Duration(float64(time.Since(ui.PlaybackPosTime)) * ui.Tempo / ui.FileTempo)
	return min(ui.PlaybackPos+delta, ui.PlaybackLen)
}

func (ui UIState) ActualPlaybackFraction() float64 {
	if ui.PlaybackLen <= 0 {
		return 0
	}
	return float64(ui.ActualPlaybackPos()) / float64(ui.PlaybackLen)
}

// uiStateInterval limits how often playback progress is sent.
const uiStateInterval = 50 * time.Millisecond

type Backend struct {
	// Commands can be used to send commands to the backend.
	Commands chan Command

	// UIStates receives updates to the UI state non-blockingly.
	UIStates chan UIState

	player    *Player
	quitAtEnd bool

	// ended receives a value when playback reaches the end of the file.
	ended chan struct{}

	mu sync.Mutex

	// The current UI state. Sent to the client on every update, nonblockingly.
	uiState  UIState
	lastSent time.Time
	closed   bool
}

type BackendOptions struct {
	// Player is the player to control. It must have a file loaded.
	Player *Player

	// File is the name of the loaded file, for display.
	File string

	// QuitAtEnd makes Loop return once the file has been played.
	QuitAtEnd bool
}

func NewBackend(options *BackendOptions) *Backend {
	b := &Backend{
		Commands:  make(chan Command, 10),
		UIStates:  make(chan UIState, 100),
		player:    options.Player,
		quitAtEnd: options.QuitAtEnd,
		ended:     make(chan struct{}, 1),
		uiState: UIState{
			CurrentFile:    options.File,
			CurrentMessage: "initializing player",
		},
	}
	b.player.On(Playing, b.handleProgress)
	b.player.On(Paused, b.handleStateChange)
	b.player.On(Stopped, b.handleStateChange)
	b.player.On(EndOfFile, b.handleEndOfFile)
	b.player.On(Error, b.handleError)
	return b
}

func (b *Backend) handleProgress(Notification) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if time.Since(b.lastSent) < uiStateInterval {
		return nil
	}
	b.sendUIStateLocked()
	return nil
}

func (b *Backend) handleStateChange(Notification) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendUIStateLocked()
	return nil
}

func (b *Backend) handleEndOfFile(Notification) error {
	select {
	case b.ended <- struct{}{}:
	default:
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uiState.CurrentMessage = "end of file"
	b.sendUIStateLocked()
	return nil
}

func (b *Backend) handleError(n Notification) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uiState.Err = n.Err
	b.sendUIStateLocked()
	return nil
}

// refreshLocked copies the player state into the UI state.
func (b *Backend) refreshLocked() {
	p := b.player
	b.uiState.Playing = p.State() == StatePlaying
	b.uiState.Tempo = p.Tempo()
	b.uiState.FileTempo = p.FileTempo()
	_, b.uiState.Forced = p.ForcedTempo()
	b.uiState.PlaybackPosTime = time.Now()
	b.uiState.PlaybackPos = p.Position()
	b.uiState.PlaybackLen = p.Duration()
	tracks := make([]bool, p.Tracks())
	for i := range tracks {
		tracks[i] = p.TrackEnabled(i)
	}
	b.uiState.Tracks = tracks
}

func (b *Backend) sendUIStateLocked() {
	if b.closed {
		return
	}
	b.refreshLocked()
	b.lastSent = time.Now()
	select {
	case b.UIStates <- b.uiState:
		return
	default:
		log.Printf("Tried to send an UI state, but nobody came.")
		return
	}
}

func (b *Backend) sendUIState() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendUIStateLocked()
}

func (b *Backend) setMessage(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uiState.CurrentMessage = msg
}

func (b *Backend) setErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uiState.Err = err
}

var SigIntError = errors.New("SIGINT caught")
var sigInt = make(chan os.Signal, 1)

func init() {
	signal.Notify(sigInt, os.Interrupt)
}

var QuitError = errors.New("intentionally quitting")

func (b *Backend) handleCommand(cmd Command) error {
	p := b.player
	switch {
	case cmd.Quit:
		return QuitError
	case cmd.TogglePause:
		if p.State() == StatePlaying {
			p.Pause()
			b.setMessage("paused")
			return nil
		}
		b.setMessage("playing")
		return p.Start()
	case cmd.Stop:
		p.Stop()
		b.setMessage("stopped")
		return nil
	case cmd.Tempo != 0:
		return p.SetForcedTempo(cmd.Tempo)
	case cmd.ClearTempo:
		p.ClearForcedTempo()
		return nil
	case cmd.Skip != 0:
		pos := min(max(p.Position()+cmd.Skip, 0), p.Duration())
		return p.SkipToSeconds(pos.Seconds())
	case cmd.ToggleTrack != 0:
		i := cmd.ToggleTrack - 1
		if i < 0 || i >= p.Tracks() {
			return fmt.Errorf("%w: %d", ErrNoTrack, cmd.ToggleTrack)
		}
		if p.TrackEnabled(i) {
			return p.DisableTrack(i)
		}
		return p.EnableTrack(i)
	default:
		return fmt.Errorf("unrecognized command: %+v", cmd)
	}
}

// Loop starts playback and handles commands until quitting. It returns
// QuitError on an intentional quit and SigIntError on SIGINT.
func (b *Backend) Loop() error {
	b.setMessage("playing")
	if err := b.player.Start(); err != nil && !errors.Is(err, ErrAlreadyPlaying) {
		return err
	}
	for {
		b.sendUIState()
		select {
		case <-sigInt:
			return SigIntError
		case cmd := <-b.Commands:
			if cmd.IsZero() {
				// Channel closed by the UI.
				return QuitError
			}
			b.setErr(nil)
			err := b.handleCommand(cmd)
			if errors.Is(err, QuitError) {
				return err
			}
			if err != nil {
				b.setErr(err)
				// Updated on next iteration.
			}
		case <-b.ended:
			if b.quitAtEnd {
				return QuitError
			}
		}
	}
}

// Close stops playback and closes UIStates.
func (b *Backend) Close() {
	b.player.Stop()
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.UIStates)
	}
}
