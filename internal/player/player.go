package player

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/divVerent/midistream/internal/decoder"
	"github.com/divVerent/midistream/internal/tempo"
)

// State is the playback state.
type State int

const (
	StateStopped State = iota
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// DefaultInterval is the default time between scheduling ticks.
const DefaultInterval = 5 * time.Millisecond

var (
	ErrAlreadyPlaying   = errors.New("already playing")
	ErrNotLoaded        = errors.New("no file loaded")
	ErrPlaying          = errors.New("not possible while playing")
	ErrNoDryRun         = errors.New("file has not been dry run")
	ErrSnapshotMismatch = errors.New("snapshots do not match tracks")
	ErrNoTrack          = errors.New("no such track")
)

type Options struct {
	// Interval is the time between scheduling ticks. Defaults to DefaultInterval.
	Interval time.Duration

	// Now returns the current wall-clock time. Defaults to time.Now.
	Now func() time.Time

	// ManualTick disables the internal timer. The caller then invokes Tick
	// periodically while playing.
	ManualTick bool
}

// Player decodes a loaded file and emits its events in real time.
type Player struct {
	interval   time.Duration
	now        func() time.Time
	manualTick bool

	listenersMu sync.RWMutex
	listeners   [numKinds][]Listener

	// ticking is set while a tick runs; overlapping ticks are dropped.
	ticking atomic.Bool

	mu sync.Mutex

	state  State
	cancel context.CancelFunc
	err    error

	buffer []byte
	file   *decoder.File
	tracks []*decoder.Track

	// fileTempo is the tempo the file last set; tempo is what we play at.
	fileTempo float64
	tempo     float64
	overlay   tempo.Overlay

	// startTime is zero while no wall-clock origin is set.
	startTime time.Time
	startTick int64
	tick      int64

	// Results of the last dry run.
	dryRunDone bool
	totalTicks int64
	events     [][]decoder.Event
	states     [][]decoder.State
	tempoMap   tempo.Map
}

func New(options *Options) *Player {
	p := &Player{
		interval:   options.Interval,
		now:        options.Now,
		manualTick: options.ManualTick,
		fileTempo:  tempo.DefaultBPM,
		tempo:      tempo.DefaultBPM,
	}
	if p.interval <= 0 {
		p.interval = DefaultInterval
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Load stops playback, parses data and dry runs it.
func (p *Player) Load(data []byte) error {
	p.Stop()
	f, err := decoder.Parse(data)
	if err != nil {
		return fmt.Errorf("could not parse: %w", err)
	}
	p.mu.Lock()
	p.buffer = data
	p.file = f
	p.tracks = make([]*decoder.Track, 0, len(f.Tracks))
	for _, data := range f.Tracks {
		p.tracks = append(p.tracks, decoder.NewTrack(data))
	}
	p.dryRunDone = false
	p.err = nil
	p.mu.Unlock()

	log.Printf("Loaded %d bytes: format %d, %d tracks, division %d.", len(data), f.Format, len(f.Tracks), f.Division)

	if err := p.DryRun(); err != nil {
		p.mu.Lock()
		p.file = nil
		p.tracks = nil
		p.mu.Unlock()
		return fmt.Errorf("could not decode: %w", err)
	}

	// A forced tempo carries over, relative to the new file's tempo.
	p.mu.Lock()
	if p.overlay.IsSet() {
		p.forceTempoLocked(p.overlay.Forced)
	}
	p.mu.Unlock()
	return p.publish(Notification{Kind: FileLoaded})
}

// LoadBase64 loads base64 data, optionally in data URI form.
func (p *Player) LoadBase64(s string) error {
	if strings.HasPrefix(s, "data:") {
		_, s, _ = strings.Cut(s, ",")
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("could not decode base64: %w", err)
	}
	return p.Load(data)
}

// Start begins or resumes playback.
func (p *Player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return ErrNotLoaded
	}
	if p.state == StatePlaying {
		return ErrAlreadyPlaying
	}
	if p.startTime.IsZero() {
		p.startTime = p.now()
	}
	p.state = StatePlaying
	p.err = nil
	if !p.manualTick {
		ctx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel
		go p.run(ctx)
	}
	return nil
}

// run invokes Tick periodically until ctx is done.
func (p *Player) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Tick(); err != nil {
				p.fail(err)
			}
		}
	}
}

// fail pauses playback after an error and reports it.
func (p *Player) fail(err error) {
	log.Printf("Playback interrupted: %v.", err)
	p.Pause()
	p.mu.Lock()
	p.err = err
	tick := p.tick
	p.mu.Unlock()
	p.notify(Notification{Kind: Error, Tick: tick, Err: err})
}

func (p *Player) stopTimerLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// Pause suspends playback at the last scheduled tick.
func (p *Player) Pause() {
	p.mu.Lock()
	paused := p.pauseLocked()
	tick := p.tick
	p.mu.Unlock()
	if paused {
		p.notify(Notification{Kind: Paused, Tick: tick})
	}
}

func (p *Player) pauseLocked() bool {
	if p.state != StatePlaying {
		return false
	}
	p.stopTimerLocked()
	p.startTick = p.tick
	p.startTime = time.Time{}
	p.state = StatePaused
	return true
}

// Stop ends playback and rewinds to the start.
func (p *Player) Stop() {
	p.mu.Lock()
	wasStopped := p.state == StateStopped
	p.stopLocked()
	p.mu.Unlock()
	if !wasStopped {
		p.notify(Notification{Kind: Stopped})
	}
}

func (p *Player) stopLocked() {
	p.stopTimerLocked()
	p.resetLocked()
	p.state = StateStopped
}

// resetLocked rewinds all tracks, clocks and tempo.
func (p *Player) resetLocked() {
	p.startTime = time.Time{}
	p.startTick = 0
	p.tick = 0
	for _, t := range p.tracks {
		t.Reset()
	}
	p.setFileTempoLocked(p.initialTempoLocked())
}

// initialTempoLocked returns the file tempo in effect at tick 0, including
// changes at tick 0 itself, once a dry run found them.
func (p *Player) initialTempoLocked() float64 {
	if !p.dryRunDone {
		return tempo.DefaultBPM
	}
	return p.tempoMap.At(1)
}

// setFileTempoLocked applies a file tempo to the player and all tracks.
func (p *Player) setFileTempoLocked(bpm float64) {
	p.fileTempo = bpm
	p.tempo = p.overlay.Effective(bpm)
	for _, t := range p.tracks {
		t.SetTempo(bpm)
	}
}

// currentTickLocked converts the time elapsed since the origin to a tick.
func (p *Player) currentTickLocked(now time.Time) int64 {
	if p.startTime.IsZero() {
		return p.startTick
	}
	return tempo.Ticks(now.Sub(p.startTime), p.file.Division, p.tempo) + p.startTick
}

// rebaseLocked moves the wall-clock origin to now so that a tempo change only
// affects time from now on.
func (p *Player) rebaseLocked(now time.Time, tick int64) {
	if p.startTime.IsZero() {
		return
	}
	p.startTime = now
	p.startTick = tick
}

// Tick runs one scheduling step: it emits every event due at the current
// tick. If a tick is still running, e.g. because a listener is slow, the call
// returns without doing anything.
func (p *Player) Tick() error {
	if !p.ticking.CompareAndSwap(false, true) {
		return nil
	}
	defer p.ticking.Store(false)

	p.mu.Lock()
	if p.state != StatePlaying {
		p.mu.Unlock()
		return nil
	}
	if p.endOfFileLocked() {
		tick := p.tick
		p.stopLocked()
		p.mu.Unlock()
		return p.publish(Notification{Kind: EndOfFile, Tick: tick})
	}
	now := p.now()
	tick := p.currentTickLocked(now)
	p.tick = tick
	evs, decodeErr := p.playLoopLocked(now, tick)
	if decodeErr != nil {
		p.pauseLocked()
	}
	p.mu.Unlock()

	// Events decoded before a decode error are still published.
	for i := range evs {
		err := p.publish(Notification{Kind: MidiEvent, Tick: evs[i].ev.Tick, Track: evs[i].track, Event: &evs[i].ev})
		if err != nil {
			return errors.Join(decodeErr, err)
		}
	}
	if decodeErr != nil {
		return decodeErr
	}
	return p.publish(Notification{Kind: Playing, Tick: tick})
}

type trackEvent struct {
	track int
	ev    decoder.Event
}

// playLoopLocked drains each track of the events due at tick, in track
// order. A tempo change takes effect for the tracks after the one carrying it
// right away, and for all tracks from the next tick on. On a decode error, the
// events decoded so far are returned along with it.
func (p *Player) playLoopLocked(now time.Time, tick int64) ([]trackEvent, error) {
	var evs []trackEvent
	for _, t := range p.tracks {
		t.SetTempo(p.fileTempo)
	}
	for i, t := range p.tracks {
		for {
			ev, ok, err := t.Next(tick, false)
			if err != nil {
				return evs, fmt.Errorf("track %d: %w", i, err)
			}
			if !ok {
				break
			}
			if bpm, ok := ev.Tempo(); ok {
				p.fileTempo = bpm
				p.tempo = p.overlay.Effective(bpm)
				for _, later := range p.tracks[i:] {
					later.SetTempo(bpm)
				}
				p.rebaseLocked(now, tick)
			}
			if t.Enabled() {
				evs = append(evs, trackEvent{i, ev})
			}
		}
	}
	return evs, nil
}

// DryRun decodes the whole file without timing to collect all events, the
// total length and the tempo map, then rewinds.
func (p *Player) DryRun() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return ErrNotLoaded
	}
	if p.state == StatePlaying {
		return ErrPlaying
	}
	p.dryRunDone = false
	p.resetLocked()
	defer p.resetLocked()

	events := make([][]decoder.Event, len(p.tracks))
	states := make([][]decoder.State, len(p.tracks))
	var tempoMap tempo.Map
	for !p.endOfFileLocked() {
		for i, t := range p.tracks {
			ev, ok, err := t.Next(0, true)
			if err != nil {
				return fmt.Errorf("track %d: %w", i, err)
			}
			if !ok {
				continue
			}
			events[i] = append(events[i], ev)
			states[i] = append(states[i], t.State())
			if bpm, ok := ev.Tempo(); ok {
				p.setFileTempoLocked(bpm)
				tempoMap = tempoMap.Add(tempo.Change{Tick: ev.Tick, BPM: bpm})
			}
		}
	}

	var total int64
	for _, t := range p.tracks {
		total = max(total, t.State().Tick)
	}
	p.totalTicks = total
	p.events = events
	p.states = states
	p.tempoMap = tempoMap
	p.dryRunDone = true
	return nil
}

// Checkpoint is a playback position that decoding can resume from.
type Checkpoint struct {
	// Tick is the position to resume at.
	Tick int64

	// Tempo is the file tempo in effect at Tick.
	Tempo float64

	// Tracks holds the decode state of each track, positioned before the
	// first event at or after Tick.
	Tracks []decoder.State
}

// Checkpoint returns the checkpoint for tick, computed from the dry run.
func (p *Player) Checkpoint(tick int64) (Checkpoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.dryRunDone {
		return Checkpoint{}, ErrNoDryRun
	}
	tick = max(tick, 0)
	cp := Checkpoint{
		Tick:   tick,
		Tempo:  p.tempoMap.At(tick),
		Tracks: make([]decoder.State, len(p.tracks)),
	}
	for i, evs := range p.events {
		// Events of a track have non-decreasing ticks.
		n := 0
		for n < len(evs) && evs[n].Tick < tick {
			n++
		}
		if n > 0 {
			cp.Tracks[i] = p.states[i][n-1]
		}
	}
	return cp, nil
}

// Seek pauses playback and positions every track at the given snapshot. The
// supplied tempo is a file tempo; a forced tempo is applied on top of it.
func (p *Player) Seek(bpm float64, tick int64, snapshots []decoder.State) error {
	if bpm <= 0 {
		return fmt.Errorf("invalid tempo %v", bpm)
	}
	if tick < 0 {
		return fmt.Errorf("invalid tick %d", tick)
	}
	p.mu.Lock()
	if p.file == nil {
		p.mu.Unlock()
		return ErrNotLoaded
	}
	if len(snapshots) != len(p.tracks) {
		p.mu.Unlock()
		return fmt.Errorf("%w: got %d for %d tracks", ErrSnapshotMismatch, len(snapshots), len(p.tracks))
	}
	paused := p.pauseLocked()
	for i, t := range p.tracks {
		if err := t.Restore(snapshots[i]); err != nil {
			p.resetLocked()
			p.mu.Unlock()
			if paused {
				p.notify(Notification{Kind: Paused})
			}
			return fmt.Errorf("track %d: %w", i, err)
		}
	}
	p.setFileTempoLocked(bpm)
	p.tick = tick
	p.startTick = tick
	p.startTime = time.Time{}
	p.mu.Unlock()
	if paused {
		p.notify(Notification{Kind: Paused, Tick: tick})
	}
	return nil
}

// Restore seeks to a checkpoint.
func (p *Player) Restore(cp Checkpoint) error {
	return p.Seek(cp.Tempo, cp.Tick, cp.Tracks)
}

// SkipToTick moves playback to tick, resuming if it was playing.
func (p *Player) SkipToTick(tick int64) error {
	cp, err := p.Checkpoint(tick)
	if err != nil {
		return err
	}
	wasPlaying := p.State() == StatePlaying
	if err := p.Restore(cp); err != nil {
		return err
	}
	if wasPlaying {
		return p.Start()
	}
	return nil
}

// SkipToPercent moves playback to a fraction of the total length.
func (p *Player) SkipToPercent(percent float64) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("percent %v out of range", percent)
	}
	return p.SkipToTick(int64(float64(p.TotalTicks()) * percent / 100))
}

// SkipToSeconds moves playback to a time position at the file's tempo.
func (p *Player) SkipToSeconds(seconds float64) error {
	if seconds < 0 {
		return fmt.Errorf("negative position %v", seconds)
	}
	p.mu.Lock()
	if !p.dryRunDone {
		p.mu.Unlock()
		return ErrNoDryRun
	}
	tick := p.tempoMap.TickAt(time.Duration(seconds*float64(time.Second)), p.file.Division)
	tick = min(tick, p.totalTicks)
	p.mu.Unlock()
	return p.SkipToTick(tick)
}

// SetForcedTempo plays at bpm from now on. Later tempo changes in the file
// shift the tempo by the same amount they would without forcing.
func (p *Player) SetForcedTempo(bpm float64) error {
	if bpm < tempo.MinBPM {
		return fmt.Errorf("invalid tempo %v", bpm)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.forceTempoLocked(bpm)
	return nil
}

// forceTempoLocked forces bpm relative to the file tempo at the current
// position.
func (p *Player) forceTempoLocked(bpm float64) {
	p.changeTempoLocked(func() {
		p.overlay.Force(bpm, p.fileTempo)
		for _, t := range p.tracks {
			t.ForceTempo(bpm, p.fileTempo)
		}
	})
}

// ClearForcedTempo returns to the tempo set by the file.
func (p *Player) ClearForcedTempo() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changeTempoLocked(func() {
		p.overlay.Clear()
		for _, t := range p.tracks {
			t.ClearForcedTempo(p.fileTempo)
		}
	})
}

func (p *Player) changeTempoLocked(change func()) {
	now := p.now()
	var tick int64
	if p.file != nil {
		tick = p.currentTickLocked(now)
	}
	change()
	p.tempo = p.overlay.Effective(p.fileTempo)
	p.rebaseLocked(now, tick)
}

// EnableTrack makes a track's events audible.
func (p *Player) EnableTrack(i int) error {
	return p.withTrack(i, (*decoder.Track).Enable)
}

// DisableTrack mutes a track. It keeps being decoded, so its tempo changes
// still apply.
func (p *Player) DisableTrack(i int) error {
	return p.withTrack(i, (*decoder.Track).Disable)
}

func (p *Player) withTrack(i int, f func(*decoder.Track)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.tracks) {
		return fmt.Errorf("%w: %d", ErrNoTrack, i)
	}
	f(p.tracks[i])
	return nil
}
