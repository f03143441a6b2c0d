package player

import (
	"slices"
	"time"

	"github.com/divVerent/midistream/internal/decoder"
	"github.com/divVerent/midistream/internal/tempo"
)

// bytesProcessedLocked counts the header, the chunk headers and all bytes
// the tracks have decoded so far.
func (p *Player) bytesProcessedLocked() int {
	if p.file == nil {
		return 0
	}
	n := p.file.HeaderSize
	for _, t := range p.tracks {
		n += decoder.ChunkHeaderSize + t.State().Cursor
	}
	return n
}

// endOfFileLocked returns whether every byte of the file has been decoded,
// or no track has anything left to decode.
func (p *Player) endOfFileLocked() bool {
	if p.file == nil {
		return true
	}
	if p.bytesProcessedLocked() == len(p.buffer) {
		return true
	}
	for _, t := range p.tracks {
		if !t.Exhausted() {
			return false
		}
	}
	return true
}

// EndOfFile returns whether playback has decoded the whole file.
func (p *Player) EndOfFile() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.endOfFileLocked()
}

// BytesProcessed returns how many bytes of the file have been decoded.
func (p *Player) BytesProcessed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bytesProcessedLocked()
}

func (p *Player) FileSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

func (p *Player) Format() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return 0
	}
	return p.file.Format
}

func (p *Player) Division() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return 0
	}
	return p.file.Division
}

// Tempo returns the tempo playback runs at, including any forced tempo.
func (p *Player) Tempo() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tempo
}

// FileTempo returns the tempo most recently set by the file.
func (p *Player) FileTempo() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fileTempo
}

// ForcedTempo returns the forced tempo, if any.
func (p *Player) ForcedTempo() (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overlay.Forced, p.overlay.IsSet()
}

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Err returns the error that last interrupted playback.
func (p *Player) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// CurrentTick returns the playback position in ticks.
func (p *Player) CurrentTick() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return 0
	}
	return p.currentTickLocked(p.now())
}

// TotalTicks returns the tick of the last event of the longest track.
func (p *Player) TotalTicks() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalTicks
}

// TotalEvents returns the number of events in the file.
func (p *Player) TotalEvents() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, evs := range p.events {
		n += len(evs)
	}
	return n
}

// Events returns the events of each track as found by the dry run.
func (p *Player) Events() [][]decoder.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.events)
}

// TempoMap returns the tempo changes found by the dry run.
func (p *Player) TempoMap() tempo.Map {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.tempoMap)
}

// Tracks returns the number of tracks.
func (p *Player) Tracks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tracks)
}

// TrackEnabled returns whether track i is audible.
func (p *Player) TrackEnabled(i int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return i >= 0 && i < len(p.tracks) && p.tracks[i].Enabled()
}

// TrackSize returns the length of track i's chunk payload.
func (p *Player) TrackSize(i int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.tracks) {
		return 0
	}
	return p.tracks[i].Len()
}

// TrackState returns the decode state of track i.
func (p *Player) TrackState(i int) decoder.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.tracks) {
		return decoder.State{}
	}
	return p.tracks[i].State()
}

// Instruments returns the distinct program numbers used by each track.
func (p *Player) Instruments() [][]uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]uint8, len(p.events))
	for i, evs := range p.events {
		for _, ev := range evs {
			if prog, ok := ev.Program(); ok && !slices.Contains(out[i], prog) {
				out[i] = append(out[i], prog)
			}
		}
	}
	return out
}

// SongTime returns the length of the song in seconds at the current tempo.
func (p *Player) SongTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.songTimeLocked()
}

func (p *Player) songTimeLocked() float64 {
	if p.file == nil {
		return 0
	}
	return tempo.Seconds(p.totalTicks, p.file.Division, p.tempo)
}

// SongTimeRemaining returns the seconds left to play at the current tempo.
func (p *Player) SongTimeRemaining() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.songTimeRemainingLocked()
}

func (p *Player) songTimeRemainingLocked() float64 {
	if p.file == nil {
		return 0
	}
	left := p.totalTicks - p.currentTickLocked(p.now())
	return tempo.Seconds(max(left, 0), p.file.Division, p.tempo)
}

// SongPercentRemaining returns the share of the song left to play.
func (p *Player) SongPercentRemaining() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := p.songTimeLocked()
	if total <= 0 {
		return 0
	}
	return 100 * p.songTimeRemainingLocked() / total
}

// Duration returns the length of the song following the file's tempo changes.
func (p *Player) Duration() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return 0
	}
	return p.tempoMap.Duration(p.totalTicks, p.file.Division)
}

// Position returns the playback position following the file's tempo changes.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return 0
	}
	return p.tempoMap.Duration(min(p.currentTickLocked(p.now()), p.totalTicks), p.file.Division)
}
