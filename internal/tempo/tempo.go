// Package tempo converts between wall-clock time and MIDI ticks.
package tempo

import (
	"math"
	"time"
)

const (
	// DefaultBPM is the tempo in effect until a file sets its own.
	DefaultBPM = 120.0

	// MinBPM is the lowest effective tempo an overlay may produce.
	MinBPM = 1.0
)

// TicksPerMillisecond returns how many ticks pass per millisecond at the given
// pulse division (ticks per quarter note) and tempo.
func TicksPerMillisecond(division int, bpm float64) float64 {
	return float64(division) * bpm / 60000
}

// FromMicroseconds converts microseconds per quarter note to beats per minute.
func FromMicroseconds(us uint32) float64 {
	return 60000000 / float64(us)
}

// ToMicroseconds converts beats per minute to microseconds per quarter note.
func ToMicroseconds(bpm float64) uint32 {
	return uint32(math.Round(60000000 / bpm))
}

// Ticks returns the number of whole ticks elapsed in d, rounded to nearest.
func Ticks(d time.Duration, division int, bpm float64) int64 {
	return int64(math.Round(d.Seconds() * TicksPerMillisecond(division, bpm) * 1000))
}

// Seconds returns the playing time of ticks at a constant tempo.
func Seconds(ticks int64, division int, bpm float64) float64 {
	return float64(ticks) / float64(division) / bpm * 60
}

// Overlay is a forced tempo that shifts every tempo the file supplies by the
// difference between the forced tempo and the file tempo at the time of
// forcing. The zero value is unset.
type Overlay struct {
	Forced   float64
	Original float64
	set      bool
}

// Force sets the forced tempo relative to the file tempo currently in effect.
func (o *Overlay) Force(forced, original float64) {
	o.Forced = forced
	o.Original = original
	o.set = true
}

// Clear unsets the overlay.
func (o *Overlay) Clear() {
	*o = Overlay{}
}

// IsSet returns whether a forced tempo is in effect.
func (o Overlay) IsSet() bool {
	return o.set
}

// Effective returns the tempo to play at when the file supplies the given one.
func (o Overlay) Effective(supplied float64) float64 {
	if !o.set {
		return supplied
	}
	return max(supplied+(o.Forced-o.Original), MinBPM)
}
