package tempo

import (
	"slices"
	"time"
)

// Change is a tempo change at an absolute tick.
type Change struct {
	Tick int64
	BPM  float64
}

// Map is a list of tempo changes ordered by tick.
type Map []Change

// Add inserts a change, keeping the map ordered. Changes on equal ticks stay
// in insertion order, so the last added one wins.
func (m Map) Add(c Change) Map {
	i, _ := slices.BinarySearchFunc(m, c.Tick+1, func(e Change, t int64) int {
		switch {
		case e.Tick < t:
			return -1
		case e.Tick > t:
			return 1
		}
		return 0
	})
	return slices.Insert(m, i, c)
}

// At returns the tempo in effect for an event at tick, i.e. after all changes
// strictly before it.
func (m Map) At(tick int64) float64 {
	bpm := DefaultBPM
	for _, c := range m {
		if c.Tick >= tick {
			break
		}
		bpm = c.BPM
	}
	return bpm
}

// Duration returns the playing time from tick 0 to ticks.
func (m Map) Duration(ticks int64, division int) time.Duration {
	var secs float64
	prevTick := int64(0)
	bpm := DefaultBPM
	for _, c := range m {
		if c.Tick >= ticks {
			break
		}
		secs += Seconds(c.Tick-prevTick, division, bpm)
		prevTick = c.Tick
		bpm = c.BPM
	}
	secs += Seconds(ticks-prevTick, division, bpm)
	return time.Duration(secs * float64(time.Second))
}

// TickAt returns the tick reached after playing for d from tick 0.
func (m Map) TickAt(d time.Duration, division int) int64 {
	remaining := d
	prevTick := int64(0)
	bpm := DefaultBPM
	for _, c := range m {
		seg := time.Duration(Seconds(c.Tick-prevTick, division, bpm) * float64(time.Second))
		if seg >= remaining {
			break
		}
		remaining -= seg
		prevTick = c.Tick
		bpm = c.BPM
	}
	return prevTick + Ticks(remaining, division, bpm)
}
