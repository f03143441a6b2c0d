package decoder

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/divVerent/midistream/internal/tempo"
)

// Kind is the category of a decoded event.
type Kind int

const (
	KindNoteOff Kind = iota
	KindNoteOn
	KindKeyPressure
	KindControlChange
	KindProgramChange
	KindChannelPressure
	KindPitchBend
	KindSysEx
	KindMeta
)

var kindNames = map[Kind]string{
	KindNoteOff:         "Note off",
	KindNoteOn:          "Note on",
	KindKeyPressure:     "Polyphonic Key Pressure",
	KindControlChange:   "Controller Change",
	KindProgramChange:   "Program Change",
	KindChannelPressure: "Channel Key Pressure",
	KindPitchBend:       "Pitch Bend",
	KindSysEx:           "Sysex",
	KindMeta:            "Meta",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// IsChannel returns whether events of this kind address a MIDI channel.
func (k Kind) IsChannel() bool {
	return k <= KindPitchBend
}

// Meta event types.
const (
	MetaSequenceNumber    = 0x00
	MetaText              = 0x01
	MetaCopyright         = 0x02
	MetaTrackName         = 0x03
	MetaInstrumentName    = 0x04
	MetaLyric             = 0x05
	MetaMarker            = 0x06
	MetaCuePoint          = 0x07
	MetaProgramName       = 0x08
	MetaDeviceName        = 0x09
	MetaChannelPrefix     = 0x20
	MetaPort              = 0x21
	MetaEndOfTrack        = 0x2F
	MetaTempo             = 0x51
	MetaSMPTEOffset       = 0x54
	MetaTimeSignature     = 0x58
	MetaKeySignature      = 0x59
	MetaSequencerSpecific = 0x7F
)

var metaNames = map[byte]string{
	MetaSequenceNumber:    "Sequence Number",
	MetaText:              "Text Event",
	MetaCopyright:         "Copyright Notice",
	MetaTrackName:         "Sequence/Track Name",
	MetaInstrumentName:    "Instrument Name",
	MetaLyric:             "Lyric",
	MetaMarker:            "Marker",
	MetaCuePoint:          "Cue Point",
	MetaProgramName:       "Program Name",
	MetaDeviceName:        "Device Name",
	MetaChannelPrefix:     "MIDI Channel Prefix",
	MetaPort:              "MIDI Port",
	MetaEndOfTrack:        "End of Track",
	MetaTempo:             "Set Tempo",
	MetaSMPTEOffset:       "SMPTE Offset",
	MetaTimeSignature:     "Time Signature",
	MetaKeySignature:      "Key Signature",
	MetaSequencerSpecific: "Sequencer-Specific Meta-event",
}

// dataLen is the number of data bytes following a channel status, by high nibble.
var dataLen = [16]int{
	0x8: 2,
	0x9: 2,
	0xA: 2,
	0xB: 2,
	0xC: 1,
	0xD: 1,
	0xE: 2,
}

// Event is one decoded track event. Events are never modified after decoding.
type Event struct {
	// Tick is the absolute tick of the event within its track.
	Tick int64

	Kind Kind

	// Status is the status byte in effect, also when running status was used.
	Status byte

	// Channel is only meaningful if Kind.IsChannel().
	Channel uint8

	// MetaType is only meaningful for KindMeta.
	MetaType byte

	// Data is the payload: channel data bytes, SysEx bytes or meta payload.
	Data []byte
}

// Name returns the symbolic name of the event.
func (e Event) Name() string {
	if e.Kind != KindMeta {
		return e.Kind.String()
	}
	if s, ok := metaNames[e.MetaType]; ok {
		return s
	}
	return fmt.Sprintf("Unknown Meta (0x%02X)", e.MetaType)
}

// Message rebuilds the complete wire bytes of the event. Channel events
// always carry their status byte.
func (e Event) Message() []byte {
	switch {
	case e.Kind == KindMeta:
		msg := []byte{0xFF, e.MetaType}
		msg = AppendVLQ(msg, uint32(len(e.Data)))
		return append(msg, e.Data...)
	case e.Kind == KindSysEx && e.Status == 0xF7:
		// Escape sequences are sent verbatim.
		return append([]byte(nil), e.Data...)
	default:
		return append([]byte{e.Status}, e.Data...)
	}
}

// MIDI returns the event as a gomidi live message. Meta events have no live
// representation and yield nil.
func (e Event) MIDI() midi.Message {
	if e.Kind == KindMeta {
		return nil
	}
	return midi.Message(e.Message())
}

// SMF returns the event as a gomidi file message.
func (e Event) SMF() smf.Message {
	return smf.Message(e.Message())
}

// Tempo returns the tempo in beats per minute carried by a Set Tempo event.
func (e Event) Tempo() (float64, bool) {
	if e.Kind != KindMeta || e.MetaType != MetaTempo || len(e.Data) != 3 {
		return 0, false
	}
	us := uint32(e.Data[0])<<16 | uint32(e.Data[1])<<8 | uint32(e.Data[2])
	if us == 0 {
		return 0, false
	}
	return tempo.FromMicroseconds(us), true
}

// Text returns the payload of text-like meta events.
func (e Event) Text() (string, bool) {
	if e.Kind != KindMeta || e.MetaType < MetaText || e.MetaType > MetaDeviceName {
		return "", false
	}
	return string(e.Data), true
}

// Program returns the program number of a Program Change event.
func (e Event) Program() (uint8, bool) {
	if e.Kind != KindProgramChange || len(e.Data) < 1 {
		return 0, false
	}
	return e.Data[0], true
}

func (e Event) String() string {
	if e.Kind.IsChannel() {
		return fmt.Sprintf("%d %s ch=%d % X", e.Tick, e.Name(), e.Channel, e.Data)
	}
	return fmt.Sprintf("%d %s % X", e.Tick, e.Name(), e.Data)
}
