package decoder

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
)

var (
	ErrBadMagic            = errors.New("not a MIDI file: missing MThd header")
	ErrShortHeader         = errors.New("MThd header too short")
	ErrUnsupportedDivision = errors.New("unsupported time division")
)

const (
	// HeaderSize is the size of a standard MThd chunk including its 8 byte chunk header.
	HeaderSize = 14

	// ChunkHeaderSize is the size of the marker and length preceding each chunk.
	ChunkHeaderSize = 8
)

var (
	headerMagic = []byte("MThd")
	trackMagic  = []byte("MTrk")
)

// File is the chunk layout of a Standard MIDI File.
type File struct {
	// Format is 0, 1 or 2.
	Format int

	// Division is the number of ticks per quarter note.
	Division int

	// HeaderSize is the size of the MThd chunk including chunk header.
	HeaderSize int

	// Tracks are the payloads of all MTrk chunks in file order.
	Tracks [][]byte
}

// Parse locates the header and track chunks in data. Track payloads share data.
func Parse(data []byte) (*File, error) {
	if len(data) < len(headerMagic) || !bytes.Equal(data[:4], headerMagic) {
		return nil, ErrBadMagic
	}
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortHeader, len(data))
	}
	f := &File{
		Format:     int(binary.BigEndian.Uint16(data[8:10])),
		Division:   int(binary.BigEndian.Uint16(data[12:14])),
		HeaderSize: HeaderSize,
	}
	if f.Division == 0 || f.Division&0x8000 != 0 {
		return nil, fmt.Errorf("%w: %#04x", ErrUnsupportedDivision, f.Division)
	}
	if l := int64(binary.BigEndian.Uint32(data[4:8])); l > 6 && ChunkHeaderSize+l <= int64(len(data)) {
		f.HeaderSize = ChunkHeaderSize + int(l)
	}

	pos := f.HeaderSize
	for {
		i := bytes.Index(data[pos:], trackMagic)
		if i < 0 {
			break
		}
		start := pos + i + ChunkHeaderSize
		if start > len(data) {
			log.Printf("Ignoring MTrk marker without length at byte %d.", pos+i)
			break
		}
		end := int64(start) + int64(binary.BigEndian.Uint32(data[start-4:start]))
		if end > int64(len(data)) {
			log.Printf("Track %d claims %d bytes but only %d remain; truncating.", len(f.Tracks), end-int64(start), len(data)-start)
			end = int64(len(data))
		}
		f.Tracks = append(f.Tracks, data[start:end:end])
		pos = int(end)
	}
	return f, nil
}
