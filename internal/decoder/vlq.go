package decoder

import (
	"errors"
	"log"
)

// MaxVLQ is the largest value a four byte variable-length quantity can hold.
const MaxVLQ = 0x0FFFFFFF

var (
	ErrTruncated  = errors.New("data ends before the value is complete")
	ErrVLQTooLong = errors.New("variable-length quantity longer than 4 bytes")
)

// ReadVLQ reads a variable-length quantity starting at buf[off].
// It returns the value and the number of bytes consumed.
func ReadVLQ(buf []byte, off int) (uint32, int, error) {
	var v uint32
	for i := 0; i < 4; i++ {
		if off+i >= len(buf) {
			return 0, 0, ErrTruncated
		}
		b := buf[off+i]
		v = v<<7 | uint32(b&0x7F)
		if b&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return 0, 0, ErrVLQTooLong
}

// AppendVLQ appends the variable-length encoding of v to dst.
func AppendVLQ(dst []byte, v uint32) []byte {
	if v > MaxVLQ {
		log.Panicf("AppendVLQ: value %#x exceeds %#x", v, MaxVLQ)
	}
	var tmp [4]byte
	n := len(tmp) - 1
	tmp[n] = byte(v & 0x7F)
	for v >>= 7; v != 0; v >>= 7 {
		n--
		tmp[n] = byte(v&0x7F) | 0x80
	}
	return append(dst, tmp[n:]...)
}
