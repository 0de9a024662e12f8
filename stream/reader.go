package stream

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/wippyai/spits/errors"
)

// Reader consumes values from a stream in write order.
type Reader struct {
	buf []byte
	off int
}

// NewReader reads from b without copying it.
func NewReader(b []byte) *Reader { return &Reader{buf: b} }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

// Offset returns the number of bytes consumed.
func (r *Reader) Offset() int { return r.off }

func (r *Reader) next(n int, what string) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, errors.New(errors.PhaseMarshal, errors.KindInvalidData).
			Detail("short read of %s at offset %d: need %d bytes, have %d", what, r.off, n, r.Remaining()).
			Build()
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *Reader) Bool() (bool, error) {
	b, err := r.next(1, "bool")
	if err != nil {
		return false, err
	}
	switch b[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, errors.InvalidData(errors.PhaseMarshal, fmt.Sprintf("invalid bool byte %#x at offset %d", b[0], r.off-1))
	}
}

func (r *Reader) Uint8() (uint8, error) {
	b, err := r.next(1, "uint8")
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) Int8() (int8, error) {
	v, err := r.Uint8()
	return int8(v), err
}

func (r *Reader) Uint16() (uint16, error) {
	b, err := r.next(2, "uint16")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) Int16() (int16, error) {
	v, err := r.Uint16()
	return int16(v), err
}

func (r *Reader) Uint32() (uint32, error) {
	b, err := r.next(4, "uint32")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) Int32() (int32, error) {
	v, err := r.Uint32()
	return int32(v), err
}

func (r *Reader) Uint64() (uint64, error) {
	b, err := r.next(8, "uint64")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) Int64() (int64, error) {
	v, err := r.Uint64()
	return int64(v), err
}

func (r *Reader) Float32() (float32, error) {
	v, err := r.Uint32()
	return math.Float32frombits(v), err
}

func (r *Reader) Float64() (float64, error) {
	v, err := r.Uint64()
	return math.Float64frombits(v), err
}

// length reads a length prefix. A prefix that does not fit the remaining
// bytes is not consumed.
func (r *Reader) length() (int, error) {
	start := r.off
	n, err := r.Int64()
	if err != nil {
		return 0, err
	}
	if n < 0 || n > int64(r.Remaining()) {
		r.off = start
		return 0, errors.InvalidData(errors.PhaseMarshal,
			fmt.Sprintf("length %d at offset %d exceeds the %d remaining bytes", n, start, len(r.buf)-start-8))
	}
	return int(n), nil
}

func (r *Reader) String() (string, error) {
	n, err := r.length()
	if err != nil {
		return "", err
	}
	b, err := r.next(n, "string")
	return string(b), err
}

// ByteString returns a copy of a length-prefixed byte string.
func (r *Reader) ByteString() ([]byte, error) {
	n, err := r.length()
	if err != nil {
		return nil, err
	}
	b, err := r.next(n, "byte string")
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

// Data returns the next n bytes. The slice aliases the reader's input.
func (r *Reader) Data(n int) ([]byte, error) {
	return r.next(n, "data")
}
