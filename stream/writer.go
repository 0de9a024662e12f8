package stream

import (
	"encoding/binary"
	"math"
	"sync"
)

const (
	poolInitCap = 64
	poolMaxCap  = 64 << 10
)

var writerPool = sync.Pool{
	New: func() any {
		return &Writer{buf: make([]byte, 0, poolInitCap)}
	},
}

// Writer appends values to a growing buffer. The zero Writer is ready to
// use.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty writer.
func NewWriter() *Writer { return &Writer{} }

// GetWriter takes a writer from the pool. Return it with PutWriter once its
// bytes are no longer referenced.
func GetWriter() *Writer {
	return writerPool.Get().(*Writer)
}

// PutWriter returns w to the pool. Oversized buffers are dropped.
func PutWriter(w *Writer) {
	if w == nil || cap(w.buf) > poolMaxCap {
		return
	}
	w.buf = w.buf[:0]
	writerPool.Put(w)
}

// Bytes returns the encoded stream. It aliases the writer's buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written.
func (w *Writer) Len() int { return len(w.buf) }

// Reset empties the writer and keeps its buffer.
func (w *Writer) Reset() { w.buf = w.buf[:0] }

func (w *Writer) Bool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) Int8(v int8)   { w.buf = append(w.buf, byte(v)) }
func (w *Writer) Uint8(v uint8) { w.buf = append(w.buf, v) }

func (w *Writer) Int16(v int16)   { w.Uint16(uint16(v)) }
func (w *Writer) Int32(v int32)   { w.Uint32(uint32(v)) }
func (w *Writer) Int64(v int64)   { w.Uint64(uint64(v)) }
func (w *Writer) Uint16(v uint16) { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *Writer) Uint32(v uint32) { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *Writer) Uint64(v uint64) { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }

func (w *Writer) Float32(v float32) { w.Uint32(math.Float32bits(v)) }
func (w *Writer) Float64(v float64) { w.Uint64(math.Float64bits(v)) }

// String writes the length as an int64 followed by the bytes of s.
func (w *Writer) String(s string) {
	w.Int64(int64(len(s)))
	w.buf = append(w.buf, s...)
}

// ByteString writes the length as an int64 followed by b.
func (w *Writer) ByteString(b []byte) {
	w.Int64(int64(len(b)))
	w.buf = append(w.buf, b...)
}

// Data appends b without a length prefix.
func (w *Writer) Data(b []byte) {
	w.buf = append(w.buf, b...)
}
