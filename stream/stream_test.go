package stream

import (
	"bytes"
	stderrors "errors"
	"math"
	"testing"

	"pgregory.net/rapid"

	"github.com/wippyai/spits/errors"
)

func isInvalidData(err error) bool {
	return stderrors.Is(err, &errors.Error{Phase: errors.PhaseMarshal, Kind: errors.KindInvalidData})
}

func TestWriter_Layout(t *testing.T) {
	w := NewWriter()
	w.Int32(1)
	w.Int64(-2)
	w.Bool(true)
	w.String("ab")
	w.Data([]byte{9, 9})

	want := []byte{
		1, 0, 0, 0,
		0xFE, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
		1,
		2, 0, 0, 0, 0, 0, 0, 0, 'a', 'b',
		9, 9,
	}
	if !bytes.Equal(w.Bytes(), want) {
		t.Errorf("Bytes = %v\nwant    %v", w.Bytes(), want)
	}
	if w.Len() != len(want) {
		t.Errorf("Len = %d", w.Len())
	}

	w.Reset()
	if w.Len() != 0 {
		t.Errorf("Len after Reset = %d", w.Len())
	}
}

func TestReader_InOrder(t *testing.T) {
	w := NewWriter()
	w.Int32(0)
	w.Int32(15)
	w.Int64(123456789012)
	w.Float64(math.Pi)
	w.Float32(-1.5)
	w.Uint16(65535)
	w.Int8(-3)
	w.ByteString(nil)
	w.String("tail")

	r := NewReader(w.Bytes())
	if v, err := r.Int32(); err != nil || v != 0 {
		t.Fatalf("Int32 = %d, %v", v, err)
	}
	if v, err := r.Int32(); err != nil || v != 15 {
		t.Fatalf("Int32 = %d, %v", v, err)
	}
	if v, err := r.Int64(); err != nil || v != 123456789012 {
		t.Fatalf("Int64 = %d, %v", v, err)
	}
	if v, err := r.Float64(); err != nil || v != math.Pi {
		t.Fatalf("Float64 = %v, %v", v, err)
	}
	if v, err := r.Float32(); err != nil || v != -1.5 {
		t.Fatalf("Float32 = %v, %v", v, err)
	}
	if v, err := r.Uint16(); err != nil || v != 65535 {
		t.Fatalf("Uint16 = %d, %v", v, err)
	}
	if v, err := r.Int8(); err != nil || v != -3 {
		t.Fatalf("Int8 = %d, %v", v, err)
	}
	if v, err := r.ByteString(); err != nil || len(v) != 0 {
		t.Fatalf("ByteString = %v, %v", v, err)
	}
	if v, err := r.String(); err != nil || v != "tail" {
		t.Fatalf("String = %q, %v", v, err)
	}
	if r.Remaining() != 0 {
		t.Errorf("Remaining = %d", r.Remaining())
	}
}

func TestReader_ShortReads(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		read func(*Reader) error
	}{
		{"int32", []byte{1, 2, 3}, func(r *Reader) error { _, err := r.Int32(); return err }},
		{"int64", make([]byte, 7), func(r *Reader) error { _, err := r.Int64(); return err }},
		{"bool empty", nil, func(r *Reader) error { _, err := r.Bool(); return err }},
		{"bool value", []byte{2}, func(r *Reader) error { _, err := r.Bool(); return err }},
		{"string length", []byte{10, 0, 0, 0, 0, 0, 0, 0, 'x'}, func(r *Reader) error { _, err := r.String(); return err }},
		{"negative length", []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, func(r *Reader) error { _, err := r.ByteString(); return err }},
		{"data", []byte{1}, func(r *Reader) error { _, err := r.Data(2); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.read(NewReader(tt.data)); !isInvalidData(err) {
				t.Errorf("err = %v, want invalid data", err)
			}
		})
	}
}

func TestReader_FailedReadConsumesNothing(t *testing.T) {
	r := NewReader([]byte{1, 2})
	if _, err := r.Int32(); err == nil {
		t.Fatal("expected error")
	}
	if r.Offset() != 0 {
		t.Errorf("Offset = %d, want 0", r.Offset())
	}
	if v, err := r.Uint16(); err != nil || v != 0x0201 {
		t.Errorf("Uint16 = %#x, %v", v, err)
	}

	// length prefix larger than what follows
	w := NewWriter()
	w.Int64(100)
	w.Data([]byte("abc"))
	r = NewReader(w.Bytes())
	if _, err := r.String(); !isInvalidData(err) {
		t.Fatalf("String err = %v, want invalid data", err)
	}
	if _, err := r.ByteString(); !isInvalidData(err) {
		t.Fatalf("ByteString err = %v, want invalid data", err)
	}
	if r.Offset() != 0 {
		t.Errorf("Offset after bad length = %d, want 0", r.Offset())
	}
	if n, err := r.Int64(); err != nil || n != 100 {
		t.Errorf("Int64 = %d, %v", n, err)
	}
}

func TestPool(t *testing.T) {
	w := GetWriter()
	w.Int32(7)
	PutWriter(w)

	w = GetWriter()
	if w.Len() != 0 {
		t.Errorf("pooled writer not reset: %d bytes", w.Len())
	}
	PutWriter(w)
	PutWriter(nil)
}

func TestStream_RoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ints := rapid.SliceOf(rapid.Int64()).Draw(t, "ints")
		floats := rapid.SliceOf(rapid.Float64()).Draw(t, "floats")
		blob := rapid.SliceOf(rapid.Byte()).Draw(t, "blob")
		text := rapid.String().Draw(t, "text")

		w := NewWriter()
		w.Int32(int32(len(ints)))
		for _, v := range ints {
			w.Int64(v)
		}
		w.Int32(int32(len(floats)))
		for _, v := range floats {
			w.Float64(v)
		}
		w.ByteString(blob)
		w.String(text)

		r := NewReader(w.Bytes())
		n, err := r.Int32()
		if err != nil || int(n) != len(ints) {
			t.Fatalf("int count = %d, %v", n, err)
		}
		for i, want := range ints {
			if got, err := r.Int64(); err != nil || got != want {
				t.Fatalf("int %d = %d, %v, want %d", i, got, err, want)
			}
		}
		n, err = r.Int32()
		if err != nil || int(n) != len(floats) {
			t.Fatalf("float count = %d, %v", n, err)
		}
		for i, want := range floats {
			got, err := r.Float64()
			if err != nil || math.Float64bits(got) != math.Float64bits(want) {
				t.Fatalf("float %d = %v, %v, want %v", i, got, err, want)
			}
		}
		gotBlob, err := r.ByteString()
		if err != nil || !bytes.Equal(gotBlob, blob) {
			t.Fatalf("blob = %v, %v", gotBlob, err)
		}
		gotText, err := r.String()
		if err != nil || gotText != text {
			t.Fatalf("text = %q, %v", gotText, err)
		}
		if r.Remaining() != 0 {
			t.Fatalf("%d bytes left", r.Remaining())
		}
	})
}
