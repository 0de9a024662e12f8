// Package stream encodes the payloads SPITZ job binaries exchange.
//
// A stream is a plain concatenation of values with no type tags. Integers
// and floats are fixed width and little-endian, bools take one byte,
// strings and byte strings are prefixed with their length as an int64, and
// raw data is copied as is. Readers must consume values in the order they
// were written.
//
//	w := stream.NewWriter()
//	w.Int32(begin)
//	w.Int32(end)
//	task := w.Bytes()
//
//	r := stream.NewReader(task)
//	begin, err := r.Int32()
package stream
