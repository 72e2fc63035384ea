package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// frameWriter appends little-endian fields. The first error sticks.
type frameWriter struct {
	buf []byte
	err error
}

func (w *frameWriter) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *frameWriter) byte(b byte) {
	w.buf = append(w.buf, b)
}

func (w *frameWriter) bool(v bool) {
	if v {
		w.byte(1)
		return
	}
	w.byte(0)
}

func (w *frameWriter) int32(v int) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		w.fail(fmt.Errorf("value %d overflows int32", v))
		return
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(int32(v)))
}

func (w *frameWriter) string(s string) {
	if len(s) > math.MaxUint16 {
		w.fail(fmt.Errorf("%w: string of %d bytes", ErrFrameTooLarge, len(s)))
		return
	}
	w.buf = binary.LittleEndian.AppendUint16(w.buf, uint16(len(s)))
	w.buf = append(w.buf, s...)
}

func (w *frameWriter) json(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.fail(fmt.Errorf("%w: %v", ErrBadCommand, err))
		return
	}
	w.string(string(data))
}

// frameReader consumes fields written by frameWriter. Once a read fails every
// following read returns the zero value and err keeps the first failure.
type frameReader struct {
	buf []byte
	off int
	err error
}

func (r *frameReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.err = ErrTruncated
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *frameReader) byte() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *frameReader) bool() bool {
	return r.byte() != 0
}

func (r *frameReader) int32() int {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return int(int32(binary.LittleEndian.Uint32(b)))
}

func (r *frameReader) string() string {
	b := r.take(2)
	if b == nil {
		return ""
	}
	n := int(binary.LittleEndian.Uint16(b))
	return string(r.take(n))
}

func (r *frameReader) json(v any) {
	data := r.string()
	if r.err != nil {
		return
	}
	if err := unmarshalCommand([]byte(data), v); err != nil {
		r.err = err
	}
}
