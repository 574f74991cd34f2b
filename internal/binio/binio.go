// Package binio implements the framed, zstd-compressed little-endian
// encoding shared by all emerl artifacts.
//
// Every artifact starts with a 4-byte magic and a version byte, followed
// by a type-specific body. Writer and Reader use sticky errors: after the
// first failure every further call is a no-op and the error is reported
// by Close (Writer) or Err (Reader).
package binio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"

	emerrors "github.com/matzehuels/emerl/pkg/errors"
)

// MaxElements bounds any length prefix read from an artifact so a corrupt
// header cannot trigger an absurd allocation.
const MaxElements = 1 << 36

// Writer encodes primitive values into a compressed artifact stream.
type Writer struct {
	zw  *zstd.Encoder
	bw  *bufio.Writer
	buf [8]byte
	err error
}

// NewWriter starts an artifact on w with the given 4-byte magic and version.
func NewWriter(w io.Writer, magic string, version uint8) (*Writer, error) {
	if len(magic) != 4 {
		return nil, fmt.Errorf("binio: magic must be 4 bytes, got %q", magic)
	}
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("binio: zstd writer: %w", err)
	}
	bw := bufio.NewWriterSize(zw, 1<<16)
	out := &Writer{zw: zw, bw: bw}
	out.raw([]byte(magic))
	out.Uint8(version)
	return out, nil
}

func (w *Writer) raw(p []byte) {
	if w.err != nil {
		return
	}
	_, w.err = w.bw.Write(p)
}

// Uint8 writes a single byte.
func (w *Writer) Uint8(v uint8) {
	w.buf[0] = v
	w.raw(w.buf[:1])
}

// Uint16 writes v in little-endian order.
func (w *Writer) Uint16(v uint16) {
	binary.LittleEndian.PutUint16(w.buf[:2], v)
	w.raw(w.buf[:2])
}

// Uint32 writes v in little-endian order.
func (w *Writer) Uint32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[:4], v)
	w.raw(w.buf[:4])
}

// Uint64 writes v in little-endian order.
func (w *Writer) Uint64(v uint64) {
	binary.LittleEndian.PutUint64(w.buf[:8], v)
	w.raw(w.buf[:8])
}

// Float64 writes the IEEE-754 bits of v.
func (w *Writer) Float64(v float64) { w.Uint64(math.Float64bits(v)) }

// String writes a uint16 length prefix followed by the bytes of s.
func (w *Writer) String(s string) {
	if len(s) > math.MaxUint16 {
		w.fail(fmt.Errorf("binio: string too long (%d bytes)", len(s)))
		return
	}
	w.Uint16(uint16(len(s)))
	w.raw([]byte(s))
}

// Bools writes b as a packed bitmap, least significant bit first.
// The length is not written; callers store it separately.
func (w *Writer) Bools(b []bool) {
	var cur byte
	for i, v := range b {
		if v {
			cur |= 1 << (i % 8)
		}
		if i%8 == 7 {
			w.Uint8(cur)
			cur = 0
		}
	}
	if len(b)%8 != 0 {
		w.Uint8(cur)
	}
}

func (w *Writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

// Close flushes buffered data and finishes the compressed frame.
// It returns the first error encountered while writing.
func (w *Writer) Close() error {
	if w.err == nil {
		w.err = w.bw.Flush()
	}
	if err := w.zw.Close(); err != nil && w.err == nil {
		w.err = err
	}
	return w.err
}

// Reader decodes an artifact stream produced by Writer.
type Reader struct {
	zr  *zstd.Decoder
	br  *bufio.Reader
	buf [8]byte
	err error
}

// NewReader opens an artifact on r and checks its magic.
// It returns the artifact version on success.
func NewReader(r io.Reader, magic string) (*Reader, uint8, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, 0, emerrors.Wrap(emerrors.ErrCodeCorrupt, err, "open %s artifact", magic)
	}
	in := &Reader{zr: zr, br: bufio.NewReaderSize(zr, 1<<16)}
	var got [4]byte
	in.read(got[:])
	version := in.Uint8()
	if in.err != nil {
		in.Close()
		return nil, 0, in.Err()
	}
	if string(got[:]) != magic {
		in.Close()
		return nil, 0, emerrors.New(emerrors.ErrCodeCorrupt, "bad magic %q, want %q", got[:], magic)
	}
	return in, version, nil
}

func (r *Reader) read(p []byte) {
	if r.err != nil {
		return
	}
	_, r.err = io.ReadFull(r.br, p)
}

// Uint8 reads a single byte.
func (r *Reader) Uint8() uint8 {
	r.read(r.buf[:1])
	if r.err != nil {
		return 0
	}
	return r.buf[0]
}

// Uint16 reads a little-endian uint16.
func (r *Reader) Uint16() uint16 {
	r.read(r.buf[:2])
	if r.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint16(r.buf[:2])
}

// Uint32 reads a little-endian uint32.
func (r *Reader) Uint32() uint32 {
	r.read(r.buf[:4])
	if r.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint32(r.buf[:4])
}

// Uint64 reads a little-endian uint64.
func (r *Reader) Uint64() uint64 {
	r.read(r.buf[:8])
	if r.err != nil {
		return 0
	}
	return binary.LittleEndian.Uint64(r.buf[:8])
}

// Float64 reads IEEE-754 bits written by Writer.Float64.
func (r *Reader) Float64() float64 { return math.Float64frombits(r.Uint64()) }

// String reads a uint16-length-prefixed string.
func (r *Reader) String() string {
	n := r.Uint16()
	if r.err != nil {
		return ""
	}
	p := make([]byte, n)
	r.read(p)
	return string(p)
}

// Count reads a uint64 element count and rejects values above MaxElements.
func (r *Reader) Count() int {
	n := r.Uint64()
	if r.err == nil && n > MaxElements {
		r.err = emerrors.New(emerrors.ErrCodeCorrupt, "element count %d exceeds limit", n)
	}
	if r.err != nil {
		return 0
	}
	return int(n)
}

// Bools reads a packed bitmap of n booleans.
func (r *Reader) Bools(n int) []bool {
	out := make([]bool, n)
	var cur byte
	for i := range out {
		if i%8 == 0 {
			cur = r.Uint8()
		}
		out[i] = cur&(1<<(i%8)) != 0
	}
	if r.err != nil {
		return nil
	}
	return out
}

// Fail records a decoding error found by the caller (for example an
// invalid enum value). The first recorded error wins.
func (r *Reader) Fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// Err returns the first error encountered while reading. Uncoded errors
// (truncation, decompression failures) are reported as corrupt artifacts.
func (r *Reader) Err() error {
	if r.err == nil {
		return nil
	}
	if errors.Is(r.err, io.EOF) || errors.Is(r.err, io.ErrUnexpectedEOF) {
		return emerrors.Wrap(emerrors.ErrCodeCorrupt, r.err, "truncated artifact")
	}
	if emerrors.GetCode(r.err) != "" {
		return r.err
	}
	return emerrors.Wrap(emerrors.ErrCodeCorrupt, r.err, "decode artifact")
}

// Close releases the decompressor.
func (r *Reader) Close() { r.zr.Close() }
