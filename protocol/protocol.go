// Package protocol implements the binary frame format spoken by a link.
//
// Every frame is self-delimiting: the receiver reads the command name, the
// message id and the argument count, then exactly that many length-prefixed
// blobs. Blobs are never interpreted here; whoever owns the target parameter
// decides how to decode them.
//
// Frame format (all integers big-endian):
//
//	┌─────────┬──────────┬─────────┬─────────┬──────────┬─────────┬─────┐
//	│ cmdLen  │ command  │   id    │  argc   │ arg0Len  │  arg0   │ ... │
//	│ uint16  │  UTF-8   │  int32  │ uint16  │  uint32  │  bytes  │     │
//	└─────────┴──────────┴─────────┴─────────┴──────────┴─────────┴─────┘
//
// An empty command marks a response. A response with a negative id reports
// that the call with id -id failed on the remote side.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	// MaxArgs is the largest argument count that fits the uint16 count field.
	MaxArgs = math.MaxUint16
	// MaxCommandLen is the longest command name that fits the uint16 length field.
	MaxCommandLen = math.MaxUint16
	// MaxArgSize bounds a single blob on decode so a corrupt length prefix
	// cannot make the reader allocate gigabytes.
	MaxArgSize = 256 << 20
)

var (
	ErrTooManyArgs    = errors.New("protocol: too many arguments")
	ErrCommandTooLong = errors.New("protocol: command name too long")
	ErrArgTooLarge    = errors.New("protocol: argument exceeds size limit")
)

// Frame is one wire unit: a command name, a message id and the raw argument blobs.
type Frame struct {
	Command string   // Method name, or "" for a response
	ID      int32    // Message id; negated on a failure response
	Args    [][]byte // Opaque argument blobs
}

// IsResponse reports whether the frame answers an earlier request.
func (f *Frame) IsResponse() bool {
	return f.Command == ""
}

// CallID returns the id of the call a response refers to and whether the
// remote side reported a failure.
func (f *Frame) CallID() (id int32, failed bool) {
	if f.ID < 0 {
		return -f.ID, true
	}
	return f.ID, false
}

// Size returns the number of bytes Encode writes for f.
func (f *Frame) Size() int {
	n := 2 + len(f.Command) + 4 + 2
	for _, a := range f.Args {
		n += 4 + len(a)
	}
	return n
}

// Encode writes a complete frame to w with a single Write call.
// The caller must hold a write lock if multiple goroutines share the same writer,
// otherwise frames from different calls will interleave and corrupt the stream.
func Encode(w io.Writer, f *Frame) error {
	if len(f.Command) > MaxCommandLen {
		return ErrCommandTooLong
	}
	if len(f.Args) > MaxArgs {
		return ErrTooManyArgs
	}

	buf := make([]byte, f.Size())
	offset := 0

	binary.BigEndian.PutUint16(buf[offset:], uint16(len(f.Command)))
	offset += 2
	offset += copy(buf[offset:], f.Command)

	binary.BigEndian.PutUint32(buf[offset:], uint32(f.ID))
	offset += 4

	binary.BigEndian.PutUint16(buf[offset:], uint16(len(f.Args)))
	offset += 2

	for _, a := range f.Args {
		binary.BigEndian.PutUint32(buf[offset:], uint32(len(a)))
		offset += 4
		offset += copy(buf[offset:], a)
	}

	_, err := w.Write(buf)
	return err
}

// Decode reads a complete frame from r.
// Uses io.ReadFull so a short read is reported as io.ErrUnexpectedEOF instead
// of yielding a partial frame.
func Decode(r io.Reader) (*Frame, error) {
	var hdr [4]byte

	if _, err := io.ReadFull(r, hdr[:2]); err != nil {
		return nil, err
	}
	cmd := make([]byte, binary.BigEndian.Uint16(hdr[:2]))
	if _, err := io.ReadFull(r, cmd); err != nil {
		return nil, unexpected(err)
	}

	if _, err := io.ReadFull(r, hdr[:4]); err != nil {
		return nil, unexpected(err)
	}
	id := int32(binary.BigEndian.Uint32(hdr[:4]))

	if _, err := io.ReadFull(r, hdr[:2]); err != nil {
		return nil, unexpected(err)
	}
	count := int(binary.BigEndian.Uint16(hdr[:2]))

	args := make([][]byte, count)
	for i := range args {
		if _, err := io.ReadFull(r, hdr[:4]); err != nil {
			return nil, unexpected(err)
		}
		size := binary.BigEndian.Uint32(hdr[:4])
		if size > MaxArgSize {
			return nil, fmt.Errorf("%w: %d bytes", ErrArgTooLarge, size)
		}
		data := make([]byte, size)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, unexpected(err)
		}
		args[i] = data
	}

	return &Frame{Command: string(cmd), ID: id, Args: args}, nil
}

// unexpected turns a clean EOF in the middle of a frame into io.ErrUnexpectedEOF.
func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
