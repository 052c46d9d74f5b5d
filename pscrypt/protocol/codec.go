package protocol

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const (
	// MaxFramePayload limits a single frame payload, before and after
	// decompression.
	MaxFramePayload = 64 << 20

	// FlagCompressed marks an lz4 compressed payload.
	FlagCompressed = 1 << 0

	headerSize      = 6
	minCompressSize = 256
)

var (
	ErrFrameTooLarge = errors.New("protocol: frame payload too large")
	ErrInvalidType   = errors.New("protocol: invalid message type")
	ErrInvalidFlags  = errors.New("protocol: unknown frame flags")
)

// Frame is the basic wire container.
// Format:
//
//	1 byte: type
//	1 byte: flags
//	4 bytes: payload length (big endian)
//	N bytes: payload
//
// Several frames may follow each other on one stream.
type Frame struct {
	Type    MessageType
	Payload []byte
}

// Encoder writes frames, compressing payloads when that makes them smaller.
type Encoder struct {
	w           *bufio.Writer
	compression bool
}

func NewEncoder(w io.Writer, compression bool) *Encoder {
	return &Encoder{w: bufio.NewWriter(w), compression: compression}
}

func (e *Encoder) Encode(f Frame) error {
	if !f.Type.Valid() {
		return ErrInvalidType
	}
	if len(f.Payload) > MaxFramePayload {
		return ErrFrameTooLarge
	}

	payload, flags := f.Payload, byte(0)
	if e.compression {
		var compressed bool
		if payload, compressed = maybeCompress(f.Payload); compressed {
			flags |= FlagCompressed
		}
	}

	var hdr [headerSize]byte
	hdr[0] = byte(f.Type)
	hdr[1] = flags
	binary.BigEndian.PutUint32(hdr[2:], uint32(len(payload)))
	if _, err := e.w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := e.w.Write(payload); err != nil {
		return err
	}
	return e.w.Flush()
}

// WriteFrame writes a single uncompressed frame.
func WriteFrame(w io.Writer, f Frame) error {
	return NewEncoder(w, false).Encode(f)
}

// ReadFrame reads exactly one frame from r. It does not read ahead, so
// frames that share a stream can be read one call at a time.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}
	mt := MessageType(hdr[0])
	flags := hdr[1]
	payloadLen := binary.BigEndian.Uint32(hdr[2:])

	if !mt.Valid() {
		return Frame{}, ErrInvalidType
	}
	if flags&^FlagCompressed != 0 {
		return Frame{}, ErrInvalidFlags
	}
	if payloadLen > MaxFramePayload {
		return Frame{}, errors.Wrapf(ErrFrameTooLarge, "%d bytes", payloadLen)
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, err
	}
	if flags&FlagCompressed != 0 {
		var err error
		if payload, err = Decompress(payload, MaxFramePayload); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Type: mt, Payload: payload}, nil
}

// ErrorFrame builds an ERROR frame carrying msg.
func ErrorFrame(msg string) Frame {
	return Frame{Type: MessageTypeError, Payload: []byte(msg)}
}
