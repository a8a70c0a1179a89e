// Package protocol implements the subset of RFC 6455 the server speaks:
// unfragmented frames, client masking, and the HTTP upgrade handshake.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Opcode is the low nibble of the first frame byte.
type Opcode byte

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

func (o Opcode) String() string {
	switch o {
	case OpContinuation:
		return "continuation"
	case OpText:
		return "text"
	case OpBinary:
		return "binary"
	case OpClose:
		return "close"
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	default:
		return fmt.Sprintf("opcode(0x%x)", byte(o))
	}
}

const (
	finBit  = 0x80
	maskBit = 0x80

	len16 = 126
	len64 = 127

	// DefaultMaxPayload bounds a single frame when the caller passes no limit.
	DefaultMaxPayload = 16 << 20
)

var (
	ErrShortRead       = errors.New("short read")
	ErrContinuation    = errors.New("fragmented frames are not supported")
	ErrPayloadTooLarge = errors.New("frame payload too large")
)

// Frame is one decoded message unit. FIN is implied.
type Frame struct {
	Opcode  Opcode
	Payload []byte
}

// EncodeFrame builds a single unmasked server frame with FIN set.
func EncodeFrame(op Opcode, payload []byte) []byte {
	return appendFrame(nil, op, payload, nil)
}

// EncodeMaskedFrame builds a client-style frame masked with key.
func EncodeMaskedFrame(op Opcode, payload []byte, key [4]byte) []byte {
	return appendFrame(nil, op, payload, &key)
}

func appendFrame(dst []byte, op Opcode, payload []byte, key *[4]byte) []byte {
	var mb byte
	if key != nil {
		mb = maskBit
	}
	n := len(payload)
	dst = append(dst, finBit|byte(op&0x0F))
	switch {
	case n < len16:
		dst = append(dst, mb|byte(n))
	case n < 1<<16:
		dst = append(dst, mb|len16)
		dst = binary.BigEndian.AppendUint16(dst, uint16(n))
	default:
		dst = append(dst, mb|len64)
		dst = binary.BigEndian.AppendUint64(dst, uint64(n))
	}
	if key == nil {
		return append(dst, payload...)
	}
	dst = append(dst, key[:]...)
	start := len(dst)
	dst = append(dst, payload...)
	unmask(dst[start:], *key)
	return dst
}

// WriteFrame encodes and writes one frame in a single Write call.
func WriteFrame(w io.Writer, op Opcode, payload []byte) error {
	_, err := w.Write(EncodeFrame(op, payload))
	return err
}

// ReadFrame reads exactly one frame from r and unmasks it. maxPayload <= 0
// selects DefaultMaxPayload. Any truncation is reported as ErrShortRead;
// a continuation frame is ErrContinuation. Unknown opcodes decode normally.
func ReadFrame(r io.Reader, maxPayload int64) (Frame, error) {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}

	var hdr [2]byte
	if err := readFull(r, hdr[:]); err != nil {
		return Frame{}, err
	}
	op := Opcode(hdr[0] & 0x0F)
	masked := hdr[1]&maskBit != 0
	length := uint64(hdr[1] & 0x7F)

	switch length {
	case len16:
		var ext [2]byte
		if err := readFull(r, ext[:]); err != nil {
			return Frame{}, err
		}
		length = uint64(binary.BigEndian.Uint16(ext[:]))
	case len64:
		var ext [8]byte
		if err := readFull(r, ext[:]); err != nil {
			return Frame{}, err
		}
		length = binary.BigEndian.Uint64(ext[:])
	}
	if length > uint64(maxPayload) {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, length)
	}

	var key [4]byte
	if masked {
		if err := readFull(r, key[:]); err != nil {
			return Frame{}, err
		}
	}

	payload := make([]byte, length)
	if err := readFull(r, payload); err != nil {
		return Frame{}, err
	}
	if masked {
		unmask(payload, key)
	}

	if op == OpContinuation {
		return Frame{}, ErrContinuation
	}
	return Frame{Opcode: op, Payload: payload}, nil
}

func readFull(r io.Reader, buf []byte) error {
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrShortRead
		}
		return fmt.Errorf("%w: %w", ErrShortRead, err)
	}
	return nil
}

func unmask(buf []byte, key [4]byte) {
	for i := range buf {
		buf[i] ^= key[i%4]
	}
}
