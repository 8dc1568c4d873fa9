// Package ws implements the server side of the RFC 6455 WebSocket
// protocol: the upgrade handshake, frame encoding and decoding,
// fragmentation, and control-frame handling. Only the pieces this
// server needs are implemented; everything else is a protocol error.
package ws

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Opcodes per RFC 6455 §5.2.
const (
	OpContinuation byte = 0x0
	OpText         byte = 0x1
	OpBinary       byte = 0x2
	OpClose        byte = 0x8
	OpPing         byte = 0x9
	OpPong         byte = 0xA
)

// DefaultMaxPayload caps a single frame's payload at 10 MiB.
const DefaultMaxPayload = 10 * 1024 * 1024

// ErrConnBroken is the single condition all codec failures collapse to:
// transport errors, malformed frames, oversized payloads, reserved bits.
// The per-client worker treats it as a disconnect.
var ErrConnBroken = errors.New("ws: connection broken")

type frame struct {
	fin     bool
	opcode  byte
	payload []byte
}

func (f frame) isControl() bool {
	return f.opcode&0x8 != 0
}

// readFrame reads one frame from r and unmasks the payload.
// Client-to-server frames must be masked; anything else is a protocol
// error. maxPayload of 0 means DefaultMaxPayload.
func readFrame(r io.Reader, maxPayload int) (frame, error) {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}

	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return frame{}, fmt.Errorf("%w: read header: %v", ErrConnBroken, err)
	}

	fin := hdr[0]&0x80 != 0
	if hdr[0]&0x70 != 0 {
		return frame{}, fmt.Errorf("%w: reserved bits set", ErrConnBroken)
	}
	opcode := hdr[0] & 0x0F

	masked := hdr[1]&0x80 != 0
	if !masked {
		return frame{}, fmt.Errorf("%w: client frame not masked", ErrConnBroken)
	}

	length := uint64(hdr[1] & 0x7F)
	switch length {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return frame{}, fmt.Errorf("%w: read extended length: %v", ErrConnBroken, err)
		}
		length = uint64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return frame{}, fmt.Errorf("%w: read extended length: %v", ErrConnBroken, err)
		}
		length = binary.BigEndian.Uint64(ext[:])
	}
	if length > uint64(maxPayload) {
		return frame{}, fmt.Errorf("%w: payload %d exceeds cap %d", ErrConnBroken, length, maxPayload)
	}

	var mask [4]byte
	if _, err := io.ReadFull(r, mask[:]); err != nil {
		return frame{}, fmt.Errorf("%w: read mask: %v", ErrConnBroken, err)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return frame{}, fmt.Errorf("%w: read payload: %v", ErrConnBroken, err)
	}
	for i := range payload {
		payload[i] ^= mask[i%4]
	}

	return frame{fin: fin, opcode: opcode, payload: payload}, nil
}

// appendFrame appends one server-to-client frame (unmasked) to dst.
func appendFrame(dst []byte, opcode byte, fin bool, payload []byte) []byte {
	b0 := opcode
	if fin {
		b0 |= 0x80
	}
	dst = append(dst, b0)

	n := len(payload)
	switch {
	case n <= 125:
		dst = append(dst, byte(n))
	case n <= 0xFFFF:
		dst = append(dst, 126)
		var ext [2]byte
		binary.BigEndian.PutUint16(ext[:], uint16(n))
		dst = append(dst, ext[:]...)
	default:
		dst = append(dst, 127)
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], uint64(n))
		dst = append(dst, ext[:]...)
	}
	return append(dst, payload...)
}

// writeFrame writes one unmasked server frame to w.
func writeFrame(w io.Writer, opcode byte, fin bool, payload []byte) error {
	buf := appendFrame(make([]byte, 0, len(payload)+10), opcode, fin, payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("%w: write frame: %v", ErrConnBroken, err)
	}
	return nil
}
