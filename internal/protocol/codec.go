// Package protocol encodes outbound Go1 command payloads.
//
// Every encoder is total: each valid input maps to exactly one payload.
//
//	controller/stick   16 bytes, float32 little-endian: LX, RX, RY, LY
//	controller/action  UTF-8 mode string, e.g. "walk"
//	child/led          3 bytes: R, G, B
package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"go1-control/internal/models"
)

// StickPayloadSize is the length of an encoded stick frame
const StickPayloadSize = 16

// EncodeStick encodes the four stick axes
func EncodeStick(s models.StickCommand) []byte {
	buf := make([]byte, StickPayloadSize)
	binary.LittleEndian.PutUint32(buf[0:4], axisBits(s.LX))
	binary.LittleEndian.PutUint32(buf[4:8], axisBits(s.RX))
	binary.LittleEndian.PutUint32(buf[8:12], axisBits(s.RY))
	binary.LittleEndian.PutUint32(buf[12:16], axisBits(s.LY))
	return buf
}

// axisBits folds negative zero into zero so equal sticks encode equally
func axisBits(v float32) uint32 {
	if v == 0 {
		return 0
	}
	return math.Float32bits(v)
}

// DecodeStick is the inverse of EncodeStick
func DecodeStick(b []byte) (models.StickCommand, error) {
	if len(b) != StickPayloadSize {
		return models.StickCommand{}, fmt.Errorf("stick payload must be %d bytes, got %d", StickPayloadSize, len(b))
	}
	return models.StickCommand{
		LX: math.Float32frombits(binary.LittleEndian.Uint32(b[0:4])),
		RX: math.Float32frombits(binary.LittleEndian.Uint32(b[4:8])),
		RY: math.Float32frombits(binary.LittleEndian.Uint32(b[8:12])),
		LY: math.Float32frombits(binary.LittleEndian.Uint32(b[12:16])),
	}, nil
}

// EncodeMode encodes a mode change action
func EncodeMode(m models.Mode) []byte {
	return []byte(m)
}

// EncodeLED encodes a head LED color
func EncodeLED(c models.LEDColor) []byte {
	return []byte{c.R, c.G, c.B}
}
