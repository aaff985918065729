// Package robstride provides a Go library for driving RobStride geared
// actuators over a USB-to-CAN serial adapter. The adapter tunnels extended
// CAN frames through a fixed 17-byte ASCII/binary encapsulation; this package
// implements the frame codec, the single-flight transport session, verified
// parameter access, and a per-motor state controller.
package robstride

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
)

// CommandType is the 5-bit command code carried in the high bits of the
// 29-bit CAN identifier.
type CommandType byte

// Command codes per the RobStride protocol.
const (
	CmdGetDeviceID CommandType = 0x00
	CmdEnable      CommandType = 0x03
	CmdDisable     CommandType = 0x04
	CmdReadParam   CommandType = 0x11
	CmdWriteParam  CommandType = 0x12
)

// Frame structure constants.
const (
	// FrameLen is the fixed wire length of every adapter frame, both directions.
	FrameLen = 17

	// PayloadLen is the CAN data payload length inside a frame.
	PayloadLen = 8

	// valueOffset is the absolute frame offset of the 4-byte parameter value
	// slot in read/write responses.
	valueOffset = 11

	extendedFrameFlag = 0x08
)

// DefaultHostID is the CAN node id the host claims for itself in control and
// parameter commands.
const DefaultHostID = 253

// MaxMotorID is the highest addressable motor id on one bus.
const MaxMotorID = 127

var (
	frameHeader = []byte{'A', 'T'}
	frameTail   = []byte{0x0D, 0x0A}
)

// MotorStatus is the 2-bit device state reported in every response identifier.
type MotorStatus byte

const (
	StatusReset       MotorStatus = 0
	StatusCalibration MotorStatus = 1
	StatusRun         MotorStatus = 2
)

func (s MotorStatus) String() string {
	switch s {
	case StatusReset:
		return "reset"
	case StatusCalibration:
		return "calibration"
	case StatusRun:
		return "run"
	}
	return fmt.Sprintf("unknown(%d)", byte(s))
}

// FaultFlags is the 6-bit device fault field reported in every response
// identifier. Zero means no fault.
type FaultFlags byte

const (
	FaultUndervoltage FaultFlags = 1 << 0
	FaultOvercurrent  FaultFlags = 1 << 1
	FaultOverTemp     FaultFlags = 1 << 2
	FaultMagEncoder   FaultFlags = 1 << 3
	FaultHallEncoder  FaultFlags = 1 << 4
	FaultUncalibrated FaultFlags = 1 << 5
)

// HasFault returns true if any fault flag is set.
func (f FaultFlags) HasFault() bool {
	return f != 0
}

func (f FaultFlags) String() string {
	if f == 0 {
		return "none"
	}

	var msgs []string
	if f&FaultUndervoltage != 0 {
		msgs = append(msgs, "undervoltage")
	}
	if f&FaultOvercurrent != 0 {
		msgs = append(msgs, "overcurrent")
	}
	if f&FaultOverTemp != 0 {
		msgs = append(msgs, "over temperature")
	}
	if f&FaultMagEncoder != 0 {
		msgs = append(msgs, "magnetic encoder fault")
	}
	if f&FaultHallEncoder != 0 {
		msgs = append(msgs, "hall encoder fault")
	}
	if f&FaultUncalibrated != 0 {
		msgs = append(msgs, "uncalibrated")
	}
	return strings.Join(msgs, ",")
}

// EncodeFrame builds the adapter's 17-byte wire frame for one CAN exchange.
// The 29-bit identifier is (cmd<<24 | secondaryID<<8 | motorID); the adapter
// expects it left-shifted by 3 with 0b100 ORed in to mark an extended frame.
func EncodeFrame(cmd CommandType, motorID uint8, secondaryID uint16, payload [PayloadLen]byte) []byte {
	canID := uint32(cmd)<<24 | uint32(secondaryID)<<8 | uint32(motorID)
	encoded := canID<<3 | 0b100

	buf := make([]byte, 0, FrameLen)
	buf = append(buf, frameHeader...)
	buf = binary.BigEndian.AppendUint32(buf, encoded)
	buf = append(buf, extendedFrameFlag)
	buf = append(buf, payload[:]...)
	buf = append(buf, frameTail...)
	return buf
}

// ResponseInfo carries the fields decoded from a response frame.
type ResponseInfo struct {
	MotorID uint8
	Status  MotorStatus
	Faults  FaultFlags
	Payload [PayloadLen]byte
}

// DecodeFrame validates the shape of a response frame and extracts the
// responding motor id, the 2-bit status and the 6-bit fault field from the
// embedded identifier. A buffer of the wrong shape yields ErrMalformedResponse.
func DecodeFrame(data []byte) (ResponseInfo, error) {
	if len(data) != FrameLen || !bytes.HasPrefix(data, frameHeader) || !bytes.HasSuffix(data, frameTail) {
		return ResponseInfo{}, fmt.Errorf("%w: % X", ErrMalformedResponse, data)
	}

	canID := binary.BigEndian.Uint32(data[2:6]) >> 3
	info := ResponseInfo{
		MotorID: uint8(canID >> 8),
		Status:  MotorStatus(canID >> 22 & 0b11),
		Faults:  FaultFlags(canID >> 16 & 0x3F),
	}
	copy(info.Payload[:], data[7:7+PayloadLen])
	return info, nil
}
