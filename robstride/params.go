package robstride

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ParamIndex is a 16-bit parameter address in the motor's parameter table.
// The mapping is fixed by the device firmware.
type ParamIndex uint16

const (
	ParamRunMode     ParamIndex = 0x7005 // discrete run mode (u8)
	ParamCurrentRef  ParamIndex = 0x7006 // current setpoint [A]
	ParamVelocityRef ParamIndex = 0x700A // velocity setpoint [rad/s]
	ParamPositionRef ParamIndex = 0x7016 // position setpoint [rad]
	ParamSpeedLimit  ParamIndex = 0x7017 // CSP velocity ceiling [rad/s]
	ParamCurrentMax  ParamIndex = 0x7018 // current ceiling [A]
	ParamAccel       ParamIndex = 0x7022 // velocity-mode acceleration [rad/s^2]
	ParamVelocityMax ParamIndex = 0x7024 // PP max velocity [rad/s]
	ParamAccelSet    ParamIndex = 0x7025 // PP acceleration [rad/s^2]
)

// RunMode is the active control law a motor executes.
type RunMode byte

const (
	ModeOperation   RunMode = 0
	ModePositionPP  RunMode = 1 // profile position
	ModeVelocity    RunMode = 2
	ModeCurrent     RunMode = 3
	ModePositionCSP RunMode = 5 // cyclic synchronous position

	// ModeNone marks a motor whose run mode has not been set (or was cleared
	// by a disable). It is never written to the wire.
	ModeNone RunMode = 0xFF
)

func (m RunMode) String() string {
	switch m {
	case ModeOperation:
		return "operation"
	case ModePositionPP:
		return "position-pp"
	case ModeVelocity:
		return "velocity"
	case ModeCurrent:
		return "current"
	case ModePositionCSP:
		return "position-csp"
	case ModeNone:
		return "none"
	}
	return fmt.Sprintf("invalid(%d)", byte(m))
}

func validRunMode(m RunMode) bool {
	switch m {
	case ModeOperation, ModePositionPP, ModeVelocity, ModeCurrent, ModePositionCSP:
		return true
	}
	return false
}

// ParamValue is the 32-bit value of one parameter, tagged as either an
// unsigned integer (discrete parameters such as the run mode) or an IEEE-754
// float (physical quantities). The tag decides the wire encoding.
type ParamValue struct {
	isFloat bool
	u       uint32
	f       float32
}

// Uint32Value makes an integer parameter value.
func Uint32Value(v uint32) ParamValue {
	return ParamValue{u: v}
}

// Float32Value makes a float parameter value.
func Float32Value(v float32) ParamValue {
	return ParamValue{isFloat: true, f: v}
}

// IsFloat reports whether the value carries a float.
func (v ParamValue) IsFloat() bool {
	return v.isFloat
}

// Float32 returns the float value; zero for integer-tagged values.
func (v ParamValue) Float32() float32 {
	return v.f
}

// Uint32 returns the integer value; zero for float-tagged values.
func (v ParamValue) Uint32() uint32 {
	return v.u
}

// bits returns the 4-byte wire representation of the value.
func (v ParamValue) bits() uint32 {
	if v.isFloat {
		return math.Float32bits(v.f)
	}
	return v.u
}

func (v ParamValue) String() string {
	if v.isFloat {
		return fmt.Sprintf("%g", v.f)
	}
	return fmt.Sprintf("%d", v.u)
}

// readParamPayload builds the read-command payload: little-endian index
// followed by six zero bytes.
func readParamPayload(index ParamIndex) [PayloadLen]byte {
	var p [PayloadLen]byte
	binary.LittleEndian.PutUint16(p[0:2], uint16(index))
	return p
}

// writeParamPayload builds the write-command payload: little-endian index,
// two zero bytes, then the little-endian 4-byte value.
func writeParamPayload(index ParamIndex, value ParamValue) [PayloadLen]byte {
	var p [PayloadLen]byte
	binary.LittleEndian.PutUint16(p[0:2], uint16(index))
	binary.LittleEndian.PutUint32(p[4:8], value.bits())
	return p
}
