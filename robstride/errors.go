package robstride

import (
	"errors"
	"fmt"
)

// Sentinel errors for the protocol failure modes.
var (
	// ErrChannelUnavailable means the serial channel could not be opened or
	// the session was never connected. No further operation can succeed.
	ErrChannelUnavailable = errors.New("serial channel unavailable")

	// ErrNoResponse means the motor did not answer within the timeout.
	ErrNoResponse = errors.New("no response from motor")

	// ErrMalformedResponse means bytes arrived but did not form a valid
	// 17-byte adapter frame.
	ErrMalformedResponse = errors.New("malformed response frame")

	// ErrVerificationMismatch means a parameter write was acknowledged but
	// the read-back value differed from the requested one.
	ErrVerificationMismatch = errors.New("parameter verification mismatch")

	// ErrUnknownMotor means an operation referenced a motor id that was not
	// registered with the session.
	ErrUnknownMotor = errors.New("unknown motor id")

	// ErrIllegalState means an operation violated the motor state machine,
	// such as a mode change while enabled. Nothing was sent on the wire.
	ErrIllegalState = errors.New("illegal motor state transition")

	// ErrSessionClosed means the session has been closed.
	ErrSessionClosed = errors.New("session is closed")
)

// CommError represents a transport-level failure during an operation.
type CommError struct {
	Op  string // operation that failed (e.g. "transact", "write")
	Err error
}

func (e *CommError) Error() string {
	return fmt.Sprintf("communication error during %s: %v", e.Op, e.Err)
}

func (e *CommError) Unwrap() error {
	return e.Err
}

// MotorError ties a failed operation to a specific motor.
type MotorError struct {
	ID  uint8
	Op  string
	Err error
}

func (e *MotorError) Error() string {
	return fmt.Sprintf("motor %d %s failed: %v", e.ID, e.Op, e.Err)
}

func (e *MotorError) Unwrap() error {
	return e.Err
}

// UnexpectedStatusError reports a handshake that completed on the wire but
// left the motor outside the RUN state.
type UnexpectedStatusError struct {
	MotorID uint8
	Status  MotorStatus
	Faults  FaultFlags
}

func (e *UnexpectedStatusError) Error() string {
	if e.Faults.HasFault() {
		return fmt.Sprintf("motor %d reported status %s (faults: %s)", e.MotorID, e.Status, e.Faults)
	}
	return fmt.Sprintf("motor %d reported status %s", e.MotorID, e.Status)
}

// IsNoResponse returns true if the error indicates a response timeout.
func IsNoResponse(err error) bool {
	return errors.Is(err, ErrNoResponse)
}

// GetMotorError extracts a MotorError from an error chain, if present.
func GetMotorError(err error) (*MotorError, bool) {
	var motorErr *MotorError
	if errors.As(err, &motorErr) {
		return motorErr, true
	}
	return nil, false
}
