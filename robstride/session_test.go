package robstride

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/hipsterbrown/robstride-motor/transports"
)

// respFrame builds a valid response frame carrying the given status, fault
// flags and payload, as the adapter would deliver it.
func respFrame(motorID uint8, status MotorStatus, faults FaultFlags, payload [PayloadLen]byte) []byte {
	return EncodeFrame(0x02, DefaultHostID, respSecondary(status, faults, motorID), payload)
}

// paramRespFrame builds a parameter read response with the given 4-byte
// value in the value slot.
func paramRespFrame(motorID uint8, index ParamIndex, value [4]byte) []byte {
	var payload [PayloadLen]byte
	binary.LittleEndian.PutUint16(payload[0:2], uint16(index))
	copy(payload[4:8], value[:])
	return respFrame(motorID, StatusRun, 0, payload)
}

func floatRespFrame(motorID uint8, index ParamIndex, f float32) []byte {
	var value [4]byte
	binary.LittleEndian.PutUint32(value[:], math.Float32bits(f))
	return paramRespFrame(motorID, index, value)
}

func ackFrame(motorID uint8) []byte {
	return respFrame(motorID, StatusRun, 0, [PayloadLen]byte{})
}

func newTestSession(t *testing.T, mock *transports.Mock) *Session {
	t.Helper()
	sess, err := NewSession(SessionConfig{
		Transport:   mock,
		Timeout:     50 * time.Millisecond,
		SettleDelay: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	return sess
}

func TestSession_Transact(t *testing.T) {
	mock := &transports.Mock{}
	resp := ackFrame(1)
	mock.Enqueue(resp)

	sess := newTestSession(t, mock)
	defer sess.Close()

	frame := EncodeFrame(CmdGetDeviceID, 1, uint16(sess.HostID()), [PayloadLen]byte{})
	got, err := sess.Transact(context.Background(), frame)
	if err != nil {
		t.Fatalf("Transact failed: %v", err)
	}
	if !bytes.Equal(got, resp) {
		t.Errorf("response: got % X, want % X", got, resp)
	}

	if len(mock.Frames) != 1 || !bytes.Equal(mock.Frames[0], frame) {
		t.Errorf("written frame: got %v", mock.Frames)
	}
}

func TestSession_NoResponse(t *testing.T) {
	mock := &transports.Mock{} // no script: the motor never answers

	sess := newTestSession(t, mock)
	defer sess.Close()

	frame := EncodeFrame(CmdEnable, 1, DefaultHostID, [PayloadLen]byte{})
	_, err := sess.Transact(context.Background(), frame)
	if !errors.Is(err, ErrNoResponse) {
		t.Errorf("got %v, want ErrNoResponse", err)
	}
}

func TestSession_MalformedResponse(t *testing.T) {
	mock := &transports.Mock{}
	// Terminated but truncated: shape validation must reject it as
	// malformed, not as a timeout.
	mock.Enqueue([]byte{'A', 'T', 0x00, 0x00, 0x0D, 0x0A})

	sess := newTestSession(t, mock)
	defer sess.Close()

	frame := EncodeFrame(CmdEnable, 1, DefaultHostID, [PayloadLen]byte{})
	_, err := sess.Transact(context.Background(), frame)
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("got %v, want ErrMalformedResponse", err)
	}
}

func TestSession_DrainsStaleBuffer(t *testing.T) {
	mock := &transports.Mock{}
	sess := newTestSession(t, mock)
	defer sess.Close()

	ctx := context.Background()
	frame := EncodeFrame(CmdGetDeviceID, 1, DefaultHostID, [PayloadLen]byte{})

	// First exchange times out.
	if _, err := sess.Transact(ctx, frame); !errors.Is(err, ErrNoResponse) {
		t.Fatalf("got %v, want ErrNoResponse", err)
	}

	// The abandoned response arrives late, then a second exchange runs.
	stale := respFrame(1, StatusReset, FaultUncalibrated, [PayloadLen]byte{})
	mock.Inject(stale)

	fresh := ackFrame(1)
	mock.Enqueue(fresh)

	got, err := sess.Transact(ctx, frame)
	if err != nil {
		t.Fatalf("second Transact failed: %v", err)
	}
	if !bytes.Equal(got, fresh) {
		t.Errorf("stale bytes resurfaced: got % X, want % X", got, fresh)
	}
	if mock.Flushes < 2 {
		t.Errorf("expected a drain before each exchange, got %d flushes", mock.Flushes)
	}
}

func TestSession_ReadParam(t *testing.T) {
	mock := &transports.Mock{}
	mock.Enqueue(paramRespFrame(3, ParamSpeedLimit, [4]byte{0xAA, 0xBB, 0xCC, 0xDD}))

	sess := newTestSession(t, mock)
	defer sess.Close()

	value, err := sess.ReadParam(context.Background(), 3, ParamSpeedLimit)
	if err != nil {
		t.Fatalf("ReadParam failed: %v", err)
	}
	if !bytes.Equal(value, []byte{0xAA, 0xBB, 0xCC, 0xDD}) {
		t.Errorf("value slot: got % X", value)
	}

	expected := EncodeFrame(CmdReadParam, 3, DefaultHostID, readParamPayload(ParamSpeedLimit))
	if !bytes.Equal(mock.Frames[0], expected) {
		t.Errorf("read frame: got % X, want % X", mock.Frames[0], expected)
	}
}

func TestSession_WriteVerifiedFloat(t *testing.T) {
	mock := &transports.Mock{}
	mock.Enqueue(ackFrame(1), floatRespFrame(1, ParamVelocityMax, 10.0))

	sess := newTestSession(t, mock)
	defer sess.Close()

	if err := sess.WriteVerifiedFloat(context.Background(), 1, ParamVelocityMax, 10.0); err != nil {
		t.Fatalf("WriteVerifiedFloat failed: %v", err)
	}

	expected := EncodeFrame(CmdWriteParam, 1, DefaultHostID, writeParamPayload(ParamVelocityMax, Float32Value(10.0)))
	if !bytes.Equal(mock.Frames[0], expected) {
		t.Errorf("write frame: got % X, want % X", mock.Frames[0], expected)
	}
}

func TestSession_WriteVerifiedFloat_Mismatch(t *testing.T) {
	mock := &transports.Mock{}
	mock.Enqueue(ackFrame(1), floatRespFrame(1, ParamVelocityMax, 9.5))

	sess := newTestSession(t, mock)
	defer sess.Close()

	err := sess.WriteVerifiedFloat(context.Background(), 1, ParamVelocityMax, 10.0)
	if !errors.Is(err, ErrVerificationMismatch) {
		t.Errorf("got %v, want ErrVerificationMismatch", err)
	}
}

func TestSession_WriteVerifiedFloat_Idempotent(t *testing.T) {
	mock := &transports.Mock{}
	// Two full write+read-back cycles for the same value: neither may
	// report a false mismatch from tolerance drift.
	value := float32(3.14159)
	mock.Enqueue(
		ackFrame(1), floatRespFrame(1, ParamAccelSet, value),
		ackFrame(1), floatRespFrame(1, ParamAccelSet, value),
	)

	sess := newTestSession(t, mock)
	defer sess.Close()

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := sess.WriteVerifiedFloat(ctx, 1, ParamAccelSet, value); err != nil {
			t.Fatalf("attempt %d failed: %v", i+1, err)
		}
	}
}

func TestSession_WriteVerifiedUint32(t *testing.T) {
	mock := &transports.Mock{}
	mock.Enqueue(
		ackFrame(1), paramRespFrame(1, ParamRunMode, [4]byte{byte(ModeVelocity), 0, 0, 0}),
	)

	sess := newTestSession(t, mock)
	defer sess.Close()

	if err := sess.WriteVerifiedUint32(context.Background(), 1, ParamRunMode, uint32(ModeVelocity)); err != nil {
		t.Fatalf("WriteVerifiedUint32 failed: %v", err)
	}
}

func TestSession_Closed(t *testing.T) {
	mock := &transports.Mock{}
	sess := newTestSession(t, mock)

	if err := sess.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !mock.Closed {
		t.Error("transport not closed")
	}
	if err := sess.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	frame := EncodeFrame(CmdEnable, 1, DefaultHostID, [PayloadLen]byte{})
	if _, err := sess.Transact(context.Background(), frame); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("got %v, want ErrSessionClosed", err)
	}
}

func TestSession_ContextCancellation(t *testing.T) {
	mock := &transports.Mock{
		ReadFunc: func(p []byte) (int, error) {
			time.Sleep(20 * time.Millisecond)
			return 0, nil
		},
	}

	sess, err := NewSession(SessionConfig{Transport: mock, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	defer sess.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	frame := EncodeFrame(CmdEnable, 1, DefaultHostID, [PayloadLen]byte{})
	if _, err := sess.Transact(ctx, frame); err == nil {
		t.Error("expected context cancellation error")
	}
}

func TestFloatsClose(t *testing.T) {
	if !floatsClose(10.0, 10.0, verifyRelTol) {
		t.Error("equal values should be close")
	}
	if !floatsClose(0, 0, verifyRelTol) {
		t.Error("zeroes should be close")
	}
	if floatsClose(10.0, 10.1, verifyRelTol) {
		t.Error("distinct values reported close")
	}
}
