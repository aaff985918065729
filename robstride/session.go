package robstride

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/hipsterbrown/robstride-motor/transports"
)

// verifyRelTol is the relative tolerance for float read-back comparison.
const verifyRelTol = 1e-6

// Session owns one open serial channel to the adapter and serializes every
// request/response exchange through a single mutex. All motors on the bus
// share this one session; responses carry no correlation id beyond the
// embedded CAN identifier, so at most one exchange may be in flight.
type Session struct {
	transport Transport
	timeout   time.Duration
	hostID    uint8
	settle    time.Duration
	log       *slog.Logger

	mu     sync.Mutex
	closed bool
}

// SessionConfig holds configuration for creating a new Session.
type SessionConfig struct {
	// Transport is the underlying byte channel.
	// If nil, Port must be specified to open a serial connection.
	Transport Transport

	// Port is the serial port path (e.g. "/dev/ttyUSB0").
	// Ignored if Transport is provided.
	Port string

	// BaudRate is the communication speed. Default is 921600.
	BaudRate int

	// Timeout bounds the wait for each response frame. Default is 1 second.
	Timeout time.Duration

	// HostID is the CAN node id the host claims in outgoing frames.
	// Default is DefaultHostID (253).
	HostID uint8

	// SettleDelay is the wait between a parameter write and its verification
	// read-back; the device needs this to apply and expose the new value.
	// Default is 100ms.
	SettleDelay time.Duration

	// Logger receives structured protocol events. Default discards them.
	Logger *slog.Logger
}

// NewSession opens the channel and returns a ready session. An open failure
// yields ErrChannelUnavailable.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 921600
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}
	if cfg.HostID == 0 {
		cfg.HostID = DefaultHostID
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = 100 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	transport := cfg.Transport
	if transport == nil {
		if cfg.Port == "" {
			return nil, fmt.Errorf("%w: either Transport or Port must be specified", ErrChannelUnavailable)
		}
		var err error
		transport, err = transports.OpenSerial(transports.SerialConfig{
			Port:     cfg.Port,
			BaudRate: cfg.BaudRate,
			Timeout:  cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrChannelUnavailable, err)
		}
	}

	return &Session{
		transport: transport,
		timeout:   cfg.Timeout,
		hostID:    cfg.HostID,
		settle:    cfg.SettleDelay,
		log:       cfg.Logger,
	}, nil
}

// HostID returns the host node id used in outgoing frames.
func (s *Session) HostID() uint8 {
	return s.hostID
}

// Close closes the session and the underlying channel. Safe to call twice.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return s.transport.Close()
}

// Transact performs one request/response exchange: drain stale input, write
// the frame, read until the terminator, validate the shape. The session lock
// is held for the full exchange.
func (s *Session) Transact(ctx context.Context, frame []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}

	// Drop anything a previously timed-out exchange left in the receive
	// buffer, so it cannot be mistaken for this exchange's response.
	s.transport.Flush()

	n, err := s.transport.Write(frame)
	if err != nil {
		return nil, &CommError{Op: "write", Err: err}
	}
	if n != len(frame) {
		return nil, &CommError{Op: "write", Err: fmt.Errorf("incomplete write: %d of %d bytes", n, len(frame))}
	}
	s.log.Debug("frame sent", "frame", fmt.Sprintf("% X", frame))

	resp, err := s.readFrameLocked(ctx)
	if err != nil {
		return nil, err
	}
	s.log.Debug("frame received", "frame", fmt.Sprintf("% X", resp))
	return resp, nil
}

// readFrameLocked reads until the 2-byte terminator is observed, bounded by
// the session timeout, then validates the frame shape.
func (s *Session) readFrameLocked(ctx context.Context) ([]byte, error) {
	buf := make([]byte, 0, 2*FrameLen)
	tmp := make([]byte, 64)
	deadline := time.Now().Add(s.timeout)

	for {
		if idx := bytes.Index(buf, frameTail); idx >= 0 {
			resp := buf[:idx+len(frameTail)]
			if len(resp) != FrameLen || !bytes.HasPrefix(resp, frameHeader) {
				return nil, fmt.Errorf("%w: % X", ErrMalformedResponse, resp)
			}
			return resp, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if time.Now().After(deadline) {
			return nil, ErrNoResponse
		}

		remaining := max(time.Until(deadline), 10*time.Millisecond)
		s.transport.SetReadTimeout(remaining)

		n, err := s.transport.Read(tmp)
		if n == 0 {
			// Timed-out or empty read: keep waiting until the deadline.
			time.Sleep(time.Millisecond)
			continue
		}
		if err != nil {
			return nil, &CommError{Op: "read", Err: err}
		}
		buf = append(buf, tmp[:n]...)
	}
}

// Control sends a zero-payload control command (identity probe, enable,
// disable) and decodes the response identifier.
func (s *Session) Control(ctx context.Context, cmd CommandType, motorID uint8) (ResponseInfo, error) {
	frame := EncodeFrame(cmd, motorID, uint16(s.hostID), [PayloadLen]byte{})
	resp, err := s.Transact(ctx, frame)
	if err != nil {
		return ResponseInfo{}, err
	}
	return DecodeFrame(resp)
}

// ReadParam reads one parameter and returns its raw 4-byte value slot.
func (s *Session) ReadParam(ctx context.Context, motorID uint8, index ParamIndex) ([]byte, error) {
	frame := EncodeFrame(CmdReadParam, motorID, uint16(s.hostID), readParamPayload(index))
	resp, err := s.Transact(ctx, frame)
	if err != nil {
		return nil, err
	}
	if _, err := DecodeFrame(resp); err != nil {
		return nil, err
	}
	value := make([]byte, 4)
	copy(value, resp[valueOffset:valueOffset+4])
	return value, nil
}

// WriteParam writes one parameter without verification and returns the raw
// acknowledgement frame. Setpoint streaming uses this path so per-command
// latency stays bounded for continuous control loops.
func (s *Session) WriteParam(ctx context.Context, motorID uint8, index ParamIndex, value ParamValue) ([]byte, error) {
	frame := EncodeFrame(CmdWriteParam, motorID, uint16(s.hostID), writeParamPayload(index, value))
	return s.Transact(ctx, frame)
}

// WriteVerifiedFloat writes a float parameter, waits for the device to apply
// it, reads it back and compares within verifyRelTol relative tolerance.
// This write-then-verify pattern is the only integrity check the protocol
// offers against a configuration write being silently dropped.
func (s *Session) WriteVerifiedFloat(ctx context.Context, motorID uint8, index ParamIndex, value float32) error {
	if _, err := s.WriteParam(ctx, motorID, index, Float32Value(value)); err != nil {
		return err
	}
	if err := sleepCtx(ctx, s.settle); err != nil {
		return err
	}

	data, err := s.ReadParam(ctx, motorID, index)
	if err != nil {
		return err
	}
	got := math.Float32frombits(binary.LittleEndian.Uint32(data))
	if !floatsClose(float64(got), float64(value), verifyRelTol) {
		return fmt.Errorf("%w: param %#04x: wrote %g, read back %g", ErrVerificationMismatch, uint16(index), value, got)
	}
	return nil
}

// WriteVerifiedUint32 writes an integer parameter and verifies it by exact
// equality on the read-back. The device reports discrete parameters such as
// the run mode in the low payload byte.
func (s *Session) WriteVerifiedUint32(ctx context.Context, motorID uint8, index ParamIndex, value uint32) error {
	if _, err := s.WriteParam(ctx, motorID, index, Uint32Value(value)); err != nil {
		return err
	}
	if err := sleepCtx(ctx, s.settle); err != nil {
		return err
	}

	data, err := s.ReadParam(ctx, motorID, index)
	if err != nil {
		return err
	}
	if got := uint32(data[0]); got != value {
		return fmt.Errorf("%w: param %#04x: wrote %d, read back %d", ErrVerificationMismatch, uint16(index), value, got)
	}
	return nil
}

// floatsClose compares a and b within a relative tolerance, using the larger
// magnitude as the reference.
func floatsClose(a, b, relTol float64) bool {
	return math.Abs(a-b) <= relTol*math.Max(math.Abs(a), math.Abs(b))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
