package robstride

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Config holds configuration for creating a Controller.
type Config struct {
	// Port is the serial port path of the USB-to-CAN adapter.
	Port string

	// BaudRate is the adapter link speed. Default is 921600.
	BaudRate int

	// HostID is the CAN node id the host claims. Default is DefaultHostID.
	HostID uint8

	// Timeout bounds the wait for each response frame. Default is 1 second.
	Timeout time.Duration

	// SettleDelay is the wait before a verification read-back. Default 100ms.
	SettleDelay time.Duration

	// Motors lists the motors sharing this bus.
	Motors []MotorConfig

	// Transport overrides Port with an already-open channel (used in tests).
	Transport Transport

	// Logger receives structured events for connect/enable/mode/parameter
	// outcomes. Default discards them.
	Logger *slog.Logger
}

// Controller tracks the enable/mode state of every motor on one shared bus
// and enforces the legal operation ordering. All wire traffic goes through a
// single Session; controller methods are safe for concurrent use, though
// transactions are strictly sequential on the shared link.
type Controller struct {
	session *Session
	motors  map[uint8]*Motor
	order   []uint8
	cfg     Config
	log     *slog.Logger

	mu sync.Mutex
}

// NewController validates the motor table and returns an unconnected
// controller. Call Connect before any motor operation.
func NewController(cfg Config) (*Controller, error) {
	if len(cfg.Motors) == 0 {
		return nil, errors.New("no motors configured")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	motors := make(map[uint8]*Motor, len(cfg.Motors))
	order := make([]uint8, 0, len(cfg.Motors))
	for _, mc := range cfg.Motors {
		if mc.ID > MaxMotorID {
			return nil, fmt.Errorf("motor id %d out of range (0-%d)", mc.ID, MaxMotorID)
		}
		if _, dup := motors[mc.ID]; dup {
			return nil, fmt.Errorf("duplicate motor id %d", mc.ID)
		}
		motors[mc.ID] = newMotor(mc)
		order = append(order, mc.ID)
	}

	return &Controller{
		motors: motors,
		order:  order,
		cfg:    cfg,
		log:    cfg.Logger,
	}, nil
}

// Connect opens the serial channel and probes every registered motor with an
// identity transaction. If any motor is unreachable the channel is closed and
// the joined probe failures are returned; the session is usable only when
// every motor answered.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return errors.New("already connected")
	}

	sess, err := NewSession(SessionConfig{
		Transport:   c.cfg.Transport,
		Port:        c.cfg.Port,
		BaudRate:    c.cfg.BaudRate,
		Timeout:     c.cfg.Timeout,
		HostID:      c.cfg.HostID,
		SettleDelay: c.cfg.SettleDelay,
		Logger:      c.log,
	})
	if err != nil {
		c.log.Error("serial open failed", "port", c.cfg.Port, "error", err)
		return err
	}

	var probeErrs []error
	for _, id := range c.order {
		if _, err := sess.Control(ctx, CmdGetDeviceID, id); err != nil {
			c.log.Error("motor unreachable", "motor", id, "error", err)
			probeErrs = append(probeErrs, &MotorError{ID: id, Op: "probe", Err: err})
			continue
		}
		c.log.Info("motor reachable", "motor", id)
	}
	if len(probeErrs) > 0 {
		sess.Close()
		return fmt.Errorf("connect: %w", errors.Join(probeErrs...))
	}

	c.session = sess
	c.log.Info("all motors connected", "port", c.cfg.Port, "motors", len(c.order))
	return nil
}

// Motor returns the handle for the given id.
func (c *Controller) Motor(id uint8) (*Motor, bool) {
	m, ok := c.motors[id]
	return m, ok
}

// Motors returns the registered motors in registration order.
func (c *Controller) Motors() []*Motor {
	out := make([]*Motor, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.motors[id])
	}
	return out
}

func (c *Controller) motorLocked(id uint8) (*Motor, error) {
	m, ok := c.motors[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMotor, id)
	}
	if c.session == nil {
		return nil, fmt.Errorf("%w: session not connected", ErrChannelUnavailable)
	}
	return m, nil
}

// Enable commands the motor into the RUN state. The transition to Enabled
// happens only if the device reports RUN; any other status leaves the local
// state unchanged and returns an UnexpectedStatusError.
func (c *Controller) Enable(ctx context.Context, id uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, err := c.motorLocked(id)
	if err != nil {
		return err
	}

	info, err := c.session.Control(ctx, CmdEnable, id)
	if err != nil {
		c.log.Error("enable failed", "motor", id, "error", err)
		return &MotorError{ID: id, Op: "enable", Err: err}
	}
	if info.Status != StatusRun {
		statusErr := &UnexpectedStatusError{MotorID: id, Status: info.Status, Faults: info.Faults}
		c.log.Error("enable rejected", "motor", id, "status", info.Status.String(), "faults", info.Faults.String())
		return &MotorError{ID: id, Op: "enable", Err: statusErr}
	}

	m.enabled = true
	c.log.Info("motor enabled", "motor", id)
	return nil
}

// Disable commands the motor out of the RUN state. The wire transaction is
// best-effort: local state becomes Disabled/mode=None regardless of the
// outcome, and only a bus failure is reported.
func (c *Controller) Disable(ctx context.Context, id uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, err := c.motorLocked(id)
	if err != nil {
		return err
	}
	return c.disableLocked(ctx, m)
}

func (c *Controller) disableLocked(ctx context.Context, m *Motor) error {
	_, err := c.session.Control(ctx, CmdDisable, m.id)
	m.enabled = false
	m.mode = ModeNone

	if err != nil {
		c.log.Warn("disable transaction failed", "motor", m.id, "error", err)
		return &MotorError{ID: m.id, Op: "disable", Err: err}
	}
	c.log.Info("motor disabled", "motor", m.id)
	return nil
}

// SetMode writes the run-mode parameter and verifies it by read-back. It is
// legal only while the motor is disabled; calling it on an enabled motor is
// rejected without any wire traffic.
func (c *Controller) SetMode(ctx context.Context, id uint8, mode RunMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, err := c.motorLocked(id)
	if err != nil {
		return err
	}
	if !validRunMode(mode) {
		return fmt.Errorf("motor %d: invalid run mode %s", id, mode)
	}
	if m.enabled {
		return &MotorError{ID: id, Op: "set mode",
			Err: fmt.Errorf("%w: mode change requires the motor to be disabled", ErrIllegalState)}
	}

	if err := c.session.WriteVerifiedUint32(ctx, id, ParamRunMode, uint32(mode)); err != nil {
		c.log.Error("mode set failed", "motor", id, "mode", mode.String(), "error", err)
		return &MotorError{ID: id, Op: "set mode", Err: err}
	}

	m.mode = mode
	c.log.Info("mode set", "motor", id, "mode", mode.String())
	return nil
}

// ApplyLimits performs a verified write for every bound the motor's limits
// bundle configures for the given mode. It requires the motor to be enabled
// with that mode verified; otherwise it fails without any wire traffic.
// All configured bounds are attempted even if one fails; the result is the
// join of the individual failures. A motor with no limits trivially succeeds.
func (c *Controller) ApplyLimits(ctx context.Context, id uint8, mode RunMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, err := c.motorLocked(id)
	if err != nil {
		return err
	}
	if !m.enabled || m.mode != mode {
		return &MotorError{ID: id, Op: "apply limits",
			Err: fmt.Errorf("%w: limits for %s require the motor enabled in that mode (enabled=%t, mode=%s)",
				ErrIllegalState, mode, m.enabled, m.mode)}
	}
	if m.limits == nil {
		c.log.Warn("no limits configured", "motor", id)
		return nil
	}

	var errs []error
	for _, w := range m.limits.forMode(mode) {
		if err := c.session.WriteVerifiedFloat(ctx, id, w.index, w.value); err != nil {
			c.log.Error("limit write failed", "motor", id, "limit", w.name, "value", w.value, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", w.name, err))
			continue
		}
		c.log.Info("limit applied", "motor", id, "limit", w.name, "value", w.value)
	}
	if len(errs) > 0 {
		return &MotorError{ID: id, Op: "apply limits", Err: errors.Join(errs...)}
	}
	return nil
}

// SetTargetPosition streams a position setpoint in radians. The motor's
// configured offset is added before transmission. Setpoints are single
// unverified transactions so control loops keep a bounded per-command latency.
func (c *Controller) SetTargetPosition(ctx context.Context, id uint8, rad float32) error {
	return c.setTarget(ctx, id, "set target position", ParamPositionRef, rad, true)
}

// SetTargetVelocity streams a velocity setpoint in rad/s.
func (c *Controller) SetTargetVelocity(ctx context.Context, id uint8, radPerSec float32) error {
	return c.setTarget(ctx, id, "set target velocity", ParamVelocityRef, radPerSec, false)
}

// SetTargetCurrent streams a current setpoint in amperes.
func (c *Controller) SetTargetCurrent(ctx context.Context, id uint8, amps float32) error {
	return c.setTarget(ctx, id, "set target current", ParamCurrentRef, amps, false)
}

func (c *Controller) setTarget(ctx context.Context, id uint8, op string, index ParamIndex, value float32, addOffset bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, err := c.motorLocked(id)
	if err != nil {
		return err
	}
	if addOffset {
		value += m.offset
	}

	if _, err := c.session.WriteParam(ctx, id, index, Float32Value(value)); err != nil {
		c.log.Error(op+" failed", "motor", id, "value", value, "error", err)
		return &MotorError{ID: id, Op: op, Err: err}
	}
	c.log.Debug(op, "motor", id, "value", value)
	return nil
}

// SetModeAll sets the run mode on every motor in registration order,
// stopping at the first failure.
func (c *Controller) SetModeAll(ctx context.Context, mode RunMode) error {
	for _, id := range c.order {
		if err := c.SetMode(ctx, id, mode); err != nil {
			return err
		}
	}
	return nil
}

// EnableAll enables every motor in registration order, stopping at the first
// failure.
func (c *Controller) EnableAll(ctx context.Context) error {
	for _, id := range c.order {
		if err := c.Enable(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// ApplyLimitsAll applies the given mode's limits on every motor in
// registration order, stopping at the first failure.
func (c *Controller) ApplyLimitsAll(ctx context.Context, mode RunMode) error {
	for _, id := range c.order {
		if err := c.ApplyLimits(ctx, id, mode); err != nil {
			return err
		}
	}
	return nil
}

// DisableAll disables every motor. Unlike the other *All helpers it keeps
// going on failure, since disable always updates local state.
func (c *Controller) DisableAll(ctx context.Context) error {
	var errs []error
	for _, id := range c.order {
		if err := c.Disable(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close runs the safe shutdown sequence and releases the serial channel:
// every motor gets a zero-velocity and a zero-current write, then, after a
// short settle, a disable. Each motor's steps proceed regardless of other
// motors' outcomes, and local state is cleared even when a transaction fails.
// Close is safe to call on a controller that never connected.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil
	}
	c.log.Info("shutting down motors", "motors", len(c.order))

	for _, id := range c.order {
		if _, err := c.session.WriteParam(ctx, id, ParamVelocityRef, Float32Value(0)); err != nil {
			c.log.Warn("zero velocity write failed", "motor", id, "error", err)
		}
		if _, err := c.session.WriteParam(ctx, id, ParamCurrentRef, Float32Value(0)); err != nil {
			c.log.Warn("zero current write failed", "motor", id, "error", err)
		}
	}

	sleepCtx(ctx, c.session.settle)

	for _, id := range c.order {
		c.disableLocked(ctx, c.motors[id])
	}

	err := c.session.Close()
	c.session = nil
	if err != nil {
		return err
	}
	c.log.Info("serial channel closed", "port", c.cfg.Port)
	return nil
}

// Run connects a controller, invokes fn, and guarantees the shutdown
// sequence runs on every exit path.
func Run(ctx context.Context, cfg Config, fn func(context.Context, *Controller) error) (err error) {
	c, err := NewController(cfg)
	if err != nil {
		return err
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	// Shutdown must run even when fn exits via cancellation.
	defer func() {
		if cerr := c.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, c)
}
