package robstride

// MotorConfig describes one motor registered on the bus.
type MotorConfig struct {
	// ID is the motor's CAN node id, unique per session, in [0, MaxMotorID].
	ID uint8 `json:"id"`

	// Offset in radians is added to every position setpoint before
	// transmission.
	Offset float32 `json:"offset"`

	// Limits holds optional per-mode bounds. Nil means no limits are
	// configured and ApplyLimits is a no-op for this motor.
	Limits *Limits `json:"limits,omitempty"`
}

// Limits bundles the optional per-run-mode float bounds for one motor.
// A nil field means "do not configure"; a present field is written and
// verified before motion commands are trusted.
type Limits struct {
	// Profile position mode.
	PPVelMax     *float32 `json:"pp_vel_max,omitempty"`   // max velocity [rad/s]
	PPAccel      *float32 `json:"pp_acc_set,omitempty"`   // acceleration [rad/s^2]
	PPCurrentMax *float32 `json:"pp_limit_cur,omitempty"` // current ceiling [A]

	// Velocity mode.
	VelCurrentMax *float32 `json:"velocity_limit_cur,omitempty"` // current ceiling [A]
	VelAccel      *float32 `json:"velocity_acc_rad,omitempty"`   // acceleration [rad/s^2]

	// Cyclic synchronous position mode.
	CSPSpeedLimit *float32 `json:"csp_limit_spd,omitempty"` // velocity ceiling [rad/s]
	CSPCurrentMax *float32 `json:"csp_limit_cur,omitempty"` // current ceiling [A]
}

// limitWrite pairs one configured bound with its parameter index.
type limitWrite struct {
	name  string
	index ParamIndex
	value float32
}

// forMode returns the verified writes the bundle requires for the given mode.
func (l *Limits) forMode(mode RunMode) []limitWrite {
	var writes []limitWrite
	add := func(name string, index ParamIndex, v *float32) {
		if v != nil {
			writes = append(writes, limitWrite{name: name, index: index, value: *v})
		}
	}

	switch mode {
	case ModePositionPP:
		add("pp velocity max", ParamVelocityMax, l.PPVelMax)
		add("pp acceleration", ParamAccelSet, l.PPAccel)
		add("pp current limit", ParamCurrentMax, l.PPCurrentMax)
	case ModeVelocity:
		add("velocity current limit", ParamCurrentMax, l.VelCurrentMax)
		add("velocity acceleration", ParamAccel, l.VelAccel)
	case ModePositionCSP:
		add("csp speed limit", ParamSpeedLimit, l.CSPSpeedLimit)
		add("csp current limit", ParamCurrentMax, l.CSPCurrentMax)
	}
	return writes
}

// Motor is the per-motor handle owned by a Controller. Its enable flag and
// current mode are mutated only by controller operations; accessors reflect
// the last completed operation.
type Motor struct {
	id     uint8
	offset float32
	limits *Limits

	enabled bool
	mode    RunMode
}

func newMotor(cfg MotorConfig) *Motor {
	return &Motor{
		id:     cfg.ID,
		offset: cfg.Offset,
		limits: cfg.Limits,
		mode:   ModeNone,
	}
}

// ID returns the motor's CAN node id.
func (m *Motor) ID() uint8 {
	return m.id
}

// Offset returns the position offset in radians.
func (m *Motor) Offset() float32 {
	return m.offset
}

// Limits returns the configured limits bundle, or nil.
func (m *Motor) Limits() *Limits {
	return m.limits
}

// Enabled reports whether the last enable/disable operation left the motor
// enabled.
func (m *Motor) Enabled() bool {
	return m.enabled
}

// Mode returns the verified run mode, or ModeNone if no mode-set operation
// has succeeded since construction or the last disable.
func (m *Motor) Mode() RunMode {
	return m.mode
}
