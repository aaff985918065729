package main

import (
	"context"
	"math"
	"time"

	"github.com/hipsterbrown/robstride-motor/robstride"
)

type CSPCommand struct {
	Amplitude float32       `short:"a" long:"amplitude" default:"1" description:"Sine amplitude in radians"`
	Period    time.Duration `long:"period" default:"2s" description:"Sine period"`
	Duration  time.Duration `short:"d" long:"duration" default:"6s" description:"How long to stream setpoints"`
	Rate      time.Duration `long:"rate" default:"10ms" description:"Setpoint interval"`
}

// Execute streams a sine trajectory to every motor. CSP mode tracks each
// setpoint directly, so the stream rate bounds how smooth the motion is.
func (c *CSPCommand) Execute(args []string) error {
	return withController(func(ctx context.Context, ctrl *robstride.Controller) error {
		if err := ctrl.SetModeAll(ctx, robstride.ModePositionCSP); err != nil {
			return err
		}
		if err := ctrl.EnableAll(ctx); err != nil {
			return err
		}
		if err := ctrl.ApplyLimitsAll(ctx, robstride.ModePositionCSP); err != nil {
			return err
		}

		start := time.Now()
		for time.Since(start) < c.Duration {
			phase := 2 * math.Pi * float64(time.Since(start)) / float64(c.Period)
			target := c.Amplitude * float32(math.Sin(phase))
			for _, m := range ctrl.Motors() {
				if err := ctrl.SetTargetPosition(ctx, m.ID(), target); err != nil {
					return err
				}
			}
			if err := wait(ctx, c.Rate); err != nil {
				return err
			}
		}

		// Come back to rest before the shutdown sequence takes over.
		for _, m := range ctrl.Motors() {
			if err := ctrl.SetTargetPosition(ctx, m.ID(), 0); err != nil {
				return err
			}
		}
		return wait(ctx, c.Period/2)
	})
}
