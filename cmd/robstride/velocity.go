package main

import (
	"context"
	"time"

	"github.com/hipsterbrown/robstride-motor/robstride"
)

type VelocityCommand struct {
	Speed    float32       `short:"s" long:"speed" default:"2" description:"Target velocity in rad/s"`
	Duration time.Duration `short:"d" long:"duration" default:"3s" description:"How long to spin"`
	Reverse  bool          `short:"r" long:"reverse" description:"Spin the other way for the same duration afterwards"`
}

func (c *VelocityCommand) Execute(args []string) error {
	return withController(func(ctx context.Context, ctrl *robstride.Controller) error {
		if err := ctrl.SetModeAll(ctx, robstride.ModeVelocity); err != nil {
			return err
		}
		if err := ctrl.EnableAll(ctx); err != nil {
			return err
		}
		if err := ctrl.ApplyLimitsAll(ctx, robstride.ModeVelocity); err != nil {
			return err
		}

		legs := []float32{c.Speed}
		if c.Reverse {
			legs = append(legs, -c.Speed)
		}
		for _, speed := range legs {
			for _, m := range ctrl.Motors() {
				if err := ctrl.SetTargetVelocity(ctx, m.ID(), speed); err != nil {
					return err
				}
			}
			if err := wait(ctx, c.Duration); err != nil {
				return err
			}
		}
		return nil
	})
}
