package main

import (
	"context"
	"time"

	"github.com/hipsterbrown/robstride-motor/robstride"
)

type PositionCommand struct {
	Target float32       `short:"t" long:"target" default:"0" description:"Target position in radians"`
	Hold   time.Duration `long:"hold" default:"3s" description:"How long to hold after commanding the move"`
}

func (c *PositionCommand) Execute(args []string) error {
	return withController(func(ctx context.Context, ctrl *robstride.Controller) error {
		if err := ctrl.SetModeAll(ctx, robstride.ModePositionPP); err != nil {
			return err
		}
		if err := ctrl.EnableAll(ctx); err != nil {
			return err
		}
		if err := ctrl.ApplyLimitsAll(ctx, robstride.ModePositionPP); err != nil {
			return err
		}

		for _, m := range ctrl.Motors() {
			if err := ctrl.SetTargetPosition(ctx, m.ID(), c.Target); err != nil {
				return err
			}
		}
		return wait(ctx, c.Hold)
	})
}
