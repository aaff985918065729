package main

import (
	"context"
	"time"

	"github.com/hipsterbrown/robstride-motor/robstride"
)

type CurrentCommand struct {
	Amps     float32       `short:"a" long:"amps" default:"0.5" description:"Target current in amperes"`
	Duration time.Duration `short:"d" long:"duration" default:"3s" description:"How long to hold the current"`
}

func (c *CurrentCommand) Execute(args []string) error {
	return withController(func(ctx context.Context, ctrl *robstride.Controller) error {
		if err := ctrl.SetModeAll(ctx, robstride.ModeCurrent); err != nil {
			return err
		}
		if err := ctrl.EnableAll(ctx); err != nil {
			return err
		}

		for _, m := range ctrl.Motors() {
			if err := ctrl.SetTargetCurrent(ctx, m.ID(), c.Amps); err != nil {
				return err
			}
		}
		return wait(ctx, c.Duration)
	})
}
