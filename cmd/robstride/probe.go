package main

import (
	"context"
	"fmt"

	"github.com/hipsterbrown/robstride-motor/robstride"
)

type ProbeCommand struct{}

func (c *ProbeCommand) Execute(args []string) error {
	return withController(func(ctx context.Context, ctrl *robstride.Controller) error {
		// Connecting already probed the whole motor table.
		for _, m := range ctrl.Motors() {
			fmt.Printf("motor %d: ok\n", m.ID())
		}
		return nil
	})
}
