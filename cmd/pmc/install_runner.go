package main

import (
	"context"
	"fmt"
	"os"

	"github.com/quasar/pmc/internal/config"
	"github.com/quasar/pmc/internal/display"
	"github.com/quasar/pmc/internal/events"
	"github.com/quasar/pmc/internal/install"
	"github.com/quasar/pmc/internal/launch"
)

// runInstall drives install.Install with its event stream routed to the
// output mode the caller selected, returning the resulting Game.
func runInstall(ctx context.Context, cctx *config.Context, settings install.Settings, mode outputMode) (*install.Game, error) {
	ch := make(chan events.Event, 256)
	result := make(chan error, 1)
	var game *install.Game

	go func() {
		g, err := install.Install(ctx, cctx, settings, events.NewDispatcher(ch))
		game = g
		result <- err
		close(ch)
	}()

	switch mode {
	case outputMachine:
		if err := display.RunMachine(os.Stdout, ch); err != nil {
			return nil, err
		}
	case outputHumanColor:
		if err := display.RunProgress(ch, result); err != nil {
			return nil, err
		}
		return game, nil
	default:
		display.RunHuman(os.Stdout, ch, false)
	}

	if err := <-result; err != nil {
		return nil, err
	}
	return game, nil
}

// spawnGame runs game to completion, printing important log lines as
// they arrive.
func spawnGame(ctx context.Context, game *install.Game) error {
	return launch.Spawn(ctx, game, func(l launch.LogLine) {
		fmt.Printf("[%s] %s\n", l.Stream, l.Text)
	})
}
