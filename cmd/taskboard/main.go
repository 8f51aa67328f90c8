// Command taskboard is the terminal client for the taskboard backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/common-nighthawk/go-figure"

	"github.com/jrsteele09/taskboard/internal/cli"
	"github.com/jrsteele09/taskboard/internal/config"
	"github.com/jrsteele09/taskboard/internal/logging"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	c := config.New()
	logger := logging.New(c)

	if len(args) == 0 {
		displayAppname(c.GetAppName())
	}

	app, err := cli.New(c, os.Stdout, cli.WithLogger(logger))
	if err != nil {
		logger.Error().Err(err).Msg("failed to start")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, args); err != nil {
		if errors.Is(err, cli.ErrUsage) {
			return 2
		}
		fmt.Fprintln(os.Stderr, cli.Describe(err))
		return 1
	}
	return 0
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
