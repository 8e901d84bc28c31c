package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/korebog/app"
	"github.com/jrsteele09/korebog/internal/config"
	"github.com/jrsteele09/korebog/internal/logging"
	"github.com/jrsteele09/korebog/session"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s%s%s\n", Red, describe(err), ResetColor)
		os.Exit(1)
	}
}

func run(args []string) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	if len(args) == 0 || args[0] == "help" || args[0] == "-h" {
		usage()
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}

	c, err := config.New()
	if err != nil {
		return fmt.Errorf("config.New: %w", err)
	}
	logging.Setup(c.GetLogLevel(), c.GetEnv())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := &environment{cfg: c}
	a, err := app.New(ctx, c, app.Deps{
		OpenBrowser:      openBrowser,
		OnSessionExpired: sessionExpired,
		Registerer:       env.registry(),
	})
	if err != nil {
		return fmt.Errorf("app.New: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil && returnError == nil {
			returnError = err
		}
	}()
	env.app = a

	if cmd.banner {
		displayAppname(c.GetAppName())
	}
	return cmd.run(ctx, env, args[1:])
}

func sessionExpired(last session.Profile) {
	fmt.Fprintf(os.Stderr, "%sSession for %s has expired, run 'korebog login' again%s\n", Yellow, last.Email, ResetColor)
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
