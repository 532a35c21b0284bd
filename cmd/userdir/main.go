package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// Initialize context that cancelled on SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Getenv, os.Getwd, os.Args[1:]); err != nil {
		slog.Error("userdir stopped with error", "error", err.Error())
		os.Exit(1)
	}
}

// Config priority: flags, then env, then .env file, then defaults
func run(ctx context.Context, getenv func(string) string, getwd func() (string, error), args []string) error {
	c := NewConfig()

	if err := c.LoadDotEnv(getwd); err != nil {
		return fmt.Errorf("can't read .env file. Err: %w", err)
	}
	c.LoadEnv(getenv)
	if err := c.ParseFlags(args); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config. Err: %w", err)
	}

	srv, err := NewServerApp(ctx, c)
	if err != nil {
		return fmt.Errorf("can't initialize app, sorry. Err: %w", err)
	}

	// Run server
	if err := srv.Run(ctx); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
