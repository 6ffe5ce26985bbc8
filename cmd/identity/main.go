// The identity service owns user registration. It serves the register
// command over HTTP and announces new accounts as user.registered events.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/microshop/choreo/internal/app"
	"github.com/microshop/choreo/internal/identity"
	"github.com/microshop/choreo/internal/storage/memory"
	"github.com/microshop/choreo/internal/storage/postgres"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	rt, err := app.Bootstrap(ctx, "identity")
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	var repo identity.Repository = memory.NewUserStore()
	if rt.Conf.PostgresURL != "" {
		pool, err := postgres.Connect(ctx, rt.Conf.PostgresURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		repo = postgres.NewUserRepository(pool)
	}

	svc := identity.NewService(repo, rt.Bus, rt.Logger)
	rt.Bus.RegisterHTTPHandler(rt.Conf.HTTPPort, "/", identity.NewHTTPHandler(svc))

	return rt.Bus.Start(ctx)
}
