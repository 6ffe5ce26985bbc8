// The customer service provisions profiles from user.registered events and
// serves profile lookups for the order service's existence checks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/microshop/choreo/internal/app"
	"github.com/microshop/choreo/internal/customer"
	"github.com/microshop/choreo/internal/eventbus"
	"github.com/microshop/choreo/internal/eventbus/handlers"
	"github.com/microshop/choreo/internal/events"
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
	rt, err := app.Bootstrap(ctx, "customer")
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	var repo customer.Repository = memory.NewProfileStore()
	if rt.Conf.PostgresURL != "" {
		pool, err := postgres.Connect(ctx, rt.Conf.PostgresURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		repo = postgres.NewProfileRepository(pool)
	}

	svc := customer.NewService(repo, rt.Logger)

	err = eventbus.RegisterJSONHandler(rt.Bus, handlers.JSONHandlerRegistration[*events.UserRegistered]{
		Name:       "customer.provision-profile",
		ConsumeKey: events.KeyUserRegistered,
		Handler: func(ctx context.Context, event handlers.JSONMessageContext[*events.UserRegistered]) error {
			return svc.HandleUserRegistered(ctx, *event.Payload)
		},
	})
	if err != nil {
		return err
	}

	rt.Bus.RegisterHTTPHandler(rt.Conf.HTTPPort, "/", customer.NewHTTPHandler(svc))

	return rt.Bus.Start(ctx)
}
