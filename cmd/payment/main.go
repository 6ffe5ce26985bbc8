// The payment service charges created orders and announces the outcome as
// payment.completed or payment.failed events.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/microshop/choreo/internal/app"
	"github.com/microshop/choreo/internal/eventbus"
	"github.com/microshop/choreo/internal/eventbus/handlers"
	"github.com/microshop/choreo/internal/events"
	"github.com/microshop/choreo/internal/payment"
	"github.com/microshop/choreo/internal/storage/memory"
	"github.com/microshop/choreo/internal/storage/postgres"
)

// simulatedProcessingDelay stands in for the provider round-trip until a real
// gateway integration lands.
const simulatedProcessingDelay = 500 * time.Millisecond

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	rt, err := app.Bootstrap(ctx, "payment")
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	var repo payment.Repository = memory.NewPaymentStore()
	if rt.Conf.PostgresURL != "" {
		pool, err := postgres.Connect(ctx, rt.Conf.PostgresURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		repo = postgres.NewPaymentRepository(pool)
	}

	gateway := payment.SimulatedGateway{Delay: simulatedProcessingDelay}
	svc := payment.NewService(repo, rt.Bus, gateway, rt.Conf.GatewayTimeout, rt.Logger)

	err = eventbus.RegisterJSONHandler(rt.Bus, handlers.JSONHandlerRegistration[*events.OrderCreated]{
		Name:       "payment.charge-order",
		ConsumeKey: events.KeyOrderCreated,
		Handler: func(ctx context.Context, event handlers.JSONMessageContext[*events.OrderCreated]) error {
			return svc.HandleOrderCreated(ctx, *event.Payload)
		},
	})
	if err != nil {
		return err
	}

	rt.Bus.RegisterHTTPHandler(rt.Conf.HTTPPort, "/", payment.NewHTTPHandler(svc))

	return rt.Bus.Start(ctx)
}
