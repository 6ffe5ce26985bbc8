// The order service accepts order commands, validates them against the
// customer and product services, and starts the fulfillment choreography. It
// consumes both payment results through the shared payment-result queue.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/microshop/choreo/internal/app"
	"github.com/microshop/choreo/internal/clients"
	"github.com/microshop/choreo/internal/eventbus"
	"github.com/microshop/choreo/internal/eventbus/handlers"
	"github.com/microshop/choreo/internal/events"
	"github.com/microshop/choreo/internal/order"
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
	rt, err := app.Bootstrap(ctx, "order")
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	var repo order.Repository = memory.NewOrderStore()
	if rt.Conf.PostgresURL != "" {
		pool, err := postgres.Connect(ctx, rt.Conf.PostgresURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		repo = postgres.NewOrderRepository(pool)
	}

	customers := clients.NewCustomerClient(rt.Conf.CustomerServiceURL)
	catalog := clients.NewProductClient(rt.Conf.ProductServiceURL)
	svc := order.NewService(repo, rt.Bus, customers, catalog, rt.Logger)

	applyResult := func(ctx context.Context, event handlers.JSONMessageContext[*events.PaymentResult]) error {
		return svc.ApplyPaymentResult(ctx, *event.Payload)
	}

	registrations := []handlers.JSONHandlerRegistration[*events.PaymentResult]{
		{Name: "order.payment-completed", ConsumeKey: events.KeyPaymentCompleted, Handler: applyResult},
		{Name: "order.payment-failed", ConsumeKey: events.KeyPaymentFailed, Handler: applyResult},
	}
	for _, reg := range registrations {
		if err := eventbus.RegisterJSONHandler(rt.Bus, reg); err != nil {
			return err
		}
	}

	rt.Bus.RegisterHTTPHandler(rt.Conf.HTTPPort, "/", order.NewHTTPHandler(svc))

	return rt.Bus.Start(ctx)
}
