// The product service owns the catalog and the stock ledger. It serves the
// catalog commands over HTTP and consumes stock.reserve events.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/microshop/choreo/internal/app"
	"github.com/microshop/choreo/internal/eventbus"
	"github.com/microshop/choreo/internal/eventbus/handlers"
	"github.com/microshop/choreo/internal/events"
	"github.com/microshop/choreo/internal/product"
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
	rt, err := app.Bootstrap(ctx, "product")
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())

	var repo product.Repository = memory.NewProductStore()
	if rt.Conf.PostgresURL != "" {
		pool, err := postgres.Connect(ctx, rt.Conf.PostgresURL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		repo = postgres.NewProductRepository(pool)
	}

	svc := product.NewService(repo, rt.Logger)

	err = eventbus.RegisterJSONHandler(rt.Bus, handlers.JSONHandlerRegistration[*events.StockReserve]{
		Name:       "product.reserve-stock",
		ConsumeKey: events.KeyStockReserve,
		Handler: func(ctx context.Context, event handlers.JSONMessageContext[*events.StockReserve]) error {
			return svc.HandleStockReserve(ctx, *event.Payload)
		},
	})
	if err != nil {
		return err
	}

	rt.Bus.RegisterHTTPHandler(rt.Conf.HTTPPort, "/", product.NewHTTPHandler(svc))

	return rt.Bus.Start(ctx)
}
