// Package app holds the startup plumbing shared by every service binary:
// configuration, logging, tracing, the dedup store and the event service.
package app

import (
	"context"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/microshop/choreo/internal/eventbus"
	"github.com/microshop/choreo/internal/eventbus/config"
	"github.com/microshop/choreo/internal/eventbus/logging"
	"github.com/microshop/choreo/internal/tracing"
)

// Runtime is the ambient stack of one service process.
type Runtime struct {
	Conf   *config.Config
	Logger logging.ServiceLogger
	Bus    *eventbus.Service

	shutdown []func(context.Context) error
}

// Bootstrap loads configuration, builds the logger, tracer and event service
// for the named service. Call Close before the process exits.
func Bootstrap(ctx context.Context, serviceName string) (*Runtime, error) {
	conf, err := config.Load(".env")
	if err != nil {
		return nil, err
	}
	if conf.ServiceName == "" {
		conf.ServiceName = serviceName
	}

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", conf.ServiceName)
	logger := logging.NewSlogServiceLogger(slogger)

	rt := &Runtime{Conf: conf, Logger: logger}

	if conf.JaegerEndpoint != "" {
		provider, err := tracing.InitTracerProvider(conf.ServiceName, conf.JaegerEndpoint)
		if err != nil {
			return nil, err
		}
		rt.shutdown = append(rt.shutdown, provider.Shutdown)
	}

	var deps eventbus.ServiceDependencies
	if conf.RedisAddr != "" && conf.DedupWindow > 0 {
		client := redis.NewClient(&redis.Options{Addr: conf.RedisAddr})
		deps.Dedup = eventbus.NewRedisDedupStore(client, conf.ServiceName, conf.DedupWindow)
		rt.shutdown = append(rt.shutdown, func(context.Context) error { return client.Close() })
	}

	rt.Bus = eventbus.NewService(conf, logger, ctx, deps)
	return rt, nil
}

// Close flushes and releases everything Bootstrap set up.
func (rt *Runtime) Close(ctx context.Context) {
	for i := len(rt.shutdown) - 1; i >= 0; i-- {
		if err := rt.shutdown[i](ctx); err != nil {
			rt.Logger.Error("Shutdown step failed", err, nil)
		}
	}
}
