package eventbus

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"

	"github.com/microshop/choreo/internal/eventbus/config"
	"github.com/microshop/choreo/internal/eventbus/logging"
	"github.com/microshop/choreo/internal/eventbus/transport"
)

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// ServiceDependencies holds the optional collaborators a Service can use.
// Leave fields nil to fall back to defaults.
type ServiceDependencies struct {
	Dedup                     DedupStore
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
	TransportFactory          transport.Factory
}

// Service wires a Watermill router, publisher, subscriber, and middleware
// chain onto the broker topology of one choreography participant.
type Service struct {
	Conf   *config.Config
	Logger logging.ServiceLogger

	publisher  message.Publisher
	subscriber message.Subscriber
	router     *message.Router

	dedup         DedupStore
	poisonMetrics *PoisonMetrics

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex
}

// NewService constructs a Service for the supplied configuration. Register
// handlers on the returned Service before calling Start. A transport that
// cannot be built is fatal; a choreography participant must not come up
// without its broker.
func NewService(conf *config.Config, log logging.ServiceLogger, ctx context.Context, deps ServiceDependencies) *Service {
	wmLogger := logging.NewWatermillAdapter(log)
	log.Info("Creating event service",
		logging.LogFields{
			"pubsub_system": conf.PubSubSystem,
			"config":        conf,
		})

	s := &Service{
		Conf:          conf,
		Logger:        log,
		dedup:         deps.Dedup,
		poisonMetrics: NewPoisonMetrics(nil),
	}

	if s.dedup == nil && conf.DedupWindow > 0 {
		s.dedup = NewMemoryDedupStore(conf.DedupWindow)
	}

	factory := deps.TransportFactory
	if factory == nil {
		factory = transport.DefaultFactory()
	}
	tp, err := factory.Build(ctx, conf, wmLogger)
	if err != nil {
		panic(err)
	}

	s.publisher = tp.Publisher
	s.subscriber = tp.Subscriber

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		panic(err)
	}

	s.router = router
	s.router.AddPlugin(plugin.SignalsHandler)

	s.registerConfiguredMiddlewares(deps)

	return s
}

// Start runs the underlying Watermill router until the provided context is cancelled.
func (s *Service) Start(ctx context.Context) error {
	s.startHTTPServers()
	return routerRun(s.router, ctx)
}

// Running is closed once all handlers are subscribed and the router accepts
// traffic.
func (s *Service) Running() <-chan struct{} {
	return s.router.Running()
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			panic(fmt.Sprintf("failed to register middleware %s: %v", name, err))
		}
	}
}

// RegisterHTTPHandler mounts an HTTP handler on the mux served at the given
// port once Start is called. Services use this for their thin command
// endpoints and the metrics endpoint.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers() {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	for port, mux := range s.httpServers {
		addr := fmt.Sprintf(":%d", port)
		s.Logger.Info("Starting HTTP server", logging.LogFields{"address": addr})
		go func(addr string, handler http.Handler) {
			if err := http.ListenAndServe(addr, handler); err != nil {
				s.Logger.Error("Failed to start HTTP server", err, logging.LogFields{"address": addr})
			}
		}(addr, mux)
	}
}
