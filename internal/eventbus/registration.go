package eventbus

import (
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/microshop/choreo/internal/eventbus/errs"
	"github.com/microshop/choreo/internal/eventbus/handlers"
)

type handlerRegistration struct {
	Name       string
	ConsumeKey string
	Subscriber message.Subscriber
	Handler    message.NoPublishHandlerFunc
}

// MessageHandlerRegistration wires a raw Watermill handler without typed helpers.
type MessageHandlerRegistration struct {
	Name       string
	ConsumeKey string
	Handler    message.NoPublishHandlerFunc
	Subscriber message.Subscriber
}

// RegisterMessageHandler attaches the provided handler to the service router.
func RegisterMessageHandler(svc *Service, cfg MessageHandlerRegistration) error {
	if svc == nil {
		return errs.ErrServiceRequired
	}

	return svc.registerHandler(handlerRegistration{
		Name:       cfg.Name,
		ConsumeKey: cfg.ConsumeKey,
		Subscriber: cfg.Subscriber,
		Handler:    cfg.Handler,
	})
}

// RegisterJSONHandler converts the typed JSON handler into a Watermill handler
// and registers it for its routing key.
func RegisterJSONHandler[T any](svc *Service, cfg handlers.JSONHandlerRegistration[T]) error {
	if svc == nil {
		return errs.ErrServiceRequired
	}

	wrapped, err := handlers.BuildJSONHandler(cfg.Handler, svc.Logger)
	if err != nil {
		return err
	}

	return svc.registerHandler(handlerRegistration{
		Name:       cfg.Name,
		ConsumeKey: cfg.ConsumeKey,
		Handler:    wrapped,
	})
}

func (s *Service) registerHandler(cfg handlerRegistration) error {
	if cfg.Handler == nil {
		return errs.ErrHandlerRequired
	}
	if cfg.ConsumeKey == "" {
		return errs.ErrConsumeQueueRequired
	}
	if cfg.Name == "" {
		return errs.ErrHandlerNameRequired
	}
	if cfg.Subscriber == nil {
		cfg.Subscriber = s.subscriber
	}

	s.router.AddNoPublisherHandler(
		cfg.Name,
		cfg.ConsumeKey,
		cfg.Subscriber,
		cfg.Handler,
	)

	return nil
}
