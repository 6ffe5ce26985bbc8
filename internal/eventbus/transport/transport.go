// Package transport builds the publisher/subscriber pair backing the event
// service. Two transports exist: the AMQP broker used in every deployment and
// an in-process channel used by tests and local runs.
package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/microshop/choreo/internal/eventbus/config"
)

// Transport combines a publisher and subscriber pair produced by a factory.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Factory abstracts how the event service initialises its transport.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)
}

// DefaultFactory returns the built-in factory selecting the transport from
// the configuration.
func DefaultFactory() Factory {
	return defaultFactory{}
}

type defaultFactory struct{}

func (defaultFactory) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	if conf == nil {
		return Transport{}, fmt.Errorf("config is required")
	}

	switch strings.ToLower(conf.PubSubSystem) {
	case "rabbitmq":
		return amqpTransport(conf, logger)
	case "channel", "":
		return channelTransport(conf, logger)
	default:
		return Transport{}, fmt.Errorf("unknown pubsub system %q", conf.PubSubSystem)
	}
}
