package transport

import (
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/microshop/choreo/internal/eventbus/config"
	"github.com/microshop/choreo/internal/eventbus/errs"
	"github.com/microshop/choreo/internal/events"
)

// Factories that can be overridden in tests to avoid dialing a real broker.
var (
	AmqpConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
		return amqp.NewConnection(cfg, logger)
	}
	AmqpPublisherFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Publisher, error) {
		return amqp.NewPublisherWithConnection(cfg, logger, conn)
	}
	AmqpSubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
		return amqp.NewSubscriberWithConnection(cfg, logger, conn)
	}
	sleep = time.Sleep
)

// queueNames pins each routing key a service consumes to its durable queue.
// payment.completed and payment.failed deliberately share one queue so the
// order service sees both results through a single binding pair.
var queueNames = map[string]string{
	events.KeyUserRegistered:   events.QueueCustomerUserRegistered,
	events.KeyOrderCreated:     events.QueuePaymentOrderCreated,
	events.KeyStockReserve:     events.QueueProductStockReserve,
	events.KeyPaymentCompleted: events.QueueOrderPaymentResult,
	events.KeyPaymentFailed:    events.QueueOrderPaymentResult,
}

// GenerateQueueName maps a routing key to the durable queue of the service
// consuming it. Keys outside the shared taxonomy (the poison queue, ad-hoc
// test topics) get a name derived from the service and the key itself.
func GenerateQueueName(serviceName string) amqp.QueueNameGenerator {
	return func(topic string) string {
		if name, ok := queueNames[topic]; ok {
			return name
		}
		return serviceName + "." + strings.ReplaceAll(topic, ".", "-")
	}
}

func amqpTransport(conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	conn, amqpConfig, err := setupAmqp(conf, logger)
	if err != nil {
		return Transport{}, err
	}
	publisher, err := AmqpPublisherFactory(amqpConfig, logger, conn)
	if err != nil {
		return Transport{}, err
	}
	subscriber, err := AmqpSubscriberFactory(amqpConfig, logger, conn)
	if err != nil {
		return Transport{}, err
	}
	return Transport{Publisher: publisher, Subscriber: subscriber}, nil
}

func setupAmqp(conf *config.Config, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, amqp.Config, error) {
	amqpConfig := amqp.NewDurablePubSubConfig(conf.BrokerURL, GenerateQueueName(conf.ServiceName))

	// Topic exchanges routed by exact key, one exchange per producing
	// service. Queues stay durable, non-exclusive and non-autodelete as set
	// up by the durable pub/sub base config; declaration is idempotent so
	// every process can declare the full topology it touches on startup.
	amqpConfig.Exchange.GenerateName = events.ExchangeForKey
	amqpConfig.Exchange.Type = "topic"
	amqpConfig.QueueBind.GenerateRoutingKey = func(topic string) string { return topic }
	amqpConfig.Publish.GenerateRoutingKey = func(topic string) string { return topic }

	// One in-flight message per subscription; concurrency comes from running
	// independent subscriptions, not from fanning out within one queue.
	amqpConfig.Consume.Qos.PrefetchCount = 1

	conn, err := dialWithRetry(conf, logger)
	if err != nil {
		return nil, amqp.Config{}, err
	}
	return conn, amqpConfig, nil
}

// dialWithRetry applies the startup policy: an initial grace period so the
// broker can finish booting, then a bounded number of dial attempts with a
// fixed backoff. Exhausting the attempts is fatal for the caller; a service
// that owns inbound choreography must not serve traffic without a broker.
func dialWithRetry(conf *config.Config, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
	if conf.BrokerStartupGrace > 0 {
		sleep(conf.BrokerStartupGrace)
	}

	connCfg := amqp.ConnectionConfig{
		AmqpURI:   conf.BrokerURL,
		TLSConfig: nil,
		Reconnect: amqp.DefaultReconnectConfig(),
	}

	var lastErr error
	for attempt := 1; attempt <= conf.BrokerDialAttempts; attempt++ {
		conn, err := AmqpConnectionFactory(connCfg, logger)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		logger.Error("broker dial failed", err, watermill.LogFields{
			"attempt":  attempt,
			"attempts": conf.BrokerDialAttempts,
		})
		if attempt < conf.BrokerDialAttempts {
			sleep(conf.BrokerDialBackoff)
		}
	}
	return nil, fmt.Errorf("%w: %v", errs.ErrBrokerUnreachable, lastErr)
}
