package eventbus

import (
	"context"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/microshop/choreo/internal/eventbus/config"
	"github.com/microshop/choreo/internal/eventbus/logging"
)

type testPublisher struct {
	mu        sync.Mutex
	published []publishedMessage
	err       error
}

type publishedMessage struct {
	topic string
	msg   *message.Message
}

func (p *testPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	for _, msg := range messages {
		p.published = append(p.published, publishedMessage{topic: topic, msg: msg})
	}
	return nil
}

func (p *testPublisher) Close() error { return nil }

func (p *testPublisher) Published() []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	clone := make([]publishedMessage, len(p.published))
	copy(clone, p.published)
	return clone
}

type testSubscriber struct {
	err error
}

func (s *testSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

func (s *testSubscriber) Close() error { return nil }

type loggedEntry struct {
	level  string
	msg    string
	err    error
	fields logging.LogFields
}

type recordingLogger struct {
	mu   sync.Mutex
	logs []loggedEntry
}

func (l *recordingLogger) record(level, msg string, err error, fields logging.LogFields) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, loggedEntry{level: level, msg: msg, err: err, fields: fields})
}

func (l *recordingLogger) With(logging.LogFields) logging.ServiceLogger { return l }
func (l *recordingLogger) Debug(msg string, fields logging.LogFields)  { l.record("debug", msg, nil, fields) }
func (l *recordingLogger) Info(msg string, fields logging.LogFields)   { l.record("info", msg, nil, fields) }
func (l *recordingLogger) Error(msg string, err error, fields logging.LogFields) {
	l.record("error", msg, err, fields)
}
func (l *recordingLogger) Trace(msg string, fields logging.LogFields) { l.record("trace", msg, nil, fields) }

func (l *recordingLogger) Entries() []loggedEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	clone := make([]loggedEntry, len(l.logs))
	copy(clone, l.logs)
	return clone
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	log := &recordingLogger{}
	wmLogger := logging.NewWatermillAdapter(log)
	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		t.Fatalf("router init failed: %v", err)
	}
	return &Service{
		Conf:          &config.Config{ServiceName: "test", PubSubSystem: "channel"},
		Logger:        log,
		router:        router,
		publisher:     &testPublisher{},
		subscriber:    &testSubscriber{},
		poisonMetrics: NewPoisonMetrics(prometheus.NewRegistry()),
	}
}
