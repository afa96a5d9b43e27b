package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"wamirror/internal/constants"
	apperrors "wamirror/internal/errors"
	"wamirror/internal/metrics"
	"wamirror/internal/models"
	"wamirror/pkg/circuitbreaker"
)

// AMQPConfig configures the broker sink.
type AMQPConfig struct {
	URL            string
	Exchange       string
	PublishTimeout time.Duration
	QueueSize      int
}

type publishFunc func(ctx context.Context, routingKey string, msg amqp091.Publishing) error

type amqpEvent struct {
	routingKey string
	msg        amqp091.Publishing
}

// AMQPPublisher publishes events to a topic exchange with the event name as
// routing key. Publishing happens on a background worker so a slow or
// unavailable broker never delays ingestion.
type AMQPPublisher struct {
	exchange string
	publish  publishFunc
	closer   func() error
	timeout  time.Duration
	breaker  *circuitbreaker.CircuitBreaker
	logger   *logrus.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan amqpEvent
	wg     sync.WaitGroup
}

// NewAMQPPublisher dials the broker and declares a durable topic exchange.
func NewAMQPPublisher(cfg AMQPConfig, logger *logrus.Logger) (*AMQPPublisher, error) {
	if cfg.Exchange == "" {
		cfg.Exchange = constants.DefaultAMQPExchange
	}

	conn, err := amqp091.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	// The channel is only used by the single worker goroutine.
	publish := func(ctx context.Context, routingKey string, msg amqp091.Publishing) error {
		return ch.PublishWithContext(ctx, cfg.Exchange, routingKey, false, false, msg)
	}
	closer := func() error {
		_ = ch.Close()
		return conn.Close()
	}

	logger.WithFields(logrus.Fields{
		"sink":     "amqp",
		"exchange": cfg.Exchange,
	}).Info("Connected to AMQP broker")

	return newAMQPPublisher(cfg, publish, closer, logger), nil
}

func newAMQPPublisher(cfg AMQPConfig, publish publishFunc, closer func() error, logger *logrus.Logger) *AMQPPublisher {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = time.Duration(constants.DefaultPublishTimeoutMs) * time.Millisecond
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = constants.DefaultNotifierQueueSize
	}

	p := &AMQPPublisher{
		exchange: cfg.Exchange,
		publish:  publish,
		closer:   closer,
		timeout:  cfg.PublishTimeout,
		breaker:  circuitbreaker.New("amqp", 5, 30*time.Second, logger),
		logger:   logger,
		queue:    make(chan amqpEvent, cfg.QueueSize),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Notify enqueues the event. A full queue drops it.
func (p *AMQPPublisher) Notify(_ context.Context, event string, payload any) error {
	body, err := json.Marshal(models.Envelope{Event: event, Data: payload})
	if err != nil {
		return apperrors.NewNotifierError("amqp", err)
	}

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    uuid.NewString(),
		Type:         event,
		Timestamp:    time.Now(),
		Body:         body,
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return apperrors.NewNotifierError("amqp", fmt.Errorf("publisher closed"))
	}

	select {
	case p.queue <- amqpEvent{routingKey: event, msg: msg}:
		return nil
	default:
		metrics.IncrementCounter("notifier_dropped_total", map[string]string{"sink": "amqp"}, "Events dropped for slow subscribers")
		return apperrors.NewNotifierError("amqp", fmt.Errorf("publish queue full"))
	}
}

func (p *AMQPPublisher) run() {
	defer p.wg.Done()
	for ev := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		err := p.breaker.Execute(ctx, func(ctx context.Context) error {
			return p.publish(ctx, ev.routingKey, ev.msg)
		})
		cancel()

		outcome := "published"
		if err != nil {
			outcome = "failed"
			p.logger.WithFields(logrus.Fields{
				"sink":     "amqp",
				"exchange": p.exchange,
				"event":    ev.routingKey,
				"error":    err.Error(),
			}).Warn("Failed to publish event")
		}
		metrics.IncrementCounter("notifier_amqp_total", map[string]string{"outcome": outcome}, "AMQP publish attempts")
	}
}

// Close drains queued events and closes the connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	if p.closer != nil {
		return p.closer()
	}
	return nil
}
