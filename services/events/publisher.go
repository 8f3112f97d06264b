package eventsvc

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/trezcool/maendeleo/core"
)

// Publisher publishes domain events to a topic exchange, routed by event type.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	enabled  bool
	logger   core.Logger
}

var _ core.EventPublisher = (*Publisher)(nil)

// NewPublisher connects to the broker. Publishing is disabled when conf.URI is empty.
func NewPublisher(conf core.AMQPConfig, logger core.Logger) (*Publisher, error) {
	p := &Publisher{exchange: conf.Exchange, logger: logger}
	if conf.URI == "" {
		logger.Warn("AMQP URI is empty, event publishing is disabled")
		return p, nil
	}

	conn, err := amqp.Dial(conf.URI)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to the broker")
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "opening a channel")
	}
	if err := declareExchange(channel, conf.Exchange); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, err
	}

	p.conn = conn
	p.channel = channel
	p.enabled = true
	logger.Info("event publisher initialized with exchange: " + conf.Exchange)
	return p, nil
}

func declareExchange(channel *amqp.Channel, name string) error {
	err := channel.ExchangeDeclare(
		name,    // name
		"topic", // type
		true,    // durable
		false,   // auto-deleted
		false,   // internal
		false,   // no-wait
		nil,     // arguments
	)
	return errors.Wrapf(err, "declaring exchange %s", name)
}

func (p *Publisher) Enabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// Publish fills in the event id and time when they are missing.
func (p *Publisher) Publish(ctx context.Context, evt core.Event) error {
	if !p.Enabled() {
		return nil
	}

	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "marshalling event")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		// closed meanwhile
		return nil
	}
	err = p.channel.PublishWithContext(ctx,
		p.exchange, // exchange
		evt.Type,   // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    evt.ID,
			Timestamp:    evt.OccurredAt,
			Body:         body,
			Headers: amqp.Table{
				"event_type": evt.Type,
				"user_id":    evt.UserID,
				"course_id":  evt.CourseID,
			},
		},
	)
	if err != nil {
		return errors.Wrapf(err, "publishing %s event", evt.Type)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return nil
	}
	p.enabled = false
	if err := p.channel.Close(); err != nil {
		p.logger.Warn("closing AMQP channel", err)
	}
	return errors.Wrap(p.conn.Close(), "closing AMQP connection")
}
