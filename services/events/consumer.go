package eventsvc

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/trezcool/maendeleo/core"
)

// StructureInvalidator drops cached course structure.
type StructureInvalidator interface {
	Invalidate(ctx context.Context, courseIDs ...string) error
}

// Consumer listens for course structure changes published by the catalog
// and evicts the affected courses from the structure cache.
type Consumer struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	exchange    string
	queue       string
	invalidator StructureInvalidator
	logger      core.Logger
	wg          sync.WaitGroup
	enabled     bool
}

// NewConsumer connects to the broker. Consumption is disabled when conf.URI is empty.
func NewConsumer(conf core.AMQPConfig, invalidator StructureInvalidator, logger core.Logger) (*Consumer, error) {
	c := &Consumer{
		exchange:    conf.Exchange,
		queue:       conf.Queue,
		invalidator: invalidator,
		logger:      logger,
	}
	if conf.URI == "" {
		logger.Warn("AMQP URI is empty, event consumption is disabled")
		return c, nil
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
	if err := channel.Qos(
		10,    // prefetch count
		0,     // prefetch size
		false, // global
	); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, errors.Wrap(err, "setting QoS")
	}

	c.conn = conn
	c.channel = channel
	c.enabled = true
	return c, nil
}

// Start declares the queue, binds it and consumes until ctx is done or the channel closes.
func (c *Consumer) Start(ctx context.Context) error {
	if !c.enabled {
		return nil
	}

	if err := declareExchange(c.channel, c.exchange); err != nil {
		return err
	}
	if _, err := c.channel.QueueDeclare(
		c.queue, // name
		true,    // durable
		false,   // delete when unused
		false,   // exclusive
		false,   // no-wait
		nil,     // arguments
	); err != nil {
		return errors.Wrapf(err, "declaring queue %s", c.queue)
	}
	if err := c.channel.QueueBind(c.queue, core.EventCourseStructureChanged, c.exchange, false, nil); err != nil {
		return errors.Wrapf(err, "binding queue %s", c.queue)
	}

	msgs, err := c.channel.Consume(
		c.queue, // queue
		"",      // consumer
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return errors.Wrap(err, "registering consumer")
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.consume(ctx, msgs)
	}()
	c.logger.Info("structure change consumer started on queue: " + c.queue)
	return nil
}

func (c *Consumer) consume(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			c.deliver(ctx, msg)
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, msg amqp.Delivery) {
	requeue, err := c.Handle(ctx, msg.Body)
	if err == nil {
		_ = msg.Ack(false)
		return
	}
	c.logger.Error("handling "+msg.RoutingKey+" message", err)
	_ = msg.Nack(false, requeue)
}

// Handle processes one message body. requeue reports whether a failed message
// may be processed again later.
func (c *Consumer) Handle(ctx context.Context, body []byte) (requeue bool, err error) {
	var evt core.Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return false, errors.Wrap(err, "decoding event")
	}
	if evt.Type != core.EventCourseStructureChanged {
		return false, nil // not ours
	}

	var ids []string
	if evt.CourseID != "" {
		ids = append(ids, evt.CourseID)
	}
	if err := c.invalidator.Invalidate(ctx, ids...); err != nil {
		return core.IsRetryable(err), err
	}
	return false, nil
}

func (c *Consumer) Close() error {
	if !c.enabled {
		return nil
	}

	c.enabled = false
	if err := c.channel.Close(); err != nil {
		c.logger.Warn("closing AMQP channel", err)
	}
	err := c.conn.Close()
	c.wg.Wait()
	return errors.Wrap(err, "closing AMQP connection")
}
