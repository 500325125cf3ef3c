package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xhad/siphon/internal/models"
	"github.com/xhad/siphon/pkg/metrics"
)

// retriesHeader carries the requeue count across redeliveries. The
// broker's own redelivered flag is a bool and cannot count attempts.
const retriesHeader = "x-retries"

// Handler processes one decoded job.
type Handler func(ctx context.Context, job models.JobMessage) error

// republisher is the slice of the AMQP channel the consumer needs to
// put a failed delivery back on the queue.
type republisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

var _ republisher = (*amqp.Channel)(nil)

// ConsumerConfig holds queue consumption settings.
type ConsumerConfig struct {
	Queue         string
	Prefetch      int
	Policy        AckPolicy
	ReconnectWait time.Duration
}

// Consumer pulls jobs off the queue one at a time, runs each through a
// handler, and settles the delivery per its ack policy.
type Consumer struct {
	client  *Client
	config  ConsumerConfig
	handler Handler
}

func NewConsumer(client *Client, config ConsumerConfig, handler Handler) *Consumer {
	if config.Prefetch == 0 {
		config.Prefetch = 1
	}
	if config.Policy == nil {
		config.Policy = AckOnSuccess{RequeueLimit: 3}
	}
	if config.ReconnectWait == 0 {
		config.ReconnectWait = 5 * time.Second
	}

	return &Consumer{client: client, config: config, handler: handler}
}

// Run consumes until ctx is cancelled, re-subscribing whenever the
// broker drops the connection or channel.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		err := c.subscribe(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			slog.Error("Consume loop ended, retrying", "error", err, "wait", c.config.ReconnectWait)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.config.ReconnectWait):
		}
	}
}

func (c *Consumer) subscribe(ctx context.Context) error {
	ch, err := c.client.Channel()
	if err != nil {
		return err
	}
	if _, err := declareQueue(ch, c.config.Queue); err != nil {
		return fmt.Errorf("%w: declare %s: %v", models.ErrConnection, c.config.Queue, err)
	}
	if err := ch.Qos(c.config.Prefetch, 0, false); err != nil {
		return fmt.Errorf("%w: set qos: %v", models.ErrConnection, err)
	}

	deliveries, err := ch.Consume(c.config.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%w: consume %s: %v", models.ErrConnection, c.config.Queue, err)
	}

	slog.Info("Waiting for extraction jobs", "queue", c.config.Queue, "policy", c.config.Policy.Name())
	return c.consume(ctx, ch, deliveries)
}

// consume drains the delivery channel until it closes or ctx ends.
// Deliveries are handled strictly one at a time; prefetch keeps the
// broker from sending more while one is in flight.
func (c *Consumer) consume(ctx context.Context, pub republisher, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			// Shutdown stops the receive loop, not the job already in
			// hand: the delivery runs on a detached context so the
			// handler's own timeout is the only bound on in-flight work.
			c.handleDelivery(context.WithoutCancel(ctx), pub, d)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, pub republisher, d amqp.Delivery) {
	if d.Acknowledger == nil {
		return
	}

	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()
	start := time.Now()

	job, err := DecodeJob(d.Body)
	if err != nil {
		// Poison payloads are dropped; requeueing can never fix them.
		slog.Error("Discarding undecodable message", "error", err)
		metrics.MessagesConsumed.WithLabelValues("decode_error").Inc()
		c.ack(d)
		return
	}

	slog.Info("Processing extraction job", "id", job.ID, "url", job.URL)
	handlerErr := c.handler(ctx, job)
	metrics.JobDuration.Observe(time.Since(start).Seconds())

	attempts := retryCount(d.Headers)
	switch c.config.Policy.Decide(handlerErr, attempts) {
	case DecisionRequeue:
		slog.Warn("Requeueing failed job", "id", job.ID, "attempts", attempts, "error", handlerErr)
		metrics.MessagesConsumed.WithLabelValues("requeued").Inc()
		c.requeue(ctx, pub, d, attempts)
	case DecisionDrop:
		slog.Error("Dropping job after repeated failures", "id", job.ID, "attempts", attempts, "error", handlerErr)
		metrics.MessagesConsumed.WithLabelValues("dropped").Inc()
		c.ack(d)
	default:
		if handlerErr != nil {
			slog.Error("Extraction job failed", "id", job.ID, "error", handlerErr)
			metrics.MessagesConsumed.WithLabelValues("error").Inc()
		} else {
			metrics.MessagesConsumed.WithLabelValues("ok").Inc()
		}
		c.ack(d)
	}
}

// requeue publishes a copy of the delivery with a bumped retry header,
// then acks the original. Falls back to a broker-side nack with requeue
// when the republish itself fails.
func (c *Consumer) requeue(ctx context.Context, pub republisher, d amqp.Delivery, attempts int) {
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers[retriesHeader] = int32(attempts + 1)

	err := pub.PublishWithContext(ctx, "", c.config.Queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Timestamp:    time.Now(),
		Headers:      headers,
		Body:         d.Body,
	})
	if err != nil {
		slog.Error("Failed to republish, falling back to nack", "error", err)
		if nackErr := d.Nack(false, true); nackErr != nil {
			slog.Error("Failed to nack delivery", "error", nackErr)
		}
		return
	}

	c.ack(d)
}

func (c *Consumer) ack(d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		slog.Error("Failed to ack delivery", "error", err)
	}
}

// retryCount reads the requeue counter from message headers. AMQP
// clients disagree on integer widths, so accept the common ones.
func retryCount(headers amqp.Table) int {
	v, ok := headers[retriesHeader]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int32:
		return int(n)
	case int64:
		return int(n)
	case int:
		return n
	}
	return 0
}
