package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xhad/siphon/internal/models"
	"github.com/xhad/siphon/pkg/metrics"
)

// Publisher pushes job messages onto a durable queue.
type Publisher struct {
	client *Client
	queue  string
}

func NewPublisher(client *Client, queue string) *Publisher {
	return &Publisher{client: client, queue: queue}
}

// Publish declares the queue and sends the job as a persistent message.
// Delivery is fire-and-forget: a nil return means the broker accepted
// the message, not that any worker has processed it.
func (p *Publisher) Publish(ctx context.Context, job models.JobMessage) error {
	body, err := EncodeJob(job)
	if err != nil {
		return err
	}

	ch, err := p.client.Channel()
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrPublish, err)
	}
	if _, err := declareQueue(ch, p.queue); err != nil {
		return fmt.Errorf("%w: declare %s: %v", models.ErrPublish, p.queue, err)
	}

	err = ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrPublish, err)
	}

	metrics.PublishedJobs.Inc()
	slog.Info("Published extraction job", "id", job.ID, "queue", p.queue)
	return nil
}

func declareQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	return ch.QueueDeclare(name, true, false, false, false, nil)
}
