package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/event-checkin/internal/notify"
)

// Publisher is a notify.Notifier that enqueues confirmations instead of
// sending them.  A Result is Sent once the broker has confirmed the
// persistent message.  Each publish opens its own connection, which keeps
// the publisher free of shared state at the cost of a dial per
// registration.
type Publisher struct {
	url   string
	queue string
	log   *zap.Logger
	now   func() time.Time
}

// NewPublisher returns a publisher for the given broker and queue.
func NewPublisher(url, queue string, log *zap.Logger) *Publisher {
	if queue == "" {
		queue = DefaultQueue
	}
	return &Publisher{url: url, queue: queue, log: log, now: time.Now}
}

// Send implements notify.Notifier.
func (p *Publisher) Send(ctx context.Context, c notify.Confirmation) notify.Result {
	if err := p.publish(ctx, EventFromConfirmation(c, p.now())); err != nil {
		p.log.Warn("publish confirmation failed",
			zap.String("registration_id", c.RegistrationID), zap.Error(err))
		return notify.Failed(err)
	}
	return notify.Result{Sent: true}
}

func (p *Publisher) publish(ctx context.Context, ev RegistrationConfirmedEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("confirm mode: %w", err)
	}

	conf, err := ch.PublishWithDeferredConfirmWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.RegistrationID,
			Timestamp:    ev.ConfirmedAt,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	acked, err := conf.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm: %w", err)
	}
	if !acked {
		return fmt.Errorf("broker nacked message")
	}
	return nil
}
