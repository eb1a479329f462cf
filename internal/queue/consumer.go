package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/event-checkin/internal/notify"
	"github.com/iliyamo/event-checkin/internal/qrcode"
)

const maxBackoff = 30 * time.Second

// errMalformed marks messages that can never succeed and are dropped.
var errMalformed = errors.New("malformed message")

// Consumer delivers queued confirmations through a Notifier, normally the
// SMTP mailer.
type Consumer struct {
	url      string
	queue    string
	notifier notify.Notifier
	log      *zap.Logger
	timeout  time.Duration
}

// NewConsumer returns a consumer for queue on the broker at url.  timeout
// bounds every single delivery.
func NewConsumer(url, queue string, n notify.Notifier, timeout time.Duration, log *zap.Logger) *Consumer {
	if queue == "" {
		queue = DefaultQueue
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Consumer{url: url, queue: queue, notifier: n, log: log, timeout: timeout}
}

// Run connects to the broker and consumes until ctx is cancelled.  Broken
// connections are re-dialed with exponential backoff.  Run returns nil
// once ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("confirmation consumer: dial failed",
				zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return nil
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn("confirmation consumer: loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		c.log.Warn("confirmation consumer: set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.dispatch(ctx, d)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery) {
	err := c.handle(ctx, d.Body)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, errMalformed):
		c.log.Error("confirmation consumer: dropping message", zap.Error(err))
		_ = d.Nack(false, false)
	default:
		// One retry through the broker, then give up.
		requeue := !d.Redelivered
		c.log.Warn("confirmation consumer: delivery failed",
			zap.Error(err), zap.Bool("requeue", requeue))
		_ = d.Nack(false, requeue)
	}
}

// handle decodes one message, renders the QR code and sends the mail.
func (c *Consumer) handle(ctx context.Context, body []byte) error {
	var ev RegistrationConfirmedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if ev.Recipient == "" || ev.Token == "" {
		return fmt.Errorf("%w: recipient and token are required", errMalformed)
	}

	conf := ev.Confirmation()
	png, err := qrcode.Encode(ev.Token)
	if err != nil {
		c.log.Warn("confirmation consumer: qr render failed",
			zap.String("registration_id", ev.RegistrationID), zap.Error(err))
	}
	conf.QRCode = png

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if res := c.notifier.Send(ctx, conf); !res.Sent {
		return errors.New(res.Reason)
	}
	c.log.Info("confirmation delivered",
		zap.String("registration_id", ev.RegistrationID), zap.String("event_id", ev.EventID))
	return nil
}
