package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"parking-booking-backend/config"
)

const commandTimeout = 5 * time.Second

// Consumer reads commands from a durable queue and replies on each
// delivery's ReplyTo queue.
type Consumer struct {
	cfg     config.MQConfig
	handler *Handler
}

func NewConsumer(cfg config.MQConfig, handler *Handler) *Consumer {
	return &Consumer{cfg: cfg, handler: handler}
}

// Run consumes until ctx is cancelled or the connection drops. In-flight
// commands are allowed to finish before it returns.
func (c *Consumer) Run(ctx context.Context) error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(
		c.cfg.Queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", c.cfg.Queue, err)
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	msgs, err := ch.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	log.Printf("MQ consumer listening on queue %s with %d workers", c.cfg.Queue, c.cfg.Concurrency)

	var wg sync.WaitGroup
	defer wg.Wait()

	sem := make(chan struct{}, max(c.cfg.Concurrency, 1))
	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr := <-closed:
			if amqpErr != nil {
				return fmt.Errorf("connection closed: %w", amqpErr)
			}
			return nil
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			sem <- struct{}{}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				c.handleDelivery(ctx, ch, d)
			}()
		}
	}
}

func (c *Consumer) handleDelivery(parent context.Context, ch *amqp.Channel, d amqp.Delivery) {
	// Always ack: a command that failed once will fail the same way again,
	// and the reply already carries the outcome.
	defer func() {
		if err := d.Ack(false); err != nil {
			log.Printf("failed to ack message: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), commandTimeout)
	defer cancel()

	resp := c.handler.Handle(ctx, d.Body)
	if !resp.OK {
		log.Printf("command %s failed: %s (%s)", resp.Type, resp.Error, resp.Code)
	}
	reply(ctx, ch, d, resp)
}

func reply(ctx context.Context, ch *amqp.Channel, d amqp.Delivery, resp Response) {
	if d.ReplyTo == "" {
		return
	}
	body, err := json.Marshal(resp)
	if err != nil {
		log.Printf("failed to marshal response: %v", err)
		return
	}
	err = ch.PublishWithContext(ctx, "", d.ReplyTo, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: d.CorrelationId,
		Body:          body,
	})
	if err != nil {
		log.Printf("failed to publish response: %v", err)
	}
}
