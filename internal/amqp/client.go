package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Circuit breaker states for the publish path.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	// maxFailures consecutive connection failures open the circuit.
	maxFailures = 5
	// openTimeout is how long the circuit stays open before the next
	// publish is allowed through as a probe.
	openTimeout = 30 * time.Second
	// maxReconnectAttempts bounds how long a consumer chases a lost broker.
	maxReconnectAttempts = 10
)

// ErrCircuitOpen is returned by publish calls while the circuit breaker is
// open. Callers treat it as a soft failure and keep going without the queue.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	url          string
	exchangeName string
	queueName    string

	// Circuit breaker state. failureCount and state are accessed
	// atomically; lastFailure is only touched from the publish path.
	failureCount int64
	state        int32
	lastFailure  time.Time
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	// Declare exchange
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	// Declare queue
	_, err = c.channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// Bind queue to exchange
	err = c.channel.QueueBind(
		c.queueName,    // queue name
		c.queueName,    // routing key (same as queue name for direct exchange)
		c.exchangeName, // exchange
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// PublishRetrainRequest publishes a retrain request for the worker to pick up
func (c *Client) PublishRetrainRequest(ctx context.Context, datasetID, datasetName string, labeled int, trigger string) error {
	if c.isCircuitOpen() {
		return fmt.Errorf("publish retrain request: %w", ErrCircuitOpen)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := NewRetrainRequest(datasetID, datasetName, labeled, trigger)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent, // survive broker restarts
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		if isConnectionError(err) {
			c.recordFailure()
		}
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()

	slog.InfoContext(ctx, "Published retrain request",
		"dataset_id", datasetID,
		"dataset_name", datasetName,
		"trigger", trigger,
		"exchange", c.exchangeName,
		"queue", c.queueName)

	return nil
}

// ConsumeRetrainRequests delivers retrain requests to handler until ctx is
// cancelled. Handler errors reject the delivery back onto the queue; a lost
// broker connection is re-established with exponential backoff.
func (c *Client) ConsumeRetrainRequests(ctx context.Context, handler func(context.Context, *RetrainRequest) error) error {
	for {
		msgs, err := c.channel.Consume(
			c.queueName, // queue
			"",          // consumer
			false,       // auto-ack (we want manual ack)
			false,       // exclusive
			false,       // no-local
			false,       // no-wait
			nil,         // args
		)
		if err != nil {
			return fmt.Errorf("start consuming: %w", err)
		}

		slog.InfoContext(ctx, "Started consuming retrain requests", "queue", c.queueName)

	recv:
		for {
			select {
			case <-ctx.Done():
				slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
				return ctx.Err()
			case delivery, ok := <-msgs:
				if !ok {
					break recv
				}

				msg, err := RetrainRequestFromJSON(delivery.Body)
				if err != nil {
					slog.ErrorContext(ctx, "Failed to unmarshal retrain request", "error", err)
					delivery.Nack(false, false) // reject and don't requeue
					continue
				}

				slog.InfoContext(ctx, "Processing retrain request",
					"dataset_id", msg.DatasetID,
					"trigger", msg.Trigger)

				if err := handler(ctx, msg); err != nil {
					slog.ErrorContext(ctx, "Failed to handle retrain request",
						"error", err,
						"dataset_id", msg.DatasetID,
						"trigger", msg.Trigger)
					delivery.Nack(false, true) // reject and requeue
					continue
				}

				delivery.Ack(false) // acknowledge successful processing
				slog.InfoContext(ctx, "Retrain request processed",
					"dataset_id", msg.DatasetID,
					"trigger", msg.Trigger)
			}
		}

		// The delivery channel closed underneath us, which means the broker
		// connection dropped. Re-establish it and resume consuming.
		slog.WarnContext(ctx, "Delivery channel closed, reconnecting", "queue", c.queueName)
		if err := c.reconnect(ctx); err != nil {
			return fmt.Errorf("reconnect: %w", err)
		}
	}
}

func (c *Client) reconnect(ctx context.Context) error {
	c.closeQuietly()

	var lastErr error
	for attempt := 0; attempt < maxReconnectAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(exponentialBackoff(attempt)):
		}

		conn, err := amqp091.Dial(c.url)
		if err != nil {
			lastErr = err
			slog.WarnContext(ctx, "Reconnect attempt failed",
				"attempt", attempt+1,
				"error", err)
			continue
		}
		channel, err := conn.Channel()
		if err != nil {
			conn.Close()
			lastErr = err
			continue
		}

		c.conn = conn
		c.channel = channel
		if err := c.setup(); err != nil {
			c.closeQuietly()
			lastErr = err
			continue
		}

		c.recordSuccess()
		slog.InfoContext(ctx, "Reconnected to broker", "attempt", attempt+1)
		return nil
	}
	return fmt.Errorf("gave up after %d attempts: %w", maxReconnectAttempts, lastErr)
}

func (c *Client) closeQuietly() {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	if time.Since(c.lastFailure) > openTimeout {
		atomic.StoreInt32(&c.state, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	c.lastFailure = time.Now()
	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

// exponentialBackoff returns the wait before the given retry attempt,
// starting at one second and doubling up to a 30 second cap.
func exponentialBackoff(attempt int) time.Duration {
	wait := time.Second << attempt
	if wait <= 0 || wait > 30*time.Second {
		wait = 30 * time.Second
	}
	return wait
}

// isConnectionError reports whether err looks like a broken broker
// connection rather than a protocol or validation problem.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := err.Error()
	for _, s := range []string{
		"connection refused",
		"connection closed",
		"connection reset",
		"broken pipe",
		"EOF",
		"use of closed network connection",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
