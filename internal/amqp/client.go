// Package amqp carries expense events and ingestion requests over RabbitMQ.
//
// The Client declares one durable direct exchange with two queues bound by
// their own names: expense events (published by the API) and raw text to
// ingest (consumed by the worker). Publishing goes through a small circuit
// breaker so a broker outage does not stall request handlers; consumers
// reconnect with exponential backoff.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"moneytrack/internal/log"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	maxBackoff     = 30 * time.Second
	publishTimeout = 5 * time.Second
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type Config struct {
	URL         string
	Exchange    string
	EventsQueue string
	IngestQueue string
	// Prefetch bounds unacknowledged deliveries per consumer. Zero means 10.
	Prefetch int
}

type Client struct {
	cfg    Config
	logger *log.Logger

	mu    sync.Mutex // guards conn and pubCh
	conn  *amqp091.Connection
	pubCh *amqp091.Channel

	state        int32
	failureCount int64
	lastFailure  atomic.Int64 // unix nanoseconds
}

// NewClient connects and declares the topology. The connection is re-dialed
// lazily if it drops later.
func NewClient(cfg Config, logger *log.Logger) (*Client, error) {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 10
	}
	c := &Client{cfg: cfg, logger: logger.WithComponent(log.ComponentAMQP)}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connectLocked() error {
	conn, err := amqp091.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := c.declare(ch); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queues: %w", err)
	}

	c.conn, c.pubCh = conn, ch
	c.logger.Info("Connected to broker", "exchange", c.cfg.Exchange,
		"events_queue", c.cfg.EventsQueue, "ingest_queue", c.cfg.IngestQueue)
	return nil
}

func (c *Client) declare(ch *amqp091.Channel) error {
	if err := ch.ExchangeDeclare(
		c.cfg.Exchange, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, q := range []string{c.cfg.EventsQueue, c.cfg.IngestQueue} {
		if q == "" {
			continue
		}
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
		// Routing key equals the queue name on the direct exchange.
		if err := ch.QueueBind(q, q, c.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", q, err)
		}
	}
	return nil
}

// publishChannel returns a live publishing channel, reconnecting if needed.
func (c *Client) publishChannel() (*amqp091.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && !c.conn.IsClosed() && c.pubCh != nil && !c.pubCh.IsClosed() {
		return c.pubCh, nil
	}
	c.closeLocked()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	return c.pubCh, nil
}

// PublishExpenseEvent routes ev to the events queue.
func (c *Client) PublishExpenseEvent(ctx context.Context, ev ExpenseEvent) error {
	if err := c.publish(ctx, c.cfg.EventsQueue, ev); err != nil {
		return err
	}
	c.logger.DebugContext(ctx, "Published expense event",
		log.FieldEventType, ev.Type, log.FieldExpenseID, ev.ExpenseID, log.FieldUserID, ev.UserID)
	return nil
}

// PublishIngest routes msg to the ingest queue.
func (c *Client) PublishIngest(ctx context.Context, msg IngestMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	return c.publish(ctx, c.cfg.IngestQueue, msg)
}

func (c *Client) publish(ctx context.Context, routingKey string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return fmt.Errorf("publish to %s: %w", routingKey, ErrCircuitOpen)
	}

	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ch, err := c.publishChannel()
	if err != nil {
		c.recordFailure()
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	c.mu.Lock()
	err = ch.PublishWithContext(ctx,
		c.cfg.Exchange, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		})
	c.mu.Unlock()
	if err != nil {
		c.recordFailure()
		if isConnectionError(err) {
			c.mu.Lock()
			c.closeLocked()
			c.mu.Unlock()
		}
		return fmt.Errorf("publish message: %w", err)
	}

	c.recordSuccess()
	return nil
}

// ConsumeExpenseEvents blocks, feeding decoded events to handle, until ctx is
// cancelled.
func (c *Client) ConsumeExpenseEvents(ctx context.Context, handle func(context.Context, ExpenseEvent) error) error {
	return c.consume(ctx, c.cfg.EventsQueue, func(ctx context.Context, body []byte) error {
		ev, err := DecodeExpenseEvent(body)
		if err != nil {
			return err
		}
		return handle(ctx, ev)
	})
}

// ConsumeIngest blocks, feeding decoded ingest requests to handle, until ctx
// is cancelled.
func (c *Client) ConsumeIngest(ctx context.Context, handle func(context.Context, IngestMessage) error) error {
	return c.consume(ctx, c.cfg.IngestQueue, func(ctx context.Context, body []byte) error {
		msg, err := DecodeIngestMessage(body)
		if err != nil {
			return err
		}
		return handle(ctx, msg)
	})
}

func (c *Client) consume(ctx context.Context, queue string, handle func(context.Context, []byte) error) error {
	logger := c.logger.With(log.FieldQueue, queue)
	for attempt := 0; ; attempt++ {
		started, err := c.consumeOnce(ctx, queue, handle, logger)
		if ctx.Err() != nil {
			logger.Info("Stopping message consumption", "reason", ctx.Err())
			return nil
		}
		if started {
			attempt = 0
		}

		wait := exponentialBackoff(attempt)
		logger.Warn("Consumer interrupted, reconnecting", log.FieldError, err, "backoff", wait)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil
		}
	}
}

// consumeOnce runs a single consumer session on its own channel. started
// reports whether deliveries were flowing before it ended.
func (c *Client) consumeOnce(ctx context.Context, queue string, handle func(context.Context, []byte) error, logger *log.Logger) (started bool, err error) {
	c.mu.Lock()
	if c.conn == nil || c.conn.IsClosed() {
		c.closeLocked()
		if err := c.connectLocked(); err != nil {
			c.mu.Unlock()
			return false, err
		}
	}
	conn := c.conn
	c.mu.Unlock()

	ch, err := conn.Channel()
	if err != nil {
		return false, fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return false, fmt.Errorf("set prefetch: %w", err)
	}

	deliveries, err := ch.Consume(
		queue, // queue
		"",    // consumer
		false, // auto-ack (we want manual ack)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return false, fmt.Errorf("start consuming: %w", err)
	}
	logger.Info("Started consuming")

	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return true, errors.New("delivery channel closed")
			}
			outcome := dispatch(ctx, d, d.Body, handle)
			if outcome.err != nil {
				logger.WarnContext(ctx, "Message not processed",
					"outcome", outcome.name, log.FieldError, outcome.err)
			}
		}
	}
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

type outcome struct {
	name string
	err  error
}

// dispatch runs handle and settles the delivery: ack on success, drop
// malformed messages, requeue anything else.
func dispatch(ctx context.Context, d acknowledger, body []byte, handle func(context.Context, []byte) error) outcome {
	err := handle(ctx, body)
	switch {
	case err == nil:
		_ = d.Ack(false)
		return outcome{name: "ack"}
	case errors.Is(err, ErrMalformed):
		_ = d.Nack(false, false)
		return outcome{name: "dropped", err: err}
	default:
		_ = d.Nack(false, true)
		return outcome{name: "requeued", err: err}
	}
}

func (c *Client) isCircuitOpen() bool {
	switch atomic.LoadInt32(&c.state) {
	case StateOpen:
		since := time.Since(time.Unix(0, c.lastFailure.Load()))
		if since > openTimeout && atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen) {
			c.logger.Info("Circuit breaker half-open, allowing a probe")
			return false
		}
		return atomic.LoadInt32(&c.state) == StateOpen
	default:
		return false
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	c.lastFailure.Store(time.Now().UnixNano())
	n := atomic.AddInt64(&c.failureCount, 1)
	if n >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		if atomic.SwapInt32(&c.state, StateOpen) != StateOpen {
			c.logger.Warn("Circuit breaker opened", "failures", n)
		}
	}
}

// exponentialBackoff returns 1s, 2s, 4s ... capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "channel/connection is not open"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) closeLocked() {
	if c.pubCh != nil {
		c.pubCh.Close()
		c.pubCh = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}
