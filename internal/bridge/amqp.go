package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"ispledger/internal/log"
)

// Circuit breaker states
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

// AMQPConfig names the broker and the two queues. Each side publishes to
// the queue the other side consumes.
type AMQPConfig struct {
	URL          string
	Exchange     string
	SendQueue    string
	ReceiveQueue string
}

// AMQPTransport carries bridge messages over a direct exchange with two
// durable queues.
type AMQPTransport struct {
	url          string
	exchangeName string
	sendQueue    string
	recvQueue    string
	log          *log.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	failureCount int64
	state        int32
	lastFailure  time.Time
}

// NewAMQPTransport connects and declares the exchange and both queues.
func NewAMQPTransport(cfg AMQPConfig, logger *log.Logger) (*AMQPTransport, error) {
	if logger == nil {
		logger = log.FromSlog(nil, log.ComponentBridge)
	}
	t := &AMQPTransport{
		url:          cfg.URL,
		exchangeName: cfg.Exchange,
		sendQueue:    cfg.SendQueue,
		recvQueue:    cfg.ReceiveQueue,
		log:          logger,
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.connectLocked(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *AMQPTransport) logger() *log.Logger {
	if t.log == nil {
		return log.FromSlog(nil, log.ComponentBridge)
	}
	return t.log
}

func (t *AMQPTransport) connectLocked() error {
	conn, err := amqp091.Dial(t.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := t.setup(channel); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queues: %w", err)
	}
	t.conn, t.channel = conn, channel
	return nil
}

func (t *AMQPTransport) setup(ch *amqp091.Channel) error {
	err := ch.ExchangeDeclare(
		t.exchangeName, // name
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

	for _, q := range []string{t.sendQueue, t.recvQueue} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
		// routing key is the queue name
		if err := ch.QueueBind(q, q, t.exchangeName, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", q, err)
		}
	}
	return nil
}

// ensureChannel reconnects when the connection was lost.
func (t *AMQPTransport) ensureChannel() (*amqp091.Channel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.channel != nil && !t.channel.IsClosed() {
		return t.channel, nil
	}
	t.closeLocked()
	if err := t.connectLocked(); err != nil {
		return nil, err
	}
	t.logger().Info("Reconnected to AMQP broker", "exchange", t.exchangeName)
	return t.channel, nil
}

func (t *AMQPTransport) Send(ctx context.Context, m Message) error {
	if t.isCircuitOpen() {
		return errors.New("circuit breaker is open, refusing to publish")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := m.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ch, err := t.ensureChannel()
	if err != nil {
		t.recordFailure()
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err = ch.PublishWithContext(ctx,
		t.exchangeName, // exchange
		t.sendQueue,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			MessageId:    m.ID,
			Type:         m.Name(),
			Body:         body,
		},
	)
	if err != nil {
		t.recordFailure()
		if isConnectionError(err) {
			t.reset()
		}
		return fmt.Errorf("publish message: %w", err)
	}
	t.recordSuccess()

	t.logger().DebugContext(ctx, "Published bridge message",
		log.FieldAction, m.Name(),
		log.FieldMessageID, m.ID,
		"queue", t.sendQueue)
	return nil
}

func (t *AMQPTransport) consume() (<-chan amqp091.Delivery, error) {
	ch, err := t.ensureChannel()
	if err != nil {
		return nil, err
	}
	return ch.Consume(
		t.recvQueue, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
}

// Receive consumes the receive queue, reconnecting with exponential backoff
// when the broker goes away.
func (t *AMQPTransport) Receive(ctx context.Context) (<-chan Message, error) {
	deliveries, err := t.consume()
	if err != nil {
		return nil, fmt.Errorf("start consuming: %w", err)
	}
	t.logger().InfoContext(ctx, "Started consuming bridge messages", "queue", t.recvQueue)

	out := make(chan Message)
	go func() {
		defer close(out)
		attempt := 0
		for {
			if deliveries == nil {
				select {
				case <-ctx.Done():
					return
				case <-time.After(exponentialBackoff(attempt)):
				}
				attempt++
				d, err := t.consume()
				if err != nil {
					t.logger().WarnContext(ctx, "Reconnect failed", log.FieldError, err, "attempt", attempt)
					continue
				}
				deliveries, attempt = d, 0
			}

			select {
			case <-ctx.Done():
				t.logger().InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
				return
			case d, ok := <-deliveries:
				if !ok {
					t.logger().WarnContext(ctx, "Delivery channel closed, reconnecting")
					t.reset()
					deliveries = nil
					continue
				}
				if !t.deliver(ctx, d, out) {
					return
				}
			}
		}
	}()
	return out, nil
}

func (t *AMQPTransport) deliver(ctx context.Context, d amqp091.Delivery, out chan<- Message) bool {
	m, err := MessageFromJSON(d.Body)
	if err != nil {
		t.logger().ErrorContext(ctx, "Failed to unmarshal message", log.FieldError, err)
		d.Nack(false, false) // reject and don't requeue
		return true
	}
	select {
	case out <- m:
		d.Ack(false)
		return true
	case <-ctx.Done():
		d.Nack(false, true)
		return false
	}
}

func (t *AMQPTransport) reset() {
	t.mu.Lock()
	t.closeLocked()
	t.mu.Unlock()
}

func (t *AMQPTransport) closeLocked() {
	if t.channel != nil {
		t.channel.Close()
		t.channel = nil
	}
	if t.conn != nil {
		t.conn.Close()
		t.conn = nil
	}
}

func (t *AMQPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var err error
	if t.channel != nil {
		t.channel.Close()
		t.channel = nil
	}
	if t.conn != nil {
		err = t.conn.Close()
		t.conn = nil
	}
	return err
}

func (t *AMQPTransport) isCircuitOpen() bool {
	if atomic.LoadInt32(&t.state) != StateOpen {
		return false
	}
	t.mu.Lock()
	last := t.lastFailure
	t.mu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&t.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (t *AMQPTransport) recordFailure() {
	n := atomic.AddInt64(&t.failureCount, 1)
	t.mu.Lock()
	t.lastFailure = time.Now()
	t.mu.Unlock()
	if n >= maxFailures || atomic.LoadInt32(&t.state) == StateHalfOpen {
		if atomic.SwapInt32(&t.state, StateOpen) != StateOpen {
			t.logger().Warn("Circuit breaker opened", "failures", n)
		}
	}
}

func (t *AMQPTransport) recordSuccess() {
	atomic.StoreInt64(&t.failureCount, 0)
	atomic.StoreInt32(&t.state, StateClosed)
}

// exponentialBackoff doubles from one second up to maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	return min(d, maxBackoff)
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "closed network"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
