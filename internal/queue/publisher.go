package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/mahirjain10/texture-workers/internal/utils"
)

// Publisher sends JSON messages over a lazily (re)opened channel. amqp
// channels are not safe for concurrent publishing, so calls are serialized.
type Publisher struct {
	mu     sync.Mutex
	url    string
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *zap.Logger
}

func NewPublisher(url string, logger *zap.Logger) *Publisher {
	return &Publisher{url: url, logger: logger}
}

func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	if p.conn == nil || p.conn.IsClosed() {
		conn, err := NewRabbitMQClient(p.url)
		if err != nil {
			return nil, err
		}
		p.conn = conn
	}
	ch, err := NewChannel(p.conn)
	if err != nil {
		return nil, err
	}
	p.ch = ch
	return ch, nil
}

// DeclareQueue makes sure queueName exists before anything is published to it.
func (p *Publisher) DeclareQueue(queueName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channel()
	if err != nil {
		return err
	}
	_, err = NewQueue(ch, queueName)
	return err
}

// PublishJSON publishes message as a persistent JSON delivery.
func (p *Publisher) PublishJSON(ctx context.Context, exchange string, routingKey string, message any) error {
	body, err := utils.SerializeJSON(message)
	if err != nil {
		return fmt.Errorf("failed to serialize message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channel()
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx,
		exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	p.logger.Debug("message published", zap.String("exchange", exchange), zap.String("routingKey", routingKey))
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}
