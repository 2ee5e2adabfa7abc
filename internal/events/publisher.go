// Package events publishes click events to RabbitMQ for downstream
// analytics consumers. Publishing is best effort: the synchronous database
// update owns correctness, so a broker outage must never fail a redirect.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"
)

// Exchange and routing key for click events.
const (
	ClickExchange   = "linklet.clicks"
	ClickRoutingKey = "click.recorded"
)

// ClickEvent is the payload published after each committed redirect.
type ClickEvent struct {
	ShortID    string    `json:"short_id"`
	Referrer   string    `json:"referrer"`
	OccurredAt time.Time `json:"occurred_at"`
}

// ClickPublisher emits click events after a redirect has been recorded.
type ClickPublisher interface {
	PublishClick(ctx context.Context, event ClickEvent) error
}

// NopPublisher discards events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishClick(ctx context.Context, event ClickEvent) error {
	return nil
}

// amqpChannel is the slice of *amqp.Channel the publisher needs, kept as an
// interface so tests can stand in a fake.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher sends click events through an AMQP channel behind a circuit
// breaker. When the broker misbehaves the breaker opens and events are
// dropped cheaply instead of stalling redirects on a dead connection.
type Publisher struct {
	ch      amqpChannel
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewPublisher declares the click exchange on conn and returns a publisher
// bound to a dedicated channel.
func NewPublisher(conn *amqp.Connection, logger *slog.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	err = ch.ExchangeDeclare(ClickExchange, "topic", true, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, err
	}

	return newPublisher(ch, logger), nil
}

func newPublisher(ch amqpChannel, logger *slog.Logger) *Publisher {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "click-publisher",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("click publisher breaker state change",
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})

	return &Publisher{ch: ch, breaker: breaker, logger: logger}
}

// PublishClick emits one event. Failures are logged and returned, but
// callers are expected to ignore them.
func (p *Publisher) PublishClick(ctx context.Context, event ClickEvent) error {
	_, err := p.breaker.Execute(func() (any, error) {
		body, err := json.Marshal(event)
		if err != nil {
			return nil, err
		}
		return nil, p.ch.PublishWithContext(ctx, ClickExchange, ClickRoutingKey, false, false, amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   event.OccurredAt,
			Body:        body,
		})
	})
	if err != nil {
		p.logger.WarnContext(ctx, "failed to publish click event",
			slog.String("short_id", event.ShortID),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}
