// Package rabbitmq публикует события пайплайна для внешних потребителей
// (почтовые уведомления, аналитика). Публикация — best effort: её отказ
// не влияет на исход самого пайплайна.
package rabbitmq

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/wanderplan/entitlements/internal/models"
)

const routingKeyGranted = "entitlement.granted"

// Connect устанавливает соединение с RabbitMQ с повторами.
func Connect(connection string, retries int, delay time.Duration) (*amqp.Connection, error) {
	const op = "rabbitmq.Connect"
	var conn *amqp.Connection
	var err error

	for range retries {
		conn, err = amqp.Dial(connection)
		if err == nil {
			return conn, nil
		}
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("%s: %w", op, err)
}

// EventPublisher публикует события entitlement-пайплайна в exchange.
type EventPublisher struct {
	ch       *amqp.Channel
	exchange string
}

// NewEventPublisher объявляет exchange и возвращает публикатор.
func NewEventPublisher(conn *amqp.Connection, exchange string) (*EventPublisher, error) {
	const op = "rabbitmq.NewEventPublisher"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &EventPublisher{ch: ch, exchange: exchange}, nil
}

// PublishGranted публикует событие о сохранённой entitlement-записи.
func (p *EventPublisher) PublishGranted(rec models.EntitlementRecord) error {
	const op = "rabbitmq.PublishGranted"

	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = p.ch.Publish(
		p.exchange,
		routingKeyGranted,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now(),
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
