package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/zllovesuki/billing-orchestrator/event"

	extErrors "github.com/pkg/errors"
	"github.com/streadway/amqp"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

var _ event.Producer = &AMQPBroker{}

const (
	sagaEventExchange string = "saga_events"
	contentType              = "application/x-protobuf"
)

// AMQPBroker describes a message broker via RabbitMQ
type AMQPBroker struct {
	connection *amqp.Connection
	channel    *amqp.Channel
}

// NewAMQPBroker returns a Message Broker over RabbitMQ
func NewAMQPBroker(amqpURI string) (*AMQPBroker, error) {
	amqpConn, err := amqp.Dial(amqpURI)
	if err != nil {
		return nil, extErrors.Wrap(err, "Cannot connect to Message Broker")
	}
	amqpChan, err := amqpConn.Channel()
	if err != nil {
		amqpConn.Close()
		return nil, extErrors.Wrap(err, "Cannot create broker channel")
	}
	broker := &AMQPBroker{
		connection: amqpConn,
		channel:    amqpChan,
	}
	if err := broker.setupEventExchange(); err != nil {
		broker.Close()
		return nil, extErrors.Wrap(err, "Cannot declare exchange for saga events")
	}

	return broker, nil
}

func (a *AMQPBroker) setupEventExchange() error {
	return a.channel.ExchangeDeclare(
		sagaEventExchange, // name
		"topic",           // type
		true,              // durable
		false,             // auto-deleted
		false,             // internal
		false,             // no-wait
		nil,               // arguments
	)
}

// Close will close the channel and connection to release resources
func (a *AMQPBroker) Close() {
	a.channel.Close()
	a.connection.Close()
}

// Publish sends e to the saga event exchange, routed by its name
func (a *AMQPBroker) Publish(ctx context.Context, e event.SagaEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := Encode(e)
	if err != nil {
		return extErrors.Wrap(err, "Cannot encode message into bytes")
	}
	if err := a.channel.Publish(
		sagaEventExchange,
		e.Name,
		false,
		false,
		amqp.Publishing{
			ContentType:  contentType,
			DeliveryMode: amqp.Persistent,
			Timestamp:    e.Occurred,
			Body:         body,
		},
	); err != nil {
		return extErrors.Wrap(err, "Cannot publish saga event")
	}
	return nil
}

// Encode serializes e as a protobuf Struct
func Encode(e event.SagaEvent) ([]byte, error) {
	attrs := e.Attributes
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	s, err := structpb.NewStruct(map[string]interface{}{
		"name":       e.Name,
		"entityId":   e.EntityID,
		"occurred":   e.Occurred.UTC().Format(time.RFC3339Nano),
		"attributes": attrs,
	})
	if err != nil {
		return nil, err
	}
	return proto.Marshal(s)
}

// Decode is the inverse of Encode
func Decode(body []byte) (event.SagaEvent, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(body, &s); err != nil {
		return event.SagaEvent{}, extErrors.Wrap(err, "Cannot decode saga event")
	}
	m := s.AsMap()
	e := event.SagaEvent{}
	e.Name, _ = m["name"].(string)
	e.EntityID, _ = m["entityId"].(string)
	if e.Name == "" {
		return event.SagaEvent{}, fmt.Errorf("saga event without name")
	}
	if raw, ok := m["occurred"].(string); ok {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return event.SagaEvent{}, extErrors.Wrap(err, "Cannot parse event time")
		}
		e.Occurred = t
	}
	e.Attributes, _ = m["attributes"].(map[string]interface{})
	if e.Attributes == nil {
		e.Attributes = map[string]interface{}{}
	}
	return e, nil
}
