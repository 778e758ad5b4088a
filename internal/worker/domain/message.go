package domain

import (
	"github.com/cuongbtq/servicefee/internal/audit"
	amqp "github.com/rabbitmq/amqp091-go"
)

// EventMessage is a decoded audit event together with the delivery to settle
type EventMessage struct {
	Event    audit.Event
	Delivery amqp.Delivery
}
