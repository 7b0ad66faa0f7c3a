package messaging

import (
	"context"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Channels used by the booking service.
const (
	ChannelAppointments  = "appointments"
	ChannelNotifications = "notifications"
)

// Message is the envelope published for relayed outbox events.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
