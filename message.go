package agentmesh

import (
	"time"

	"github.com/google/uuid"
)

// MessageType classifies a message envelope.
// Use the exported constants instead of raw strings to avoid typos.
type MessageType string

const (
	// TypeEvent is a fire-and-forget notification.
	TypeEvent MessageType = "event"
	// TypeRequest expects a correlated response.
	TypeRequest MessageType = "request"
	// TypeResponse resolves a pending request by correlation id.
	TypeResponse MessageType = "response"
)

// String returns the raw string value of the message type.
func (t MessageType) String() string { return string(t) }

// ParseMessageType converts a string into a MessageType, returning false for unknown values.
func ParseMessageType(s string) (MessageType, bool) {
	switch s {
	case string(TypeEvent):
		return TypeEvent, true
	case string(TypeRequest):
		return TypeRequest, true
	case string(TypeResponse):
		return TypeResponse, true
	default:
		return "", false
	}
}

// Message is an immutable envelope carried by the bus. It is never mutated
// after publish; the transport garbage-collects copies after delivery.
type Message struct {
	// ID is the unique identifier for the message.
	ID string `json:"id"`
	// CorrelationID links a request to its response; empty for fire-and-forget.
	CorrelationID string `json:"correlation_id,omitempty"`
	// Topic is the hierarchical dot-separated topic name, e.g. "events.user.created".
	Topic string `json:"topic"`
	// Source identifies the publisher.
	Source string `json:"source,omitempty"`
	// Destination is a concrete target or "*" for any subscriber.
	Destination string `json:"destination,omitempty"`
	// Type classifies the envelope: event, request or response.
	Type MessageType `json:"type"`
	// Priority orders delivery hints; higher is more urgent.
	Priority int `json:"priority,omitempty"`
	// Headers carry transport-agnostic string metadata.
	Headers map[string]string `json:"headers,omitempty"`
	// Payload is the opaque message body.
	Payload []byte `json:"payload,omitempty"`
	// Timestamp is the publish time in ms.
	Timestamp int64 `json:"timestamp"`
	// Metadata carries application metadata not interpreted by the bus.
	Metadata map[string]string `json:"metadata,omitempty"`
	// ReplyTo is the topic responses should be published on; set by Request.
	ReplyTo string `json:"reply_to,omitempty"`
}

// NewMessage builds an event message for the given topic with generated id and timestamp.
func NewMessage(topic string, payload []byte) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Topic:     topic,
		Type:      TypeEvent,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}
