// Package message defines the in-flight message, its headers, and the
// persisted record form a backend stores.
package message

import (
	"bytes"
	"maps"

	"github.com/google/uuid"
)

// Message is one in-flight message. Its ID is assigned by the producer before
// the message reaches a store and never changes afterwards.
type Message struct {
	ID            uuid.UUID `json:"id"`
	Payload       []byte    `json:"payload"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Headers       Headers   `json:"headers"`
}

// Option configures a Message built with New.
type Option func(*Message)

// WithID sets the message ID instead of generating one.
func WithID(id uuid.UUID) Option {
	return func(m *Message) { m.ID = id }
}

// WithCorrelationID sets the correlation ID.
func WithCorrelationID(correlationID string) Option {
	return func(m *Message) { m.CorrelationID = correlationID }
}

// WithHeader sets a caller-supplied header. Reserved keys are ignored.
func WithHeader(key string, value any) Option {
	return func(m *Message) { m.Headers.Set(key, value) }
}

// New builds a message with a fresh random ID.
func New(payload []byte, opts ...Option) *Message {
	m := &Message{
		ID:      uuid.New(),
		Payload: payload,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Clone returns a deep copy of m. Header values are copied shallowly.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	c := *m
	if m.Payload != nil {
		c.Payload = bytes.Clone(m.Payload)
	}
	c.Headers.Values = maps.Clone(m.Headers.Values)
	return &c
}

// Derive returns a copy of m carrying the same ID, with opts applied.
// It is the usual way to change a stored message before re-adding it.
func (m *Message) Derive(opts ...Option) *Message {
	c := m.Clone()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsSaved reports whether the message carries store-stamped headers.
func (m *Message) IsSaved() bool {
	return m != nil && m.Headers.Saved
}

// SameContent reports whether a and b carry identical content, ignoring the
// store-reserved headers.
func SameContent(a, b *Message) bool {
	if a == nil || b == nil {
		return a == b
	}
	fa, err := Fingerprint(a)
	if err != nil {
		return false
	}
	fb, err := Fingerprint(b)
	if err != nil {
		return false
	}
	return fa == fb
}
