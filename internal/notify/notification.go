package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/smartpay-gateway/internal/signing"
)

// Field is one received key/value pair.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Notification is a verified SmartPay callback.
type Notification struct {
	// ID is derived from the raw body so redeliveries share it.
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"received_at"`
	Fields     []Field   `json:"fields"`
}

// NewNotification captures fields received in body.
func NewNotification(body []byte, fields signing.Fields, receivedAt time.Time) Notification {
	n := Notification{
		ID:         uuid.NewSHA1(uuid.NameSpaceURL, body).String(),
		ReceivedAt: receivedAt.UTC(),
		Fields:     make([]Field, 0, fields.Len()),
	}
	for _, key := range fields.Keys() {
		n.Fields = append(n.Fields, Field{Key: key, Value: fields.Value(key)})
	}
	return n
}

// Get returns the value of key.
func (n Notification) Get(key string) (string, bool) {
	for _, f := range n.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// SigningFields rebuilds the ordered field set, e.g. to re-verify in the worker.
func (n Notification) SigningFields() signing.Fields {
	var fields signing.Fields
	for _, f := range n.Fields {
		fields.Set(f.Key, f.Value)
	}
	return fields
}

// Dispatcher hands a verified notification to downstream processing.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, n Notification) error

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, n Notification) error {
	return f(ctx, n)
}
