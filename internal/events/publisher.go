// Package events publishes message lifecycle events to an external bus after
// the owning transaction commits. Delivery is best effort.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cuihairu/govmsg/internal/ports"
)

// Event describes one committed lifecycle operation.
type Event struct {
	Type      string       `json:"type"`
	MessageID uint         `json:"message_id"`
	Number    string       `json:"number,omitempty"`
	From      ports.Status `json:"from,omitempty"`
	To        ports.Status `json:"to,omitempty"`
	ActorID   uint         `json:"actor_id"`
	ActorRole string       `json:"actor_role"`
	At        time.Time    `json:"at"`
}

// Publisher is implemented by Kafka, Redis Streams and the no-op sink.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

// encode renders the event body shared by every driver.
func encode(evt Event) ([]byte, error) { return json.Marshal(evt) }

const publishTimeout = 2 * time.Second
