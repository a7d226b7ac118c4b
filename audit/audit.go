// Package audit is the append-only publish event trail. Events are immutable
// once written; the pipeline is the sole writer.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventDownload  EventType = "DOWNLOAD"
	EventPoke      EventType = "POKE"
	EventVerify    EventType = "VERIFY"
	EventFailure   EventType = "FAILURE"
	EventSuccess   EventType = "SUCCESS"
	EventUploadZip EventType = "UPLOAD_ZIP"
	EventError     EventType = "ERROR"
)

type Event struct {
	ID        string    `json:"id"`
	RequestID string    `json:"requestId"`
	Type      EventType `json:"eventType"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message,omitempty"`
}

type Store interface {
	Append(ctx context.Context, evt *Event) error
	ListByRequest(ctx context.Context, requestID string) ([]Event, error)
}

// Trail scopes event emission to one request.
type Trail struct {
	RequestID string
	store     Store
}

func NewTrail(store Store, requestID string) *Trail {
	return &Trail{RequestID: requestID, store: store}
}

func (t *Trail) Emit(ctx context.Context, eventType EventType, message string) error {
	return t.store.Append(ctx, &Event{
		ID:        uuid.New().String(),
		RequestID: t.RequestID,
		Type:      eventType,
		Timestamp: time.Now(),
		Message:   message,
	})
}
