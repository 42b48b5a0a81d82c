package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	natsclient "github.com/paperdesk/be-doc-approvals/internal/platform/nats"
)

// NotificationPublisher publishes approval workflow events to NATS JetStream
// for consumption by the platform notification service.
//
// Subject convention: notifications.docs.<event_type>
// Event types: document_submitted, approval_required, document_approved,
//              document_rejected, document_revision_requested
//
// All publish operations are non-fatal: errors are logged but never
// propagated to the caller, so notification failures never interrupt
// approval operations.
type NotificationPublisher struct {
	nats *natsclient.Client
	log  zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string                 `json:"event_type"`
	ActorID      string                 `json:"actor_id"`
	Recipients   []string               `json:"recipients"`
	ResourceType string                 `json:"resource_type,omitempty"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	IsActionable bool                   `json:"is_actionable,omitempty"`
	Severity     string                 `json:"severity,omitempty"`
	Category     string                 `json:"category,omitempty"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher backed by the given NATS
// client. A nil client disables publishing.
func NewNotificationPublisher(nats *natsclient.Client, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{nats: nats, log: log}
}

// PublishDocumentEvent publishes a document approval event to NATS.
// Subject: notifications.docs.<eventType>
func (p *NotificationPublisher) PublishDocumentEvent(ctx context.Context, eventType, documentID, actorID string, recipients []string, payload map[string]interface{}) {
	if p.nats == nil {
		return
	}
	if len(recipients) == 0 {
		return
	}

	event := &NotificationEvent{
		EventType:    eventType,
		ActorID:      actorID,
		Recipients:   recipients,
		ResourceType: "document",
		ResourceID:   documentID,
		IsActionable: true,
		Severity:     "info",
		Category:     "doc_approval",
		Payload:      payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.docs.%s", eventType)
	if err := p.nats.Publish(ctx, subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("document_id", documentID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("document_id", documentID).
		Int("recipients", len(recipients)).
		Msg("notification: event published")
}
