package entity

type EventType uint32

const (
	EventTypeUnknown EventType = iota
	EventTypeDelivered
	EventTypeHardBounce
	EventTypeSoftBounce
	EventTypeComplaint
	EventTypeUnsubscribe
	EventTypeOpen
	EventTypeClick
)

var EventTypes = map[EventType]string{
	EventTypeDelivered:   "delivered",
	EventTypeHardBounce:  "hard_bounce",
	EventTypeSoftBounce:  "soft_bounce",
	EventTypeComplaint:   "complaint",
	EventTypeUnsubscribe: "unsubscribe",
	EventTypeOpen:        "open",
	EventTypeClick:       "click",
}

// WebhookEvent stores every inbound provider callback before it is
// applied. ProviderEventID is unique, replays insert-fail and are acked
// without re-applying effects.
type WebhookEvent struct {
	ID              *uint64   `json:"id,omitempty"`
	UserID          *uint64   `json:"user_id,omitempty"`
	ProviderID      *uint64   `json:"provider_id,omitempty"`
	EventType       EventType `json:"event_type,omitempty"`
	Email           *string   `json:"email,omitempty"`
	ProviderEventID *string   `json:"provider_event_id,omitempty"`
	Payload         *string   `json:"payload,omitempty"`
	Processed       *bool     `json:"processed,omitempty"`
	ProcessedAt     *uint64   `json:"processed_at,omitempty"`
	ErrorMessage    *string   `json:"error_message,omitempty"`
	CreateTime      *uint64   `json:"create_time,omitempty"`
}

func (e *WebhookEvent) GetID() uint64 {
	if e != nil && e.ID != nil {
		return *e.ID
	}
	return 0
}

func (e *WebhookEvent) GetUserID() uint64 {
	if e != nil && e.UserID != nil {
		return *e.UserID
	}
	return 0
}

func (e *WebhookEvent) GetProviderID() uint64 {
	if e != nil && e.ProviderID != nil {
		return *e.ProviderID
	}
	return 0
}

func (e *WebhookEvent) GetEventType() EventType {
	if e != nil {
		return e.EventType
	}
	return EventTypeUnknown
}

func (e *WebhookEvent) GetEmail() string {
	if e != nil && e.Email != nil {
		return *e.Email
	}
	return ""
}

func (e *WebhookEvent) GetProviderEventID() string {
	if e != nil && e.ProviderEventID != nil {
		return *e.ProviderEventID
	}
	return ""
}

func (e *WebhookEvent) GetPayload() string {
	if e != nil && e.Payload != nil {
		return *e.Payload
	}
	return ""
}

func (e *WebhookEvent) GetProcessed() bool {
	if e != nil && e.Processed != nil {
		return *e.Processed
	}
	return false
}
