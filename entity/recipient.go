package entity

type RecipientStatus uint32

const (
	RecipientStatusUnknown RecipientStatus = iota
	RecipientStatusPending
	RecipientStatusSent
	RecipientStatusDelivered
	RecipientStatusBounced
	RecipientStatusComplained
	RecipientStatusFailed
)

var RecipientStatuses = map[RecipientStatus]string{
	RecipientStatusPending:    "pending",
	RecipientStatusSent:       "sent",
	RecipientStatusDelivered:  "delivered",
	RecipientStatusBounced:    "bounced",
	RecipientStatusComplained: "complained",
	RecipientStatusFailed:     "failed",
}

type Recipient struct {
	ID           *uint64         `json:"id,omitempty"`
	CampaignID   *uint64         `json:"campaign_id,omitempty"`
	ContactID    *uint64         `json:"contact_id,omitempty"`
	Email        *string         `json:"email,omitempty"`
	Status       RecipientStatus `json:"status,omitempty"`
	TrackingID   *string         `json:"tracking_id,omitempty"`
	SentAt       *uint64         `json:"sent_at,omitempty"`
	DeliveredAt  *uint64         `json:"delivered_at,omitempty"`
	OpenedAt     *uint64         `json:"opened_at,omitempty"`
	ClickedAt    *uint64         `json:"clicked_at,omitempty"`
	BouncedAt    *uint64         `json:"bounced_at,omitempty"`
	ComplainedAt *uint64         `json:"complained_at,omitempty"`
	OpenCount    *uint64         `json:"open_count,omitempty"`
	ClickCount   *uint64         `json:"click_count,omitempty"`
	RetryCount   *uint64         `json:"retry_count,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	CreateTime   *uint64         `json:"create_time,omitempty"`
	UpdateTime   *uint64         `json:"update_time,omitempty"`
}

func (e *Recipient) GetID() uint64 {
	if e != nil && e.ID != nil {
		return *e.ID
	}
	return 0
}

func (e *Recipient) GetCampaignID() uint64 {
	if e != nil && e.CampaignID != nil {
		return *e.CampaignID
	}
	return 0
}

func (e *Recipient) GetContactID() uint64 {
	if e != nil && e.ContactID != nil {
		return *e.ContactID
	}
	return 0
}

func (e *Recipient) GetEmail() string {
	if e != nil && e.Email != nil {
		return *e.Email
	}
	return ""
}

func (e *Recipient) GetStatus() RecipientStatus {
	if e != nil {
		return e.Status
	}
	return RecipientStatusUnknown
}

func (e *Recipient) GetTrackingID() string {
	if e != nil && e.TrackingID != nil {
		return *e.TrackingID
	}
	return ""
}

func (e *Recipient) GetSentAt() uint64 {
	if e != nil && e.SentAt != nil {
		return *e.SentAt
	}
	return 0
}

func (e *Recipient) GetDeliveredAt() uint64 {
	if e != nil && e.DeliveredAt != nil {
		return *e.DeliveredAt
	}
	return 0
}

func (e *Recipient) GetOpenedAt() uint64 {
	if e != nil && e.OpenedAt != nil {
		return *e.OpenedAt
	}
	return 0
}

func (e *Recipient) GetClickedAt() uint64 {
	if e != nil && e.ClickedAt != nil {
		return *e.ClickedAt
	}
	return 0
}

func (e *Recipient) GetBouncedAt() uint64 {
	if e != nil && e.BouncedAt != nil {
		return *e.BouncedAt
	}
	return 0
}

func (e *Recipient) GetComplainedAt() uint64 {
	if e != nil && e.ComplainedAt != nil {
		return *e.ComplainedAt
	}
	return 0
}

func (e *Recipient) GetOpenCount() uint64 {
	if e != nil && e.OpenCount != nil {
		return *e.OpenCount
	}
	return 0
}

func (e *Recipient) GetClickCount() uint64 {
	if e != nil && e.ClickCount != nil {
		return *e.ClickCount
	}
	return 0
}

func (e *Recipient) GetRetryCount() uint64 {
	if e != nil && e.RetryCount != nil {
		return *e.RetryCount
	}
	return 0
}

func (e *Recipient) GetErrorMessage() string {
	if e != nil && e.ErrorMessage != nil {
		return *e.ErrorMessage
	}
	return ""
}

// IsTerminal reports whether the delivery attempt has concluded, for
// campaign completion accounting. Engagement can still arrive after.
func (e *Recipient) IsTerminal() bool {
	switch e.GetStatus() {
	case RecipientStatusSent, RecipientStatusDelivered, RecipientStatusBounced,
		RecipientStatusComplained, RecipientStatusFailed:
		return true
	}
	return false
}
