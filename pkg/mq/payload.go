package mq

type Payload uint32

const (
	PayloadUnknown Payload = iota
	PayloadEmailEvent
)

var Payloads = map[Payload]string{
	PayloadEmailEvent: "email_event",
}

// EmailEvent is streamed to downstream consumers on every delivery and
// engagement signal. One message per event, keyed by campaign ID.
type EmailEvent struct {
	CampaignID *uint64 `json:"campaign_id,omitempty"`
	ContactID  *uint64 `json:"contact_id,omitempty"`
	Email      *string `json:"email,omitempty"`
	Event      *string `json:"event,omitempty"`
	Url        *string `json:"url,omitempty"`
	Timestamp  *uint64 `json:"timestamp,omitempty"`
}

func (m *EmailEvent) GetCampaignID() uint64 {
	if m != nil && m.CampaignID != nil {
		return *m.CampaignID
	}
	return 0
}

func (m *EmailEvent) GetContactID() uint64 {
	if m != nil && m.ContactID != nil {
		return *m.ContactID
	}
	return 0
}

func (m *EmailEvent) GetEmail() string {
	if m != nil && m.Email != nil {
		return *m.Email
	}
	return ""
}

func (m *EmailEvent) GetEvent() string {
	if m != nil && m.Event != nil {
		return *m.Event
	}
	return ""
}

func (m *EmailEvent) GetUrl() string {
	if m != nil && m.Url != nil {
		return *m.Url
	}
	return ""
}

func (m *EmailEvent) GetTimestamp() uint64 {
	if m != nil && m.Timestamp != nil {
		return *m.Timestamp
	}
	return 0
}
