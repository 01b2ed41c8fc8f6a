package entity

type ContactStatus uint32

const (
	ContactStatusUnknown ContactStatus = iota
	ContactStatusPending
	ContactStatusSubscribed
	ContactStatusUnsubscribed
	ContactStatusBounced
	ContactStatusComplained
)

var ContactStatuses = map[ContactStatus]string{
	ContactStatusPending:      "pending",
	ContactStatusSubscribed:   "subscribed",
	ContactStatusUnsubscribed: "unsubscribed",
	ContactStatusBounced:      "bounced",
	ContactStatusComplained:   "complained",
}

// SoftBounceThreshold is the number of soft bounces after which a
// contact is treated as bounced.
const SoftBounceThreshold = 3

type Contact struct {
	ID             *uint64       `json:"id,omitempty"`
	UserID         *uint64       `json:"user_id,omitempty"`
	Email          *string       `json:"email,omitempty"`
	FirstName      *string       `json:"first_name,omitempty"`
	LastName       *string       `json:"last_name,omitempty"`
	Status         ContactStatus `json:"status,omitempty"`
	BounceCount    *uint64       `json:"bounce_count,omitempty"`
	LastBouncedAt  *uint64       `json:"last_bounced_at,omitempty"`
	UnsubscribedAt *uint64       `json:"unsubscribed_at,omitempty"`
	CreateTime     *uint64       `json:"create_time,omitempty"`
	UpdateTime     *uint64       `json:"update_time,omitempty"`
}

func (e *Contact) GetID() uint64 {
	if e != nil && e.ID != nil {
		return *e.ID
	}
	return 0
}

func (e *Contact) GetUserID() uint64 {
	if e != nil && e.UserID != nil {
		return *e.UserID
	}
	return 0
}

func (e *Contact) GetEmail() string {
	if e != nil && e.Email != nil {
		return *e.Email
	}
	return ""
}

func (e *Contact) GetFirstName() string {
	if e != nil && e.FirstName != nil {
		return *e.FirstName
	}
	return ""
}

func (e *Contact) GetLastName() string {
	if e != nil && e.LastName != nil {
		return *e.LastName
	}
	return ""
}

func (e *Contact) GetStatus() ContactStatus {
	if e != nil {
		return e.Status
	}
	return ContactStatusUnknown
}

func (e *Contact) GetBounceCount() uint64 {
	if e != nil && e.BounceCount != nil {
		return *e.BounceCount
	}
	return 0
}

func (e *Contact) IsSendable() bool {
	return e.GetStatus() == ContactStatusSubscribed
}
