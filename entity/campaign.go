package entity

import (
	"errors"
	"time"
)

type CampaignStatus uint32

const (
	CampaignStatusUnknown CampaignStatus = iota
	CampaignStatusDraft
	CampaignStatusScheduled
	CampaignStatusSending
	CampaignStatusSent
	CampaignStatusFailed
)

var CampaignStatuses = map[CampaignStatus]string{
	CampaignStatusDraft:     "draft",
	CampaignStatusScheduled: "scheduled",
	CampaignStatusSending:   "sending",
	CampaignStatusSent:      "sent",
	CampaignStatusFailed:    "failed",
}

var (
	ErrCampaignNotEditable    = errors.New("campaign can only be edited in draft")
	ErrCampaignNotSchedulable = errors.New("campaign can only be scheduled from draft")
	ErrCampaignNotCancelable  = errors.New("only scheduled campaigns can be cancelled")
	ErrScheduleTimeInPast     = errors.New("schedule time must be in the future")
	ErrMissingTemplate        = errors.New("campaign has no template")
	ErrMissingProvider        = errors.New("campaign has no sending provider")
	ErrMissingAudience        = errors.New("campaign has no list or segment")
	ErrMissingFromEmail       = errors.New("campaign has no from email")
	ErrMissingSubject         = errors.New("campaign has no subject")
)

type Campaign struct {
	ID               *uint64        `json:"id,omitempty"`
	UserID           *uint64        `json:"user_id,omitempty"`
	Name             *string        `json:"name,omitempty"`
	Status           CampaignStatus `json:"status,omitempty"`
	TemplateID       *uint64        `json:"template_id,omitempty"`
	ProviderID       *uint64        `json:"provider_id,omitempty"`
	ListID           *uint64        `json:"list_id,omitempty"`
	SegmentID        *uint64        `json:"segment_id,omitempty"`
	DomainID         *uint64        `json:"domain_id,omitempty"`
	FromName         *string        `json:"from_name,omitempty"`
	FromEmail        *string        `json:"from_email,omitempty"`
	ReplyTo          *string        `json:"reply_to,omitempty"`
	Subject          *string        `json:"subject,omitempty"`
	PreviewText      *string        `json:"preview_text,omitempty"`
	TrackOpens       *bool          `json:"track_opens,omitempty"`
	TrackClicks      *bool          `json:"track_clicks,omitempty"`
	SendSpeed        *uint64        `json:"send_speed,omitempty"`
	RetryFailed      *bool          `json:"retry_failed,omitempty"`
	MaxRetries       *uint64        `json:"max_retries,omitempty"`
	ScheduledAt      *uint64        `json:"scheduled_at,omitempty"`
	SentAt           *uint64        `json:"sent_at,omitempty"`
	TotalRecipients  *uint64        `json:"total_recipients,omitempty"`
	SentCount        *uint64        `json:"sent_count,omitempty"`
	FailedCount      *uint64        `json:"failed_count,omitempty"`
	UnsubscribeCount *uint64        `json:"unsubscribe_count,omitempty"`
	ComplaintCount   *uint64        `json:"complaint_count,omitempty"`
	OpenRate         *float64       `json:"open_rate,omitempty"`
	ClickRate        *float64       `json:"click_rate,omitempty"`
	BounceRate       *float64       `json:"bounce_rate,omitempty"`
	ErrorMessage     *string        `json:"error_message,omitempty"`
	CreateTime       *uint64        `json:"create_time,omitempty"`
	UpdateTime       *uint64        `json:"update_time,omitempty"`
}

func (e *Campaign) GetID() uint64 {
	if e != nil && e.ID != nil {
		return *e.ID
	}
	return 0
}

func (e *Campaign) GetUserID() uint64 {
	if e != nil && e.UserID != nil {
		return *e.UserID
	}
	return 0
}

func (e *Campaign) GetName() string {
	if e != nil && e.Name != nil {
		return *e.Name
	}
	return ""
}

func (e *Campaign) GetStatus() CampaignStatus {
	if e != nil {
		return e.Status
	}
	return CampaignStatusUnknown
}

func (e *Campaign) GetTemplateID() uint64 {
	if e != nil && e.TemplateID != nil {
		return *e.TemplateID
	}
	return 0
}

func (e *Campaign) GetProviderID() uint64 {
	if e != nil && e.ProviderID != nil {
		return *e.ProviderID
	}
	return 0
}

func (e *Campaign) GetListID() uint64 {
	if e != nil && e.ListID != nil {
		return *e.ListID
	}
	return 0
}

func (e *Campaign) GetSegmentID() uint64 {
	if e != nil && e.SegmentID != nil {
		return *e.SegmentID
	}
	return 0
}

func (e *Campaign) GetDomainID() uint64 {
	if e != nil && e.DomainID != nil {
		return *e.DomainID
	}
	return 0
}

func (e *Campaign) GetFromName() string {
	if e != nil && e.FromName != nil {
		return *e.FromName
	}
	return ""
}

func (e *Campaign) GetFromEmail() string {
	if e != nil && e.FromEmail != nil {
		return *e.FromEmail
	}
	return ""
}

func (e *Campaign) GetReplyTo() string {
	if e != nil && e.ReplyTo != nil {
		return *e.ReplyTo
	}
	return ""
}

func (e *Campaign) GetSubject() string {
	if e != nil && e.Subject != nil {
		return *e.Subject
	}
	return ""
}

func (e *Campaign) GetPreviewText() string {
	if e != nil && e.PreviewText != nil {
		return *e.PreviewText
	}
	return ""
}

func (e *Campaign) GetTrackOpens() bool {
	if e != nil && e.TrackOpens != nil {
		return *e.TrackOpens
	}
	return true
}

func (e *Campaign) GetTrackClicks() bool {
	if e != nil && e.TrackClicks != nil {
		return *e.TrackClicks
	}
	return true
}

func (e *Campaign) GetSendSpeed() uint64 {
	if e != nil && e.SendSpeed != nil {
		return *e.SendSpeed
	}
	return 0
}

func (e *Campaign) GetRetryFailed() bool {
	if e != nil && e.RetryFailed != nil {
		return *e.RetryFailed
	}
	return true
}

func (e *Campaign) GetMaxRetries() uint64 {
	if e != nil && e.MaxRetries != nil {
		return *e.MaxRetries
	}
	return 0
}

func (e *Campaign) GetScheduledAt() uint64 {
	if e != nil && e.ScheduledAt != nil {
		return *e.ScheduledAt
	}
	return 0
}

func (e *Campaign) GetSentAt() uint64 {
	if e != nil && e.SentAt != nil {
		return *e.SentAt
	}
	return 0
}

func (e *Campaign) GetTotalRecipients() uint64 {
	if e != nil && e.TotalRecipients != nil {
		return *e.TotalRecipients
	}
	return 0
}

func (e *Campaign) GetSentCount() uint64 {
	if e != nil && e.SentCount != nil {
		return *e.SentCount
	}
	return 0
}

func (e *Campaign) GetFailedCount() uint64 {
	if e != nil && e.FailedCount != nil {
		return *e.FailedCount
	}
	return 0
}

func (e *Campaign) GetUnsubscribeCount() uint64 {
	if e != nil && e.UnsubscribeCount != nil {
		return *e.UnsubscribeCount
	}
	return 0
}

func (e *Campaign) GetComplaintCount() uint64 {
	if e != nil && e.ComplaintCount != nil {
		return *e.ComplaintCount
	}
	return 0
}

func (e *Campaign) GetErrorMessage() string {
	if e != nil && e.ErrorMessage != nil {
		return *e.ErrorMessage
	}
	return ""
}

func (e *Campaign) GetCreateTime() uint64 {
	if e != nil && e.CreateTime != nil {
		return *e.CreateTime
	}
	return 0
}

func (e *Campaign) GetUpdateTime() uint64 {
	if e != nil && e.UpdateTime != nil {
		return *e.UpdateTime
	}
	return 0
}

func (e *Campaign) IsDraft() bool {
	return e.GetStatus() == CampaignStatusDraft
}

func (e *Campaign) IsTerminal() bool {
	return e.GetStatus() == CampaignStatusSent || e.GetStatus() == CampaignStatusFailed
}

// CanEdit covers update and delete. Both touch draft campaigns only.
func (e *Campaign) CanEdit() error {
	if !e.IsDraft() {
		return ErrCampaignNotEditable
	}
	return nil
}

func (e *Campaign) CanSchedule(at uint64) error {
	if !e.IsDraft() {
		return ErrCampaignNotSchedulable
	}
	if at <= uint64(time.Now().Unix()) {
		return ErrScheduleTimeInPast
	}
	return nil
}

func (e *Campaign) CanCancel() error {
	if e.GetStatus() != CampaignStatusScheduled {
		return ErrCampaignNotCancelable
	}
	return nil
}

// ValidateReady checks the preflight guards before a campaign may enter
// SENDING. Domain verification is checked separately against the domain
// record when DomainID is set.
func (e *Campaign) ValidateReady() error {
	if e.GetTemplateID() == 0 {
		return ErrMissingTemplate
	}
	if e.GetProviderID() == 0 {
		return ErrMissingProvider
	}
	if e.GetListID() == 0 && e.GetSegmentID() == 0 {
		return ErrMissingAudience
	}
	if e.GetFromEmail() == "" {
		return ErrMissingFromEmail
	}
	if e.GetSubject() == "" {
		return ErrMissingSubject
	}
	return nil
}
