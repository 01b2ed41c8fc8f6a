package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"mailflow/entity"
	"mailflow/pkg/goutil"
)

var (
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrRecipientExists   = errors.New("recipient already exists")
)

const cachePrefixRecipient = "recipient_tracking"

type Recipient struct {
	ID           *uint64
	CampaignID   *uint64
	ContactID    *uint64
	Email        *string
	Status       *uint32
	TrackingID   *string
	SentAt       *uint64
	DeliveredAt  *uint64
	OpenedAt     *uint64
	ClickedAt    *uint64
	BouncedAt    *uint64
	ComplainedAt *uint64
	OpenCount    *uint64
	ClickCount   *uint64
	RetryCount   *uint64
	ErrorMessage *string
	CreateTime   *uint64
	UpdateTime   *uint64
}

func (m *Recipient) TableName() string {
	return "recipient_tab"
}

func ToRecipient(m *Recipient) *entity.Recipient {
	if m == nil {
		return nil
	}
	recipient := &entity.Recipient{
		ID:           m.ID,
		CampaignID:   m.CampaignID,
		ContactID:    m.ContactID,
		Email:        m.Email,
		TrackingID:   m.TrackingID,
		SentAt:       m.SentAt,
		DeliveredAt:  m.DeliveredAt,
		OpenedAt:     m.OpenedAt,
		ClickedAt:    m.ClickedAt,
		BouncedAt:    m.BouncedAt,
		ComplainedAt: m.ComplainedAt,
		OpenCount:    m.OpenCount,
		ClickCount:   m.ClickCount,
		RetryCount:   m.RetryCount,
		ErrorMessage: m.ErrorMessage,
		CreateTime:   m.CreateTime,
		UpdateTime:   m.UpdateTime,
	}
	if m.Status != nil {
		recipient.Status = entity.RecipientStatus(*m.Status)
	}
	return recipient
}

func ToRecipientModel(recipient *entity.Recipient) *Recipient {
	if recipient == nil {
		return nil
	}
	m := &Recipient{
		ID:           recipient.ID,
		CampaignID:   recipient.CampaignID,
		ContactID:    recipient.ContactID,
		Email:        recipient.Email,
		TrackingID:   recipient.TrackingID,
		SentAt:       recipient.SentAt,
		DeliveredAt:  recipient.DeliveredAt,
		OpenedAt:     recipient.OpenedAt,
		ClickedAt:    recipient.ClickedAt,
		BouncedAt:    recipient.BouncedAt,
		ComplainedAt: recipient.ComplainedAt,
		OpenCount:    recipient.OpenCount,
		ClickCount:   recipient.ClickCount,
		RetryCount:   recipient.RetryCount,
		ErrorMessage: recipient.ErrorMessage,
		CreateTime:   recipient.CreateTime,
		UpdateTime:   recipient.UpdateTime,
	}
	if recipient.Status != entity.RecipientStatusUnknown {
		m.Status = goutil.Uint32(uint32(recipient.Status))
	}
	return m
}

type RecipientRepo interface {
	Create(ctx context.Context, recipient *entity.Recipient) error
	GetByID(ctx context.Context, id uint64) (*entity.Recipient, error)
	GetByTrackingID(ctx context.Context, trackingID string) (*entity.Recipient, error)
	GetLatestByEmailAndUserID(ctx context.Context, email string, userID uint64) (*entity.Recipient, error)
	GetManyByCampaignID(ctx context.Context, campaignID uint64) ([]*entity.Recipient, error)
	GetByCampaignIDAndStatus(ctx context.Context, campaignID uint64, status entity.RecipientStatus) ([]*entity.Recipient, error)
	MarkSent(ctx context.Context, id, sentAt uint64) error
	MarkFailed(ctx context.Context, id, retryCount uint64, errMsg string) error
	MarkDelivered(ctx context.Context, id, at uint64) error
	MarkBounced(ctx context.Context, id, at uint64) error
	MarkComplained(ctx context.Context, id, at uint64) error
	TrackOpen(ctx context.Context, id, at uint64) error
	TrackClick(ctx context.Context, id, at uint64) error
	CountByCampaignID(ctx context.Context, campaignID uint64) (uint64, error)
	CountByCampaignIDAndStatus(ctx context.Context, campaignID uint64, status entity.RecipientStatus) (uint64, error)
	CountOpenedByCampaignID(ctx context.Context, campaignID uint64) (uint64, error)
	CountClickedByCampaignID(ctx context.Context, campaignID uint64) (uint64, error)
	CountTerminalByCampaignID(ctx context.Context, campaignID uint64) (uint64, error)
	DeleteByCampaignID(ctx context.Context, campaignID uint64) error
}

type recipientRepo struct {
	baseRepo  BaseRepo
	baseCache BaseCache
}

func NewRecipientRepo(_ context.Context, baseRepo BaseRepo, baseCache BaseCache) RecipientRepo {
	return &recipientRepo{baseRepo: baseRepo, baseCache: baseCache}
}

func (r *recipientRepo) Create(ctx context.Context, recipient *entity.Recipient) error {
	now := uint64(time.Now().Unix())
	recipient.CreateTime = goutil.Uint64(now)
	recipient.UpdateTime = goutil.Uint64(now)

	m := ToRecipientModel(recipient)
	if err := r.baseRepo.Create(ctx, m); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrRecipientExists
		}
		return err
	}
	recipient.ID = m.ID

	return nil
}

func (r *recipientRepo) GetByID(ctx context.Context, id uint64) (*entity.Recipient, error) {
	return r.get(ctx, &Filter{
		Conditions: []*Condition{
			{Field: "id", Op: OpEq, Value: id},
		},
	})
}

// GetByTrackingID sits on the pixel and redirect hot path, so hits are
// served from cache.
func (r *recipientRepo) GetByTrackingID(ctx context.Context, trackingID string) (*entity.Recipient, error) {
	if v, ok := r.baseCache.Get(ctx, cachePrefixRecipient, trackingID); ok {
		return v.(*entity.Recipient), nil
	}

	recipient, err := r.get(ctx, &Filter{
		Conditions: []*Condition{
			{Field: "tracking_id", Op: OpEq, Value: trackingID},
		},
	})
	if err != nil {
		return nil, err
	}

	r.baseCache.Set(ctx, cachePrefixRecipient, trackingID, recipient)

	return recipient, nil
}

// GetLatestByEmailAndUserID only ever resolves recipients inside the
// given user's campaigns, webhook callbacks must not touch another
// account's rows even when the same address appears in both.
func (r *recipientRepo) GetLatestByEmailAndUserID(ctx context.Context, email string, userID uint64) (*entity.Recipient, error) {
	m := new(Recipient)
	err := r.baseRepo.DB(ctx).
		Select("recipient_tab.*").
		Joins("JOIN campaign_tab ON campaign_tab.id = recipient_tab.campaign_id").
		Where("recipient_tab.email = ? AND campaign_tab.user_id = ?", email, userID).
		Order("recipient_tab.id DESC").
		First(m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}
	return ToRecipient(m), nil
}

func (r *recipientRepo) get(ctx context.Context, f *Filter) (*entity.Recipient, error) {
	m := new(Recipient)
	if err := r.baseRepo.Get(ctx, m, f); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, err
	}
	return ToRecipient(m), nil
}

func (r *recipientRepo) GetManyByCampaignID(ctx context.Context, campaignID uint64) ([]*entity.Recipient, error) {
	return r.getMany(ctx, "campaign_id = ?", campaignID)
}

func (r *recipientRepo) GetByCampaignIDAndStatus(ctx context.Context, campaignID uint64, status entity.RecipientStatus) ([]*entity.Recipient, error) {
	return r.getMany(ctx, "campaign_id = ? AND status = ?", campaignID, uint32(status))
}

func (r *recipientRepo) getMany(ctx context.Context, query string, args ...interface{}) ([]*entity.Recipient, error) {
	var models []*Recipient
	if err := r.baseRepo.DB(ctx).Where(query, args...).Find(&models).Error; err != nil {
		return nil, err
	}

	recipients := make([]*entity.Recipient, 0, len(models))
	for _, m := range models {
		recipients = append(recipients, ToRecipient(m))
	}

	return recipients, nil
}

func (r *recipientRepo) MarkSent(ctx context.Context, id, sentAt uint64) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":  uint32(entity.RecipientStatusSent),
		"sent_at": sentAt,
	})
}

func (r *recipientRepo) MarkFailed(ctx context.Context, id, retryCount uint64, errMsg string) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":        uint32(entity.RecipientStatusFailed),
		"retry_count":   retryCount,
		"error_message": errMsg,
	})
}

func (r *recipientRepo) MarkDelivered(ctx context.Context, id, at uint64) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":       uint32(entity.RecipientStatusDelivered),
		"delivered_at": at,
	})
}

func (r *recipientRepo) MarkBounced(ctx context.Context, id, at uint64) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":     uint32(entity.RecipientStatusBounced),
		"bounced_at": at,
	})
}

func (r *recipientRepo) MarkComplained(ctx context.Context, id, at uint64) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":        uint32(entity.RecipientStatusComplained),
		"complained_at": at,
	})
}

// TrackOpen bumps open_count and stamps opened_at on the first open
// only, in a single statement so concurrent opens cannot lose counts.
func (r *recipientRepo) TrackOpen(ctx context.Context, id, at uint64) error {
	return r.update(ctx, id, map[string]interface{}{
		"open_count": gorm.Expr("open_count + ?", 1),
		"opened_at":  gorm.Expr("COALESCE(opened_at, ?)", at),
	})
}

func (r *recipientRepo) TrackClick(ctx context.Context, id, at uint64) error {
	return r.update(ctx, id, map[string]interface{}{
		"click_count": gorm.Expr("click_count + ?", 1),
		"clicked_at":  gorm.Expr("COALESCE(clicked_at, ?)", at),
	})
}

func (r *recipientRepo) update(ctx context.Context, id uint64, updates map[string]interface{}) error {
	updates["update_time"] = uint64(time.Now().Unix())
	return r.baseRepo.DB(ctx).
		Model(new(Recipient)).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *recipientRepo) CountByCampaignID(ctx context.Context, campaignID uint64) (uint64, error) {
	return r.count(ctx, "campaign_id = ?", campaignID)
}

func (r *recipientRepo) CountByCampaignIDAndStatus(ctx context.Context, campaignID uint64, status entity.RecipientStatus) (uint64, error) {
	return r.baseRepo.Count(ctx, new(Recipient), &Filter{
		Conditions: []*Condition{
			{Field: "campaign_id", Op: OpEq, Value: campaignID, NextLogicalOp: And},
			{Field: "status", Op: OpEq, Value: uint32(status)},
		},
	})
}

func (r *recipientRepo) CountOpenedByCampaignID(ctx context.Context, campaignID uint64) (uint64, error) {
	return r.count(ctx, "campaign_id = ? AND opened_at IS NOT NULL", campaignID)
}

func (r *recipientRepo) CountClickedByCampaignID(ctx context.Context, campaignID uint64) (uint64, error) {
	return r.count(ctx, "campaign_id = ? AND clicked_at IS NOT NULL", campaignID)
}

func (r *recipientRepo) CountTerminalByCampaignID(ctx context.Context, campaignID uint64) (uint64, error) {
	return r.count(ctx, "campaign_id = ? AND status != ?", campaignID, uint32(entity.RecipientStatusPending))
}

func (r *recipientRepo) count(ctx context.Context, query string, args ...interface{}) (uint64, error) {
	var count int64
	err := r.baseRepo.DB(ctx).
		Model(new(Recipient)).
		Where(query, args...).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return uint64(count), nil
}

func (r *recipientRepo) DeleteByCampaignID(ctx context.Context, campaignID uint64) error {
	return r.baseRepo.Delete(ctx, new(Recipient), &Filter{
		Conditions: []*Condition{
			{Field: "campaign_id", Op: OpEq, Value: campaignID},
		},
	})
}
