package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"mailflow/entity"
	"mailflow/pkg/goutil"
)

var ErrCampaignNotFound = errors.New("campaign not found")

type Campaign struct {
	ID               *uint64
	UserID           *uint64
	Name             *string
	Status           *uint32
	TemplateID       *uint64
	ProviderID       *uint64
	ListID           *uint64
	SegmentID        *uint64
	DomainID         *uint64
	FromName         *string
	FromEmail        *string
	ReplyTo          *string
	Subject          *string
	PreviewText      *string
	TrackOpens       *bool
	TrackClicks      *bool
	SendSpeed        *uint64
	RetryFailed      *bool
	MaxRetries       *uint64
	ScheduledAt      *uint64
	SentAt           *uint64
	TotalRecipients  *uint64
	SentCount        *uint64
	FailedCount      *uint64
	UnsubscribeCount *uint64
	ComplaintCount   *uint64
	OpenRate         *float64
	ClickRate        *float64
	BounceRate       *float64
	ErrorMessage     *string
	CreateTime       *uint64
	UpdateTime       *uint64
}

func (m *Campaign) TableName() string {
	return "campaign_tab"
}

func (m *Campaign) GetID() uint64 {
	if m != nil && m.ID != nil {
		return *m.ID
	}
	return 0
}

func ToCampaign(m *Campaign) *entity.Campaign {
	if m == nil {
		return nil
	}
	campaign := &entity.Campaign{
		ID:               m.ID,
		UserID:           m.UserID,
		Name:             m.Name,
		TemplateID:       m.TemplateID,
		ProviderID:       m.ProviderID,
		ListID:           m.ListID,
		SegmentID:        m.SegmentID,
		DomainID:         m.DomainID,
		FromName:         m.FromName,
		FromEmail:        m.FromEmail,
		ReplyTo:          m.ReplyTo,
		Subject:          m.Subject,
		PreviewText:      m.PreviewText,
		TrackOpens:       m.TrackOpens,
		TrackClicks:      m.TrackClicks,
		SendSpeed:        m.SendSpeed,
		RetryFailed:      m.RetryFailed,
		MaxRetries:       m.MaxRetries,
		ScheduledAt:      m.ScheduledAt,
		SentAt:           m.SentAt,
		TotalRecipients:  m.TotalRecipients,
		SentCount:        m.SentCount,
		FailedCount:      m.FailedCount,
		UnsubscribeCount: m.UnsubscribeCount,
		ComplaintCount:   m.ComplaintCount,
		OpenRate:         m.OpenRate,
		ClickRate:        m.ClickRate,
		BounceRate:       m.BounceRate,
		ErrorMessage:     m.ErrorMessage,
		CreateTime:       m.CreateTime,
		UpdateTime:       m.UpdateTime,
	}
	if m.Status != nil {
		campaign.Status = entity.CampaignStatus(*m.Status)
	}
	return campaign
}

func ToCampaignModel(campaign *entity.Campaign) *Campaign {
	if campaign == nil {
		return nil
	}
	m := &Campaign{
		ID:               campaign.ID,
		UserID:           campaign.UserID,
		Name:             campaign.Name,
		TemplateID:       campaign.TemplateID,
		ProviderID:       campaign.ProviderID,
		ListID:           campaign.ListID,
		SegmentID:        campaign.SegmentID,
		DomainID:         campaign.DomainID,
		FromName:         campaign.FromName,
		FromEmail:        campaign.FromEmail,
		ReplyTo:          campaign.ReplyTo,
		Subject:          campaign.Subject,
		PreviewText:      campaign.PreviewText,
		TrackOpens:       campaign.TrackOpens,
		TrackClicks:      campaign.TrackClicks,
		SendSpeed:        campaign.SendSpeed,
		RetryFailed:      campaign.RetryFailed,
		MaxRetries:       campaign.MaxRetries,
		ScheduledAt:      campaign.ScheduledAt,
		SentAt:           campaign.SentAt,
		TotalRecipients:  campaign.TotalRecipients,
		SentCount:        campaign.SentCount,
		FailedCount:      campaign.FailedCount,
		UnsubscribeCount: campaign.UnsubscribeCount,
		ComplaintCount:   campaign.ComplaintCount,
		OpenRate:         campaign.OpenRate,
		ClickRate:        campaign.ClickRate,
		BounceRate:       campaign.BounceRate,
		ErrorMessage:     campaign.ErrorMessage,
		CreateTime:       campaign.CreateTime,
		UpdateTime:       campaign.UpdateTime,
	}
	if campaign.Status != entity.CampaignStatusUnknown {
		m.Status = goutil.Uint32(uint32(campaign.Status))
	}
	return m
}

type CampaignRepo interface {
	Create(ctx context.Context, campaign *entity.Campaign) (uint64, error)
	Update(ctx context.Context, campaign *entity.Campaign) error
	GetByID(ctx context.Context, id uint64) (*entity.Campaign, error)
	GetByIDAndUserID(ctx context.Context, id, userID uint64) (*entity.Campaign, error)
	GetManyByUserID(ctx context.Context, userID uint64, p *Pagination) ([]*entity.Campaign, *Pagination, error)
	GetDueScheduled(ctx context.Context, now uint64) ([]*entity.Campaign, error)
	GetRecentByUserID(ctx context.Context, userID uint64, n int) ([]*entity.Campaign, error)
	ClaimForSending(ctx context.Context, id uint64, from entity.CampaignStatus) (bool, error)
	AddCounts(ctx context.Context, id uint64, sent, failed, unsubscribe, complaint uint64) error
	SetRates(ctx context.Context, id uint64, openRate, clickRate, bounceRate float64) error
	Delete(ctx context.Context, id uint64) error
}

type campaignRepo struct {
	baseRepo BaseRepo
}

func NewCampaignRepo(_ context.Context, baseRepo BaseRepo) CampaignRepo {
	return &campaignRepo{baseRepo: baseRepo}
}

func (r *campaignRepo) Create(ctx context.Context, campaign *entity.Campaign) (uint64, error) {
	now := uint64(time.Now().Unix())
	campaign.CreateTime = goutil.Uint64(now)
	campaign.UpdateTime = goutil.Uint64(now)

	m := ToCampaignModel(campaign)
	if err := r.baseRepo.Create(ctx, m); err != nil {
		return 0, err
	}
	campaign.ID = m.ID

	return m.GetID(), nil
}

func (r *campaignRepo) Update(ctx context.Context, campaign *entity.Campaign) error {
	campaign.UpdateTime = goutil.Uint64(uint64(time.Now().Unix()))
	return r.baseRepo.Update(ctx, ToCampaignModel(campaign))
}

func (r *campaignRepo) GetByID(ctx context.Context, id uint64) (*entity.Campaign, error) {
	return r.get(ctx, &Filter{
		Conditions: []*Condition{
			{Field: "id", Op: OpEq, Value: id},
		},
	})
}

func (r *campaignRepo) GetByIDAndUserID(ctx context.Context, id, userID uint64) (*entity.Campaign, error) {
	return r.get(ctx, &Filter{
		Conditions: []*Condition{
			{Field: "id", Op: OpEq, Value: id, NextLogicalOp: And},
			{Field: "user_id", Op: OpEq, Value: userID},
		},
	})
}

func (r *campaignRepo) get(ctx context.Context, f *Filter) (*entity.Campaign, error) {
	campaign := new(Campaign)
	if err := r.baseRepo.Get(ctx, campaign, f); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}
	return ToCampaign(campaign), nil
}

func (r *campaignRepo) GetManyByUserID(ctx context.Context, userID uint64, p *Pagination) ([]*entity.Campaign, *Pagination, error) {
	res, pagination, err := r.baseRepo.GetMany(ctx, new(Campaign), &Filter{
		Conditions: []*Condition{
			{Field: "user_id", Op: OpEq, Value: userID},
		},
		Pagination: p,
	})
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]*entity.Campaign, 0, len(res))
	for _, m := range res {
		campaigns = append(campaigns, ToCampaign(m.(*Campaign)))
	}

	return campaigns, pagination, nil
}

func (r *campaignRepo) GetDueScheduled(ctx context.Context, now uint64) ([]*entity.Campaign, error) {
	var models []*Campaign
	err := r.baseRepo.DB(ctx).
		Where("status = ? AND scheduled_at <= ?", uint32(entity.CampaignStatusScheduled), now).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	campaigns := make([]*entity.Campaign, 0, len(models))
	for _, m := range models {
		campaigns = append(campaigns, ToCampaign(m))
	}

	return campaigns, nil
}

func (r *campaignRepo) GetRecentByUserID(ctx context.Context, userID uint64, n int) ([]*entity.Campaign, error) {
	var models []*Campaign
	err := r.baseRepo.DB(ctx).
		Where("user_id = ?", userID).
		Order("create_time DESC").
		Limit(n).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	campaigns := make([]*entity.Campaign, 0, len(models))
	for _, m := range models {
		campaigns = append(campaigns, ToCampaign(m))
	}

	return campaigns, nil
}

// ClaimForSending flips the campaign into SENDING in one conditional
// update. Exactly one caller wins when several pollers race on the same
// row. The scheduler claims from SCHEDULED, send-now also from DRAFT.
func (r *campaignRepo) ClaimForSending(ctx context.Context, id uint64, from entity.CampaignStatus) (bool, error) {
	res := r.baseRepo.DB(ctx).
		Model(new(Campaign)).
		Where("id = ? AND status = ?", id, uint32(from)).
		Updates(map[string]interface{}{
			"status":      uint32(entity.CampaignStatusSending),
			"update_time": uint64(time.Now().Unix()),
		})
	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected == 1, nil
}

func (r *campaignRepo) AddCounts(ctx context.Context, id uint64, sent, failed, unsubscribe, complaint uint64) error {
	updates := map[string]interface{}{
		"update_time": uint64(time.Now().Unix()),
	}
	if sent > 0 {
		updates["sent_count"] = gorm.Expr("sent_count + ?", sent)
	}
	if failed > 0 {
		updates["failed_count"] = gorm.Expr("failed_count + ?", failed)
	}
	if unsubscribe > 0 {
		updates["unsubscribe_count"] = gorm.Expr("unsubscribe_count + ?", unsubscribe)
	}
	if complaint > 0 {
		updates["complaint_count"] = gorm.Expr("complaint_count + ?", complaint)
	}

	return r.baseRepo.DB(ctx).
		Model(new(Campaign)).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *campaignRepo) SetRates(ctx context.Context, id uint64, openRate, clickRate, bounceRate float64) error {
	return r.baseRepo.DB(ctx).
		Model(new(Campaign)).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"open_rate":   openRate,
			"click_rate":  clickRate,
			"bounce_rate": bounceRate,
			"update_time": uint64(time.Now().Unix()),
		}).Error
}

func (r *campaignRepo) Delete(ctx context.Context, id uint64) error {
	return r.baseRepo.Delete(ctx, new(Campaign), &Filter{
		Conditions: []*Condition{
			{Field: "id", Op: OpEq, Value: id},
		},
	})
}
