package repo

import (
	"context"

	"mailflow/entity"
)

type Click struct {
	ID          *uint64
	CampaignID  *uint64
	RecipientID *uint64
	LinkID      *uint64
	ClickedAt   *uint64
	IP          *string
	UserAgent   *string
}

func (m *Click) TableName() string {
	return "click_tab"
}

func ToClick(m *Click) *entity.Click {
	if m == nil {
		return nil
	}
	return &entity.Click{
		ID:          m.ID,
		CampaignID:  m.CampaignID,
		RecipientID: m.RecipientID,
		LinkID:      m.LinkID,
		ClickedAt:   m.ClickedAt,
		IP:          m.IP,
		UserAgent:   m.UserAgent,
	}
}

type ClickRepo interface {
	Create(ctx context.Context, click *entity.Click) error
	Exists(ctx context.Context, recipientID, linkID uint64) (bool, error)
	GetManyByCampaignID(ctx context.Context, campaignID uint64) ([]*entity.Click, error)
	DeleteByCampaignID(ctx context.Context, campaignID uint64) error
}

type clickRepo struct {
	baseRepo BaseRepo
}

func NewClickRepo(_ context.Context, baseRepo BaseRepo) ClickRepo {
	return &clickRepo{baseRepo: baseRepo}
}

func (r *clickRepo) Create(ctx context.Context, click *entity.Click) error {
	m := &Click{
		CampaignID:  click.CampaignID,
		RecipientID: click.RecipientID,
		LinkID:      click.LinkID,
		ClickedAt:   click.ClickedAt,
		IP:          click.IP,
		UserAgent:   click.UserAgent,
	}
	if err := r.baseRepo.Create(ctx, m); err != nil {
		return err
	}
	click.ID = m.ID

	return nil
}

func (r *clickRepo) Exists(ctx context.Context, recipientID, linkID uint64) (bool, error) {
	count, err := r.baseRepo.Count(ctx, new(Click), &Filter{
		Conditions: []*Condition{
			{Field: "recipient_id", Op: OpEq, Value: recipientID, NextLogicalOp: And},
			{Field: "link_id", Op: OpEq, Value: linkID},
		},
	})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *clickRepo) GetManyByCampaignID(ctx context.Context, campaignID uint64) ([]*entity.Click, error) {
	res, _, err := r.baseRepo.GetMany(ctx, new(Click), &Filter{
		Conditions: []*Condition{
			{Field: "campaign_id", Op: OpEq, Value: campaignID},
		},
	})
	if err != nil {
		return nil, err
	}

	clicks := make([]*entity.Click, 0, len(res))
	for _, m := range res {
		clicks = append(clicks, ToClick(m.(*Click)))
	}

	return clicks, nil
}

func (r *clickRepo) DeleteByCampaignID(ctx context.Context, campaignID uint64) error {
	return r.baseRepo.Delete(ctx, new(Click), &Filter{
		Conditions: []*Condition{
			{Field: "campaign_id", Op: OpEq, Value: campaignID},
		},
	})
}
