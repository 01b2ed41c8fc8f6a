package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"mailflow/entity"
	"mailflow/pkg/goutil"
)

var ErrLinkNotFound = errors.New("link not found")

const cachePrefixLink = "link_short_code"

// shortCodeAttempts bounds collision retries on the 8-char code space.
const shortCodeAttempts = 5

type Link struct {
	ID               *uint64
	CampaignID       *uint64
	OriginalURL      *string
	ShortCode        *string
	ClickCount       *uint64
	UniqueClickCount *uint64
	CreateTime       *uint64
	UpdateTime       *uint64
}

func (m *Link) TableName() string {
	return "link_tab"
}

func ToLink(m *Link) *entity.Link {
	if m == nil {
		return nil
	}
	return &entity.Link{
		ID:               m.ID,
		CampaignID:       m.CampaignID,
		OriginalURL:      m.OriginalURL,
		ShortCode:        m.ShortCode,
		ClickCount:       m.ClickCount,
		UniqueClickCount: m.UniqueClickCount,
		CreateTime:       m.CreateTime,
		UpdateTime:       m.UpdateTime,
	}
}

type LinkRepo interface {
	FindOrCreate(ctx context.Context, campaignID uint64, originalURL string) (*entity.Link, error)
	GetByShortCode(ctx context.Context, shortCode string) (*entity.Link, error)
	AddClick(ctx context.Context, id uint64, unique bool) error
	GetTopByCampaignID(ctx context.Context, campaignID uint64, n int) ([]*entity.Link, error)
	GetManyByCampaignID(ctx context.Context, campaignID uint64) ([]*entity.Link, error)
	DeleteByCampaignID(ctx context.Context, campaignID uint64) error
}

type linkRepo struct {
	baseRepo  BaseRepo
	baseCache BaseCache
}

func NewLinkRepo(_ context.Context, baseRepo BaseRepo, baseCache BaseCache) LinkRepo {
	return &linkRepo{baseRepo: baseRepo, baseCache: baseCache}
}

// FindOrCreate returns the campaign's link row for a URL, creating it
// with a fresh short code when absent. A duplicate-key race on
// (campaign_id, original_url) resolves to the winner's row, so the same
// URL always maps to one short code per campaign.
func (r *linkRepo) FindOrCreate(ctx context.Context, campaignID uint64, originalURL string) (*entity.Link, error) {
	link, err := r.getByCampaignIDAndURL(ctx, campaignID, originalURL)
	if err == nil {
		return link, nil
	}
	if !errors.Is(err, ErrLinkNotFound) {
		return nil, err
	}

	now := uint64(time.Now().Unix())
	for i := 0; i < shortCodeAttempts; i++ {
		m := &Link{
			CampaignID:       goutil.Uint64(campaignID),
			OriginalURL:      goutil.String(originalURL),
			ShortCode:        goutil.String(goutil.NewShortCode()),
			ClickCount:       goutil.Uint64(0),
			UniqueClickCount: goutil.Uint64(0),
			CreateTime:       goutil.Uint64(now),
			UpdateTime:       goutil.Uint64(now),
		}

		err = r.baseRepo.Create(ctx, m)
		if err == nil {
			return ToLink(m), nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, err
		}

		// either the URL row won a race or the short code collided
		link, getErr := r.getByCampaignIDAndURL(ctx, campaignID, originalURL)
		if getErr == nil {
			return link, nil
		}
		if !errors.Is(getErr, ErrLinkNotFound) {
			return nil, getErr
		}
	}

	return nil, err
}

func (r *linkRepo) getByCampaignIDAndURL(ctx context.Context, campaignID uint64, originalURL string) (*entity.Link, error) {
	m := new(Link)
	err := r.baseRepo.Get(ctx, m, &Filter{
		Conditions: []*Condition{
			{Field: "campaign_id", Op: OpEq, Value: campaignID, NextLogicalOp: And},
			{Field: "original_url", Op: OpEq, Value: originalURL},
		},
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return ToLink(m), nil
}

func (r *linkRepo) GetByShortCode(ctx context.Context, shortCode string) (*entity.Link, error) {
	if v, ok := r.baseCache.Get(ctx, cachePrefixLink, shortCode); ok {
		return v.(*entity.Link), nil
	}

	m := new(Link)
	err := r.baseRepo.Get(ctx, m, &Filter{
		Conditions: []*Condition{
			{Field: "short_code", Op: OpEq, Value: shortCode},
		},
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}

	link := ToLink(m)
	r.baseCache.Set(ctx, cachePrefixLink, shortCode, link)

	return link, nil
}

func (r *linkRepo) AddClick(ctx context.Context, id uint64, unique bool) error {
	updates := map[string]interface{}{
		"click_count": gorm.Expr("click_count + ?", 1),
		"update_time": uint64(time.Now().Unix()),
	}
	if unique {
		updates["unique_click_count"] = gorm.Expr("unique_click_count + ?", 1)
	}

	return r.baseRepo.DB(ctx).
		Model(new(Link)).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *linkRepo) GetTopByCampaignID(ctx context.Context, campaignID uint64, n int) ([]*entity.Link, error) {
	var models []*Link
	err := r.baseRepo.DB(ctx).
		Where("campaign_id = ?", campaignID).
		Order("click_count DESC").
		Limit(n).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	links := make([]*entity.Link, 0, len(models))
	for _, m := range models {
		links = append(links, ToLink(m))
	}

	return links, nil
}

func (r *linkRepo) GetManyByCampaignID(ctx context.Context, campaignID uint64) ([]*entity.Link, error) {
	var models []*Link
	err := r.baseRepo.DB(ctx).
		Where("campaign_id = ?", campaignID).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	links := make([]*entity.Link, 0, len(models))
	for _, m := range models {
		links = append(links, ToLink(m))
	}

	return links, nil
}

func (r *linkRepo) DeleteByCampaignID(ctx context.Context, campaignID uint64) error {
	return r.baseRepo.Delete(ctx, new(Link), &Filter{
		Conditions: []*Condition{
			{Field: "campaign_id", Op: OpEq, Value: campaignID},
		},
	})
}
