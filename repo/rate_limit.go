package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"mailflow/pkg/goutil"
)

const (
	ResourceDaily   = "daily"
	ResourceMonthly = "monthly"
)

// RateLimit is a windowed send budget row per provider and resource.
type RateLimit struct {
	ID          *uint64
	ProviderID  *uint64
	Resource    *string
	WindowStart *uint64
	WindowEnd   *uint64
	Count       *uint64
	LimitValue  *uint64
}

func (m *RateLimit) TableName() string {
	return "rate_limit_tab"
}

type RateLimitRepo interface {
	// TryAcquire reserves n sends from the provider's current window.
	// A zero limit means unlimited. When the budget is exhausted the
	// window end is returned so callers can defer until reset.
	TryAcquire(ctx context.Context, providerID uint64, resource string, limit, n uint64) (bool, uint64, error)
}

type rateLimitRepo struct {
	baseRepo BaseRepo
}

func NewRateLimitRepo(_ context.Context, baseRepo BaseRepo) RateLimitRepo {
	return &rateLimitRepo{baseRepo: baseRepo}
}

func windowFor(resource string, now time.Time) (uint64, uint64) {
	now = now.UTC()
	switch resource {
	case ResourceMonthly:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return uint64(start.Unix()), uint64(start.AddDate(0, 1, 0).Unix())
	default:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return uint64(start.Unix()), uint64(start.AddDate(0, 0, 1).Unix())
	}
}

func (r *rateLimitRepo) TryAcquire(ctx context.Context, providerID uint64, resource string, limit, n uint64) (bool, uint64, error) {
	if limit == 0 {
		return true, 0, nil
	}

	windowStart, windowEnd := windowFor(resource, time.Now())

	// create the current window row on demand, losing the insert race
	// to another worker is fine
	m := &RateLimit{
		ProviderID:  goutil.Uint64(providerID),
		Resource:    goutil.String(resource),
		WindowStart: goutil.Uint64(windowStart),
		WindowEnd:   goutil.Uint64(windowEnd),
		Count:       goutil.Uint64(0),
		LimitValue:  goutil.Uint64(limit),
	}
	if err := r.baseRepo.Create(ctx, m); err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, 0, err
	}

	res := r.baseRepo.DB(ctx).
		Model(new(RateLimit)).
		Where("provider_id = ? AND resource = ? AND window_start = ? AND count + ? <= limit_value",
			providerID, resource, windowStart, n).
		Update("count", gorm.Expr("count + ?", n))
	if res.Error != nil {
		return false, 0, res.Error
	}

	if res.RowsAffected == 0 {
		return false, windowEnd, nil
	}

	return true, 0, nil
}
