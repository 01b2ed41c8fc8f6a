package repo

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"mailflow/pkg/goutil"
)

// fakeLinkBaseRepo backs the link repo with an in-memory table that
// reports duplicate keys the way the driver does. racePending, when
// set, is inserted right before the next Create to model another worker
// winning the (campaign_id, original_url) race. failCreates forces that
// many Creates to collide.
type fakeLinkBaseRepo struct {
	BaseRepo

	mu          sync.Mutex
	nextID      uint64
	rows        []*Link
	racePending *Link
	failCreates int
}

func (f *fakeLinkBaseRepo) Get(_ context.Context, model interface{}, flt *Filter) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	want := make(map[string]interface{})
	for _, c := range flt.Conditions {
		want[c.Field] = c.Value
	}

	for _, row := range f.rows {
		if *row.CampaignID == want["campaign_id"].(uint64) && *row.OriginalURL == want["original_url"].(string) {
			*model.(*Link) = *row
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeLinkBaseRepo) Create(_ context.Context, data interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failCreates > 0 {
		f.failCreates--
		return gorm.ErrDuplicatedKey
	}

	if f.racePending != nil {
		f.nextID++
		f.racePending.ID = goutil.Uint64(f.nextID)
		f.rows = append(f.rows, f.racePending)
		f.racePending = nil
	}

	m := data.(*Link)
	for _, row := range f.rows {
		if *row.CampaignID == *m.CampaignID && *row.OriginalURL == *m.OriginalURL {
			return gorm.ErrDuplicatedKey
		}
	}

	f.nextID++
	m.ID = goutil.Uint64(f.nextID)
	stored := *m
	f.rows = append(f.rows, &stored)
	return nil
}

func newLinkRepoWith(baseRepo BaseRepo) LinkRepo {
	ctx := context.Background()
	return NewLinkRepo(ctx, baseRepo, NewBaseCache(ctx))
}

func TestLinkFindOrCreateIdempotent(t *testing.T) {
	baseRepo := new(fakeLinkBaseRepo)
	r := newLinkRepoWith(baseRepo)

	link, err := r.FindOrCreate(context.Background(), 1, "https://example.com/offer")
	require.NoError(t, err)
	assert.NotZero(t, link.GetID())
	assert.Len(t, link.GetShortCode(), 8)
	assert.Zero(t, link.GetClickCount())
	assert.Zero(t, link.GetUniqueClickCount())

	// same URL comes back as the same row and code
	again, err := r.FindOrCreate(context.Background(), 1, "https://example.com/offer")
	require.NoError(t, err)
	assert.Equal(t, link.GetID(), again.GetID())
	assert.Equal(t, link.GetShortCode(), again.GetShortCode())
	assert.Len(t, baseRepo.rows, 1)

	// a different URL gets its own code
	other, err := r.FindOrCreate(context.Background(), 1, "https://example.com/other")
	require.NoError(t, err)
	assert.NotEqual(t, link.GetShortCode(), other.GetShortCode())
	assert.Len(t, baseRepo.rows, 2)
}

func TestLinkFindOrCreateLosesInsertRace(t *testing.T) {
	baseRepo := &fakeLinkBaseRepo{
		racePending: &Link{
			CampaignID:       goutil.Uint64(1),
			OriginalURL:      goutil.String("https://example.com/offer"),
			ShortCode:        goutil.String("winner01"),
			ClickCount:       goutil.Uint64(0),
			UniqueClickCount: goutil.Uint64(0),
		},
	}
	r := newLinkRepoWith(baseRepo)

	// the loser's insert collides and resolves to the winner's row
	link, err := r.FindOrCreate(context.Background(), 1, "https://example.com/offer")
	require.NoError(t, err)
	assert.Equal(t, "winner01", link.GetShortCode())
	assert.Len(t, baseRepo.rows, 1)
}

func TestLinkFindOrCreateGivesUpAfterCollisions(t *testing.T) {
	baseRepo := &fakeLinkBaseRepo{failCreates: shortCodeAttempts + 1}
	r := newLinkRepoWith(baseRepo)

	_, err := r.FindOrCreate(context.Background(), 1, "https://example.com/offer")
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
	assert.Empty(t, baseRepo.rows)
}
