package run_campaigns

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailflow/config"
	"mailflow/entity"
	"mailflow/pkg/goutil"
	"mailflow/repo"
)

// Fakes embed the interface and implement only what the job touches.

type fakeCampaignRepo struct {
	repo.CampaignRepo

	mu      sync.Mutex
	polls   int
	due     []*entity.Campaign
	allow   bool
	claimed []uint64
	updated []*entity.Campaign
}

func (f *fakeCampaignRepo) GetDueScheduled(_ context.Context, now uint64) ([]*entity.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	return f.due, nil
}

func (f *fakeCampaignRepo) ClaimForSending(_ context.Context, id uint64, from entity.CampaignStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.allow {
		return false, nil
	}
	f.claimed = append(f.claimed, id)
	return true, nil
}

func (f *fakeCampaignRepo) Update(_ context.Context, campaign *entity.Campaign) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, campaign)
	return nil
}

func (f *fakeCampaignRepo) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func dueCampaign(id uint64) *entity.Campaign {
	return &entity.Campaign{
		ID:          goutil.Uint64(id),
		UserID:      goutil.Uint64(7),
		Status:      entity.CampaignStatusScheduled,
		TemplateID:  goutil.Uint64(10),
		ProviderID:  goutil.Uint64(20),
		ListID:      goutil.Uint64(30),
		FromEmail:   goutil.String("news@example.com"),
		Subject:     goutil.String("hello"),
		ScheduledAt: goutil.Uint64(uint64(time.Now().Unix()) - 60),
	}
}

func newJob(campaignRepo *fakeCampaignRepo) *RunCampaigns {
	cfg := config.NewConfig()
	cfg.Dispatcher.PollIntervalSecs = 1
	return &RunCampaigns{cfg: cfg, campaignRepo: campaignRepo}
}

func TestRunStopsWhenContextCanceled(t *testing.T) {
	campaignRepo := new(fakeCampaignRepo)
	j := newJob(campaignRepo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- j.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}

	// the first poll happens before the cancel is observed
	assert.Equal(t, 1, campaignRepo.pollCount())
}

func TestRunOneSkipsLostClaim(t *testing.T) {
	campaignRepo := &fakeCampaignRepo{allow: false}
	j := newJob(campaignRepo)

	// dispatcher is nil, losing the claim must return before it is used
	j.runOne(context.Background(), dueCampaign(1))

	assert.Empty(t, campaignRepo.claimed)
	assert.Empty(t, campaignRepo.updated)
}

func TestRunOneMarksStaleCampaignFailed(t *testing.T) {
	campaignRepo := &fakeCampaignRepo{allow: true}
	j := newJob(campaignRepo)

	c := dueCampaign(1)
	c.TemplateID = nil
	j.runOne(context.Background(), c)

	assert.Empty(t, campaignRepo.claimed)
	require.Len(t, campaignRepo.updated, 1)
	assert.Equal(t, entity.CampaignStatusFailed, campaignRepo.updated[0].GetStatus())
	assert.NotEmpty(t, campaignRepo.updated[0].GetErrorMessage())
}
