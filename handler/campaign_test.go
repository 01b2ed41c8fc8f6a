package handler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailflow/entity"
	"mailflow/pkg/errutil"
	"mailflow/pkg/goutil"
	"mailflow/repo"
)

type campaignFixture struct {
	campaignRepo  *fakeCampaignRepo
	recipientRepo *fakeRecipientRepo
	linkRepo      *fakeLinkRepo
	clickRepo     *fakeClickRepo
	handler       CampaignHandler
}

func newCampaignFixture() *campaignFixture {
	f := &campaignFixture{
		campaignRepo:  newFakeCampaignRepo(),
		recipientRepo: newFakeRecipientRepo(),
		linkRepo:      newFakeLinkRepo(),
		clickRepo:     newFakeClickRepo(),
	}
	f.handler = NewCampaignHandler(
		f.campaignRepo, f.recipientRepo, f.linkRepo, f.clickRepo, fakeTxService{}, nil)
	return f
}

func (f *campaignFixture) createDraft(t *testing.T) *entity.Campaign {
	res := new(CreateCampaignResponse)
	err := f.handler.CreateCampaign(context.Background(), &CreateCampaignRequest{
		UserID:     goutil.Uint64(7),
		Name:       goutil.String("launch"),
		TemplateID: goutil.Uint64(10),
		ProviderID: goutil.Uint64(20),
		ListID:     goutil.Uint64(30),
		FromEmail:  goutil.String("news@example.com"),
		Subject:    goutil.String("Hello"),
	}, res)
	require.NoError(t, err)
	require.NotNil(t, res.Campaign)
	return res.Campaign
}

func TestCreateCampaignStartsAsDraft(t *testing.T) {
	f := newCampaignFixture()

	campaign := f.createDraft(t)

	assert.Equal(t, entity.CampaignStatusDraft, campaign.GetStatus())
	assert.NotZero(t, campaign.GetID())
}

func TestCreateCampaignRejectsBadEmail(t *testing.T) {
	f := newCampaignFixture()

	err := f.handler.CreateCampaign(context.Background(), &CreateCampaignRequest{
		UserID:    goutil.Uint64(7),
		Name:      goutil.String("launch"),
		FromEmail: goutil.String("not-an-email"),
	}, new(CreateCampaignResponse))

	assert.Equal(t, errutil.KindValidation, errutil.KindOf(err))
}

func TestUpdateCampaignDraftOnly(t *testing.T) {
	f := newCampaignFixture()
	campaign := f.createDraft(t)

	res := new(UpdateCampaignResponse)
	err := f.handler.UpdateCampaign(context.Background(), &UpdateCampaignRequest{
		UserID:     goutil.Uint64(7),
		CampaignID: campaign.ID,
		Name:       goutil.String("relaunch"),
	}, res)
	require.NoError(t, err)
	assert.Equal(t, "relaunch", res.Campaign.GetName())

	campaign.Status = entity.CampaignStatusSent
	err = f.handler.UpdateCampaign(context.Background(), &UpdateCampaignRequest{
		UserID:     goutil.Uint64(7),
		CampaignID: campaign.ID,
		Name:       goutil.String("again"),
	}, res)
	assert.Equal(t, errutil.KindConflict, errutil.KindOf(err))
}

func TestScheduleCampaign(t *testing.T) {
	f := newCampaignFixture()
	campaign := f.createDraft(t)
	future := goutil.Uint64(uint64(time.Now().Add(time.Hour).Unix()))

	res := new(ScheduleCampaignResponse)
	err := f.handler.ScheduleCampaign(context.Background(), &ScheduleCampaignRequest{
		UserID:      goutil.Uint64(7),
		CampaignID:  campaign.ID,
		ScheduledAt: future,
	}, res)
	require.NoError(t, err)
	assert.Equal(t, entity.CampaignStatusScheduled, res.Campaign.GetStatus())
	assert.Equal(t, *future, res.Campaign.GetScheduledAt())
}

func TestScheduleCampaignRejectsPastTime(t *testing.T) {
	f := newCampaignFixture()
	campaign := f.createDraft(t)

	err := f.handler.ScheduleCampaign(context.Background(), &ScheduleCampaignRequest{
		UserID:      goutil.Uint64(7),
		CampaignID:  campaign.ID,
		ScheduledAt: goutil.Uint64(uint64(time.Now().Add(-time.Minute).Unix())),
	}, new(ScheduleCampaignResponse))

	assert.Equal(t, errutil.KindValidation, errutil.KindOf(err))
	assert.Equal(t, "scheduled_at", errutil.FieldOf(err))
	assert.Equal(t, entity.CampaignStatusDraft, campaign.GetStatus())
}

func TestScheduleCampaignRequiresReadiness(t *testing.T) {
	f := newCampaignFixture()

	res := new(CreateCampaignResponse)
	err := f.handler.CreateCampaign(context.Background(), &CreateCampaignRequest{
		UserID: goutil.Uint64(7),
		Name:   goutil.String("incomplete"),
	}, res)
	require.NoError(t, err)

	err = f.handler.ScheduleCampaign(context.Background(), &ScheduleCampaignRequest{
		UserID:      goutil.Uint64(7),
		CampaignID:  res.Campaign.ID,
		ScheduledAt: goutil.Uint64(uint64(time.Now().Add(time.Hour).Unix())),
	}, new(ScheduleCampaignResponse))

	assert.Equal(t, errutil.KindValidation, errutil.KindOf(err))
	assert.Equal(t, entity.CampaignStatusDraft, res.Campaign.GetStatus())
}

func TestCancelCampaignReturnsToDraft(t *testing.T) {
	f := newCampaignFixture()
	campaign := f.createDraft(t)
	campaign.Status = entity.CampaignStatusScheduled

	res := new(CancelCampaignResponse)
	err := f.handler.CancelCampaign(context.Background(), &CancelCampaignRequest{
		UserID:     goutil.Uint64(7),
		CampaignID: campaign.ID,
	}, res)
	require.NoError(t, err)
	assert.Equal(t, entity.CampaignStatusDraft, res.Campaign.GetStatus())

	// only scheduled campaigns can be cancelled
	err = f.handler.CancelCampaign(context.Background(), &CancelCampaignRequest{
		UserID:     goutil.Uint64(7),
		CampaignID: campaign.ID,
	}, res)
	assert.Equal(t, errutil.KindConflict, errutil.KindOf(err))
}

func TestSendCampaignConflictWhenSending(t *testing.T) {
	f := newCampaignFixture()
	campaign := f.createDraft(t)
	campaign.Status = entity.CampaignStatusSending

	err := f.handler.SendCampaign(context.Background(), &SendCampaignRequest{
		UserID:     goutil.Uint64(7),
		CampaignID: campaign.ID,
	}, new(SendCampaignResponse))

	assert.Equal(t, errutil.KindConflict, errutil.KindOf(err))
}

func TestSendCampaignNotReadyMarksFailed(t *testing.T) {
	f := newCampaignFixture()

	res := new(CreateCampaignResponse)
	err := f.handler.CreateCampaign(context.Background(), &CreateCampaignRequest{
		UserID: goutil.Uint64(7),
		Name:   goutil.String("incomplete"),
	}, res)
	require.NoError(t, err)

	err = f.handler.SendCampaign(context.Background(), &SendCampaignRequest{
		UserID:     goutil.Uint64(7),
		CampaignID: res.Campaign.ID,
	}, new(SendCampaignResponse))

	assert.Equal(t, errutil.KindValidation, errutil.KindOf(err))

	stored, getErr := f.campaignRepo.GetByID(context.Background(), res.Campaign.GetID())
	require.NoError(t, getErr)
	assert.Equal(t, entity.CampaignStatusFailed, stored.GetStatus())
}

func TestDeleteCampaignCascades(t *testing.T) {
	f := newCampaignFixture()
	campaign := f.createDraft(t)

	f.recipientRepo.add(&entity.Recipient{
		CampaignID: campaign.ID,
		ContactID:  goutil.Uint64(1),
		Status:     entity.RecipientStatusPending,
	})
	f.linkRepo.add(campaign.GetID(), "https://example.com", "abcd1234")
	require.NoError(t, f.clickRepo.Create(context.Background(), &entity.Click{
		CampaignID: campaign.ID,
		LinkID:     goutil.Uint64(1),
	}))

	err := f.handler.DeleteCampaign(context.Background(), &DeleteCampaignRequest{
		UserID:     goutil.Uint64(7),
		CampaignID: campaign.ID,
	}, new(DeleteCampaignResponse))
	require.NoError(t, err)

	_, err = f.campaignRepo.GetByID(context.Background(), campaign.GetID())
	assert.ErrorIs(t, err, repo.ErrCampaignNotFound)
	assert.Empty(t, f.recipientRepo.recipients)
	assert.Empty(t, f.linkRepo.links)
	assert.Empty(t, f.clickRepo.clicks)
}

func TestDeleteCampaignDraftOnly(t *testing.T) {
	f := newCampaignFixture()
	campaign := f.createDraft(t)
	campaign.Status = entity.CampaignStatusSent

	err := f.handler.DeleteCampaign(context.Background(), &DeleteCampaignRequest{
		UserID:     goutil.Uint64(7),
		CampaignID: campaign.ID,
	}, new(DeleteCampaignResponse))

	assert.Equal(t, errutil.KindConflict, errutil.KindOf(err))
}

func TestGetCampaignScopedToUser(t *testing.T) {
	f := newCampaignFixture()
	campaign := f.createDraft(t)

	res := new(GetCampaignResponse)
	err := f.handler.GetCampaign(context.Background(), &GetCampaignRequest{
		UserID:     goutil.Uint64(7),
		CampaignID: campaign.ID,
	}, res)
	require.NoError(t, err)
	assert.Equal(t, campaign.GetID(), res.Campaign.GetID())

	err = f.handler.GetCampaign(context.Background(), &GetCampaignRequest{
		UserID:     goutil.Uint64(99),
		CampaignID: campaign.ID,
	}, new(GetCampaignResponse))
	assert.Equal(t, errutil.KindNotFound, errutil.KindOf(err))
}

func TestClaimForSendingSingleWinner(t *testing.T) {
	f := newCampaignFixture()
	campaign := f.createDraft(t)
	campaign.Status = entity.CampaignStatusScheduled

	const racers = 16

	var (
		wg   sync.WaitGroup
		wins int64
	)
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func() {
			defer wg.Done()
			claimed, err := f.campaignRepo.ClaimForSending(
				context.Background(), campaign.GetID(), entity.CampaignStatusScheduled)
			assert.NoError(t, err)
			if claimed {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins)
	assert.Equal(t, entity.CampaignStatusSending, campaign.GetStatus())
}
