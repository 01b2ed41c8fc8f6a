package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailflow/entity"
	"mailflow/pkg/goutil"
)

func seedStatsCampaign(t *testing.T, campaignRepo *fakeCampaignRepo, recipientRepo *fakeRecipientRepo) *entity.Campaign {
	campaign := &entity.Campaign{
		UserID:           goutil.Uint64(7),
		Name:             goutil.String("launch"),
		Status:           entity.CampaignStatusSent,
		UnsubscribeCount: goutil.Uint64(2),
		ComplaintCount:   goutil.Uint64(1),
	}
	_, err := campaignRepo.Create(context.Background(), campaign)
	require.NoError(t, err)

	day1 := uint64(1700000000) // 2023-11-14 UTC
	day2 := day1 + 86400

	add := func(status entity.RecipientStatus, openedAt, clickedAt uint64) {
		r := &entity.Recipient{
			CampaignID: campaign.ID,
			Status:     status,
		}
		if openedAt != 0 {
			r.OpenedAt = goutil.Uint64(openedAt)
		}
		if clickedAt != 0 {
			r.ClickedAt = goutil.Uint64(clickedAt)
		}
		recipientRepo.add(r)
	}

	// 10 recipients: 6 delivered, 2 sent, 1 bounced, 1 failed
	add(entity.RecipientStatusDelivered, day1, day1)
	add(entity.RecipientStatusDelivered, day1, 0)
	add(entity.RecipientStatusDelivered, day2, day2)
	add(entity.RecipientStatusDelivered, day2, 0)
	add(entity.RecipientStatusDelivered, 0, 0)
	add(entity.RecipientStatusDelivered, 0, 0)
	add(entity.RecipientStatusSent, 0, 0)
	add(entity.RecipientStatusSent, 0, 0)
	add(entity.RecipientStatusBounced, 0, 0)
	add(entity.RecipientStatusFailed, 0, 0)

	return campaign
}

func TestGetCampaignStats(t *testing.T) {
	campaignRepo := newFakeCampaignRepo()
	recipientRepo := newFakeRecipientRepo()
	linkRepo := newFakeLinkRepo()

	campaign := seedStatsCampaign(t, campaignRepo, recipientRepo)

	linkA := linkRepo.add(campaign.GetID(), "https://example.com/a", "aaaa1111")
	linkA.ClickCount = goutil.Uint64(5)
	linkB := linkRepo.add(campaign.GetID(), "https://example.com/b", "bbbb2222")
	linkB.ClickCount = goutil.Uint64(9)

	h := NewAnalyticsHandler(campaignRepo, recipientRepo, linkRepo)

	res := new(GetCampaignStatsResponse)
	err := h.GetCampaignStats(context.Background(), &GetCampaignStatsRequest{
		UserID:     goutil.Uint64(7),
		CampaignID: campaign.ID,
	}, res)
	require.NoError(t, err)

	assert.Equal(t, uint64(10), *res.TotalRecipients)
	assert.Equal(t, uint64(9), *res.SentCount)
	assert.Equal(t, uint64(6), *res.DeliveredCount)
	assert.Equal(t, uint64(1), *res.BouncedCount)
	assert.Equal(t, uint64(1), *res.FailedCount)
	assert.Equal(t, uint64(4), *res.OpenedCount)
	assert.Equal(t, uint64(2), *res.ClickedCount)
	assert.Equal(t, uint64(2), *res.UnsubscribeCount)
	assert.Equal(t, uint64(1), *res.ComplaintCount)

	// engagement against delivered, the rest against the whole audience
	assert.Equal(t, 66.67, *res.OpenRate)
	assert.Equal(t, 33.33, *res.ClickRate)
	assert.Equal(t, 10.0, *res.BounceRate)
	assert.Equal(t, 60.0, *res.DeliveryRate)
	assert.Equal(t, 10.0, *res.ComplaintRate)
	assert.Equal(t, 50.0, *res.ClickToOpenRate)

	require.Len(t, res.Timeline, 2)
	assert.Equal(t, "2023-11-14", *res.Timeline[0].Date)
	assert.Equal(t, uint64(2), *res.Timeline[0].Opens)
	assert.Equal(t, uint64(1), *res.Timeline[0].Clicks)
	assert.Equal(t, "2023-11-15", *res.Timeline[1].Date)
	assert.Equal(t, uint64(2), *res.Timeline[1].Opens)
	assert.Equal(t, uint64(1), *res.Timeline[1].Clicks)

	require.Len(t, res.TopLinks, 2)
	assert.Equal(t, "bbbb2222", res.TopLinks[0].GetShortCode())
	assert.Equal(t, "aaaa1111", res.TopLinks[1].GetShortCode())
}

func TestGetCampaignStatsNoOpensZeroCTOR(t *testing.T) {
	campaignRepo := newFakeCampaignRepo()
	recipientRepo := newFakeRecipientRepo()

	campaign := &entity.Campaign{
		UserID: goutil.Uint64(7),
		Status: entity.CampaignStatusSent,
	}
	_, err := campaignRepo.Create(context.Background(), campaign)
	require.NoError(t, err)

	recipientRepo.add(&entity.Recipient{
		CampaignID: campaign.ID,
		Status:     entity.RecipientStatusDelivered,
	})

	h := NewAnalyticsHandler(campaignRepo, recipientRepo, newFakeLinkRepo())

	res := new(GetCampaignStatsResponse)
	err = h.GetCampaignStats(context.Background(), &GetCampaignStatsRequest{
		UserID:     goutil.Uint64(7),
		CampaignID: campaign.ID,
	}, res)
	require.NoError(t, err)

	assert.Equal(t, 0.0, *res.OpenRate)
	assert.Equal(t, 0.0, *res.ClickToOpenRate)
	assert.Empty(t, res.Timeline)
}

func TestGetCampaignStatsWrongUser(t *testing.T) {
	campaignRepo := newFakeCampaignRepo()
	recipientRepo := newFakeRecipientRepo()

	campaign := seedStatsCampaign(t, campaignRepo, recipientRepo)

	h := NewAnalyticsHandler(campaignRepo, recipientRepo, newFakeLinkRepo())

	err := h.GetCampaignStats(context.Background(), &GetCampaignStatsRequest{
		UserID:     goutil.Uint64(99),
		CampaignID: campaign.ID,
	}, new(GetCampaignStatsResponse))
	assert.Error(t, err)
}

func TestGetDashboard(t *testing.T) {
	campaignRepo := newFakeCampaignRepo()

	mk := func(total, sent, failed uint64, openRate, clickRate, bounceRate float64) {
		c := &entity.Campaign{
			UserID:          goutil.Uint64(7),
			Status:          entity.CampaignStatusSent,
			TotalRecipients: goutil.Uint64(total),
			SentCount:       goutil.Uint64(sent),
			FailedCount:     goutil.Uint64(failed),
			OpenRate:        goutil.Float64(openRate),
			ClickRate:       goutil.Float64(clickRate),
			BounceRate:      goutil.Float64(bounceRate),
		}
		_, err := campaignRepo.Create(context.Background(), c)
		require.NoError(t, err)
	}

	mk(100, 95, 5, 40, 20, 2)
	mk(50, 50, 0, 10, 5, 0)

	h := NewAnalyticsHandler(campaignRepo, newFakeRecipientRepo(), newFakeLinkRepo())

	res := new(GetDashboardResponse)
	err := h.GetDashboard(context.Background(), &GetDashboardRequest{UserID: goutil.Uint64(7)}, res)
	require.NoError(t, err)

	assert.Equal(t, uint64(2), *res.CampaignCount)
	assert.Equal(t, uint64(150), *res.TotalRecipients)
	assert.Equal(t, uint64(145), *res.TotalSent)
	assert.Equal(t, uint64(5), *res.TotalFailed)

	// weighted by audience size: (40*100 + 10*50) / 150
	assert.Equal(t, 30.0, *res.AvgOpenRate)
	assert.Equal(t, 15.0, *res.AvgClickRate)
	assert.InDelta(t, 1.33, *res.AvgBounceRate, 0.001)

	assert.Len(t, res.RecentCampaigns, 2)
}
