package handler

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"mailflow/dispatch"
	"mailflow/entity"
	"mailflow/pkg/errutil"
	"mailflow/pkg/goutil"
	"mailflow/pkg/validator"
	"mailflow/repo"
)

const (
	defaultTopLinks      = 10
	dashboardRecentCount = 5
	timelineDateLayout   = "2006-01-02"
)

type AnalyticsHandler interface {
	GetCampaignStats(ctx context.Context, req *GetCampaignStatsRequest, res *GetCampaignStatsResponse) error
	GetDashboard(ctx context.Context, req *GetDashboardRequest, res *GetDashboardResponse) error
}

type analyticsHandler struct {
	campaignRepo  repo.CampaignRepo
	recipientRepo repo.RecipientRepo
	linkRepo      repo.LinkRepo
}

func NewAnalyticsHandler(
	campaignRepo repo.CampaignRepo,
	recipientRepo repo.RecipientRepo,
	linkRepo repo.LinkRepo,
) AnalyticsHandler {
	return &analyticsHandler{
		campaignRepo:  campaignRepo,
		recipientRepo: recipientRepo,
		linkRepo:      linkRepo,
	}
}

type TimelinePoint struct {
	Date   *string `json:"date,omitempty"`
	Opens  *uint64 `json:"opens,omitempty"`
	Clicks *uint64 `json:"clicks,omitempty"`
}

type GetCampaignStatsRequest struct {
	UserID     *uint64 `json:"user_id,omitempty" schema:"user_id"`
	CampaignID *uint64 `json:"campaign_id,omitempty" schema:"campaign_id"`
}

func (r *GetCampaignStatsRequest) GetUserID() uint64 {
	if r != nil && r.UserID != nil {
		return *r.UserID
	}
	return 0
}

func (r *GetCampaignStatsRequest) GetCampaignID() uint64 {
	if r != nil && r.CampaignID != nil {
		return *r.CampaignID
	}
	return 0
}

type GetCampaignStatsResponse struct {
	TotalRecipients  *uint64 `json:"total_recipients,omitempty"`
	SentCount        *uint64 `json:"sent_count,omitempty"`
	DeliveredCount   *uint64 `json:"delivered_count,omitempty"`
	BouncedCount     *uint64 `json:"bounced_count,omitempty"`
	FailedCount      *uint64 `json:"failed_count,omitempty"`
	OpenedCount      *uint64 `json:"opened_count,omitempty"`
	ClickedCount     *uint64 `json:"clicked_count,omitempty"`
	UnsubscribeCount *uint64 `json:"unsubscribe_count,omitempty"`
	ComplaintCount   *uint64 `json:"complaint_count,omitempty"`

	OpenRate        *float64 `json:"open_rate,omitempty"`
	ClickRate       *float64 `json:"click_rate,omitempty"`
	BounceRate      *float64 `json:"bounce_rate,omitempty"`
	DeliveryRate    *float64 `json:"delivery_rate,omitempty"`
	ComplaintRate   *float64 `json:"complaint_rate,omitempty"`
	ClickToOpenRate *float64 `json:"click_to_open_rate,omitempty"`

	Timeline []*TimelinePoint `json:"timeline"`
	TopLinks []*entity.Link   `json:"top_links"`
}

var GetCampaignStatsValidator = validator.MustForm(map[string]validator.Validator{
	"user_id":     &validator.UInt64{},
	"campaign_id": &validator.UInt64{},
})

func (h *analyticsHandler) GetCampaignStats(ctx context.Context, req *GetCampaignStatsRequest, res *GetCampaignStatsResponse) error {
	if err := GetCampaignStatsValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	campaign, err := h.campaignRepo.GetByIDAndUserID(ctx, req.GetCampaignID(), req.GetUserID())
	if err != nil {
		if err == repo.ErrCampaignNotFound {
			return errutil.NotFoundError(err)
		}
		log.Ctx(ctx).Error().Msgf("get campaign failed, campaign_id: %d, err: %v", req.GetCampaignID(), err)
		return err
	}

	campaignID := campaign.GetID()

	recipients, err := h.recipientRepo.GetManyByCampaignID(ctx, campaignID)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("get recipients failed, campaign_id: %d, err: %v", campaignID, err)
		return err
	}

	total := uint64(len(recipients))

	var sent, delivered, bounced, failed, opened, clicked uint64
	for _, r := range recipients {
		switch r.GetStatus() {
		case entity.RecipientStatusSent:
			sent++
		case entity.RecipientStatusDelivered:
			sent++
			delivered++
		case entity.RecipientStatusBounced:
			sent++
			bounced++
		case entity.RecipientStatusComplained:
			sent++
			delivered++
		case entity.RecipientStatusFailed:
			failed++
		}
		if r.GetOpenedAt() != 0 {
			opened++
		}
		if r.GetClickedAt() != 0 {
			clicked++
		}
	}

	// engagement rates are against delivered mail when delivery is
	// known, otherwise against the whole audience
	denominator := delivered
	if denominator == 0 {
		denominator = total
	}

	res.TotalRecipients = goutil.Uint64(total)
	res.SentCount = goutil.Uint64(sent)
	res.DeliveredCount = goutil.Uint64(delivered)
	res.BouncedCount = goutil.Uint64(bounced)
	res.FailedCount = goutil.Uint64(failed)
	res.OpenedCount = goutil.Uint64(opened)
	res.ClickedCount = goutil.Uint64(clicked)
	res.UnsubscribeCount = goutil.Uint64(campaign.GetUnsubscribeCount())
	res.ComplaintCount = goutil.Uint64(campaign.GetComplaintCount())

	res.OpenRate = goutil.Float64(dispatch.Percentage(opened, denominator))
	res.ClickRate = goutil.Float64(dispatch.Percentage(clicked, denominator))
	res.BounceRate = goutil.Float64(dispatch.Percentage(bounced, total))
	res.DeliveryRate = goutil.Float64(dispatch.Percentage(delivered, total))
	res.ComplaintRate = goutil.Float64(dispatch.Percentage(campaign.GetComplaintCount(), total))

	// click-to-open only means something once somebody opened
	if opened > 0 {
		res.ClickToOpenRate = goutil.Float64(dispatch.Percentage(clicked, opened))
	} else {
		res.ClickToOpenRate = goutil.Float64(0)
	}

	res.Timeline = buildTimeline(recipients)

	topLinks, err := h.linkRepo.GetTopByCampaignID(ctx, campaignID, defaultTopLinks)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("get top links failed, campaign_id: %d, err: %v", campaignID, err)
		return err
	}
	res.TopLinks = topLinks

	return nil
}

// buildTimeline buckets first opens and first clicks by calendar date.
func buildTimeline(recipients []*entity.Recipient) []*TimelinePoint {
	type bucket struct {
		opens  uint64
		clicks uint64
	}
	buckets := make(map[string]*bucket)

	dateOf := func(ts uint64) string {
		return time.Unix(int64(ts), 0).UTC().Format(timelineDateLayout)
	}

	for _, r := range recipients {
		if ts := r.GetOpenedAt(); ts != 0 {
			date := dateOf(ts)
			if buckets[date] == nil {
				buckets[date] = new(bucket)
			}
			buckets[date].opens++
		}
		if ts := r.GetClickedAt(); ts != 0 {
			date := dateOf(ts)
			if buckets[date] == nil {
				buckets[date] = new(bucket)
			}
			buckets[date].clicks++
		}
	}

	dates := make([]string, 0, len(buckets))
	for date := range buckets {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	timeline := make([]*TimelinePoint, 0, len(dates))
	for _, date := range dates {
		timeline = append(timeline, &TimelinePoint{
			Date:   goutil.String(date),
			Opens:  goutil.Uint64(buckets[date].opens),
			Clicks: goutil.Uint64(buckets[date].clicks),
		})
	}

	return timeline
}

type GetDashboardRequest struct {
	UserID *uint64 `json:"user_id,omitempty" schema:"user_id"`
}

func (r *GetDashboardRequest) GetUserID() uint64 {
	if r != nil && r.UserID != nil {
		return *r.UserID
	}
	return 0
}

type GetDashboardResponse struct {
	CampaignCount    *uint64 `json:"campaign_count,omitempty"`
	TotalRecipients  *uint64 `json:"total_recipients,omitempty"`
	TotalSent        *uint64 `json:"total_sent,omitempty"`
	TotalFailed      *uint64 `json:"total_failed,omitempty"`
	TotalUnsubscribe *uint64 `json:"total_unsubscribe,omitempty"`
	TotalComplaint   *uint64 `json:"total_complaint,omitempty"`

	AvgOpenRate   *float64 `json:"avg_open_rate,omitempty"`
	AvgClickRate  *float64 `json:"avg_click_rate,omitempty"`
	AvgBounceRate *float64 `json:"avg_bounce_rate,omitempty"`

	RecentCampaigns []*entity.Campaign `json:"recent_campaigns"`
}

var GetDashboardValidator = validator.MustForm(map[string]validator.Validator{
	"user_id": &validator.UInt64{},
})

func (h *analyticsHandler) GetDashboard(ctx context.Context, req *GetDashboardRequest, res *GetDashboardResponse) error {
	if err := GetDashboardValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	campaigns, _, err := h.campaignRepo.GetManyByUserID(ctx, req.GetUserID(), new(repo.Pagination))
	if err != nil {
		log.Ctx(ctx).Error().Msgf("get campaigns failed: %v", err)
		return err
	}

	var (
		totalRecipients, totalSent, totalFailed  uint64
		totalUnsubscribe, totalComplaint         uint64
		openRateSum, clickRateSum, bounceRateSum float64
		weightSum                                uint64
	)
	for _, c := range campaigns {
		totalRecipients += c.GetTotalRecipients()
		totalSent += c.GetSentCount()
		totalFailed += c.GetFailedCount()
		totalUnsubscribe += c.GetUnsubscribeCount()
		totalComplaint += c.GetComplaintCount()

		// weight cached rates by audience size
		if w := c.GetTotalRecipients(); w > 0 {
			weightSum += w
			if c.OpenRate != nil {
				openRateSum += *c.OpenRate * float64(w)
			}
			if c.ClickRate != nil {
				clickRateSum += *c.ClickRate * float64(w)
			}
			if c.BounceRate != nil {
				bounceRateSum += *c.BounceRate * float64(w)
			}
		}
	}

	res.CampaignCount = goutil.Uint64(uint64(len(campaigns)))
	res.TotalRecipients = goutil.Uint64(totalRecipients)
	res.TotalSent = goutil.Uint64(totalSent)
	res.TotalFailed = goutil.Uint64(totalFailed)
	res.TotalUnsubscribe = goutil.Uint64(totalUnsubscribe)
	res.TotalComplaint = goutil.Uint64(totalComplaint)

	if weightSum > 0 {
		res.AvgOpenRate = goutil.Float64(round2(openRateSum / float64(weightSum)))
		res.AvgClickRate = goutil.Float64(round2(clickRateSum / float64(weightSum)))
		res.AvgBounceRate = goutil.Float64(round2(bounceRateSum / float64(weightSum)))
	} else {
		res.AvgOpenRate = goutil.Float64(0)
		res.AvgClickRate = goutil.Float64(0)
		res.AvgBounceRate = goutil.Float64(0)
	}

	recent, err := h.campaignRepo.GetRecentByUserID(ctx, req.GetUserID(), dashboardRecentCount)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("get recent campaigns failed: %v", err)
		return err
	}
	res.RecentCampaigns = recent

	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
