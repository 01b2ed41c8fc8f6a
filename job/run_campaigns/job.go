package run_campaigns

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"mailflow/config"
	"mailflow/dispatch"
	"mailflow/entity"
	"mailflow/pkg/goutil"
	"mailflow/pkg/service"
	"mailflow/repo"
)

// RunCampaigns polls for scheduled campaigns whose send time has
// arrived, claims each one and hands it to the dispatcher. Multiple
// runners may poll concurrently, the conditional claim makes sure a
// campaign is dispatched exactly once.
type RunCampaigns struct {
	cfg          *config.Config
	campaignRepo repo.CampaignRepo
	dispatcher   *dispatch.Dispatcher
}

func New(cfg *config.Config, campaignRepo repo.CampaignRepo, dispatcher *dispatch.Dispatcher) service.Job {
	return &RunCampaigns{
		cfg:          cfg,
		campaignRepo: campaignRepo,
		dispatcher:   dispatcher,
	}
}

func (j *RunCampaigns) Init(ctx context.Context) error {
	return nil
}

const defaultPollInterval = 30 * time.Second

// Run polls until the context is canceled. A single poll failing is
// logged and retried on the next tick.
func (j *RunCampaigns) Run(ctx context.Context) error {
	interval := time.Duration(j.cfg.Dispatcher.PollIntervalSecs) * time.Second
	if interval <= 0 {
		interval = defaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := j.poll(ctx); err != nil {
			log.Ctx(ctx).Error().Msgf("poll campaigns failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (j *RunCampaigns) poll(ctx context.Context) error {
	now := uint64(time.Now().Unix())

	due, err := j.campaignRepo.GetDueScheduled(ctx, now)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	log.Ctx(ctx).Info().Msgf("found %d due campaigns", len(due))

	concurrency := j.cfg.Dispatcher.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	g := new(errgroup.Group)
	g.SetLimit(concurrency)

	for _, campaign := range due {
		campaign := campaign
		g.Go(func() error {
			j.runOne(ctx, campaign)
			return nil
		})
	}

	return g.Wait()
}

// runOne never propagates an error, one bad campaign must not abort
// the rest of the batch.
func (j *RunCampaigns) runOne(ctx context.Context, campaign *entity.Campaign) {
	// a campaign can go stale between scheduling and its send time,
	// e.g. its template or provider row was deleted
	if err := campaign.ValidateReady(); err != nil {
		log.Ctx(ctx).Error().Msgf("campaign no longer ready, campaign_id: %d, err: %v", campaign.GetID(), err)
		if updErr := j.campaignRepo.Update(ctx, &entity.Campaign{
			ID:           campaign.ID,
			Status:       entity.CampaignStatusFailed,
			ErrorMessage: goutil.String(err.Error()),
		}); updErr != nil {
			log.Ctx(ctx).Error().Msgf("mark campaign failed failed, campaign_id: %d, err: %v", campaign.GetID(), updErr)
		}
		return
	}

	claimed, err := j.campaignRepo.ClaimForSending(ctx, campaign.GetID(), entity.CampaignStatusScheduled)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("claim campaign failed, campaign_id: %d, err: %v", campaign.GetID(), err)
		return
	}
	if !claimed {
		// another runner or a send-now call got here first
		return
	}

	campaign.Status = entity.CampaignStatusSending

	if err := j.dispatcher.Dispatch(ctx, campaign); err != nil {
		log.Ctx(ctx).Error().Msgf("dispatch campaign failed, campaign_id: %d, err: %v", campaign.GetID(), err)
	}
}

func (j *RunCampaigns) CleanUp(ctx context.Context) error {
	return nil
}
