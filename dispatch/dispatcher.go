package dispatch

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"mailflow/config"
	"mailflow/dep"
	"mailflow/entity"
	"mailflow/pkg/errutil"
	"mailflow/pkg/goutil"
	"mailflow/pkg/mq"
	"mailflow/repo"
)

var (
	ErrDomainNotVerified   = errors.New("sending domain is not verified")
	ErrEmptyAudience       = errors.New("campaign audience is empty")
	ErrSenderNotConfigured = errors.New("email provider is not configured")
	ErrSendBudgetExhausted = errors.New("provider send budget exhausted")
)

// Dispatcher sends a claimed campaign to its audience. It is shared by
// the scheduled campaign runner and the send-now handler, both hand it
// a campaign already in SENDING.
type Dispatcher struct {
	cfg           *config.Config
	campaignRepo  repo.CampaignRepo
	recipientRepo repo.RecipientRepo
	linkRepo      repo.LinkRepo
	contactRepo   repo.ContactRepo
	providerRepo  repo.ProviderRepo
	templateRepo  repo.TemplateRepo
	domainRepo    repo.DomainRepo
	rateLimitRepo repo.RateLimitRepo
	queryRepo     repo.QueryRepo
	senderFactory *dep.SenderFactory
	producer      *mq.Producer
}

func New(
	cfg *config.Config,
	campaignRepo repo.CampaignRepo,
	recipientRepo repo.RecipientRepo,
	linkRepo repo.LinkRepo,
	contactRepo repo.ContactRepo,
	providerRepo repo.ProviderRepo,
	templateRepo repo.TemplateRepo,
	domainRepo repo.DomainRepo,
	rateLimitRepo repo.RateLimitRepo,
	queryRepo repo.QueryRepo,
	senderFactory *dep.SenderFactory,
	producer *mq.Producer,
) *Dispatcher {
	return &Dispatcher{
		cfg:           cfg,
		campaignRepo:  campaignRepo,
		recipientRepo: recipientRepo,
		linkRepo:      linkRepo,
		contactRepo:   contactRepo,
		providerRepo:  providerRepo,
		templateRepo:  templateRepo,
		domainRepo:    domainRepo,
		rateLimitRepo: rateLimitRepo,
		queryRepo:     queryRepo,
		senderFactory: senderFactory,
		producer:      producer,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, campaign *entity.Campaign) error {
	if err := campaign.ValidateReady(); err != nil {
		return d.failCampaign(ctx, campaign, err)
	}

	provider, template, err := d.loadSendingDeps(ctx, campaign)
	if err != nil {
		return d.failCampaign(ctx, campaign, err)
	}

	sender, err := d.senderFactory.Sender(provider.GetType())
	if err != nil {
		return d.failCampaign(ctx, campaign, err)
	}
	if !sender.IsConfigured() {
		return d.failCampaign(ctx, campaign, errutil.PermanentProviderError(ErrSenderNotConfigured))
	}

	contacts, err := d.resolveAudience(ctx, campaign)
	if err != nil {
		return d.failCampaign(ctx, campaign, err)
	}
	if len(contacts) == 0 {
		return d.failCampaign(ctx, campaign, ErrEmptyAudience)
	}

	if err := d.createRecipients(ctx, campaign, contacts); err != nil {
		return d.failCampaign(ctx, campaign, err)
	}

	pending, err := d.recipientRepo.GetByCampaignIDAndStatus(ctx, campaign.GetID(), entity.RecipientStatusPending)
	if err != nil {
		return d.failCampaign(ctx, campaign, err)
	}

	var limiter *rate.Limiter
	if speed := campaign.GetSendSpeed(); speed > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(speed)/60.0), 1)
	}

	var sent, failed uint64
	for _, recipient := range pending {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				break
			}
		}

		retryAt, err := d.acquireBudget(ctx, provider)
		if err != nil {
			if errutil.IsKind(err, errutil.KindRateLimited) {
				// budget exhausted, push the campaign back to the window
				// reset and let the pending recipients resume then
				if err := d.addCountsAndLog(ctx, campaign, sent, failed); err != nil {
					return err
				}
				return d.deferCampaign(ctx, campaign, retryAt)
			}
			log.Ctx(ctx).Error().Msgf("acquire send budget failed, campaign_id: %d, err: %v", campaign.GetID(), err)
			break
		}

		if d.sendOne(ctx, campaign, template, sender, recipient) {
			sent++
		} else {
			failed++
		}
	}

	if err := d.addCountsAndLog(ctx, campaign, sent, failed); err != nil {
		return err
	}

	return d.maybeComplete(ctx, campaign)
}

func (d *Dispatcher) loadSendingDeps(ctx context.Context, campaign *entity.Campaign) (*entity.Provider, *entity.Template, error) {
	provider, err := d.providerRepo.GetByID(ctx, campaign.GetProviderID())
	if err != nil {
		return nil, nil, err
	}

	template, err := d.templateRepo.GetByID(ctx, campaign.GetTemplateID())
	if err != nil {
		return nil, nil, err
	}

	if campaign.GetDomainID() != 0 {
		domain, err := d.domainRepo.GetByID(ctx, campaign.GetDomainID())
		if err != nil {
			return nil, nil, err
		}
		if !domain.GetVerified() {
			return nil, nil, ErrDomainNotVerified
		}
	}

	return provider, template, nil
}

func (d *Dispatcher) resolveAudience(ctx context.Context, campaign *entity.Campaign) ([]*entity.Contact, error) {
	if campaign.GetListID() != 0 {
		return d.contactRepo.GetSubscribedByListID(ctx, campaign.GetListID())
	}

	contactIDs, err := d.queryRepo.ResolveSegment(ctx, campaign.GetSegmentID())
	if err != nil {
		return nil, err
	}

	return d.contactRepo.GetSubscribedByIDs(ctx, contactIDs)
}

// createRecipients is idempotent. Rows already created by an earlier,
// interrupted run are kept as-is.
func (d *Dispatcher) createRecipients(ctx context.Context, campaign *entity.Campaign, contacts []*entity.Contact) error {
	for _, contact := range contacts {
		recipient := &entity.Recipient{
			CampaignID: campaign.ID,
			ContactID:  contact.ID,
			Email:      contact.Email,
			Status:     entity.RecipientStatusPending,
			TrackingID: goutil.String(goutil.NewTrackingID()),
			OpenCount:  goutil.Uint64(0),
			ClickCount: goutil.Uint64(0),
			RetryCount: goutil.Uint64(0),
		}
		if err := d.recipientRepo.Create(ctx, recipient); err != nil {
			if errors.Is(err, repo.ErrRecipientExists) {
				continue
			}
			return err
		}
	}

	total, err := d.recipientRepo.CountTerminalByCampaignID(ctx, campaign.GetID())
	if err != nil {
		return err
	}
	pendingCount, err := d.recipientRepo.CountByCampaignIDAndStatus(ctx, campaign.GetID(), entity.RecipientStatusPending)
	if err != nil {
		return err
	}

	return d.campaignRepo.Update(ctx, &entity.Campaign{
		ID:              campaign.ID,
		TotalRecipients: goutil.Uint64(total + pendingCount),
	})
}

// acquireBudget reserves one send from the provider's daily and monthly
// windows. Exhaustion surfaces as a rate-limited error along with the
// window reset time.
func (d *Dispatcher) acquireBudget(ctx context.Context, provider *entity.Provider) (uint64, error) {
	ok, retryAt, err := d.rateLimitRepo.TryAcquire(ctx, provider.GetID(), repo.ResourceDaily, provider.GetDailyLimit(), 1)
	if err != nil {
		return 0, err
	}
	if !ok {
		return retryAt, errutil.RateLimitError(ErrSendBudgetExhausted)
	}

	ok, retryAt, err = d.rateLimitRepo.TryAcquire(ctx, provider.GetID(), repo.ResourceMonthly, provider.GetMonthlyLimit(), 1)
	if err != nil {
		return 0, err
	}
	if !ok {
		return retryAt, errutil.RateLimitError(ErrSendBudgetExhausted)
	}

	return 0, nil
}

// sendOne drives one recipient to a terminal state and reports whether
// the send succeeded.
func (d *Dispatcher) sendOne(
	ctx context.Context,
	campaign *entity.Campaign,
	template *entity.Template,
	sender dep.EmailSender,
	recipient *entity.Recipient,
) bool {
	contact, err := d.contactRepo.GetByID(ctx, recipient.GetContactID())
	if err != nil {
		log.Ctx(ctx).Error().Msgf("load contact failed, recipient_id: %d, err: %v", recipient.GetID(), err)
		d.markFailed(ctx, recipient, 0, err)
		return false
	}

	html, text, err := d.render(ctx, campaign, template, contact, recipient)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("render failed, recipient_id: %d, err: %v", recipient.GetID(), err)
		d.markFailed(ctx, recipient, 0, err)
		return false
	}

	req := &dep.SendRequest{
		ToEmail:     recipient.GetEmail(),
		ToName:      contact.GetFirstName(),
		FromEmail:   campaign.GetFromEmail(),
		FromName:    campaign.GetFromName(),
		ReplyTo:     campaign.GetReplyTo(),
		Subject:     personalize(campaign.GetSubject(), contact),
		HtmlContent: html,
		TextContent: text,
		TrackingID:  recipient.GetTrackingID(),
	}

	maxRetries := campaign.GetMaxRetries()
	if maxRetries == 0 {
		maxRetries = uint64(d.cfg.Dispatcher.MaxRetries)
	}
	if !campaign.GetRetryFailed() {
		maxRetries = 0
	}

	var attempts uint64
	operation := func() error {
		attempts++

		sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		_, err := sender.Send(sendCtx, req)
		if err != nil && !errutil.IsRetriable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries)
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		log.Ctx(ctx).Error().Msgf("send failed, recipient_id: %d, attempts: %d, err: %v", recipient.GetID(), attempts, err)
		d.markFailed(ctx, recipient, attempts-1, err)
		return false
	}

	now := uint64(time.Now().Unix())
	if err := d.recipientRepo.MarkSent(ctx, recipient.GetID(), now); err != nil {
		log.Ctx(ctx).Error().Msgf("mark sent failed, recipient_id: %d, err: %v", recipient.GetID(), err)
	}

	d.publishEvent(ctx, campaign.GetID(), recipient.GetContactID(), recipient.GetEmail(), "sent")

	return true
}

func (d *Dispatcher) markFailed(ctx context.Context, recipient *entity.Recipient, retries uint64, cause error) {
	if err := d.recipientRepo.MarkFailed(ctx, recipient.GetID(), retries, cause.Error()); err != nil {
		log.Ctx(ctx).Error().Msgf("mark failed failed, recipient_id: %d, err: %v", recipient.GetID(), err)
	}
}

func (d *Dispatcher) addCountsAndLog(ctx context.Context, campaign *entity.Campaign, sent, failed uint64) error {
	if sent == 0 && failed == 0 {
		return nil
	}
	if err := d.campaignRepo.AddCounts(ctx, campaign.GetID(), sent, failed, 0, 0); err != nil {
		log.Ctx(ctx).Error().Msgf("add campaign counts failed, campaign_id: %d, err: %v", campaign.GetID(), err)
		return err
	}
	return nil
}

func (d *Dispatcher) maybeComplete(ctx context.Context, campaign *entity.Campaign) error {
	pendingCount, err := d.recipientRepo.CountByCampaignIDAndStatus(ctx, campaign.GetID(), entity.RecipientStatusPending)
	if err != nil {
		return err
	}
	if pendingCount > 0 {
		return nil
	}

	now := uint64(time.Now().Unix())
	err = d.campaignRepo.Update(ctx, &entity.Campaign{
		ID:     campaign.ID,
		Status: entity.CampaignStatusSent,
		SentAt: goutil.Uint64(now),
	})
	if err != nil {
		return err
	}

	return d.cacheRates(ctx, campaign.GetID())
}

func (d *Dispatcher) cacheRates(ctx context.Context, campaignID uint64) error {
	total, err := d.recipientRepo.CountTerminalByCampaignID(ctx, campaignID)
	if err != nil {
		return err
	}
	if total == 0 {
		return nil
	}

	delivered, err := d.recipientRepo.CountByCampaignIDAndStatus(ctx, campaignID, entity.RecipientStatusDelivered)
	if err != nil {
		return err
	}
	bounced, err := d.recipientRepo.CountByCampaignIDAndStatus(ctx, campaignID, entity.RecipientStatusBounced)
	if err != nil {
		return err
	}
	opened, err := d.recipientRepo.CountOpenedByCampaignID(ctx, campaignID)
	if err != nil {
		return err
	}
	clicked, err := d.recipientRepo.CountClickedByCampaignID(ctx, campaignID)
	if err != nil {
		return err
	}

	denominator := delivered
	if denominator == 0 {
		denominator = total
	}

	return d.campaignRepo.SetRates(ctx, campaignID,
		Percentage(opened, denominator),
		Percentage(clicked, denominator),
		Percentage(bounced, total),
	)
}

func (d *Dispatcher) deferCampaign(ctx context.Context, campaign *entity.Campaign, retryAt uint64) error {
	log.Ctx(ctx).Info().Msgf("send budget exhausted, deferring campaign, campaign_id: %d, retry_at: %d", campaign.GetID(), retryAt)

	return d.campaignRepo.Update(ctx, &entity.Campaign{
		ID:          campaign.ID,
		Status:      entity.CampaignStatusScheduled,
		ScheduledAt: goutil.Uint64(retryAt),
	})
}

func (d *Dispatcher) failCampaign(ctx context.Context, campaign *entity.Campaign, cause error) error {
	log.Ctx(ctx).Error().Msgf("campaign failed, campaign_id: %d, err: %v", campaign.GetID(), cause)

	return d.campaignRepo.Update(ctx, &entity.Campaign{
		ID:           campaign.ID,
		Status:       entity.CampaignStatusFailed,
		ErrorMessage: goutil.String(cause.Error()),
	})
}

func (d *Dispatcher) publishEvent(ctx context.Context, campaignID, contactID uint64, email, event string) {
	if d.producer == nil {
		return
	}

	err := d.producer.SendMessage(&mq.Message{
		Payload: mq.PayloadEmailEvent,
		Key:     goutil.NewID(),
		Body: &mq.EmailEvent{
			CampaignID: goutil.Uint64(campaignID),
			ContactID:  goutil.Uint64(contactID),
			Email:      goutil.String(email),
			Event:      goutil.String(event),
			Timestamp:  goutil.Uint64(uint64(time.Now().Unix())),
		},
	})
	if err != nil {
		log.Ctx(ctx).Error().Msgf("publish email event failed, campaign_id: %d, err: %v", campaignID, err)
	}
}

// Percentage returns part/whole as a percentage rounded half-up to two
// decimal places.
func Percentage(part, whole uint64) float64 {
	if whole == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(whole)*100*100) / 100
}
