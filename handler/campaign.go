package handler

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"mailflow/dispatch"
	"mailflow/entity"
	"mailflow/pkg/errutil"
	"mailflow/pkg/goutil"
	"mailflow/pkg/validator"
	"mailflow/repo"
)

var ErrCampaignNotSendable = errors.New("campaign can only be sent from draft or scheduled")

type CampaignHandler interface {
	CreateCampaign(ctx context.Context, req *CreateCampaignRequest, res *CreateCampaignResponse) error
	UpdateCampaign(ctx context.Context, req *UpdateCampaignRequest, res *UpdateCampaignResponse) error
	GetCampaign(ctx context.Context, req *GetCampaignRequest, res *GetCampaignResponse) error
	GetCampaigns(ctx context.Context, req *GetCampaignsRequest, res *GetCampaignsResponse) error
	ScheduleCampaign(ctx context.Context, req *ScheduleCampaignRequest, res *ScheduleCampaignResponse) error
	CancelCampaign(ctx context.Context, req *CancelCampaignRequest, res *CancelCampaignResponse) error
	SendCampaign(ctx context.Context, req *SendCampaignRequest, res *SendCampaignResponse) error
	DeleteCampaign(ctx context.Context, req *DeleteCampaignRequest, res *DeleteCampaignResponse) error
}

type campaignHandler struct {
	campaignRepo  repo.CampaignRepo
	recipientRepo repo.RecipientRepo
	linkRepo      repo.LinkRepo
	clickRepo     repo.ClickRepo
	txService     repo.TxService
	dispatcher    *dispatch.Dispatcher
}

func NewCampaignHandler(
	campaignRepo repo.CampaignRepo,
	recipientRepo repo.RecipientRepo,
	linkRepo repo.LinkRepo,
	clickRepo repo.ClickRepo,
	txService repo.TxService,
	dispatcher *dispatch.Dispatcher,
) CampaignHandler {
	return &campaignHandler{
		campaignRepo:  campaignRepo,
		recipientRepo: recipientRepo,
		linkRepo:      linkRepo,
		clickRepo:     clickRepo,
		txService:     txService,
		dispatcher:    dispatcher,
	}
}

type CreateCampaignRequest struct {
	UserID      *uint64 `json:"user_id,omitempty"`
	Name        *string `json:"name,omitempty"`
	TemplateID  *uint64 `json:"template_id,omitempty"`
	ProviderID  *uint64 `json:"provider_id,omitempty"`
	ListID      *uint64 `json:"list_id,omitempty"`
	SegmentID   *uint64 `json:"segment_id,omitempty"`
	DomainID    *uint64 `json:"domain_id,omitempty"`
	FromName    *string `json:"from_name,omitempty"`
	FromEmail   *string `json:"from_email,omitempty"`
	ReplyTo     *string `json:"reply_to,omitempty"`
	Subject     *string `json:"subject,omitempty"`
	PreviewText *string `json:"preview_text,omitempty"`
	TrackOpens  *bool   `json:"track_opens,omitempty"`
	TrackClicks *bool   `json:"track_clicks,omitempty"`
	SendSpeed   *uint64 `json:"send_speed,omitempty"`
	RetryFailed *bool   `json:"retry_failed,omitempty"`
	MaxRetries  *uint64 `json:"max_retries,omitempty"`
}

func (r *CreateCampaignRequest) GetUserID() uint64 {
	if r != nil && r.UserID != nil {
		return *r.UserID
	}
	return 0
}

type CreateCampaignResponse struct {
	Campaign *entity.Campaign `json:"campaign,omitempty"`
}

var CreateCampaignValidator = validator.MustForm(map[string]validator.Validator{
	"user_id":    &validator.UInt64{},
	"name":       NameValidator(false),
	"from_email": EmailValidator(true),
	"reply_to":   EmailValidator(true),
	"subject":    &validator.String{Optional: true, MaxLen: 255},
})

func (h *campaignHandler) CreateCampaign(ctx context.Context, req *CreateCampaignRequest, res *CreateCampaignResponse) error {
	if err := CreateCampaignValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	campaign := &entity.Campaign{
		UserID:      req.UserID,
		Name:        req.Name,
		Status:      entity.CampaignStatusDraft,
		TemplateID:  req.TemplateID,
		ProviderID:  req.ProviderID,
		ListID:      req.ListID,
		SegmentID:   req.SegmentID,
		DomainID:    req.DomainID,
		FromName:    req.FromName,
		FromEmail:   req.FromEmail,
		ReplyTo:     req.ReplyTo,
		Subject:     req.Subject,
		PreviewText: req.PreviewText,
		TrackOpens:  req.TrackOpens,
		TrackClicks: req.TrackClicks,
		SendSpeed:   req.SendSpeed,
		RetryFailed: req.RetryFailed,
		MaxRetries:  req.MaxRetries,
	}

	if _, err := h.campaignRepo.Create(ctx, campaign); err != nil {
		log.Ctx(ctx).Error().Msgf("create campaign failed: %v", err)
		return err
	}

	res.Campaign = campaign

	return nil
}

type UpdateCampaignRequest struct {
	UserID     *uint64 `json:"user_id,omitempty"`
	CampaignID *uint64 `json:"campaign_id,omitempty"`

	Name        *string `json:"name,omitempty"`
	TemplateID  *uint64 `json:"template_id,omitempty"`
	ProviderID  *uint64 `json:"provider_id,omitempty"`
	ListID      *uint64 `json:"list_id,omitempty"`
	SegmentID   *uint64 `json:"segment_id,omitempty"`
	DomainID    *uint64 `json:"domain_id,omitempty"`
	FromName    *string `json:"from_name,omitempty"`
	FromEmail   *string `json:"from_email,omitempty"`
	ReplyTo     *string `json:"reply_to,omitempty"`
	Subject     *string `json:"subject,omitempty"`
	PreviewText *string `json:"preview_text,omitempty"`
	TrackOpens  *bool   `json:"track_opens,omitempty"`
	TrackClicks *bool   `json:"track_clicks,omitempty"`
	SendSpeed   *uint64 `json:"send_speed,omitempty"`
	RetryFailed *bool   `json:"retry_failed,omitempty"`
	MaxRetries  *uint64 `json:"max_retries,omitempty"`
}

func (r *UpdateCampaignRequest) GetUserID() uint64 {
	if r != nil && r.UserID != nil {
		return *r.UserID
	}
	return 0
}

func (r *UpdateCampaignRequest) GetCampaignID() uint64 {
	if r != nil && r.CampaignID != nil {
		return *r.CampaignID
	}
	return 0
}

type UpdateCampaignResponse struct {
	Campaign *entity.Campaign `json:"campaign,omitempty"`
}

var UpdateCampaignValidator = validator.MustForm(map[string]validator.Validator{
	"user_id":     &validator.UInt64{},
	"campaign_id": &validator.UInt64{},
	"name":        NameValidator(true),
	"from_email":  EmailValidator(true),
	"reply_to":    EmailValidator(true),
	"subject":     &validator.String{Optional: true, MaxLen: 255},
})

func (h *campaignHandler) UpdateCampaign(ctx context.Context, req *UpdateCampaignRequest, res *UpdateCampaignResponse) error {
	if err := UpdateCampaignValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	campaign, err := h.getCampaign(ctx, req.GetCampaignID(), req.GetUserID())
	if err != nil {
		return err
	}

	if err := campaign.CanEdit(); err != nil {
		return errutil.ConflictError(err)
	}

	update := &entity.Campaign{
		ID:          campaign.ID,
		Name:        req.Name,
		TemplateID:  req.TemplateID,
		ProviderID:  req.ProviderID,
		ListID:      req.ListID,
		SegmentID:   req.SegmentID,
		DomainID:    req.DomainID,
		FromName:    req.FromName,
		FromEmail:   req.FromEmail,
		ReplyTo:     req.ReplyTo,
		Subject:     req.Subject,
		PreviewText: req.PreviewText,
		TrackOpens:  req.TrackOpens,
		TrackClicks: req.TrackClicks,
		SendSpeed:   req.SendSpeed,
		RetryFailed: req.RetryFailed,
		MaxRetries:  req.MaxRetries,
	}
	if err := h.campaignRepo.Update(ctx, update); err != nil {
		log.Ctx(ctx).Error().Msgf("update campaign failed, campaign_id: %d, err: %v", campaign.GetID(), err)
		return err
	}

	campaign, err = h.getCampaign(ctx, req.GetCampaignID(), req.GetUserID())
	if err != nil {
		return err
	}
	res.Campaign = campaign

	return nil
}

type GetCampaignRequest struct {
	UserID     *uint64 `json:"user_id,omitempty" schema:"user_id"`
	CampaignID *uint64 `json:"campaign_id,omitempty" schema:"campaign_id"`
}

func (r *GetCampaignRequest) GetUserID() uint64 {
	if r != nil && r.UserID != nil {
		return *r.UserID
	}
	return 0
}

func (r *GetCampaignRequest) GetCampaignID() uint64 {
	if r != nil && r.CampaignID != nil {
		return *r.CampaignID
	}
	return 0
}

type GetCampaignResponse struct {
	Campaign *entity.Campaign `json:"campaign,omitempty"`
}

var GetCampaignValidator = validator.MustForm(map[string]validator.Validator{
	"user_id":     &validator.UInt64{},
	"campaign_id": &validator.UInt64{},
})

func (h *campaignHandler) GetCampaign(ctx context.Context, req *GetCampaignRequest, res *GetCampaignResponse) error {
	if err := GetCampaignValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	campaign, err := h.getCampaign(ctx, req.GetCampaignID(), req.GetUserID())
	if err != nil {
		return err
	}
	res.Campaign = campaign

	return nil
}

type GetCampaignsRequest struct {
	UserID     *uint64          `json:"user_id,omitempty" schema:"user_id"`
	Pagination *repo.Pagination `json:"pagination,omitempty"`
}

func (r *GetCampaignsRequest) GetUserID() uint64 {
	if r != nil && r.UserID != nil {
		return *r.UserID
	}
	return 0
}

type GetCampaignsResponse struct {
	Campaigns  []*entity.Campaign `json:"campaigns"`
	Pagination *repo.Pagination   `json:"pagination,omitempty"`
}

var GetCampaignsValidator = validator.MustForm(map[string]validator.Validator{
	"user_id":    &validator.UInt64{},
	"pagination": PaginationValidator(),
})

func (h *campaignHandler) GetCampaigns(ctx context.Context, req *GetCampaignsRequest, res *GetCampaignsResponse) error {
	if err := GetCampaignsValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	if req.Pagination == nil {
		req.Pagination = new(repo.Pagination)
	}

	campaigns, pagination, err := h.campaignRepo.GetManyByUserID(ctx, req.GetUserID(), req.Pagination)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("get campaigns failed: %v", err)
		return err
	}

	res.Campaigns = campaigns
	res.Pagination = pagination

	return nil
}

type ScheduleCampaignRequest struct {
	UserID      *uint64 `json:"user_id,omitempty"`
	CampaignID  *uint64 `json:"campaign_id,omitempty"`
	ScheduledAt *uint64 `json:"scheduled_at,omitempty"`
}

func (r *ScheduleCampaignRequest) GetUserID() uint64 {
	if r != nil && r.UserID != nil {
		return *r.UserID
	}
	return 0
}

func (r *ScheduleCampaignRequest) GetCampaignID() uint64 {
	if r != nil && r.CampaignID != nil {
		return *r.CampaignID
	}
	return 0
}

func (r *ScheduleCampaignRequest) GetScheduledAt() uint64 {
	if r != nil && r.ScheduledAt != nil {
		return *r.ScheduledAt
	}
	return 0
}

type ScheduleCampaignResponse struct {
	Campaign *entity.Campaign `json:"campaign,omitempty"`
}

var ScheduleCampaignValidator = validator.MustForm(map[string]validator.Validator{
	"user_id":      &validator.UInt64{},
	"campaign_id":  &validator.UInt64{},
	"scheduled_at": &validator.UInt64{},
})

func (h *campaignHandler) ScheduleCampaign(ctx context.Context, req *ScheduleCampaignRequest, res *ScheduleCampaignResponse) error {
	if err := ScheduleCampaignValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	campaign, err := h.getCampaign(ctx, req.GetCampaignID(), req.GetUserID())
	if err != nil {
		return err
	}

	if err := campaign.CanSchedule(req.GetScheduledAt()); err != nil {
		if errors.Is(err, entity.ErrScheduleTimeInPast) {
			return errutil.ValidationFieldError(err, "scheduled_at")
		}
		return errutil.ConflictError(err)
	}

	if err := campaign.ValidateReady(); err != nil {
		return errutil.ValidationError(err)
	}

	err = h.campaignRepo.Update(ctx, &entity.Campaign{
		ID:          campaign.ID,
		Status:      entity.CampaignStatusScheduled,
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		log.Ctx(ctx).Error().Msgf("schedule campaign failed, campaign_id: %d, err: %v", campaign.GetID(), err)
		return err
	}

	campaign.Status = entity.CampaignStatusScheduled
	campaign.ScheduledAt = req.ScheduledAt
	res.Campaign = campaign

	return nil
}

type CancelCampaignRequest struct {
	UserID     *uint64 `json:"user_id,omitempty"`
	CampaignID *uint64 `json:"campaign_id,omitempty"`
}

func (r *CancelCampaignRequest) GetUserID() uint64 {
	if r != nil && r.UserID != nil {
		return *r.UserID
	}
	return 0
}

func (r *CancelCampaignRequest) GetCampaignID() uint64 {
	if r != nil && r.CampaignID != nil {
		return *r.CampaignID
	}
	return 0
}

type CancelCampaignResponse struct {
	Campaign *entity.Campaign `json:"campaign,omitempty"`
}

var CancelCampaignValidator = validator.MustForm(map[string]validator.Validator{
	"user_id":     &validator.UInt64{},
	"campaign_id": &validator.UInt64{},
})

func (h *campaignHandler) CancelCampaign(ctx context.Context, req *CancelCampaignRequest, res *CancelCampaignResponse) error {
	if err := CancelCampaignValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	campaign, err := h.getCampaign(ctx, req.GetCampaignID(), req.GetUserID())
	if err != nil {
		return err
	}

	if err := campaign.CanCancel(); err != nil {
		return errutil.ConflictError(err)
	}

	err = h.campaignRepo.Update(ctx, &entity.Campaign{
		ID:     campaign.ID,
		Status: entity.CampaignStatusDraft,
	})
	if err != nil {
		log.Ctx(ctx).Error().Msgf("cancel campaign failed, campaign_id: %d, err: %v", campaign.GetID(), err)
		return err
	}

	campaign.Status = entity.CampaignStatusDraft
	res.Campaign = campaign

	return nil
}

type SendCampaignRequest struct {
	UserID     *uint64 `json:"user_id,omitempty"`
	CampaignID *uint64 `json:"campaign_id,omitempty"`
}

func (r *SendCampaignRequest) GetUserID() uint64 {
	if r != nil && r.UserID != nil {
		return *r.UserID
	}
	return 0
}

func (r *SendCampaignRequest) GetCampaignID() uint64 {
	if r != nil && r.CampaignID != nil {
		return *r.CampaignID
	}
	return 0
}

type SendCampaignResponse struct {
	Campaign *entity.Campaign `json:"campaign,omitempty"`
}

var SendCampaignValidator = validator.MustForm(map[string]validator.Validator{
	"user_id":     &validator.UInt64{},
	"campaign_id": &validator.UInt64{},
})

// SendCampaign moves a draft or scheduled campaign straight into
// SENDING and hands it to the dispatcher in the background. The claim
// is conditional, so a concurrent scheduler poll cannot double-send.
func (h *campaignHandler) SendCampaign(ctx context.Context, req *SendCampaignRequest, res *SendCampaignResponse) error {
	if err := SendCampaignValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	campaign, err := h.getCampaign(ctx, req.GetCampaignID(), req.GetUserID())
	if err != nil {
		return err
	}

	switch campaign.GetStatus() {
	case entity.CampaignStatusDraft, entity.CampaignStatusScheduled:
	default:
		return errutil.ConflictError(ErrCampaignNotSendable)
	}

	if err := campaign.ValidateReady(); err != nil {
		if failErr := h.campaignRepo.Update(ctx, &entity.Campaign{
			ID:           campaign.ID,
			Status:       entity.CampaignStatusFailed,
			ErrorMessage: goutil.String(err.Error()),
		}); failErr != nil {
			log.Ctx(ctx).Error().Msgf("mark campaign failed failed, campaign_id: %d, err: %v", campaign.GetID(), failErr)
		}
		return errutil.ValidationError(err)
	}

	claimed, err := h.campaignRepo.ClaimForSending(ctx, campaign.GetID(), campaign.GetStatus())
	if err != nil {
		log.Ctx(ctx).Error().Msgf("claim campaign failed, campaign_id: %d, err: %v", campaign.GetID(), err)
		return err
	}
	if !claimed {
		return errutil.ConflictError(ErrCampaignNotSendable)
	}

	campaign.Status = entity.CampaignStatusSending

	go func(c *entity.Campaign) {
		dispatchCtx := log.Ctx(ctx).WithContext(context.Background())
		if err := h.dispatcher.Dispatch(dispatchCtx, c); err != nil {
			log.Ctx(dispatchCtx).Error().Msgf("dispatch campaign failed, campaign_id: %d, err: %v", c.GetID(), err)
		}
	}(campaign)

	res.Campaign = campaign

	return nil
}

type DeleteCampaignRequest struct {
	UserID     *uint64 `json:"user_id,omitempty"`
	CampaignID *uint64 `json:"campaign_id,omitempty"`
}

func (r *DeleteCampaignRequest) GetUserID() uint64 {
	if r != nil && r.UserID != nil {
		return *r.UserID
	}
	return 0
}

func (r *DeleteCampaignRequest) GetCampaignID() uint64 {
	if r != nil && r.CampaignID != nil {
		return *r.CampaignID
	}
	return 0
}

type DeleteCampaignResponse struct{}

var DeleteCampaignValidator = validator.MustForm(map[string]validator.Validator{
	"user_id":     &validator.UInt64{},
	"campaign_id": &validator.UInt64{},
})

func (h *campaignHandler) DeleteCampaign(ctx context.Context, req *DeleteCampaignRequest, res *DeleteCampaignResponse) error {
	if err := DeleteCampaignValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	campaign, err := h.getCampaign(ctx, req.GetCampaignID(), req.GetUserID())
	if err != nil {
		return err
	}

	if err := campaign.CanEdit(); err != nil {
		return errutil.ConflictError(err)
	}

	return h.txService.RunTx(ctx, func(ctx context.Context) error {
		if err := h.clickRepo.DeleteByCampaignID(ctx, campaign.GetID()); err != nil {
			return err
		}
		if err := h.linkRepo.DeleteByCampaignID(ctx, campaign.GetID()); err != nil {
			return err
		}
		if err := h.recipientRepo.DeleteByCampaignID(ctx, campaign.GetID()); err != nil {
			return err
		}
		return h.campaignRepo.Delete(ctx, campaign.GetID())
	})
}

func (h *campaignHandler) getCampaign(ctx context.Context, campaignID, userID uint64) (*entity.Campaign, error) {
	campaign, err := h.campaignRepo.GetByIDAndUserID(ctx, campaignID, userID)
	if err != nil {
		if errors.Is(err, repo.ErrCampaignNotFound) {
			return nil, errutil.NotFoundError(err)
		}
		log.Ctx(ctx).Error().Msgf("get campaign failed, campaign_id: %d, err: %v", campaignID, err)
		return nil, err
	}
	return campaign, nil
}
