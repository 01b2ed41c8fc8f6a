package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"mailflow/entity"
	"mailflow/pkg/goutil"
)

var (
	ErrEventExists   = errors.New("webhook event already exists")
	ErrEventNotFound = errors.New("webhook event not found")
)

type WebhookEvent struct {
	ID              *uint64
	UserID          *uint64
	ProviderID      *uint64
	EventType       *uint32
	Email           *string
	ProviderEventID *string
	Payload         *string
	Processed       *bool
	ProcessedAt     *uint64
	ErrorMessage    *string
	CreateTime      *uint64
}

func (m *WebhookEvent) TableName() string {
	return "webhook_event_tab"
}

type WebhookEventRepo interface {
	// Create is the idempotency gate. A replayed provider event id
	// fails the unique index and returns ErrEventExists.
	Create(ctx context.Context, event *entity.WebhookEvent) error
	GetByProviderEventID(ctx context.Context, providerEventID string) (*entity.WebhookEvent, error)
	MarkProcessed(ctx context.Context, id uint64) error
	MarkFailed(ctx context.Context, id uint64, errMsg string) error
}

type webhookEventRepo struct {
	baseRepo BaseRepo
}

func NewWebhookEventRepo(_ context.Context, baseRepo BaseRepo) WebhookEventRepo {
	return &webhookEventRepo{baseRepo: baseRepo}
}

func (r *webhookEventRepo) Create(ctx context.Context, event *entity.WebhookEvent) error {
	m := &WebhookEvent{
		UserID:          event.UserID,
		ProviderID:      event.ProviderID,
		EventType:       goutil.Uint32(uint32(event.GetEventType())),
		Email:           event.Email,
		ProviderEventID: event.ProviderEventID,
		Payload:         event.Payload,
		Processed:       goutil.Bool(false),
		CreateTime:      goutil.Uint64(uint64(time.Now().Unix())),
	}
	if err := r.baseRepo.Create(ctx, m); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrEventExists
		}
		return err
	}
	event.ID = m.ID

	return nil
}

func (r *webhookEventRepo) GetByProviderEventID(ctx context.Context, providerEventID string) (*entity.WebhookEvent, error) {
	m := new(WebhookEvent)
	if err := r.baseRepo.Get(ctx, m, &Filter{
		Conditions: []*Condition{
			{Field: "provider_event_id", Op: OpEq, Value: providerEventID},
		},
	}); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}

	event := &entity.WebhookEvent{
		ID:              m.ID,
		UserID:          m.UserID,
		ProviderID:      m.ProviderID,
		Email:           m.Email,
		ProviderEventID: m.ProviderEventID,
		Payload:         m.Payload,
		Processed:       m.Processed,
		ProcessedAt:     m.ProcessedAt,
		ErrorMessage:    m.ErrorMessage,
		CreateTime:      m.CreateTime,
	}
	if m.EventType != nil {
		event.EventType = entity.EventType(*m.EventType)
	}

	return event, nil
}

func (r *webhookEventRepo) MarkProcessed(ctx context.Context, id uint64) error {
	return r.baseRepo.DB(ctx).
		Model(new(WebhookEvent)).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed":    true,
			"processed_at": uint64(time.Now().Unix()),
		}).Error
}

func (r *webhookEventRepo) MarkFailed(ctx context.Context, id uint64, errMsg string) error {
	return r.baseRepo.DB(ctx).
		Model(new(WebhookEvent)).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed":     false,
			"error_message": errMsg,
		}).Error
}
