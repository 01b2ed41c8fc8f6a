package handler

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"mailflow/entity"
	"mailflow/pkg/goutil"
	"mailflow/pkg/mq"
	"mailflow/repo"
)

// inboundEvent is the canonical form every provider payload is
// normalized into before effects are applied.
type inboundEvent struct {
	eventType       entity.EventType
	email           string
	providerEventID string
	url             string
	reason          string
	timestamp       uint64
}

type WebhookHandler interface {
	HandleSES(w http.ResponseWriter, r *http.Request)
	HandleSendGrid(w http.ResponseWriter, r *http.Request)
	HandleSMTP(w http.ResponseWriter, r *http.Request)
}

type webhookHandler struct {
	contactRepo      repo.ContactRepo
	recipientRepo    repo.RecipientRepo
	campaignRepo     repo.CampaignRepo
	webhookEventRepo repo.WebhookEventRepo
	providerRepo     repo.ProviderRepo
	producer         *mq.Producer
}

func NewWebhookHandler(
	contactRepo repo.ContactRepo,
	recipientRepo repo.RecipientRepo,
	campaignRepo repo.CampaignRepo,
	webhookEventRepo repo.WebhookEventRepo,
	providerRepo repo.ProviderRepo,
	producer *mq.Producer,
) WebhookHandler {
	return &webhookHandler{
		contactRepo:      contactRepo,
		recipientRepo:    recipientRepo,
		campaignRepo:     campaignRepo,
		webhookEventRepo: webhookEventRepo,
		providerRepo:     providerRepo,
		producer:         producer,
	}
}

type snsEnvelope struct {
	Type         string `json:"Type"`
	MessageId    string `json:"MessageId"`
	Message      string `json:"Message"`
	SubscribeURL string `json:"SubscribeURL"`
}

type sesMessage struct {
	EventType        string `json:"eventType"`
	NotificationType string `json:"notificationType"`
	Mail             struct {
		MessageId   string   `json:"messageId"`
		Destination []string `json:"destination"`
	} `json:"mail"`
	Bounce struct {
		BounceType        string `json:"bounceType"`
		BouncedRecipients []struct {
			EmailAddress   string `json:"emailAddress"`
			DiagnosticCode string `json:"diagnosticCode"`
		} `json:"bouncedRecipients"`
	} `json:"bounce"`
	Complaint struct {
		ComplainedRecipients []struct {
			EmailAddress string `json:"emailAddress"`
		} `json:"complainedRecipients"`
	} `json:"complaint"`
	Click struct {
		Link string `json:"link"`
	} `json:"click"`
}

// HandleSES receives SNS-wrapped SES notifications. Webhooks are always
// acked with 200, a failed event is logged and retried by the provider.
func (h *webhookHandler) HandleSES(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer ack(w)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("read ses webhook body failed: %v", err)
		return
	}

	envelope := new(snsEnvelope)
	if err := json.Unmarshal(body, envelope); err != nil {
		log.Ctx(ctx).Error().Msgf("parse sns envelope failed: %v", err)
		return
	}

	if envelope.Type == "SubscriptionConfirmation" {
		if envelope.SubscribeURL != "" {
			resp, err := http.Get(envelope.SubscribeURL)
			if err != nil {
				log.Ctx(ctx).Error().Msgf("confirm sns subscription failed: %v", err)
			} else {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
		}
		return
	}

	msg := new(sesMessage)
	if err := json.Unmarshal([]byte(envelope.Message), msg); err != nil {
		log.Ctx(ctx).Error().Msgf("parse ses message failed: %v", err)
		return
	}

	eventType := msg.EventType
	if eventType == "" {
		eventType = msg.NotificationType
	}

	eventID := envelope.MessageId
	if eventID == "" {
		eventID = fmt.Sprintf("%s:%s", msg.Mail.MessageId, eventType)
	}

	events := make([]*inboundEvent, 0)
	now := uint64(time.Now().Unix())

	switch eventType {
	case "Bounce":
		bounceType := entity.EventTypeSoftBounce
		if msg.Bounce.BounceType == "Permanent" {
			bounceType = entity.EventTypeHardBounce
		}
		for _, br := range msg.Bounce.BouncedRecipients {
			events = append(events, &inboundEvent{
				eventType:       bounceType,
				email:           br.EmailAddress,
				providerEventID: fmt.Sprintf("%s:%s", eventID, br.EmailAddress),
				reason:          br.DiagnosticCode,
				timestamp:       now,
			})
		}
	case "Complaint":
		for _, cr := range msg.Complaint.ComplainedRecipients {
			events = append(events, &inboundEvent{
				eventType:       entity.EventTypeComplaint,
				email:           cr.EmailAddress,
				providerEventID: fmt.Sprintf("%s:%s", eventID, cr.EmailAddress),
				timestamp:       now,
			})
		}
	case "Delivery", "Open", "Click":
		if len(msg.Mail.Destination) == 0 {
			return
		}
		var et entity.EventType
		switch eventType {
		case "Delivery":
			et = entity.EventTypeDelivered
		case "Open":
			et = entity.EventTypeOpen
		default:
			et = entity.EventTypeClick
		}
		events = append(events, &inboundEvent{
			eventType:       et,
			email:           msg.Mail.Destination[0],
			providerEventID: eventID,
			url:             msg.Click.Link,
			timestamp:       now,
		})
	default:
		log.Ctx(ctx).Info().Msgf("ignoring ses event type: %s", eventType)
		return
	}

	h.applyEvents(ctx, r, string(body), events)
}

type sendGridEvent struct {
	Email     string `json:"email"`
	Event     string `json:"event"`
	Type      string `json:"type"`
	SgEventID string `json:"sg_event_id"`
	Timestamp uint64 `json:"timestamp"`
	Url       string `json:"url"`
	Reason    string `json:"reason"`
}

func (h *webhookHandler) HandleSendGrid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer ack(w)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("read sendgrid webhook body failed: %v", err)
		return
	}

	var sgEvents []*sendGridEvent
	if err := json.Unmarshal(body, &sgEvents); err != nil {
		log.Ctx(ctx).Error().Msgf("parse sendgrid events failed: %v", err)
		return
	}

	events := make([]*inboundEvent, 0, len(sgEvents))
	for _, sg := range sgEvents {
		var et entity.EventType
		switch sg.Event {
		case "bounce":
			et = entity.EventTypeHardBounce
			if sg.Type == "blocked" {
				et = entity.EventTypeSoftBounce
			}
		case "blocked":
			et = entity.EventTypeSoftBounce
		case "spamreport":
			et = entity.EventTypeComplaint
		case "unsubscribe":
			et = entity.EventTypeUnsubscribe
		case "delivered":
			et = entity.EventTypeDelivered
		case "open":
			et = entity.EventTypeOpen
		case "click":
			et = entity.EventTypeClick
		default:
			continue
		}

		events = append(events, &inboundEvent{
			eventType:       et,
			email:           sg.Email,
			providerEventID: sg.SgEventID,
			url:             sg.Url,
			reason:          sg.Reason,
			timestamp:       sg.Timestamp,
		})
	}

	h.applyEvents(ctx, r, string(body), events)
}

type smtpEvent struct {
	EventType  string `json:"event_type"`
	Email      string `json:"email"`
	BounceType string `json:"bounce_type"`
	Reason     string `json:"reason"`
	EventID    string `json:"event_id"`
	Timestamp  uint64 `json:"timestamp"`
}

func (h *webhookHandler) HandleSMTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defer ack(w)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("read smtp webhook body failed: %v", err)
		return
	}

	ev := new(smtpEvent)
	if err := json.Unmarshal(body, ev); err != nil {
		log.Ctx(ctx).Error().Msgf("parse smtp event failed: %v", err)
		return
	}

	var et entity.EventType
	switch ev.EventType {
	case "bounce":
		et = entity.EventTypeSoftBounce
		if ev.BounceType == "hard" {
			et = entity.EventTypeHardBounce
		}
	case "complaint":
		et = entity.EventTypeComplaint
	case "unsubscribe":
		et = entity.EventTypeUnsubscribe
	case "delivered":
		et = entity.EventTypeDelivered
	case "open":
		et = entity.EventTypeOpen
	case "click":
		et = entity.EventTypeClick
	default:
		log.Ctx(ctx).Info().Msgf("ignoring smtp event type: %s", ev.EventType)
		return
	}

	// relays that omit an event ID still dedup on exact replays
	eventID := ev.EventID
	if eventID == "" {
		eventID = fmt.Sprintf("smtp-%x", sha256.Sum256(body))
	}

	h.applyEvents(ctx, r, string(body), []*inboundEvent{{
		eventType:       et,
		email:           ev.Email,
		providerEventID: eventID,
		reason:          ev.Reason,
		timestamp:       ev.Timestamp,
	}})
}

func (h *webhookHandler) applyEvents(ctx context.Context, r *http.Request, payload string, events []*inboundEvent) {
	provider := h.resolveProvider(ctx, r)
	if provider == nil {
		return
	}

	for _, ev := range events {
		if err := h.applyEvent(ctx, provider, payload, ev); err != nil {
			log.Ctx(ctx).Error().Msgf("apply webhook event failed, provider_event_id: %s, err: %v", ev.providerEventID, err)
		}
	}
}

// resolveProvider identifies which integration is calling so effects
// are scoped to its owning user.
func (h *webhookHandler) resolveProvider(ctx context.Context, r *http.Request) *entity.Provider {
	providerID, err := strconv.ParseUint(r.URL.Query().Get("provider_id"), 10, 64)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("webhook missing provider_id: %v", err)
		return nil
	}

	provider, err := h.providerRepo.GetByID(ctx, providerID)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("webhook provider lookup failed, provider_id: %d, err: %v", providerID, err)
		return nil
	}

	return provider
}

func (h *webhookHandler) applyEvent(ctx context.Context, provider *entity.Provider, payload string, ev *inboundEvent) error {
	event := &entity.WebhookEvent{
		UserID:          provider.UserID,
		ProviderID:      provider.ID,
		EventType:       ev.eventType,
		Email:           goutil.String(ev.email),
		ProviderEventID: goutil.String(ev.providerEventID),
		Payload:         goutil.String(payload),
	}
	if err := h.webhookEventRepo.Create(ctx, event); err != nil {
		if errors.Is(err, repo.ErrEventExists) {
			return h.reapplyEvent(ctx, provider, ev)
		}
		return err
	}

	if err := h.applyEffects(ctx, provider, ev); err != nil {
		if markErr := h.webhookEventRepo.MarkFailed(ctx, event.GetID(), err.Error()); markErr != nil {
			log.Ctx(ctx).Error().Msgf("mark webhook event failed failed, id: %d, err: %v", event.GetID(), markErr)
		}
		return err
	}

	if err := h.webhookEventRepo.MarkProcessed(ctx, event.GetID()); err != nil {
		log.Ctx(ctx).Error().Msgf("mark webhook event processed failed, id: %d, err: %v", event.GetID(), err)
	}

	h.publishEvent(ctx, ev)

	return nil
}

// reapplyEvent handles a provider retry of an event we already stored.
// A processed event is acked without re-running effects. An unprocessed
// one means effects failed on the first delivery, so the retry is our
// chance to apply them.
func (h *webhookHandler) reapplyEvent(ctx context.Context, provider *entity.Provider, ev *inboundEvent) error {
	stored, err := h.webhookEventRepo.GetByProviderEventID(ctx, ev.providerEventID)
	if err != nil {
		return err
	}
	if stored.GetProcessed() {
		return nil
	}

	if err := h.applyEffects(ctx, provider, ev); err != nil {
		if markErr := h.webhookEventRepo.MarkFailed(ctx, stored.GetID(), err.Error()); markErr != nil {
			log.Ctx(ctx).Error().Msgf("mark webhook event failed failed, id: %d, err: %v", stored.GetID(), markErr)
		}
		return err
	}

	if err := h.webhookEventRepo.MarkProcessed(ctx, stored.GetID()); err != nil {
		log.Ctx(ctx).Error().Msgf("mark webhook event processed failed, id: %d, err: %v", stored.GetID(), err)
	}

	h.publishEvent(ctx, ev)

	return nil
}

// applyEffects must stay safe to run more than once for the same event,
// a failed attempt is retried via reapplyEvent. Status marks are
// idempotent, counter bumps are ordered last so a retried failure never
// double-counts.
func (h *webhookHandler) applyEffects(ctx context.Context, provider *entity.Provider, ev *inboundEvent) error {
	at := ev.timestamp
	if at == 0 {
		at = uint64(time.Now().Unix())
	}

	recipient, rErr := h.recipientRepo.GetLatestByEmailAndUserID(ctx, ev.email, provider.GetUserID())
	if rErr != nil && !errors.Is(rErr, repo.ErrRecipientNotFound) {
		return rErr
	}

	contact, cErr := h.contactRepo.GetByEmailAndUserID(ctx, ev.email, provider.GetUserID())
	if cErr != nil && !errors.Is(cErr, repo.ErrContactNotFound) {
		return cErr
	}

	switch ev.eventType {
	case entity.EventTypeHardBounce:
		if rErr == nil {
			if err := h.recipientRepo.MarkBounced(ctx, recipient.GetID(), at); err != nil {
				return err
			}
		}
		if cErr == nil {
			return h.contactRepo.UpdateStatus(ctx, contact.GetID(), entity.ContactStatusBounced, at)
		}

	case entity.EventTypeSoftBounce:
		if rErr == nil {
			if err := h.recipientRepo.MarkBounced(ctx, recipient.GetID(), at); err != nil {
				return err
			}
		}
		if cErr == nil {
			if err := h.contactRepo.IncrBounceCount(ctx, contact.GetID(), at); err != nil {
				return err
			}
			if contact.GetBounceCount()+1 >= entity.SoftBounceThreshold {
				return h.contactRepo.UpdateStatus(ctx, contact.GetID(), entity.ContactStatusBounced, at)
			}
		}

	case entity.EventTypeComplaint:
		// a spam report implies the contact wants out
		if rErr == nil {
			if err := h.recipientRepo.MarkComplained(ctx, recipient.GetID(), at); err != nil {
				return err
			}
		}
		if cErr == nil {
			if err := h.contactRepo.UpdateStatus(ctx, contact.GetID(), entity.ContactStatusComplained, at); err != nil {
				return err
			}
		}
		if rErr == nil {
			return h.campaignRepo.AddCounts(ctx, recipient.GetCampaignID(), 0, 0, 0, 1)
		}

	case entity.EventTypeUnsubscribe:
		if cErr == nil {
			if err := h.contactRepo.UpdateStatus(ctx, contact.GetID(), entity.ContactStatusUnsubscribed, at); err != nil {
				return err
			}
		}
		if rErr == nil {
			return h.campaignRepo.AddCounts(ctx, recipient.GetCampaignID(), 0, 0, 1, 0)
		}

	case entity.EventTypeDelivered:
		if rErr == nil {
			return h.recipientRepo.MarkDelivered(ctx, recipient.GetID(), at)
		}

	case entity.EventTypeOpen:
		if rErr == nil {
			return h.recipientRepo.TrackOpen(ctx, recipient.GetID(), at)
		}

	case entity.EventTypeClick:
		if rErr == nil {
			return h.recipientRepo.TrackClick(ctx, recipient.GetID(), at)
		}
	}

	return nil
}

func (h *webhookHandler) publishEvent(ctx context.Context, ev *inboundEvent) {
	if h.producer == nil {
		return
	}

	body := &mq.EmailEvent{
		Email:     goutil.String(ev.email),
		Event:     goutil.String(entity.EventTypes[ev.eventType]),
		Timestamp: goutil.Uint64(ev.timestamp),
	}
	if ev.url != "" {
		body.Url = goutil.String(ev.url)
	}

	err := h.producer.SendMessage(&mq.Message{
		Payload: mq.PayloadEmailEvent,
		Key:     goutil.NewID(),
		Body:    body,
	})
	if err != nil {
		log.Ctx(ctx).Error().Msgf("publish webhook event failed, err: %v", err)
	}
}

func ack(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
}
