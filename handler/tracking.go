package handler

import (
	"context"
	"encoding/base64"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"mailflow/config"
	"mailflow/entity"
	"mailflow/pkg/goutil"
	"mailflow/pkg/mq"
	"mailflow/repo"
)

// transparent 1x1 GIF
const trackingPixelB64 = "R0lGODlhAQABAIAAAAAAAP///yH5BAEAAAAALAAAAAABAAEAAAIBRAA7"

var trackingPixel, _ = base64.StdEncoding.DecodeString(trackingPixelB64)

type TrackingHandler interface {
	TrackOpen(w http.ResponseWriter, r *http.Request)
	TrackClick(w http.ResponseWriter, r *http.Request)
}

type trackingHandler struct {
	cfg           *config.Config
	recipientRepo repo.RecipientRepo
	linkRepo      repo.LinkRepo
	clickRepo     repo.ClickRepo
	producer      *mq.Producer
}

func NewTrackingHandler(
	cfg *config.Config,
	recipientRepo repo.RecipientRepo,
	linkRepo repo.LinkRepo,
	clickRepo repo.ClickRepo,
	producer *mq.Producer,
) TrackingHandler {
	return &trackingHandler{
		cfg:           cfg,
		recipientRepo: recipientRepo,
		linkRepo:      linkRepo,
		clickRepo:     clickRepo,
		producer:      producer,
	}
}

// TrackOpen serves the pixel unconditionally. Recording is best effort,
// a broken or unknown token must never break image rendering in the
// recipient's mail client.
func (h *trackingHandler) TrackOpen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	trackingID := mux.Vars(r)["tracking_id"]

	if trackingID != "" {
		recipient, err := h.recipientRepo.GetByTrackingID(ctx, trackingID)
		if err == nil {
			now := uint64(time.Now().Unix())
			if err := h.recipientRepo.TrackOpen(ctx, recipient.GetID(), now); err != nil {
				log.Ctx(ctx).Error().Msgf("track open failed, recipient_id: %d, err: %v", recipient.GetID(), err)
			} else {
				h.publishEvent(ctx, recipient, "open", "")
			}
		}
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(trackingPixel)
}

// TrackClick resolves the short code and redirects. An attributed click
// (valid tid) lands in the click ledger and bumps the link and
// recipient counters, a repeat (recipient, link) pair counts toward the
// total but not the unique count. Anonymous clicks bump the total only.
func (h *trackingHandler) TrackClick(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shortCode := mux.Vars(r)["short_code"]

	link, err := h.linkRepo.GetByShortCode(ctx, shortCode)
	if err != nil {
		http.Redirect(w, r, h.cfg.Tracking.FallbackRedirect, http.StatusFound)
		return
	}

	trackingID := r.URL.Query().Get("tid")
	recipient, rErr := h.recipientRepo.GetByTrackingID(ctx, trackingID)
	if trackingID == "" || rErr != nil {
		if err := h.linkRepo.AddClick(ctx, link.GetID(), false); err != nil {
			log.Ctx(ctx).Error().Msgf("add anonymous click failed, link_id: %d, err: %v", link.GetID(), err)
		}
		http.Redirect(w, r, link.GetOriginalURL(), http.StatusFound)
		return
	}

	now := uint64(time.Now().Unix())

	// Exists and AddClick are separate statements, so two simultaneous
	// first clicks can both count as unique. That only ever overcounts
	// uniques, never past the total.
	seen, err := h.clickRepo.Exists(ctx, recipient.GetID(), link.GetID())
	if err != nil {
		log.Ctx(ctx).Error().Msgf("check click exists failed, link_id: %d, err: %v", link.GetID(), err)
		seen = true // fail safe, do not inflate unique counts
	}

	click := &entity.Click{
		CampaignID:  link.CampaignID,
		RecipientID: recipient.ID,
		LinkID:      link.ID,
		ClickedAt:   goutil.Uint64(now),
		IP:          goutil.String(clientIP(r)),
		UserAgent:   goutil.String(r.UserAgent()),
	}
	if err := h.clickRepo.Create(ctx, click); err != nil {
		log.Ctx(ctx).Error().Msgf("create click failed, link_id: %d, err: %v", link.GetID(), err)
	}

	if err := h.linkRepo.AddClick(ctx, link.GetID(), !seen); err != nil {
		log.Ctx(ctx).Error().Msgf("add click failed, link_id: %d, err: %v", link.GetID(), err)
	}

	if err := h.recipientRepo.TrackClick(ctx, recipient.GetID(), now); err != nil {
		log.Ctx(ctx).Error().Msgf("track click failed, recipient_id: %d, err: %v", recipient.GetID(), err)
	}

	h.publishEvent(ctx, recipient, "click", link.GetOriginalURL())

	http.Redirect(w, r, link.GetOriginalURL(), http.StatusFound)
}

func (h *trackingHandler) publishEvent(ctx context.Context, recipient *entity.Recipient, event, url string) {
	if h.producer == nil {
		return
	}

	body := &mq.EmailEvent{
		CampaignID: goutil.Uint64(recipient.GetCampaignID()),
		ContactID:  goutil.Uint64(recipient.GetContactID()),
		Email:      goutil.String(recipient.GetEmail()),
		Event:      goutil.String(event),
		Timestamp:  goutil.Uint64(uint64(time.Now().Unix())),
	}
	if url != "" {
		body.Url = goutil.String(url)
	}

	err := h.producer.SendMessage(&mq.Message{
		Payload: mq.PayloadEmailEvent,
		Key:     goutil.NewID(),
		Body:    body,
	})
	if err != nil {
		log.Ctx(ctx).Error().Msgf("publish %s event failed, err: %v", event, err)
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
