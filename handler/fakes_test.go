package handler

import (
	"context"
	"sync"
	"time"

	"mailflow/entity"
	"mailflow/pkg/goutil"
	"mailflow/repo"
)

// In-memory repo fakes shared by the handler tests.

type fakeCampaignRepo struct {
	mu        sync.Mutex
	nextID    uint64
	campaigns map[uint64]*entity.Campaign
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{nextID: 1, campaigns: make(map[uint64]*entity.Campaign)}
}

func (f *fakeCampaignRepo) Create(_ context.Context, campaign *entity.Campaign) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	campaign.ID = goutil.Uint64(f.nextID)
	f.nextID++
	f.campaigns[campaign.GetID()] = campaign
	return campaign.GetID(), nil
}

func (f *fakeCampaignRepo) Update(_ context.Context, campaign *entity.Campaign) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[campaign.GetID()]
	if !ok {
		return repo.ErrCampaignNotFound
	}
	if campaign.Status != entity.CampaignStatusUnknown {
		c.Status = campaign.Status
	}
	if campaign.Name != nil {
		c.Name = campaign.Name
	}
	if campaign.ScheduledAt != nil {
		c.ScheduledAt = campaign.ScheduledAt
	}
	if campaign.SentAt != nil {
		c.SentAt = campaign.SentAt
	}
	if campaign.TotalRecipients != nil {
		c.TotalRecipients = campaign.TotalRecipients
	}
	if campaign.ErrorMessage != nil {
		c.ErrorMessage = campaign.ErrorMessage
	}
	return nil
}

func (f *fakeCampaignRepo) GetByID(_ context.Context, id uint64) (*entity.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return nil, repo.ErrCampaignNotFound
	}
	return c, nil
}

func (f *fakeCampaignRepo) GetByIDAndUserID(_ context.Context, id, userID uint64) (*entity.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok || c.GetUserID() != userID {
		return nil, repo.ErrCampaignNotFound
	}
	return c, nil
}

func (f *fakeCampaignRepo) GetManyByUserID(_ context.Context, userID uint64, p *repo.Pagination) ([]*entity.Campaign, *repo.Pagination, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*entity.Campaign, 0)
	for id := uint64(1); id < f.nextID; id++ {
		if c, ok := f.campaigns[id]; ok && c.GetUserID() == userID {
			out = append(out, c)
		}
	}
	return out, p, nil
}

func (f *fakeCampaignRepo) GetDueScheduled(_ context.Context, now uint64) ([]*entity.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*entity.Campaign, 0)
	for id := uint64(1); id < f.nextID; id++ {
		c, ok := f.campaigns[id]
		if ok && c.GetStatus() == entity.CampaignStatusScheduled && c.GetScheduledAt() <= now {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCampaignRepo) GetRecentByUserID(ctx context.Context, userID uint64, n int) ([]*entity.Campaign, error) {
	all, _, err := f.GetManyByUserID(ctx, userID, nil)
	if err != nil {
		return nil, err
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}

func (f *fakeCampaignRepo) ClaimForSending(_ context.Context, id uint64, from entity.CampaignStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok || c.GetStatus() != from {
		return false, nil
	}
	c.Status = entity.CampaignStatusSending
	return true, nil
}

func (f *fakeCampaignRepo) AddCounts(_ context.Context, id uint64, sent, failed, unsubscribe, complaint uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return repo.ErrCampaignNotFound
	}
	c.SentCount = goutil.Uint64(c.GetSentCount() + sent)
	c.FailedCount = goutil.Uint64(c.GetFailedCount() + failed)
	c.UnsubscribeCount = goutil.Uint64(c.GetUnsubscribeCount() + unsubscribe)
	c.ComplaintCount = goutil.Uint64(c.GetComplaintCount() + complaint)
	return nil
}

func (f *fakeCampaignRepo) SetRates(_ context.Context, id uint64, openRate, clickRate, bounceRate float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return repo.ErrCampaignNotFound
	}
	c.OpenRate = goutil.Float64(openRate)
	c.ClickRate = goutil.Float64(clickRate)
	c.BounceRate = goutil.Float64(bounceRate)
	return nil
}

func (f *fakeCampaignRepo) Delete(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.campaigns, id)
	return nil
}

type fakeRecipientRepo struct {
	mu         sync.Mutex
	nextID     uint64
	recipients []*entity.Recipient

	// set when a test needs the user-scoped lookup to resolve the
	// owning campaign
	campaigns *fakeCampaignRepo
}

func newFakeRecipientRepo() *fakeRecipientRepo {
	return &fakeRecipientRepo{nextID: 1}
}

func (f *fakeRecipientRepo) add(r *entity.Recipient) *entity.Recipient {
	f.mu.Lock()
	defer f.mu.Unlock()
	r.ID = goutil.Uint64(f.nextID)
	f.nextID++
	f.recipients = append(f.recipients, r)
	return r
}

func (f *fakeRecipientRepo) Create(_ context.Context, recipient *entity.Recipient) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.recipients {
		if r.GetCampaignID() == recipient.GetCampaignID() && r.GetContactID() == recipient.GetContactID() {
			return repo.ErrRecipientExists
		}
	}
	recipient.ID = goutil.Uint64(f.nextID)
	f.nextID++
	f.recipients = append(f.recipients, recipient)
	return nil
}

func (f *fakeRecipientRepo) find(match func(*entity.Recipient) bool) (*entity.Recipient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.recipients) - 1; i >= 0; i-- {
		if match(f.recipients[i]) {
			return f.recipients[i], nil
		}
	}
	return nil, repo.ErrRecipientNotFound
}

func (f *fakeRecipientRepo) GetByID(_ context.Context, id uint64) (*entity.Recipient, error) {
	return f.find(func(r *entity.Recipient) bool { return r.GetID() == id })
}

func (f *fakeRecipientRepo) GetByTrackingID(_ context.Context, trackingID string) (*entity.Recipient, error) {
	return f.find(func(r *entity.Recipient) bool { return r.GetTrackingID() == trackingID })
}

func (f *fakeRecipientRepo) GetLatestByEmailAndUserID(ctx context.Context, email string, userID uint64) (*entity.Recipient, error) {
	return f.find(func(r *entity.Recipient) bool {
		if r.GetEmail() != email {
			return false
		}
		if f.campaigns == nil {
			return true
		}
		c, err := f.campaigns.GetByID(ctx, r.GetCampaignID())
		return err == nil && c.GetUserID() == userID
	})
}

func (f *fakeRecipientRepo) GetManyByCampaignID(_ context.Context, campaignID uint64) ([]*entity.Recipient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*entity.Recipient, 0)
	for _, r := range f.recipients {
		if r.GetCampaignID() == campaignID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRecipientRepo) GetByCampaignIDAndStatus(_ context.Context, campaignID uint64, status entity.RecipientStatus) ([]*entity.Recipient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*entity.Recipient, 0)
	for _, r := range f.recipients {
		if r.GetCampaignID() == campaignID && r.GetStatus() == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRecipientRepo) setStatus(id uint64, status entity.RecipientStatus, at uint64) error {
	r, err := f.find(func(r *entity.Recipient) bool { return r.GetID() == id })
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r.Status = status
	switch status {
	case entity.RecipientStatusSent:
		r.SentAt = goutil.Uint64(at)
	case entity.RecipientStatusDelivered:
		r.DeliveredAt = goutil.Uint64(at)
	case entity.RecipientStatusBounced:
		r.BouncedAt = goutil.Uint64(at)
	case entity.RecipientStatusComplained:
		r.ComplainedAt = goutil.Uint64(at)
	}
	return nil
}

func (f *fakeRecipientRepo) MarkSent(_ context.Context, id, sentAt uint64) error {
	return f.setStatus(id, entity.RecipientStatusSent, sentAt)
}

func (f *fakeRecipientRepo) MarkFailed(_ context.Context, id, retryCount uint64, errMsg string) error {
	r, err := f.find(func(r *entity.Recipient) bool { return r.GetID() == id })
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r.Status = entity.RecipientStatusFailed
	r.RetryCount = goutil.Uint64(retryCount)
	r.ErrorMessage = goutil.String(errMsg)
	return nil
}

func (f *fakeRecipientRepo) MarkDelivered(_ context.Context, id, at uint64) error {
	return f.setStatus(id, entity.RecipientStatusDelivered, at)
}

func (f *fakeRecipientRepo) MarkBounced(_ context.Context, id, at uint64) error {
	return f.setStatus(id, entity.RecipientStatusBounced, at)
}

func (f *fakeRecipientRepo) MarkComplained(_ context.Context, id, at uint64) error {
	return f.setStatus(id, entity.RecipientStatusComplained, at)
}

func (f *fakeRecipientRepo) TrackOpen(_ context.Context, id, at uint64) error {
	r, err := f.find(func(r *entity.Recipient) bool { return r.GetID() == id })
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r.OpenCount = goutil.Uint64(r.GetOpenCount() + 1)
	if r.OpenedAt == nil {
		r.OpenedAt = goutil.Uint64(at)
	}
	return nil
}

func (f *fakeRecipientRepo) TrackClick(_ context.Context, id, at uint64) error {
	r, err := f.find(func(r *entity.Recipient) bool { return r.GetID() == id })
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r.ClickCount = goutil.Uint64(r.GetClickCount() + 1)
	if r.ClickedAt == nil {
		r.ClickedAt = goutil.Uint64(at)
	}
	return nil
}

func (f *fakeRecipientRepo) count(campaignID uint64, match func(*entity.Recipient) bool) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n uint64
	for _, r := range f.recipients {
		if r.GetCampaignID() == campaignID && match(r) {
			n++
		}
	}
	return n
}

func (f *fakeRecipientRepo) CountByCampaignID(_ context.Context, campaignID uint64) (uint64, error) {
	return f.count(campaignID, func(*entity.Recipient) bool { return true }), nil
}

func (f *fakeRecipientRepo) CountByCampaignIDAndStatus(_ context.Context, campaignID uint64, status entity.RecipientStatus) (uint64, error) {
	return f.count(campaignID, func(r *entity.Recipient) bool { return r.GetStatus() == status }), nil
}

func (f *fakeRecipientRepo) CountOpenedByCampaignID(_ context.Context, campaignID uint64) (uint64, error) {
	return f.count(campaignID, func(r *entity.Recipient) bool { return r.OpenedAt != nil }), nil
}

func (f *fakeRecipientRepo) CountClickedByCampaignID(_ context.Context, campaignID uint64) (uint64, error) {
	return f.count(campaignID, func(r *entity.Recipient) bool { return r.ClickedAt != nil }), nil
}

func (f *fakeRecipientRepo) CountTerminalByCampaignID(_ context.Context, campaignID uint64) (uint64, error) {
	return f.count(campaignID, func(r *entity.Recipient) bool { return r.IsTerminal() }), nil
}

func (f *fakeRecipientRepo) DeleteByCampaignID(_ context.Context, campaignID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.recipients[:0]
	for _, r := range f.recipients {
		if r.GetCampaignID() != campaignID {
			kept = append(kept, r)
		}
	}
	f.recipients = kept
	return nil
}

type fakeLinkRepo struct {
	mu     sync.Mutex
	nextID uint64
	links  []*entity.Link
}

func newFakeLinkRepo() *fakeLinkRepo {
	return &fakeLinkRepo{nextID: 1}
}

func (f *fakeLinkRepo) add(campaignID uint64, url, shortCode string) *entity.Link {
	f.mu.Lock()
	defer f.mu.Unlock()
	link := &entity.Link{
		ID:               goutil.Uint64(f.nextID),
		CampaignID:       goutil.Uint64(campaignID),
		OriginalURL:      goutil.String(url),
		ShortCode:        goutil.String(shortCode),
		ClickCount:       goutil.Uint64(0),
		UniqueClickCount: goutil.Uint64(0),
	}
	f.nextID++
	f.links = append(f.links, link)
	return link
}

func (f *fakeLinkRepo) FindOrCreate(_ context.Context, campaignID uint64, originalURL string) (*entity.Link, error) {
	f.mu.Lock()
	for _, l := range f.links {
		if l.GetCampaignID() == campaignID && l.GetOriginalURL() == originalURL {
			f.mu.Unlock()
			return l, nil
		}
	}
	f.mu.Unlock()
	return f.add(campaignID, originalURL, goutil.NewShortCode()), nil
}

func (f *fakeLinkRepo) GetByShortCode(_ context.Context, shortCode string) (*entity.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.links {
		if l.GetShortCode() == shortCode {
			return l, nil
		}
	}
	return nil, repo.ErrLinkNotFound
}

func (f *fakeLinkRepo) AddClick(_ context.Context, id uint64, unique bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.links {
		if l.GetID() == id {
			l.ClickCount = goutil.Uint64(l.GetClickCount() + 1)
			if unique {
				l.UniqueClickCount = goutil.Uint64(l.GetUniqueClickCount() + 1)
			}
			return nil
		}
	}
	return repo.ErrLinkNotFound
}

func (f *fakeLinkRepo) GetTopByCampaignID(_ context.Context, campaignID uint64, n int) ([]*entity.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*entity.Link, 0)
	for _, l := range f.links {
		if l.GetCampaignID() == campaignID {
			out = append(out, l)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].GetClickCount() > out[i].GetClickCount() {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (f *fakeLinkRepo) GetManyByCampaignID(_ context.Context, campaignID uint64) ([]*entity.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*entity.Link, 0)
	for _, l := range f.links {
		if l.GetCampaignID() == campaignID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLinkRepo) DeleteByCampaignID(_ context.Context, campaignID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.links[:0]
	for _, l := range f.links {
		if l.GetCampaignID() != campaignID {
			kept = append(kept, l)
		}
	}
	f.links = kept
	return nil
}

type fakeClickRepo struct {
	mu     sync.Mutex
	clicks []*entity.Click
}

func newFakeClickRepo() *fakeClickRepo {
	return new(fakeClickRepo)
}

func (f *fakeClickRepo) Create(_ context.Context, click *entity.Click) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicks = append(f.clicks, click)
	return nil
}

func (f *fakeClickRepo) Exists(_ context.Context, recipientID, linkID uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.clicks {
		if c.GetRecipientID() == recipientID && c.GetLinkID() == linkID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeClickRepo) GetManyByCampaignID(_ context.Context, campaignID uint64) ([]*entity.Click, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*entity.Click, 0)
	for _, c := range f.clicks {
		if c.GetCampaignID() == campaignID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeClickRepo) DeleteByCampaignID(_ context.Context, campaignID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.clicks[:0]
	for _, c := range f.clicks {
		if c.GetCampaignID() != campaignID {
			kept = append(kept, c)
		}
	}
	f.clicks = kept
	return nil
}

type fakeContactRepo struct {
	mu       sync.Mutex
	nextID   uint64
	contacts map[uint64]*entity.Contact

	updateStatusErr error
}

func newFakeContactRepo() *fakeContactRepo {
	return &fakeContactRepo{nextID: 1, contacts: make(map[uint64]*entity.Contact)}
}

func (f *fakeContactRepo) Create(_ context.Context, contact *entity.Contact) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.contacts {
		if c.GetUserID() == contact.GetUserID() && c.GetEmail() == contact.GetEmail() {
			return 0, repo.ErrContactExists
		}
	}
	contact.ID = goutil.Uint64(f.nextID)
	if contact.BounceCount == nil {
		contact.BounceCount = goutil.Uint64(0)
	}
	f.nextID++
	f.contacts[contact.GetID()] = contact
	return contact.GetID(), nil
}

func (f *fakeContactRepo) GetByID(_ context.Context, id uint64) (*entity.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.contacts[id]
	if !ok {
		return nil, repo.ErrContactNotFound
	}
	return c, nil
}

func (f *fakeContactRepo) GetByEmailAndUserID(_ context.Context, email string, userID uint64) (*entity.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.contacts {
		if c.GetEmail() == email && c.GetUserID() == userID {
			return c, nil
		}
	}
	return nil, repo.ErrContactNotFound
}

func (f *fakeContactRepo) GetManyByUserID(_ context.Context, userID uint64, p *repo.Pagination) ([]*entity.Contact, *repo.Pagination, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*entity.Contact, 0)
	for id := uint64(1); id < f.nextID; id++ {
		if c, ok := f.contacts[id]; ok && c.GetUserID() == userID {
			out = append(out, c)
		}
	}
	return out, p, nil
}

func (f *fakeContactRepo) GetSubscribedByListID(_ context.Context, listID uint64) ([]*entity.Contact, error) {
	return nil, nil
}

func (f *fakeContactRepo) GetSubscribedByIDs(_ context.Context, ids []uint64) ([]*entity.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*entity.Contact, 0)
	for _, id := range ids {
		if c, ok := f.contacts[id]; ok && c.GetStatus() == entity.ContactStatusSubscribed {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeContactRepo) UpdateStatus(_ context.Context, id uint64, status entity.ContactStatus, at uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateStatusErr != nil {
		return f.updateStatusErr
	}
	c, ok := f.contacts[id]
	if !ok {
		return repo.ErrContactNotFound
	}
	c.Status = status
	switch status {
	case entity.ContactStatusUnsubscribed, entity.ContactStatusComplained:
		c.UnsubscribedAt = goutil.Uint64(at)
	case entity.ContactStatusBounced:
		c.LastBouncedAt = goutil.Uint64(at)
	}
	return nil
}

func (f *fakeContactRepo) IncrBounceCount(_ context.Context, id, at uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.contacts[id]
	if !ok {
		return repo.ErrContactNotFound
	}
	c.BounceCount = goutil.Uint64(c.GetBounceCount() + 1)
	c.LastBouncedAt = goutil.Uint64(at)
	return nil
}

type fakeWebhookEventRepo struct {
	mu        sync.Mutex
	nextID    uint64
	events    []*entity.WebhookEvent
	processed map[uint64]bool
	failed    map[uint64]string
}

func newFakeWebhookEventRepo() *fakeWebhookEventRepo {
	return &fakeWebhookEventRepo{
		nextID:    1,
		processed: make(map[uint64]bool),
		failed:    make(map[uint64]string),
	}
}

func (f *fakeWebhookEventRepo) Create(_ context.Context, event *entity.WebhookEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.GetProviderEventID() == event.GetProviderEventID() {
			return repo.ErrEventExists
		}
	}
	event.ID = goutil.Uint64(f.nextID)
	event.CreateTime = goutil.Uint64(uint64(time.Now().Unix()))
	f.nextID++
	f.events = append(f.events, event)
	return nil
}

func (f *fakeWebhookEventRepo) GetByProviderEventID(_ context.Context, providerEventID string) (*entity.WebhookEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e.GetProviderEventID() == providerEventID {
			e.Processed = goutil.Bool(f.processed[e.GetID()])
			return e, nil
		}
	}
	return nil, repo.ErrEventNotFound
}

func (f *fakeWebhookEventRepo) MarkProcessed(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed[id] = true
	return nil
}

func (f *fakeWebhookEventRepo) MarkFailed(_ context.Context, id uint64, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = errMsg
	return nil
}

type fakeProviderRepo struct {
	providers map[uint64]*entity.Provider
}

func newFakeProviderRepo(providers ...*entity.Provider) *fakeProviderRepo {
	f := &fakeProviderRepo{providers: make(map[uint64]*entity.Provider)}
	for _, p := range providers {
		f.providers[p.GetID()] = p
	}
	return f
}

func (f *fakeProviderRepo) GetByID(_ context.Context, id uint64) (*entity.Provider, error) {
	p, ok := f.providers[id]
	if !ok {
		return nil, repo.ErrProviderNotFound
	}
	return p, nil
}

type fakeTxService struct{}

func (fakeTxService) RunTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
