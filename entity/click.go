package entity

// Click is an append-only ledger row. One row per attributed click,
// uniqueness of (recipient, link) decides unique click counting.
type Click struct {
	ID          *uint64 `json:"id,omitempty"`
	CampaignID  *uint64 `json:"campaign_id,omitempty"`
	RecipientID *uint64 `json:"recipient_id,omitempty"`
	LinkID      *uint64 `json:"link_id,omitempty"`
	ClickedAt   *uint64 `json:"clicked_at,omitempty"`
	IP          *string `json:"ip,omitempty"`
	UserAgent   *string `json:"user_agent,omitempty"`
}

func (e *Click) GetID() uint64 {
	if e != nil && e.ID != nil {
		return *e.ID
	}
	return 0
}

func (e *Click) GetCampaignID() uint64 {
	if e != nil && e.CampaignID != nil {
		return *e.CampaignID
	}
	return 0
}

func (e *Click) GetRecipientID() uint64 {
	if e != nil && e.RecipientID != nil {
		return *e.RecipientID
	}
	return 0
}

func (e *Click) GetLinkID() uint64 {
	if e != nil && e.LinkID != nil {
		return *e.LinkID
	}
	return 0
}

func (e *Click) GetClickedAt() uint64 {
	if e != nil && e.ClickedAt != nil {
		return *e.ClickedAt
	}
	return 0
}
