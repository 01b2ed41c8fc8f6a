package entity

type Link struct {
	ID               *uint64 `json:"id,omitempty"`
	CampaignID       *uint64 `json:"campaign_id,omitempty"`
	OriginalURL      *string `json:"original_url,omitempty"`
	ShortCode        *string `json:"short_code,omitempty"`
	ClickCount       *uint64 `json:"click_count,omitempty"`
	UniqueClickCount *uint64 `json:"unique_click_count,omitempty"`
	CreateTime       *uint64 `json:"create_time,omitempty"`
	UpdateTime       *uint64 `json:"update_time,omitempty"`
}

func (e *Link) GetID() uint64 {
	if e != nil && e.ID != nil {
		return *e.ID
	}
	return 0
}

func (e *Link) GetCampaignID() uint64 {
	if e != nil && e.CampaignID != nil {
		return *e.CampaignID
	}
	return 0
}

func (e *Link) GetOriginalURL() string {
	if e != nil && e.OriginalURL != nil {
		return *e.OriginalURL
	}
	return ""
}

func (e *Link) GetShortCode() string {
	if e != nil && e.ShortCode != nil {
		return *e.ShortCode
	}
	return ""
}

func (e *Link) GetClickCount() uint64 {
	if e != nil && e.ClickCount != nil {
		return *e.ClickCount
	}
	return 0
}

func (e *Link) GetUniqueClickCount() uint64 {
	if e != nil && e.UniqueClickCount != nil {
		return *e.UniqueClickCount
	}
	return 0
}
