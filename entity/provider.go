package entity

type ProviderType uint32

const (
	ProviderTypeUnknown ProviderType = iota
	ProviderTypeBrevo
	ProviderTypeSES
	ProviderTypeSMTP
)

var ProviderTypes = map[ProviderType]string{
	ProviderTypeBrevo: "brevo",
	ProviderTypeSES:   "ses",
	ProviderTypeSMTP:  "smtp",
}

type Provider struct {
	ID           *uint64      `json:"id,omitempty"`
	UserID       *uint64      `json:"user_id,omitempty"`
	Name         *string      `json:"name,omitempty"`
	Type         ProviderType `json:"type,omitempty"`
	FromDomain   *string      `json:"from_domain,omitempty"`
	DailyLimit   *uint64      `json:"daily_limit,omitempty"`
	MonthlyLimit *uint64      `json:"monthly_limit,omitempty"`
	Settings     *string      `json:"settings,omitempty"`
	CreateTime   *uint64      `json:"create_time,omitempty"`
	UpdateTime   *uint64      `json:"update_time,omitempty"`
}

func (e *Provider) GetID() uint64 {
	if e != nil && e.ID != nil {
		return *e.ID
	}
	return 0
}

func (e *Provider) GetUserID() uint64 {
	if e != nil && e.UserID != nil {
		return *e.UserID
	}
	return 0
}

func (e *Provider) GetName() string {
	if e != nil && e.Name != nil {
		return *e.Name
	}
	return ""
}

func (e *Provider) GetType() ProviderType {
	if e != nil {
		return e.Type
	}
	return ProviderTypeUnknown
}

func (e *Provider) GetFromDomain() string {
	if e != nil && e.FromDomain != nil {
		return *e.FromDomain
	}
	return ""
}

func (e *Provider) GetDailyLimit() uint64 {
	if e != nil && e.DailyLimit != nil {
		return *e.DailyLimit
	}
	return 0
}

func (e *Provider) GetMonthlyLimit() uint64 {
	if e != nil && e.MonthlyLimit != nil {
		return *e.MonthlyLimit
	}
	return 0
}

func (e *Provider) GetSettings() string {
	if e != nil && e.Settings != nil {
		return *e.Settings
	}
	return ""
}
