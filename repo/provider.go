package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"mailflow/entity"
)

var (
	ErrProviderNotFound = errors.New("provider not found")
	ErrTemplateNotFound = errors.New("template not found")
	ErrDomainNotFound   = errors.New("domain not found")
)

type Provider struct {
	ID           *uint64
	UserID       *uint64
	Name         *string
	Type         *uint32
	FromDomain   *string
	DailyLimit   *uint64
	MonthlyLimit *uint64
	Settings     *string
	CreateTime   *uint64
	UpdateTime   *uint64
}

func (m *Provider) TableName() string {
	return "provider_tab"
}

func ToProvider(m *Provider) *entity.Provider {
	if m == nil {
		return nil
	}
	provider := &entity.Provider{
		ID:           m.ID,
		UserID:       m.UserID,
		Name:         m.Name,
		FromDomain:   m.FromDomain,
		DailyLimit:   m.DailyLimit,
		MonthlyLimit: m.MonthlyLimit,
		Settings:     m.Settings,
		CreateTime:   m.CreateTime,
		UpdateTime:   m.UpdateTime,
	}
	if m.Type != nil {
		provider.Type = entity.ProviderType(*m.Type)
	}
	return provider
}

type ProviderRepo interface {
	GetByID(ctx context.Context, id uint64) (*entity.Provider, error)
}

type providerRepo struct {
	baseRepo BaseRepo
}

func NewProviderRepo(_ context.Context, baseRepo BaseRepo) ProviderRepo {
	return &providerRepo{baseRepo: baseRepo}
}

func (r *providerRepo) GetByID(ctx context.Context, id uint64) (*entity.Provider, error) {
	m := new(Provider)
	err := r.baseRepo.Get(ctx, m, &Filter{
		Conditions: []*Condition{
			{Field: "id", Op: OpEq, Value: id},
		},
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}
	return ToProvider(m), nil
}

type Template struct {
	ID          *uint64
	UserID      *uint64
	Name        *string
	HtmlContent *string
	TextContent *string
	CreateTime  *uint64
	UpdateTime  *uint64
}

func (m *Template) TableName() string {
	return "template_tab"
}

type TemplateRepo interface {
	GetByID(ctx context.Context, id uint64) (*entity.Template, error)
}

type templateRepo struct {
	baseRepo BaseRepo
}

func NewTemplateRepo(_ context.Context, baseRepo BaseRepo) TemplateRepo {
	return &templateRepo{baseRepo: baseRepo}
}

func (r *templateRepo) GetByID(ctx context.Context, id uint64) (*entity.Template, error) {
	m := new(Template)
	err := r.baseRepo.Get(ctx, m, &Filter{
		Conditions: []*Condition{
			{Field: "id", Op: OpEq, Value: id},
		},
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}
	return &entity.Template{
		ID:          m.ID,
		UserID:      m.UserID,
		Name:        m.Name,
		HtmlContent: m.HtmlContent,
		TextContent: m.TextContent,
		CreateTime:  m.CreateTime,
		UpdateTime:  m.UpdateTime,
	}, nil
}

type Domain struct {
	ID         *uint64
	UserID     *uint64
	Name       *string
	Verified   *bool
	CreateTime *uint64
}

func (m *Domain) TableName() string {
	return "domain_tab"
}

type DomainRepo interface {
	GetByID(ctx context.Context, id uint64) (*entity.Domain, error)
}

type domainRepo struct {
	baseRepo BaseRepo
}

func NewDomainRepo(_ context.Context, baseRepo BaseRepo) DomainRepo {
	return &domainRepo{baseRepo: baseRepo}
}

func (r *domainRepo) GetByID(ctx context.Context, id uint64) (*entity.Domain, error) {
	m := new(Domain)
	err := r.baseRepo.Get(ctx, m, &Filter{
		Conditions: []*Condition{
			{Field: "id", Op: OpEq, Value: id},
		},
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDomainNotFound
		}
		return nil, err
	}
	return &entity.Domain{
		ID:         m.ID,
		UserID:     m.UserID,
		Name:       m.Name,
		Verified:   m.Verified,
		CreateTime: m.CreateTime,
	}, nil
}
