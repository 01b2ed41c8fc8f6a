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
	ErrContactNotFound = errors.New("contact not found")
	ErrContactExists   = errors.New("contact already exists")
)

type Contact struct {
	ID             *uint64
	UserID         *uint64
	Email          *string
	FirstName      *string
	LastName       *string
	Status         *uint32
	BounceCount    *uint64
	LastBouncedAt  *uint64
	UnsubscribedAt *uint64
	CreateTime     *uint64
	UpdateTime     *uint64
}

func (m *Contact) TableName() string {
	return "contact_tab"
}

func ToContact(m *Contact) *entity.Contact {
	if m == nil {
		return nil
	}
	contact := &entity.Contact{
		ID:             m.ID,
		UserID:         m.UserID,
		Email:          m.Email,
		FirstName:      m.FirstName,
		LastName:       m.LastName,
		BounceCount:    m.BounceCount,
		LastBouncedAt:  m.LastBouncedAt,
		UnsubscribedAt: m.UnsubscribedAt,
		CreateTime:     m.CreateTime,
		UpdateTime:     m.UpdateTime,
	}
	if m.Status != nil {
		contact.Status = entity.ContactStatus(*m.Status)
	}
	return contact
}

// ListMember joins contacts into lists.
type ListMember struct {
	ID        *uint64
	ListID    *uint64
	ContactID *uint64
}

func (m *ListMember) TableName() string {
	return "list_member_tab"
}

type ContactRepo interface {
	Create(ctx context.Context, contact *entity.Contact) (uint64, error)
	GetByID(ctx context.Context, id uint64) (*entity.Contact, error)
	GetByEmailAndUserID(ctx context.Context, email string, userID uint64) (*entity.Contact, error)
	GetManyByUserID(ctx context.Context, userID uint64, p *Pagination) ([]*entity.Contact, *Pagination, error)
	GetSubscribedByListID(ctx context.Context, listID uint64) ([]*entity.Contact, error)
	GetSubscribedByIDs(ctx context.Context, ids []uint64) ([]*entity.Contact, error)
	UpdateStatus(ctx context.Context, id uint64, status entity.ContactStatus, at uint64) error
	IncrBounceCount(ctx context.Context, id, at uint64) error
}

type contactRepo struct {
	baseRepo BaseRepo
}

func NewContactRepo(_ context.Context, baseRepo BaseRepo) ContactRepo {
	return &contactRepo{baseRepo: baseRepo}
}

func (r *contactRepo) Create(ctx context.Context, contact *entity.Contact) (uint64, error) {
	now := uint64(time.Now().Unix())
	m := &Contact{
		UserID:      contact.UserID,
		Email:       contact.Email,
		FirstName:   contact.FirstName,
		LastName:    contact.LastName,
		Status:      goutil.Uint32(uint32(contact.GetStatus())),
		BounceCount: goutil.Uint64(0),
		CreateTime:  goutil.Uint64(now),
		UpdateTime:  goutil.Uint64(now),
	}
	if err := r.baseRepo.Create(ctx, m); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return 0, ErrContactExists
		}
		return 0, err
	}
	contact.ID = m.ID

	return m.GetID(), nil
}

func (m *Contact) GetID() uint64 {
	if m != nil && m.ID != nil {
		return *m.ID
	}
	return 0
}

func (r *contactRepo) GetByID(ctx context.Context, id uint64) (*entity.Contact, error) {
	return r.get(ctx, &Filter{
		Conditions: []*Condition{
			{Field: "id", Op: OpEq, Value: id},
		},
	})
}

func (r *contactRepo) GetByEmailAndUserID(ctx context.Context, email string, userID uint64) (*entity.Contact, error) {
	return r.get(ctx, &Filter{
		Conditions: []*Condition{
			{Field: "email", Op: OpEq, Value: email, NextLogicalOp: And},
			{Field: "user_id", Op: OpEq, Value: userID},
		},
	})
}

func (r *contactRepo) get(ctx context.Context, f *Filter) (*entity.Contact, error) {
	m := new(Contact)
	if err := r.baseRepo.Get(ctx, m, f); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContactNotFound
		}
		return nil, err
	}
	return ToContact(m), nil
}

func (r *contactRepo) GetManyByUserID(ctx context.Context, userID uint64, p *Pagination) ([]*entity.Contact, *Pagination, error) {
	res, pagination, err := r.baseRepo.GetMany(ctx, new(Contact), &Filter{
		Conditions: []*Condition{
			{Field: "user_id", Op: OpEq, Value: userID},
		},
		Pagination: p,
	})
	if err != nil {
		return nil, nil, err
	}

	contacts := make([]*entity.Contact, 0, len(res))
	for _, m := range res {
		contacts = append(contacts, ToContact(m.(*Contact)))
	}

	return contacts, pagination, nil
}

func (r *contactRepo) GetSubscribedByListID(ctx context.Context, listID uint64) ([]*entity.Contact, error) {
	var models []*Contact
	err := r.baseRepo.DB(ctx).
		Model(new(Contact)).
		Joins("JOIN list_member_tab ON list_member_tab.contact_id = contact_tab.id").
		Where("list_member_tab.list_id = ? AND contact_tab.status = ?", listID, uint32(entity.ContactStatusSubscribed)).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	contacts := make([]*entity.Contact, 0, len(models))
	for _, m := range models {
		contacts = append(contacts, ToContact(m))
	}

	return contacts, nil
}

func (r *contactRepo) GetSubscribedByIDs(ctx context.Context, ids []uint64) ([]*entity.Contact, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var models []*Contact
	err := r.baseRepo.DB(ctx).
		Where("id IN ? AND status = ?", ids, uint32(entity.ContactStatusSubscribed)).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	contacts := make([]*entity.Contact, 0, len(models))
	for _, m := range models {
		contacts = append(contacts, ToContact(m))
	}

	return contacts, nil
}

func (r *contactRepo) UpdateStatus(ctx context.Context, id uint64, status entity.ContactStatus, at uint64) error {
	updates := map[string]interface{}{
		"status":      uint32(status),
		"update_time": uint64(time.Now().Unix()),
	}
	switch status {
	case entity.ContactStatusUnsubscribed, entity.ContactStatusComplained:
		updates["unsubscribed_at"] = at
	case entity.ContactStatusBounced:
		updates["last_bounced_at"] = at
	}

	return r.baseRepo.DB(ctx).
		Model(new(Contact)).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *contactRepo) IncrBounceCount(ctx context.Context, id, at uint64) error {
	return r.baseRepo.DB(ctx).
		Model(new(Contact)).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"bounce_count":    gorm.Expr("bounce_count + ?", 1),
			"last_bounced_at": at,
			"update_time":     uint64(time.Now().Unix()),
		}).Error
}
