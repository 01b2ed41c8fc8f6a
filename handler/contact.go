package handler

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"mailflow/entity"
	"mailflow/pkg/errutil"
	"mailflow/pkg/goutil"
	"mailflow/pkg/validator"
	"mailflow/repo"
)

type ContactHandler interface {
	CreateContact(ctx context.Context, req *CreateContactRequest, res *CreateContactResponse) error
	GetContacts(ctx context.Context, req *GetContactsRequest, res *GetContactsResponse) error
}

type contactHandler struct {
	contactRepo repo.ContactRepo
}

func NewContactHandler(contactRepo repo.ContactRepo) ContactHandler {
	return &contactHandler{contactRepo: contactRepo}
}

type CreateContactRequest struct {
	UserID    *uint64 `json:"user_id,omitempty"`
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
}

func (r *CreateContactRequest) GetUserID() uint64 {
	if r != nil && r.UserID != nil {
		return *r.UserID
	}
	return 0
}

func (r *CreateContactRequest) GetEmail() string {
	if r != nil && r.Email != nil {
		return *r.Email
	}
	return ""
}

type CreateContactResponse struct {
	Contact *entity.Contact `json:"contact,omitempty"`
}

var CreateContactValidator = validator.MustForm(map[string]validator.Validator{
	"user_id":    &validator.UInt64{},
	"email":      EmailValidator(false),
	"first_name": NameValidator(true),
	"last_name":  NameValidator(true),
})

func (h *contactHandler) CreateContact(ctx context.Context, req *CreateContactRequest, res *CreateContactResponse) error {
	if err := CreateContactValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	contact := &entity.Contact{
		UserID:    req.UserID,
		Email:     goutil.String(strings.ToLower(req.GetEmail())),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Status:    entity.ContactStatusSubscribed,
	}

	if _, err := h.contactRepo.Create(ctx, contact); err != nil {
		if errors.Is(err, repo.ErrContactExists) {
			return errutil.ConflictError(err)
		}
		log.Ctx(ctx).Error().Msgf("create contact failed: %v", err)
		return err
	}

	res.Contact = contact

	return nil
}

type GetContactsRequest struct {
	UserID     *uint64          `json:"user_id,omitempty" schema:"user_id"`
	Pagination *repo.Pagination `json:"pagination,omitempty"`
}

func (r *GetContactsRequest) GetUserID() uint64 {
	if r != nil && r.UserID != nil {
		return *r.UserID
	}
	return 0
}

type GetContactsResponse struct {
	Contacts   []*entity.Contact `json:"contacts"`
	Pagination *repo.Pagination  `json:"pagination,omitempty"`
}

var GetContactsValidator = validator.MustForm(map[string]validator.Validator{
	"user_id":    &validator.UInt64{},
	"pagination": PaginationValidator(),
})

func (h *contactHandler) GetContacts(ctx context.Context, req *GetContactsRequest, res *GetContactsResponse) error {
	if err := GetContactsValidator.Validate(req); err != nil {
		return errutil.ValidationError(err)
	}

	if req.Pagination == nil {
		req.Pagination = new(repo.Pagination)
	}

	contacts, pagination, err := h.contactRepo.GetManyByUserID(ctx, req.GetUserID(), req.Pagination)
	if err != nil {
		log.Ctx(ctx).Error().Msgf("get contacts failed: %v", err)
		return err
	}

	res.Contacts = contacts
	res.Pagination = pagination

	return nil
}
