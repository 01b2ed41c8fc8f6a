package handler

import (
	"regexp"

	"mailflow/pkg/validator"
	"mailflow/repo"
)

var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func EmailValidator(optional bool) validator.Validator {
	return &validator.String{
		Optional: optional,
		MaxLen:   254,
		Regex:    emailRegex,
	}
}

func NameValidator(optional bool) validator.Validator {
	return &validator.String{
		Optional: optional,
		MinLen:   1,
		MaxLen:   120,
	}
}

type paginationValidator struct{}

// pagination defaults are filled in by the repo layer
func (v *paginationValidator) Validate(value interface{}) error {
	if p, ok := value.(*repo.Pagination); ok && p.GetLimit() > 1000 {
		return validator.ErrInvalidField
	}
	return nil
}

func PaginationValidator() validator.Validator {
	return new(paginationValidator)
}
