package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

var (
	ErrUnsetField   = errors.New("field is not set")
	ErrInvalidField = errors.New("field is invalid")
)

type Validator interface {
	Validate(value interface{}) error
}

// Form validates a request struct field by field. Keys are matched
// against the json tag (falling back to the schema tag, then the field
// name), so validator maps read like the wire format.
type Form struct {
	validators map[string]Validator
}

func MustForm(validators map[string]Validator) *Form {
	for field, v := range validators {
		if v == nil {
			panic(fmt.Sprintf("nil validator for field %s", field))
		}
	}
	return &Form{validators: validators}
}

func (f *Form) Validate(req interface{}) error {
	v := reflect.ValueOf(req)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return errors.New("nil request")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return errors.New("expect struct request")
	}

	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		key := tagName(field.Tag.Get("json"))
		if key == "" {
			key = tagName(field.Tag.Get("schema"))
		}
		if key == "" {
			key = field.Name
		}

		validator, ok := f.validators[key]
		if !ok {
			continue
		}

		if err := validator.Validate(v.Field(i).Interface()); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}

	return nil
}

func tagName(tag string) string {
	if tag == "" || tag == "-" {
		return ""
	}
	return strings.Split(tag, ",")[0]
}

type StringFunc func(string) error

type String struct {
	Optional   bool
	MinLen     int
	MaxLen     int
	Regex      *regexp.Regexp
	Validators []StringFunc
}

func (v *String) Validate(value interface{}) error {
	s, ok := unwrapString(value)
	if !ok {
		if v.Optional {
			return nil
		}
		return ErrUnsetField
	}

	if v.Optional && s == "" {
		return nil
	}

	if len(s) < v.MinLen {
		return fmt.Errorf("%w: too short", ErrInvalidField)
	}
	if v.MaxLen > 0 && len(s) > v.MaxLen {
		return fmt.Errorf("%w: too long", ErrInvalidField)
	}
	if v.Regex != nil && !v.Regex.MatchString(s) {
		return fmt.Errorf("%w: bad format", ErrInvalidField)
	}
	for _, fn := range v.Validators {
		if err := fn(s); err != nil {
			return err
		}
	}

	return nil
}

func unwrapString(value interface{}) (string, bool) {
	switch s := value.(type) {
	case string:
		return s, true
	case *string:
		if s == nil {
			return "", false
		}
		return *s, true
	default:
		return "", false
	}
}

type UInt64 struct {
	Optional bool
	Min      *uint64
	Max      *uint64
}

func (v *UInt64) Validate(value interface{}) error {
	var (
		ui  uint64
		set bool
	)
	switch n := value.(type) {
	case uint64:
		ui, set = n, true
	case *uint64:
		if n != nil {
			ui, set = *n, true
		}
	}

	if !set {
		if v.Optional {
			return nil
		}
		return ErrUnsetField
	}

	if v.Min != nil && ui < *v.Min {
		return fmt.Errorf("%w: below minimum", ErrInvalidField)
	}
	if v.Max != nil && ui > *v.Max {
		return fmt.Errorf("%w: above maximum", ErrInvalidField)
	}

	return nil
}

type Slice struct {
	Optional  bool
	MinLen    int
	MaxLen    int
	Validator Validator
}

func (v *Slice) Validate(value interface{}) error {
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || rv.Kind() != reflect.Slice || rv.IsNil() {
		if v.Optional {
			return nil
		}
		return ErrUnsetField
	}

	if rv.Len() < v.MinLen {
		return fmt.Errorf("%w: too few elements", ErrInvalidField)
	}
	if v.MaxLen > 0 && rv.Len() > v.MaxLen {
		return fmt.Errorf("%w: too many elements", ErrInvalidField)
	}

	if v.Validator != nil {
		for i := 0; i < rv.Len(); i++ {
			if err := v.Validator.Validate(rv.Index(i).Interface()); err != nil {
				return fmt.Errorf("[%d]%w", i, err)
			}
		}
	}

	return nil
}
