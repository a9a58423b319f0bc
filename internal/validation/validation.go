// Package validation wraps a shared validator with English messages keyed by
// JSON field names.
package validation

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"feedbackhub/internal/apperr"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// Validator holds a validator and its English translator
type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

var (
	once   sync.Once
	shared *Validator
)

// Get returns the process-wide validator, building it on first use
func Get() *Validator {
	once.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ := uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("json")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})
		_ = en_translations.RegisterDefaultTranslations(v, trans)

		shared = &Validator{validate: v, translator: trans}
	})
	return shared
}

// Validate checks struct tags and returns the first failure as a validation error.
// It satisfies echo.Validator.
func (v *Validator) Validate(i any) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}
	var inv *validator.InvalidValidationError
	if errors.As(err, &inv) {
		return apperr.Wrap(apperr.KindUnknown, err, "validator misuse")
	}
	return v.first(err)
}

// Email reports a validation error on field unless s is a syntactically valid address
func (v *Validator) Email(field, s string) error {
	if err := v.validate.Var(s, "required,email"); err != nil {
		return apperr.Validation(field, "Please enter a valid email address")
	}
	return nil
}

// IsEmail reports whether s is a syntactically valid address
func (v *Validator) IsEmail(s string) bool {
	return v.validate.Var(s, "required,email") == nil
}

func (v *Validator) first(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return apperr.Wrap(apperr.KindValidation, err, "invalid request")
	}
	fe := errs[0]
	return apperr.Validation(fe.Field(), fe.Translate(v.translator))
}
