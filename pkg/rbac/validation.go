package rbac

import (
	"errors"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// identifier: non-empty, no whitespace anywhere.
		_ = validate.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			return s != "" && !strings.ContainsFunc(s, unicode.IsSpace)
		})
		// trimmed: no leading or trailing whitespace, not blank.
		_ = validate.RegisterValidation("trimmed", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			return s != "" && strings.TrimSpace(s) == s
		})
	})
	return validate
}

// validateStruct maps validation failures to ErrInvalidArgument.
func validateStruct(v any) error {
	if err := validatorInstance().Struct(v); err != nil {
		return errors.Join(ErrInvalidArgument, err)
	}
	return nil
}
