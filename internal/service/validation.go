package service

import (
	"regexp"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

var subjectNumberPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,50}$`)

// registerSubjectValidations adds the tags used by subject payloads.
func registerSubjectValidations(validate *validator.Validate) {
	_ = validate.RegisterValidation("notblank", validators.NotBlank)
	_ = validate.RegisterValidation("subject_number", func(fl validator.FieldLevel) bool {
		return subjectNumberPattern.MatchString(fl.Field().String())
	})
}
