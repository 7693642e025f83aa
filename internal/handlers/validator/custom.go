package validator

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	// docket-style identifiers: CV-2024-0042, 2024-SC-17, A-100
	caseNumberRegex = regexp.MustCompile(`^[a-zA-Z0-9]+(-[a-zA-Z0-9]+)*$`)

	personNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9 .,'-]*$`)

	documentKindRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)
)

func caseNumberValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}

	return caseNumberRegex.MatchString(val)
}

func personNameValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}

	return personNameRegex.MatchString(val)
}

func documentKindValidator(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}

	return documentKindRegex.MatchString(val)
}
