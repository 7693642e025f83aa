package validator

import "github.com/go-playground/validator/v10"

func registerFn(tag string, fn func(fl validator.FieldLevel) bool) func(v *validator.Validate) {
	return func(v *validator.Validate) {
		_ = v.RegisterValidation(tag, fn)
	}
}

func NewCaseRecordValidationRules() []ValidationRule {
	return []ValidationRule{
		{
			Rule: registerFn("case_number", caseNumberValidator),
		},
		{
			Rule: registerFn("person_name", personNameValidator),
		},
		{
			Rule: registerFn("document_kind", documentKindValidator),
		},
	}
}
