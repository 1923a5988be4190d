package validator

import "github.com/go-playground/validator/v10"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Struct runs the shared validator over a request DTO.
func Struct(s any) error {
	return validate.Struct(s)
}
