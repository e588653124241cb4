package models

import "github.com/go-playground/validator/v10"

var validate = validator.New()

// Validate runs the struct tags of any model through the shared validator.
func Validate(v any) error {
	return validate.Struct(v)
}
