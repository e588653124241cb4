package models

import "errors"

var (
	ErrNegativePrice = errors.New("price must not be negative")
	ErrMissingTaxID  = errors.New("client needs a VAT number or a fiscal code")
)
