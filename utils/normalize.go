package utils

import (
	"reflect"
	"strings"

	"github.com/shopspring/decimal"
)

var decimalType = reflect.TypeOf(decimal.Decimal{})

// NormalizeDTO trims string fields and rounds decimal amounts to cents on a
// pointer-to-struct DTO. Pointer fields are normalized when set; nils stay
// nil so a patch leaves them alone.
func NormalizeDTO(dto any) {
	v := reflect.ValueOf(dto)
	if v.Kind() != reflect.Ptr {
		return
	}
	s := v.Elem()
	if s.Kind() != reflect.Struct {
		return
	}
	for i := 0; i < s.NumField(); i++ {
		f := s.Field(i)
		if !f.CanSet() {
			continue
		}
		if f.Kind() == reflect.Ptr {
			if f.IsNil() {
				continue
			}
			f = f.Elem()
		}
		normalizeValue(f)
	}
}

func normalizeValue(f reflect.Value) {
	switch {
	case f.Kind() == reflect.String:
		f.SetString(strings.TrimSpace(f.String()))
	case f.Type() == decimalType:
		d := f.Interface().(decimal.Decimal)
		f.Set(reflect.ValueOf(d.Round(2)))
	}
}
