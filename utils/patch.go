package utils

import (
	"reflect"
	"strconv"
	"strings"
)

// ApplyPtrDTO copies every non-nil pointer field of dto onto the field of
// dst that carries the same `json` name, and returns the names applied.
// dst must be a pointer to struct; fields without a counterpart are skipped.
func ApplyPtrDTO(dto any, dst any) []string {
	v := reflect.ValueOf(dto)
	d := reflect.ValueOf(dst)
	if v.Kind() != reflect.Ptr || d.Kind() != reflect.Ptr {
		return nil
	}
	s, t := v.Elem(), d.Elem()
	if s.Kind() != reflect.Struct || t.Kind() != reflect.Struct {
		return nil
	}

	targets := jsonFields(t.Type())
	var applied []string
	for i := 0; i < s.NumField(); i++ {
		fv := s.Field(i)
		if fv.Kind() != reflect.Ptr || fv.IsNil() {
			continue
		}
		name := jsonName(s.Type().Field(i))
		idx, ok := targets[name]
		if !ok {
			continue
		}
		target := t.Field(idx)
		if !target.CanSet() || fv.Elem().Type() != target.Type() {
			continue
		}
		target.Set(fv.Elem())
		applied = append(applied, name)
	}
	return applied
}

func jsonFields(t reflect.Type) map[string]int {
	out := make(map[string]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if name := jsonName(t.Field(i)); name != "" {
			out[name] = i
		}
	}
	return out
}

func jsonName(sf reflect.StructField) string {
	tag := sf.Tag.Get("json")
	if tag == "" || tag == "-" {
		return ""
	}
	return strings.Split(tag, ",")[0]
}

func ParseIntDefault(s string, def int) int {
	if v, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && v >= 0 {
		return v
	}
	return def
}
