// Package pgjson encodes jsonb columns the way the repositories store them.
package pgjson

import (
	"encoding/json"
	"reflect"
)

// Marshal encodes v for a jsonb parameter. Nil pointers, maps and slices
// encode as SQL NULL so nullable columns stay NULL.
func Marshal(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
	}
	return json.Marshal(v)
}

// MarshalList encodes a slice, writing [] for nil so NOT NULL array columns accept it.
func MarshalList[T any](items []T) ([]byte, error) {
	if items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(items)
}

// MarshalObject encodes a map, writing {} for nil.
func MarshalObject[K comparable, V any](m map[K]V) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Unmarshal decodes a scanned jsonb column, ignoring NULL and empty values.
func Unmarshal(data []byte, v interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}
