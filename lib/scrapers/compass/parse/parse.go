// Package parse validates raw portal JSON into typed projections. It sits
// between the scraping client and the ingestion store so that network
// access and correctness checking stay decoupled.
package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// FieldError describes one invalid or missing field on a raw item.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ParseError carries the raw data that failed along with every field error
// found on it. For list input, Index identifies the failing item.
type ParseError struct {
	Index  int
	Raw    json.RawMessage
	Fields []FieldError
}

func (e *ParseError) Error() string {
	reasons := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		reasons[i] = f.Error()
	}
	return fmt.Sprintf("invalid item at index %d: %s", e.Index, strings.Join(reasons, "; "))
}

// Model is a typed projection of one raw portal item. Required names the
// upstream fields that must be present and non-null before decoding.
type Model interface {
	Required() []string
}

// validator is optionally implemented by models that have semantic checks
// beyond presence and type.
type validator interface {
	Validate() []FieldError
}

// Object decodes and validates a single raw JSON object.
func Object[T Model](raw json.RawMessage) (T, error) {
	var value T

	var fields map[string]json.RawMessage
	err := json.Unmarshal(raw, &fields)
	if err != nil {
		return value, &ParseError{
			Raw:    raw,
			Fields: []FieldError{{Field: "(root)", Reason: "not a JSON object"}},
		}
	}

	var fieldErrs []FieldError
	for _, name := range value.Required() {
		present, ok := fields[name]
		if !ok || isNull(present) {
			fieldErrs = append(fieldErrs, FieldError{Field: name, Reason: "missing required field"})
		}
	}

	err = json.Unmarshal(raw, &value)
	if err != nil {
		fieldErrs = append(fieldErrs, typeError(err))
	}

	if v, ok := any(value).(validator); ok && len(fieldErrs) == 0 {
		fieldErrs = append(fieldErrs, v.Validate()...)
	}

	if len(fieldErrs) > 0 {
		return value, &ParseError{Raw: raw, Fields: fieldErrs}
	}
	return value, nil
}

// List decodes a list of raw items strictly, failing on the first invalid
// item with its index.
func List[T Model](items []json.RawMessage) ([]T, error) {
	values := make([]T, 0, len(items))
	for i, item := range items {
		value, err := Object[T](item)
		if err != nil {
			var parseErr *ParseError
			if errors.As(err, &parseErr) {
				parseErr.Index = i
			}
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}

// Safe decodes a list of raw items tolerantly. Invalid items become
// entries in the returned error list instead of aborting; every input item
// lands in exactly one of the two slices and valid items keep their
// relative order.
func Safe[T Model](items []json.RawMessage) ([]T, []*ParseError) {
	values := make([]T, 0, len(items))
	var parseErrs []*ParseError
	for i, item := range items {
		value, err := Object[T](item)
		if err != nil {
			var parseErr *ParseError
			if errors.As(err, &parseErr) {
				parseErr.Index = i
				parseErrs = append(parseErrs, parseErr)
			} else {
				parseErrs = append(parseErrs, &ParseError{
					Index:  i,
					Raw:    item,
					Fields: []FieldError{{Field: "(root)", Reason: err.Error()}},
				})
			}
			continue
		}
		values = append(values, value)
	}
	return values, parseErrs
}

func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}

func typeError(err error) FieldError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return FieldError{
			Field:  typeErr.Field,
			Reason: fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value),
		}
	}
	return FieldError{Field: "(root)", Reason: err.Error()}
}
