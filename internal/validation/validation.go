// Polarhub - Wearable Heart-Beat Ingest and HRV Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/polarhub

// Package validation wraps go-playground/validator v10 behind a thread-safe
// singleton with human-readable error messages for the ingest API.
package validation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate *validator.Validate
	once     sync.Once
)

// instance returns the singleton validator. Struct metadata is cached
// after first use, so sharing one instance matters for throughput.
func instance() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Error describes a failed validation in API-surface terms.
type Error struct {
	Message string
	Fields  []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// ValidateStruct validates v's `validate` tags. Returns nil when valid.
func ValidateStruct(v interface{}) *Error {
	err := instance().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	ok := false
	if verrs, ok = err.(validator.ValidationErrors); !ok {
		return &Error{Message: err.Error()}
	}

	fields := make([]string, 0, len(verrs))
	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
		messages = append(messages, translate(fe))
	}
	return &Error{
		Message: strings.Join(messages, "; "),
		Fields:  fields,
	}
}

// translate renders one field error as a human-readable message.
func translate(fe validator.FieldError) string {
	field := lowerFirst(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("missing required field %q", field)
	case "oneof":
		return fmt.Sprintf("field %q must be one of: %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("field %q must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("field %q must be at least %s", field, fe.Param())
	default:
		return fmt.Sprintf("field %q failed %q validation", field, fe.Tag())
	}
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
