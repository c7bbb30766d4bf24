package models

import (
	"fmt"
	"strings"
)

// ValidationError reports missing or malformed caller input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("missing %s", e.Field)
}

// NewValidationError builds a ValidationError for a field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// UpstreamError wraps a failure of the payment gateway or the document store
type UpstreamError struct {
	Service string
	Op      string
	Err     error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// RenderError is returned when a receipt document could not be assembled
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render receipt: %v", e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// DeliveryError is returned when the email transport rejects a send
type DeliveryError struct {
	Recipients []string
	Err        error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s: %v", strings.Join(e.Recipients, ","), e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
