// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is returned when an entity does not exist.
type ErrNotFound struct {
	Entity string
	ID     string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Entity, e.ID)
}

func NewCampaignNotFound(id string) error {
	return &ErrNotFound{Entity: "campaign", ID: id}
}

func NewSessionNotFound(id string) error {
	return &ErrNotFound{Entity: "session", ID: id}
}

func NewContactNotFound(id string) error {
	return &ErrNotFound{Entity: "contact", ID: id}
}

func NewTemplateNotFound(id string) error {
	return &ErrNotFound{Entity: "template", ID: id}
}

func NewExecutionNotFound(id string) error {
	return &ErrNotFound{Entity: "execution", ID: id}
}

// ErrConflict is returned when an operation does not apply to the current state,
// e.g. pausing a campaign that is already paused.
type ErrConflict struct {
	Reason string
}

func (e *ErrConflict) Error() string {
	return e.Reason
}

func NewConflict(format string, args ...any) error {
	return &ErrConflict{Reason: fmt.Sprintf(format, args...)}
}

// ErrValidation is returned for invalid configuration or input.
type ErrValidation struct {
	Field  string
	Reason string
}

func (e *ErrValidation) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func NewValidation(field, format string, args ...any) error {
	return &ErrValidation{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func IsNotFound(err error) bool {
	var target *ErrNotFound
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target *ErrConflict
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target *ErrValidation
	return errors.As(err, &target)
}

// HTTPStatus maps an error to the status code returned by the API.
func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case IsValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
