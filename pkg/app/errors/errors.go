// Package errors contains the categorised error type returned by the operational API.
package errors

import (
	"errors"
	"net/http"
)

// Category classifies a ServiceError and selects its HTTP status.
type Category int

const (
	// CategoryGeneralError is an unexpected failure.
	CategoryGeneralError Category = iota
	// CategoryDataError means the request carried invalid parameters.
	CategoryDataError
	// CategoryResourceNotFound means the token, position or trade is unknown.
	CategoryResourceNotFound
	// CategoryDependencyFailure means the ledger database or another backend failed.
	CategoryDependencyFailure
	// CategoryUnavailable means the feature is disabled or not ready yet.
	CategoryUnavailable
)

var categories = map[Category]struct {
	name   string
	status int
}{
	CategoryGeneralError:      {"general_error", http.StatusInternalServerError},
	CategoryDataError:         {"bad_request", http.StatusBadRequest},
	CategoryResourceNotFound:  {"not_found", http.StatusNotFound},
	CategoryDependencyFailure: {"dependency_failure", http.StatusBadGateway},
	CategoryUnavailable:       {"unavailable", http.StatusServiceUnavailable},
}

func (c Category) String() string {
	if info, ok := categories[c]; ok {
		return info.name
	}
	return categories[CategoryGeneralError].name
}

// ServiceError pairs a client-safe Message with the internal cause.
type ServiceError struct {
	Category Category
	Message  string
	Err      error
}

func (err *ServiceError) Error() string {
	if err.Err != nil {
		return err.Message + ": " + err.Err.Error()
	}
	return err.Message
}

func (err *ServiceError) Unwrap() error { return err.Err }

// StatusCode maps the category to an HTTP status.
func (err *ServiceError) StatusCode() int {
	if info, ok := categories[err.Category]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// CategoryOf returns the category of the first ServiceError in err's chain,
// or CategoryGeneralError.
func CategoryOf(err error) Category {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Category
	}
	return CategoryGeneralError
}

// BadRequestError reports invalid client input.
func BadRequestError(err error, message string) error {
	return &ServiceError{Category: CategoryDataError, Message: message, Err: err}
}

// ResourceNotFoundError reports an unknown resource.
func ResourceNotFoundError(err error, message string) error {
	return &ServiceError{Category: CategoryResourceNotFound, Message: message, Err: err}
}

// DependencyError reports a backend failure. The cause is kept for logs only.
func DependencyError(err error, message string) error {
	return &ServiceError{Category: CategoryDependencyFailure, Message: message, Err: err}
}

// UnavailableError reports a disabled or not yet ready feature.
func UnavailableError(message string) error {
	return &ServiceError{Category: CategoryUnavailable, Message: message}
}
