// Package http adapts error-returning handlers to chi.
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/apmfree78/snipper-sub000/pkg/app/errors"
)

// HandlerFunc is an http handler that reports failures by returning an error.
type HandlerFunc func(http.ResponseWriter, *http.Request) error

// HandleError converts h into a standard http.HandlerFunc.
//
//	r.Get("/tokens", http.HandleError(h.list))
func HandleError(h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			WriteError(w, err)
		}
	}
}

type errorResponse struct {
	ErrMsg     string `json:"error"`
	ErrMsgCode int    `json:"code"`
}

// WriteError renders err as JSON. Errors that are not a ServiceError are
// reported as an unexpected failure without leaking their text.
func WriteError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "Unexpected Service Error"

	var svcErr *apperrors.ServiceError
	if errors.As(err, &svcErr) {
		status = svcErr.StatusCode()
		msg = svcErr.Message
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&errorResponse{ErrMsg: msg, ErrMsgCode: status})
}
