// Package httputil writes the JSON response envelope shared by every endpoint:
//
//	{"success": true,  "data": ..., "meta": ...}
//	{"success": false, "error": {"code": ..., "message": ..., "details": ...}}
package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	dErrors "cnpjota/pkg/domain-errors"
)

const maxBodyBytes = 1 << 20

// Envelope is the top-level response shape.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
	Meta    any        `json:"meta,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

// detailer is implemented by errors that expose structured details to clients.
type detailer interface {
	ErrorDetails() any
}

// retryAfter is implemented by errors that tell the client when to retry.
type retryAfter interface {
	RetryAfterSeconds() int
}

// WriteJSON writes v as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteSuccess writes a success envelope.
func WriteSuccess(w http.ResponseWriter, status int, data, meta any) {
	WriteJSON(w, status, Envelope{Success: true, Data: data, Meta: meta})
}

// WriteError translates err into an error envelope. Internal errors never leak
// their message.
func WriteError(w http.ResponseWriter, err error) {
	WriteErrorWithMeta(w, err, nil)
}

// WriteErrorWithMeta is WriteError with a meta block, used when the client
// needs context such as its remaining balance.
func WriteErrorWithMeta(w http.ResponseWriter, err error, meta any) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)

	body := &ErrorBody{Code: string(code)}
	if code != dErrors.CodeInternal {
		if de, ok := dErrors.As(err); ok {
			body.Message = de.Message
		}
	}

	var d detailer
	if errors.As(err, &d) {
		body.Details = d.ErrorDetails()
	}
	var ra retryAfter
	if errors.As(err, &ra) {
		w.Header().Set("Retry-After", strconv.Itoa(ra.RetryAfterSeconds()))
	}

	WriteJSON(w, status, Envelope{Success: false, Error: body, Meta: meta})
}

// DecodeJSON decodes a bounded JSON body into T, rejecting unknown fields.
func DecodeJSON[T any](r *http.Request) (*T, error) {
	var v T
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid json body")
	}
	return &v, nil
}
