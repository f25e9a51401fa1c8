// Package httpx holds the JSON response and request helpers shared by the HTTP handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// Error codes returned in the "code" field of error bodies.
const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeAuthFailed         = "AUTH_FAILED"
	CodeMissingCredentials = "MISSING_CREDENTIALS"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeSessionExpired     = "SESSION_EXPIRED"
	CodeConflict           = "CONFLICT"
	CodeUpstreamFailure    = "UPSTREAM_FAILURE"
	CodeNotFound           = "NOT_FOUND"
)

// MaxBodyBytes caps request bodies read by Decode.
const MaxBodyBytes = 1 << 20

// ErrEmptyBody is returned by Decode when the request has no body.
var ErrEmptyBody = errors.New("empty body")

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSON writes v as a JSON response with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes {"code", "message"} with the given status.
func Error(w http.ResponseWriter, status int, code, msg string) {
	JSON(w, status, ErrorBody{Code: code, Message: msg})
}

// Upstream writes the generic 500 UPSTREAM_FAILURE body. Details stay in the server log.
func Upstream(w http.ResponseWriter) {
	Error(w, http.StatusInternalServerError, CodeUpstreamFailure, "internal server error")
}

// Decode reads one JSON value from the body into dst. Bodies larger than
// MaxBodyBytes, unknown fields and trailing data are rejected.
func Decode(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return ErrEmptyBody
	}
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("extra data after JSON value")
	}
	return nil
}

// Request and response headers carrying tokens and device identity.
const (
	HeaderAccessToken  = "access-token"
	HeaderRefreshToken = "refresh-token"
	HeaderDeviceID     = "device-id"
	HeaderDeviceName   = "device-name"
	HeaderDeviceModel  = "device-model"
)
