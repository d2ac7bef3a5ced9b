// Package httpx provides JSON response helpers for the `{success, ...}` envelope.
package httpx

import (
	"encoding/json"
	"net/http"
)

// Envelope is a success response body; extra keys are merged at the top level.
type Envelope map[string]any

// Failure is the body of every failed request.
type Failure struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// OK sends `{success: true}` merged with body.
func OK(w http.ResponseWriter, status int, body Envelope) {
	out := Envelope{"success": true}
	for k, v := range body {
		out[k] = v
	}
	JSON(w, status, out)
}

// Fail sends `{success: false, message}`.
func Fail(w http.ResponseWriter, status int, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	JSON(w, status, Failure{Success: false, Message: message})
}

// DecodeJSON decodes JSON request body into the target struct, rejecting unknown fields.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}
