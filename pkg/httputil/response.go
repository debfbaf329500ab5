// Package httputil provides the JSON success/error envelope used by every
// baselayer HTTP surface, plus request parsing and middleware helpers.
package httputil

import (
	"encoding/json"
	"net/http"
)

// Envelope is the standard response body. Success responses carry
// status "success" and a data payload; error responses carry status
// "error" and a message.
type Envelope struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, body interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

// WriteSuccess writes a 200 success envelope with a data payload
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteSuccessStatus(w, http.StatusOK, data)
}

// WriteSuccessStatus writes a success envelope with a caller-chosen 2xx status
func WriteSuccessStatus(w http.ResponseWriter, status int, data interface{}) error {
	return WriteJSON(w, status, Envelope{Status: "success", Data: data})
}

// WriteError writes an error envelope with the given status and message
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, Envelope{Status: "error", Message: message})
}

// WriteErrorData writes an error envelope carrying an additional data payload
func WriteErrorData(w http.ResponseWriter, status int, message string, data interface{}) {
	WriteJSON(w, status, Envelope{Status: "error", Message: message, Data: data})
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes an unauthorized error (401)
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message)
}

// WriteForbidden writes a forbidden error (403)
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, message)
}

// WriteNotFound writes a not found error (404)
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message)
}

// WriteConflict writes a conflict error (409)
func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, message)
}

// WriteInternalError writes an internal server error (500)
func WriteInternalError(w http.ResponseWriter, err error) {
	WriteError(w, http.StatusInternalServerError, err.Error())
}

// WriteServiceUnavailable writes a service unavailable error (503)
func WriteServiceUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, message)
}
