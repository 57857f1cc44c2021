package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"vidora.org/internal/auth"
)

// envelope is the uniform response shape of the API. Successful responses
// carry data; failures carry only the status and a generic message.
type envelope struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data,omitempty"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, code int, data any, message string) {
	writeJSON(w, code, envelope{StatusCode: code, Data: data, Message: message, Success: true})
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, envelope{StatusCode: code, Message: message, Success: false})
}

// writeAuthError converts a flow-level failure into the wire envelope.
// Messages stay generic for credential and token failures: the caller never
// learns whether the username or the password was wrong, nor whether a token
// was expired, tampered with, or replayed.
func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrMissingCredential):
		writeError(w, http.StatusBadRequest, "credentials are required")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid request")
	case errors.Is(err, auth.ErrInvalidCredential):
		writeError(w, http.StatusUnauthorized, "invalid user credentials")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, http.StatusNotFound, "user does not exist")
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenReused),
		errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized request")
	case errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "user with email or username already exists")
	case errors.Is(err, auth.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// decodeJSON reads a JSON body, rejecting unknown shapes and trailing data.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("malformed JSON body")
	}
	if dec.More() {
		return fmt.Errorf("unexpected trailing data")
	}
	return nil
}

// missingFieldsMessage names the empty fields of a request the way the API
// has always reported them: "field a & b are required".
func missingFieldsMessage(fields map[string]string) string {
	var missing []string
	for _, name := range []string{"username", "email", "fullName", "password"} {
		if v, ok := fields[name]; ok && strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return ""
	}
	noun, verb := "field", "is"
	if len(missing) > 1 {
		noun, verb = "fields", "are"
	}
	return fmt.Sprintf("%s %s %s required", noun, strings.Join(missing, " & "), verb)
}
