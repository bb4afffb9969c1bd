package utils

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string            `json:"error"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, resp interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteError renders err with the status of its kind. Anything that is not an *AppError is
// treated as internal: logged with the request id and answered with a generic message.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = Internal(err)
	}
	resp := ErrorResponse{Error: appErr.Message, Fields: appErr.Fields}
	if appErr.Kind == KindInternal {
		RequestLogger(r).WithError(appErr.Err).Error("request failed")
		if rid, ok := r.Context().Value(RequestIDKey).(string); ok {
			resp.RequestID = rid
		}
	}
	WriteJSON(w, appErr.Kind.Status(), resp)
}
