package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"appdownloader/utils"
)

// DecodeJSON decodes the request body into dst. Structural problems become a ValidationError;
// field rules are checked by the services.
func DecodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return utils.NewValidationError("Request body is required", nil)
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return utils.NewValidationError("Request body too large", nil)
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return utils.NewValidationError("Validation failed", map[string]string{typeErr.Field: "Invalid value."})
		}
		return utils.NewValidationError(fmt.Sprintf("Invalid JSON body: %v", err), nil)
	}
	return nil
}
