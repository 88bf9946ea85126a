package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
)

// decodeJSON strictly decodes one JSON object from a size-limited body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return fmt.Errorf("%w: expected application/json", ErrInvalidRequest)
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, jsonMaxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxBytes *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytes):
			return ErrBodyTooLarge
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: empty body", ErrInvalidRequest)
		default:
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected data after JSON object", ErrInvalidRequest)
	}
	return nil
}
