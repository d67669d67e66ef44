package backend

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// ServerError is a non-2xx answer from the backend. Message is the backend's
// own text and is shown to the shopper unchanged.
type ServerError struct {
	Status  int
	Code    string
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// AsServerError extracts a ServerError from err.
func AsServerError(err error) (*ServerError, bool) {
	var se *ServerError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

func newServerError(status int, body []byte) *ServerError {
	se := &ServerError{Status: status}
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Code    string          `json:"code"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		se.Message = envelope.Message
		se.Code = envelope.Code
		if len(envelope.Error) > 0 {
			var nested struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			}
			var plain string
			switch {
			case json.Unmarshal(envelope.Error, &nested) == nil:
				if nested.Message != "" {
					se.Message = nested.Message
				}
				if nested.Code != "" {
					se.Code = nested.Code
				}
			case json.Unmarshal(envelope.Error, &plain) == nil && se.Message == "":
				se.Message = plain
			}
		}
	} else if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 512 {
		se.Message = text
	}
	if se.Message == "" {
		se.Message = http.StatusText(status)
	}
	return se
}
