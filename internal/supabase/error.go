package supabase

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Error is a structured PostgREST error response.
type Error struct {
	Status  int
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
	Code    string `json:"code"`
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = fmt.Sprintf("request failed with status %d", e.Status)
	}
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return msg
}

// decodeError builds an *Error from a non-2xx response body. Bodies that are
// not the usual PostgREST error document are carried verbatim as the message.
func decodeError(status int, body []byte) error {
	e := &Error{Status: status}
	if err := json.Unmarshal(body, e); err != nil || e.Message == "" {
		text := strings.TrimSpace(string(body))
		if e.Message == "" {
			e.Message = text
		}
		if e.Message == "" {
			e.Message = fmt.Sprintf("request failed with status %d", status)
		}
	}
	return e
}
