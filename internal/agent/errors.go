package agent

import "fmt"

// Error is returned when the agent answers with an HTTP status >= 400.
// Body holds the decoded JSON error document, or the raw text when it was not JSON.
type Error struct {
	StatusCode int
	Body       any
}

func NewError(statusCode int, body any) *Error {
	return &Error{StatusCode: statusCode, Body: body}
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("agent error %d", e.StatusCode)
	switch b := e.Body.(type) {
	case map[string]any:
		if d, ok := b["detail"]; ok && d != nil {
			msg += fmt.Sprintf(": %v", d)
		}
	case string:
		if b != "" {
			msg += ": " + b
		}
	}
	return msg
}

// Detail returns the "detail" field of a JSON error body, if any.
func (e *Error) Detail() string {
	if b, ok := e.Body.(map[string]any); ok {
		if d, ok := b["detail"]; ok && d != nil {
			return fmt.Sprint(d)
		}
	}
	if s, ok := e.Body.(string); ok {
		return s
	}
	return ""
}
