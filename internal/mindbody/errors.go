package mindbody

import "fmt"

// AuthError means MindBody rejected our credentials or token. Retrying
// without operator intervention cannot help, so callers never retry these.
type AuthError struct {
	Msg string
}

func (e *AuthError) Error() string { return "mindbody auth: " + e.Msg }

// APIError is any other non-success MindBody response, including "required
// fields missing" and "termination not confirmed".
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("mindbody %s: HTTP %d body=%s", e.Op, e.Status, e.Body)
	}
	return fmt.Sprintf("mindbody %s: %s", e.Op, e.Body)
}
