package upgw

import (
	"fmt"
	"strings"
)

// ClientError is returned by any failed call to the vendor cloud.
type ClientError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *ClientError) Error() string {
	switch {
	case e.Status != 0 && e.Body != "":
		return fmt.Sprintf("upgw %s: status %d: %s", e.Op, e.Status, strings.TrimSpace(e.Body))
	case e.Status != 0:
		return fmt.Sprintf("upgw %s: status %d", e.Op, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("upgw %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("upgw %s failed", e.Op)
	}
}

func (e *ClientError) Unwrap() error { return e.Err }

// AuthenticationError means the account credentials were rejected.
type AuthenticationError struct {
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Reason == "" {
		return "upgw authentication failed"
	}
	return "upgw authentication failed: " + e.Reason
}

func (e *AuthenticationError) Unwrap() error { return e.Err }
