package hass

import "errors"

// ConfigEntryAuthFailed aborts entry setup because the stored credentials
// were rejected. The entry needs reauthentication before it is retried.
type ConfigEntryAuthFailed struct {
	Msg string
	Err error
}

func NewConfigEntryAuthFailed(msg string, cause error) *ConfigEntryAuthFailed {
	return &ConfigEntryAuthFailed{Msg: msg, Err: cause}
}

func (e *ConfigEntryAuthFailed) Error() string { return e.Msg }

func (e *ConfigEntryAuthFailed) Unwrap() error { return e.Err }

// ConfigEntryNotReady aborts entry setup for a condition expected to clear
// on its own. The host retries setup later.
type ConfigEntryNotReady struct {
	Msg string
	Err error
}

func NewConfigEntryNotReady(msg string, cause error) *ConfigEntryNotReady {
	return &ConfigEntryNotReady{Msg: msg, Err: cause}
}

func (e *ConfigEntryNotReady) Error() string { return e.Msg }

func (e *ConfigEntryNotReady) Unwrap() error { return e.Err }

// Error is a failure reported to the caller of an entity command.
type Error struct {
	Msg string
	Err error
}

func NewError(msg string, cause error) *Error {
	return &Error{Msg: msg, Err: cause}
}

func (e *Error) Error() string { return e.Msg }

func (e *Error) Unwrap() error { return e.Err }

var (
	ErrUnknownEntry       = errors.New("unknown config entry")
	ErrUnknownIntegration = errors.New("unknown integration")
	ErrUnknownFlow        = errors.New("unknown flow")
	ErrNotSupported       = errors.New("not supported")
)
