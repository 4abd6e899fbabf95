package session

import (
	"errors"
	"fmt"
)

// Login error kinds, matched with errors.Is.
var (
	ErrNotRegistered        = errors.New("rfc is not registered on the portal")
	ErrCaptchaUnresolved    = errors.New("captcha could not be resolved")
	ErrIncorrectCredentials = errors.New("incorrect login credentials")
	ErrConnection           = errors.New("connection error during login")
)

// LoginError carries the context of a failed session operation. Body holds the last page
// received when it helps diagnosing the failure.
type LoginError struct {
	Kind error
	When string
	RFC  string
	Body string
	Err  error
}

func (e *LoginError) Error() string {
	msg := fmt.Sprintf("%s: %s (rfc %s)", e.Kind, e.When, e.RFC)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause.
func (e *LoginError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func outcomeLabel(kind error) string {
	switch {
	case errors.Is(kind, ErrNotRegistered):
		return "not_registered"
	case errors.Is(kind, ErrCaptchaUnresolved):
		return "captcha_unresolved"
	case errors.Is(kind, ErrIncorrectCredentials):
		return "incorrect_credentials"
	default:
		return "connection"
	}
}
