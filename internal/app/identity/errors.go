package identity

import "errors"

const (
	FormModeLogin    = "login"
	FormModeRegister = "register"
)

// AuthError carries the message shown on the login form.
type AuthError struct {
	Mode    string
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// DescribeFailure turns a Login or Register error into the form message.
// Sign-in failures never reveal which credential was wrong.
func DescribeFailure(mode string, err error) *AuthError {
	if err == nil {
		return nil
	}
	if mode == FormModeRegister {
		detail := "Please try again."
		switch {
		case errors.Is(err, ErrInvalidEmail), errors.Is(err, ErrInvalidPassword), errors.Is(err, ErrEmailTaken):
			detail = err.Error()
		}
		return &AuthError{Mode: mode, Message: "Failed to register. " + detail, Err: err}
	}
	return &AuthError{
		Mode:    FormModeLogin,
		Message: "Failed to log in. Check your credentials and try again.",
		Err:     err,
	}
}
