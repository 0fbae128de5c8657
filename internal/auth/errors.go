package auth

import "net/http"

// Kind groups errors by how callers should react to them.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindUnauthorized
	KindNotFound
	KindInternal
)

// HTTPStatus maps a kind onto its response status.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Error is a failure the auth flow reports to its caller. Code is stable and
// machine readable; Message is safe to show to end users.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Detail  string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Message + ": " + e.Detail
	}
	return e.Message
}

// Is matches on Code so copies made by WithDetail or WithMessage still match their sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithDetail returns a copy of e carrying detail.
func (e *Error) WithDetail(detail string) *Error {
	cp := *e
	cp.Detail = detail
	return &cp
}

// WithMessage returns a copy of e with a different user-facing message.
func (e *Error) WithMessage(message string) *Error {
	cp := *e
	cp.Message = message
	return &cp
}

var (
	ErrInvalidInput      = &Error{Kind: KindValidation, Code: "INVALID_INPUT", Message: "Invalid request"}
	ErrDuplicateEmail    = &Error{Kind: KindValidation, Code: "DUPLICATE_EMAIL", Message: "User with this email already exists"}
	ErrDuplicatePhone    = &Error{Kind: KindValidation, Code: "DUPLICATE_PHONE", Message: "User with this phone number already exists"}
	ErrInvalidCredential = &Error{Kind: KindUnauthorized, Code: "INVALID_CREDENTIAL", Message: "Invalid email or password"}
	ErrInvalidPhone      = &Error{Kind: KindValidation, Code: "INVALID_PHONE", Message: "Invalid phone number"}
	ErrSessionNotFound   = &Error{Kind: KindValidation, Code: "SESSION_NOT_FOUND", Message: "Invalid OTP session"}
	ErrSessionExpired    = &Error{Kind: KindValidation, Code: "SESSION_EXPIRED", Message: "OTP has expired"}
	ErrAlreadyVerified   = &Error{Kind: KindValidation, Code: "ALREADY_VERIFIED", Message: "OTP already used"}
	ErrTooManyAttempts   = &Error{Kind: KindValidation, Code: "TOO_MANY_ATTEMPTS", Message: "Too many attempts. Please request a new OTP"}
	ErrInvalidCode       = &Error{Kind: KindValidation, Code: "INVALID_CODE", Message: "Invalid OTP"}
	ErrProfileRequired   = &Error{Kind: KindValidation, Code: "PROFILE_REQUIRED", Message: "First name, district, state, and gender are required to complete registration"}
	ErrMissingToken      = &Error{Kind: KindUnauthorized, Code: "MISSING_TOKEN", Message: "No token provided"}
	ErrInvalidToken      = &Error{Kind: KindUnauthorized, Code: "INVALID_TOKEN", Message: "Invalid token"}
	ErrUserNotFound      = &Error{Kind: KindNotFound, Code: "USER_NOT_FOUND", Message: "User not found"}
	ErrInternal          = &Error{Kind: KindInternal, Code: "INTERNAL", Message: "Internal server error"}
)
