package credential

import "errors"

var (
	ErrUnknownMode           = errors.New("credential: unknown change mode")
	ErrUnportablePassword    = errors.New("credential: password contains characters that may not be portable across platforms")
	ErrPasswordEmpty         = errors.New("credential: password and keyfiles are both empty")
	ErrPasswordTooLong       = errors.New("credential: password is too long")
	ErrPasswordIncorrect     = errors.New("credential: incorrect password, PIM, keyfiles or key derivation function")
	ErrShortPasswordLowPIM   = errors.New("credential: a short password requires a strengthened iteration count")
	ErrKdfLegacyIncompatible = errors.New("credential: key derivation function is not supported in legacy mode")
	ErrNotAllowed            = errors.New("credential: change request is not complete")
	ErrDeclined              = errors.New("credential: operator declined")
	ErrRequestConsumed       = errors.New("credential: change request was already submitted")
	ErrOwnerNotRestored      = errors.New("credential: device owner was not restored")
)

// Kind is the closed set of failure categories reported to the operator.
type Kind int

const (
	KindUnderlying Kind = iota
	KindConfiguration
	KindPortability
	KindPasswordPolicy
	KindDeclined
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "ConfigurationError"
	case KindPortability:
		return "PortabilityError"
	case KindPasswordPolicy:
		return "PasswordPolicyError"
	case KindDeclined:
		return "DeclinedConfirmation"
	default:
		return "UnderlyingOperationError"
	}
}

// Recoverable reports whether the operator may correct input and resubmit.
func (k Kind) Recoverable() bool {
	return k == KindPortability || k == KindPasswordPolicy || k == KindDeclined
}

// Error is a classified failure. Key is a stable message key, Focus the
// input the operator should be returned to.
type Error struct {
	Kind  Kind
	Key   string
	Focus Field
	Cause error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Classify maps any error raised during a change onto the closed kind set.
// Errors already classified are returned unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	switch {
	case errors.Is(err, ErrUnknownMode), errors.Is(err, ErrRequestConsumed):
		return &Error{Kind: KindConfiguration, Key: "PARAMETER_INCORRECT", Cause: err}
	case errors.Is(err, ErrUnportablePassword):
		return &Error{Kind: KindPortability, Key: "UNSUPPORTED_CHARS_IN_PWD", Focus: FieldNewPassword, Cause: err}
	case errors.Is(err, ErrDeclined):
		return &Error{Kind: KindDeclined, Cause: err}
	case errors.Is(err, ErrShortPasswordLowPIM):
		return &Error{Kind: KindPasswordPolicy, Key: "PIM_REQUIRE_LONG_PASSWORD", Focus: FieldCurrentPassword, Cause: err}
	case errors.Is(err, ErrKdfLegacyIncompatible):
		return &Error{Kind: KindPasswordPolicy, Key: "ALGO_NOT_SUPPORTED_FOR_LEGACY_MODE", Focus: FieldCurrentPassword, Cause: err}
	case errors.Is(err, ErrPasswordIncorrect):
		return &Error{Kind: KindPasswordPolicy, Key: "PASSWORD_INCORRECT", Focus: FieldCurrentPassword, Cause: err}
	case errors.Is(err, ErrPasswordTooLong):
		return &Error{Kind: KindPasswordPolicy, Key: "PASSWORD_TOO_LONG", Focus: FieldCurrentPassword, Cause: err}
	case errors.Is(err, ErrPasswordEmpty), errors.Is(err, ErrNotAllowed):
		return &Error{Kind: KindPasswordPolicy, Key: "PASSWORD_EMPTY", Focus: FieldCurrentPassword, Cause: err}
	case errors.Is(err, ErrOwnerNotRestored):
		return &Error{Kind: KindUnderlying, Key: "OWNER_RESTORE_FAILED", Cause: err}
	}
	return &Error{Kind: KindUnderlying, Key: "OPERATION_FAILED", Cause: err}
}

// IsKind reports whether err classifies as kind.
func IsKind(err error, kind Kind) bool {
	e := Classify(err)
	return e != nil && e.Kind == kind
}
