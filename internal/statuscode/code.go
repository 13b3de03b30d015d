// Package statuscode defines the stable error-kind taxonomy shared by the
// provider protocol, the call router, and the BT node contracts.
package statuscode

// Code is a stable, wire-facing status identifier. It is a string newtype,
// comparable, and implements error so it can be returned or wrapped
// directly.
type Code string

func (c Code) Error() string { return string(c) }

// Wire-level codes, mirroring the provider protocol's Status.code enum
// and doubling as the call router's result classification.
const (
	OK                 Code = "OK"
	InvalidArgument    Code = "INVALID_ARGUMENT"
	NotFound           Code = "NOT_FOUND"
	FailedPrecondition Code = "FAILED_PRECONDITION"
	Unavailable        Code = "UNAVAILABLE"
	DeadlineExceeded   Code = "DEADLINE_EXCEEDED"
	Internal           Code = "INTERNAL"
)

// Local kinds used only inside the BT node contracts; never surface on
// the wire.
const (
	MissingBlackboardContext Code = "MISSING_BLACKBOARD_CONTEXT"
	MissingPort              Code = "MISSING_PORT"
)

// E wraps a Code with an operation label, a human message, and an
// optional cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	if e.Msg != "" {
		return e.Op + ": " + string(e.C) + ": " + e.Msg
	}
	return e.Op + ": " + string(e.C)
}

func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// New builds an *E without an underlying cause.
func New(c Code, op, msg string) *E {
	return &E{C: c, Op: op, Msg: msg}
}

// Wrap attaches a Code and operation label to an existing error.
func Wrap(c Code, op string, err error) *E {
	if err == nil {
		return nil
	}
	return &E{C: c, Op: op, Msg: err.Error(), Err: err}
}

// Of extracts a Code from an error, defaulting to Internal when the
// error does not carry one.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Internal
}

// HTTPStatus maps a Code to the HTTP status an external front-end uses.
// Kept here since the mapping is a pure function of the taxonomy; no
// package in this module calls it.
func HTTPStatus(c Code) int {
	switch c {
	case OK:
		return 200
	case InvalidArgument:
		return 400
	case NotFound:
		return 404
	case FailedPrecondition:
		return 409
	case Unavailable:
		return 503
	case DeadlineExceeded:
		return 504
	default:
		return 500
	}
}
