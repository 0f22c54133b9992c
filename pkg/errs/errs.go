// Package errs defines the error taxonomy used across the module.
//
// Inspired by:
// - https://github.com/upspin/upspin/tree/master/errors
// - https://github.com/gilcrest/diygoapi/tree/main/errs
package errs

import (
	"bytes"
	"errors"
	"fmt"
)

// Op describes an operation, usually as the package and method,
// such as "tabell.Client.DeleteRow".
type Op string

// Parameter represents the parameter related to the error.
type Parameter string

// UserName is the name of the authenticated user tied to the error.
type UserName string

// Fields carries field-level validation messages, keyed by field name.
type Fields map[string][]string

// Kind defines the kind of error this is.
type Kind uint8

const (
	// Other is the fallback kind, also used for nested errors that
	// should inherit the kind further up the chain.
	Other Kind = iota
	// InvalidRequest means the request was malformed before it ever
	// reached the backend.
	InvalidRequest
	// Validation means the backend (or a local pre-check) rejected
	// field values; Fields holds the per-field messages.
	Validation
	// Unauthenticated means there is no valid credential (HTTP 401).
	Unauthenticated
	// Unauthorized means the credential lacks permission (HTTP 403).
	Unauthorized
	// NotExist means the item does not exist (HTTP 404).
	NotExist
	// Exist means the item already exists (HTTP 409).
	Exist
	// RateLimited means the backend asked us to back off (HTTP 429).
	RateLimited
	// Timeout means the request exceeded its deadline.
	Timeout
	// Unavailable means no response was received at all.
	Unavailable
	// Internal means the backend failed (HTTP 5xx).
	Internal
	// IO means a local input/output error, such as the session store.
	IO
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "other error"
	case InvalidRequest:
		return "invalid request"
	case Validation:
		return "input validation error"
	case Unauthenticated:
		return "unauthenticated"
	case Unauthorized:
		return "unauthorized"
	case NotExist:
		return "item does not exist"
	case Exist:
		return "item already exists"
	case RateLimited:
		return "rate limited"
	case Timeout:
		return "timeout"
	case Unavailable:
		return "service unavailable"
	case Internal:
		return "internal error"
	case IO:
		return "I/O error"
	}

	return "unknown error kind"
}

// Error is the type that implements the error interface. An Error
// value may leave some fields unset.
type Error struct {
	User   UserName
	Kind   Kind
	Op     Op
	Param  Parameter
	Fields Fields
	Err    error
}

func (e *Error) Error() string {
	b := new(bytes.Buffer)

	if e.Op != "" {
		pad(b, ": ")
		b.WriteString(string(e.Op))
	}

	if e.Kind != 0 {
		pad(b, ": ")
		b.WriteString(e.Kind.String())
	}

	if e.Err != nil {
		pad(b, ": ")
		b.WriteString(e.Err.Error())
	}

	if b.Len() == 0 {
		return "no error"
	}

	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) isZero() bool {
	return e.User == "" && e.Kind == 0 && e.Op == "" && e.Param == "" && e.Err == nil
}

// pad appends str to the buffer if the buffer already has some data.
func pad(b *bytes.Buffer, str string) {
	if b.Len() == 0 {
		return
	}

	b.WriteString(str)
}

// E builds an error value from its arguments. There must be at least
// one argument or E panics. The type of each argument determines its
// meaning:
//
//	Op: the operation being performed
//	Kind: the class of error
//	UserName: the user tied to the error
//	Parameter: the request parameter in error
//	Fields: field-level validation messages
//	string: treated as an error message
//	error: the underlying error
func E(args ...interface{}) error {
	if len(args) == 0 {
		panic("call to errs.E with no arguments")
	}

	e := &Error{}
	for _, arg := range args {
		switch arg := arg.(type) {
		case Op:
			e.Op = arg
		case Kind:
			e.Kind = arg
		case UserName:
			e.User = arg
		case Parameter:
			e.Param = arg
		case Fields:
			e.Fields = arg
		case string:
			e.Err = errors.New(arg)
		case *Error:
			cp := *arg
			e.Err = &cp
		case error:
			e.Err = arg
		case nil:
			continue
		default:
			return fmt.Errorf("unknown type %T, value %v in error call", arg, arg)
		}
	}

	prev, ok := e.Err.(*Error)
	if !ok {
		return e
	}

	// Collapse fields that repeat what the nested error already says.
	if prev.Kind == e.Kind {
		prev.Kind = Other
	}

	if e.Kind == Other {
		e.Kind = prev.Kind
		prev.Kind = Other
	}

	if e.Fields == nil {
		e.Fields = prev.Fields
	}

	return e
}

// KindIs reports whether err, anywhere in its chain, is of the given
// kind.
func KindIs(kind Kind, err error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}

	if e.Kind != Other {
		return e.Kind == kind
	}

	if e.Err != nil {
		return KindIs(kind, e.Err)
	}

	return false
}

// KindOf returns the first non-Other kind in the error chain, or
// Other when none is set.
func KindOf(err error) Kind {
	e, ok := err.(*Error)
	if !ok {
		return Other
	}

	if e.Kind != Other {
		return e.Kind
	}

	if e.Err != nil {
		return KindOf(e.Err)
	}

	return Other
}

// Message returns the innermost human-readable message of the error
// chain. The backend-supplied message, when present, lives there.
func Message(err error) string {
	e, ok := err.(*Error)
	if !ok {
		if err == nil {
			return ""
		}
		return err.Error()
	}

	if e.Err != nil {
		return Message(e.Err)
	}

	return e.Kind.String()
}

// FieldsOf returns the field-level validation messages attached to
// the error chain, or nil.
func FieldsOf(err error) Fields {
	e, ok := err.(*Error)
	if !ok {
		return nil
	}

	if e.Fields != nil {
		return e.Fields
	}

	if e.Err != nil {
		return FieldsOf(e.Err)
	}

	return nil
}

// OpStack returns the operation chain from outermost to innermost.
func OpStack(err error) []string {
	var ops []string

	for err != nil {
		e, ok := err.(*Error)
		if !ok {
			break
		}

		if e.Op != "" {
			ops = append(ops, string(e.Op))
		}

		err = e.Err
	}

	return ops
}
