package apperr

import (
	"errors"
	"net/http"
)

type Kind int

const (
	Internal Kind = iota
	InvalidArgument
	Unauthorized
	RateLimited
	Conflict
	NotFound
	BackendUnavailable
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case Unauthorized:
		return "unauthorized"
	case RateLimited:
		return "rate_limited"
	case Conflict:
		return "conflict"
	case NotFound:
		return "not_found"
	case BackendUnavailable:
		return "backend_unavailable"
	default:
		return "internal"
	}
}

const genericMessage = "Internal server error"

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	if e.Msg == "" {
		return e.Err.Error()
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, err error) error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf devolve o Kind do primeiro *Error na cadeia. Erros sem classificação
// são tratados como Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func Status(kind Kind) int {
	switch kind {
	case InvalidArgument, Conflict:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case RateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage é o texto seguro para devolver ao cliente.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return genericMessage
	}
	switch e.Kind {
	case Internal, BackendUnavailable:
		return genericMessage
	}
	if e.Msg == "" {
		return http.StatusText(Status(e.Kind))
	}
	return e.Msg
}
