package core

// ErrorKind is a closed set of error classifications shared by every
// component. Boundary code maps a Kind to a transport status; internal
// code never depends on transport semantics directly.
type ErrorKind string

const (
	KindInvalidInput       ErrorKind = "invalid_input"
	KindUnauthorized       ErrorKind = "unauthorized"
	KindForbidden          ErrorKind = "forbidden"
	KindNotFound           ErrorKind = "not_found"
	KindQuotaExceeded      ErrorKind = "quota_exceeded"
	KindProviderNotReady   ErrorKind = "provider_not_ready"
	KindProviderExhausted  ErrorKind = "provider_exhausted"
	KindTransientInternal  ErrorKind = "transient_internal"
	KindFatal              ErrorKind = "fatal"
)

// NewKindError builds an *Error carrying kind as its Code.
func NewKindError(err error, kind ErrorKind, details map[string]any) *Error {
	return NewError(err, string(kind), details)
}

// Is reports whether err (or something it wraps) is a *Error with the given kind.
func Is(err error, kind ErrorKind) bool {
	var e *Error
	for err != nil {
		if ce, ok := err.(*Error); ok {
			e = ce
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return e != nil && e.Code == string(kind)
}
