package services

import "errors"

type ErrorCode string

const (
	ErrorInvalid           ErrorCode = "invalid"
	ErrorForbidden         ErrorCode = "forbidden"
	ErrorNotFound          ErrorCode = "not_found"
	ErrorExpired           ErrorCode = "expired"
	ErrorConflict          ErrorCode = "conflict"
	ErrorConfiguration     ErrorCode = "configuration"
	ErrorTransientStore    ErrorCode = "transient_store"
	ErrorResourceExhausted ErrorCode = "resource_exhausted"
	ErrorInternal          ErrorCode = "internal"
)

type ServiceError struct {
	Code    ErrorCode
	Message string
}

func (e *ServiceError) Error() string { return e.Message }

func NewInvalidError(msg string) error   { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewForbiddenError(msg string) error { return &ServiceError{Code: ErrorForbidden, Message: msg} }
func NewNotFoundError(msg string) error  { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewExpiredError(msg string) error   { return &ServiceError{Code: ErrorExpired, Message: msg} }
func NewConflictError(msg string) error  { return &ServiceError{Code: ErrorConflict, Message: msg} }

func NewConfigurationError(msg string) error {
	return &ServiceError{Code: ErrorConfiguration, Message: msg}
}

func NewTransientStoreError(msg string) error {
	return &ServiceError{Code: ErrorTransientStore, Message: msg}
}

func NewResourceExhaustedError(msg string) error {
	return &ServiceError{Code: ErrorResourceExhausted, Message: msg}
}

func NewInternalError(msg string) error { return &ServiceError{Code: ErrorInternal, Message: msg} }

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// ErrTokenCollision is returned by token stores when a freshly generated
// token string collides with an existing row. Callers retry with a new
// candidate a bounded number of times.
var ErrTokenCollision = errors.New("compare token collision")

// storeErr maps raw store failures onto the service taxonomy. Typed
// service errors pass through; malformed rows surface as internal
// anomalies; anything else is treated as transient I/O.
func storeErr(err error) error {
	if errors.Is(err, ErrMalformedRow) {
		return NewInternalError(err.Error())
	}
	if _, ok := AsServiceError(err); ok {
		return err
	}
	return NewTransientStoreError(err.Error())
}
