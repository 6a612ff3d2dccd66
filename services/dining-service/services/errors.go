package services

import (
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// ErrorKind classifies a ServiceError.
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation_error"
	KindPrecondition    ErrorKind = "precondition_failed"
	KindConflict        ErrorKind = "conflict"
	KindNotFound        ErrorKind = "not_found"
	KindForbidden       ErrorKind = "forbidden"
	KindExternalGateway ErrorKind = "external_gateway_error"
	KindInternal        ErrorKind = "internal"
)

// ServiceError represents a typed error with an HTTP status code.
type ServiceError struct {
	StatusCode int
	Message    string
	Kind       ErrorKind
}

func (e *ServiceError) Error() string {
	return e.Message
}

func validationError(msg string) *ServiceError {
	return &ServiceError{StatusCode: http.StatusBadRequest, Message: msg, Kind: KindValidation}
}

func preconditionFailed(msg string) *ServiceError {
	return &ServiceError{StatusCode: http.StatusUnprocessableEntity, Message: msg, Kind: KindPrecondition}
}

func conflict(msg string) *ServiceError {
	return &ServiceError{StatusCode: http.StatusConflict, Message: msg, Kind: KindConflict}
}

func notFound(msg string) *ServiceError {
	return &ServiceError{StatusCode: http.StatusNotFound, Message: msg, Kind: KindNotFound}
}

func forbidden(msg string) *ServiceError {
	return &ServiceError{StatusCode: http.StatusForbidden, Message: msg, Kind: KindForbidden}
}

func gatewayError(msg string) *ServiceError {
	return &ServiceError{StatusCode: http.StatusBadGateway, Message: msg, Kind: KindExternalGateway}
}

func internalError(msg string) *ServiceError {
	return &ServiceError{StatusCode: http.StatusInternalServerError, Message: msg, Kind: KindInternal}
}

// fromTxError unwraps a ServiceError returned from inside a transaction. Any
// other error is logged and reported as an internal error carrying msg.
func fromTxError(err error, logger *zap.Logger, msg string, fields ...zap.Field) *ServiceError {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	logger.Error(msg, append(fields, zap.Error(err))...)
	return internalError(msg)
}
