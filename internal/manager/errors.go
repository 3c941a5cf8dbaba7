package manager

import "errors"

// errPeerNotConfigured marks an optional peer absent from the configuration;
// health checks report it as unreachable.
var errPeerNotConfigured = errors.New("peer not configured")

// invalidArgumentError signals a rejected RPC input for 400 mapping. The
// request mutates no state.
type invalidArgumentError struct{ msg string }

func (e invalidArgumentError) Error() string { return "invalid argument: " + e.msg }

// ErrInvalidArgument constructs an invalidArgumentError.
func ErrInvalidArgument(msg string) error { return invalidArgumentError{msg: msg} }

// IsInvalidArgument reports whether err indicates rejected input (return 400).
func IsInvalidArgument(err error) bool {
	_, ok := err.(invalidArgumentError)
	return ok
}

// modelNotFoundError signals an operation against a model the ledger does not
// contain.
type modelNotFoundError struct{ id string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.id }

// ErrModelNotFound constructs a modelNotFoundError.
func ErrModelNotFound(id string) error { return modelNotFoundError{id: id} }

// IsModelNotFound reports whether the error indicates a missing model id.
func IsModelNotFound(err error) bool {
	_, ok := err.(modelNotFoundError)
	return ok
}

// admissionDeniedError signals that CanLoad rejected a load request.
type admissionDeniedError struct {
	id     string
	reason string
}

func (e admissionDeniedError) Error() string {
	return "admission denied for " + e.id + ": " + e.reason
}

// IsAdmissionDenied reports whether err is an admission rejection.
func IsAdmissionDenied(err error) bool {
	_, ok := err.(admissionDeniedError)
	return ok
}
