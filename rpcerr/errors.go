// Package rpcerr defines the error taxonomy shared by every microrpc
// subsystem. Errors here are sentinels or small structs rather than a
// single generic type so that callers can type-switch on the failure
// mode (a client needs to tell a timeout from a dead-function call).
package rpcerr

import (
	"fmt"
	"strconv"
)

// BadServiceConfigError reports invalid or missing configuration at startup.
type BadServiceConfigError struct {
	Reason string
}

func (e *BadServiceConfigError) Error() string {
	return fmt.Sprintf("bad service config: %s", e.Reason)
}

func (e *BadServiceConfigError) Args() []string { return []string{e.Reason} }

// ServiceRegistrationError reports a missing mandatory field during registration.
type ServiceRegistrationError struct {
	Field string
}

func (e *ServiceRegistrationError) Error() string {
	return fmt.Sprintf("mandatory field not provided: %s", e.Field)
}

func (e *ServiceRegistrationError) Args() []string { return []string{e.Field} }

// ServiceNotAvailableError reports discovery of an unknown service name.
type ServiceNotAvailableError struct {
	Name string
}

func (e *ServiceNotAvailableError) Error() string {
	return fmt.Sprintf("service not available: %s", e.Name)
}

func (e *ServiceNotAvailableError) Args() []string { return []string{e.Name} }

// ServiceFunctionNotAvailableError reports a call to a function the
// instance does not advertise.
type ServiceFunctionNotAvailableError struct {
	Service  string
	Function string
}

func (e *ServiceFunctionNotAvailableError) Error() string {
	return fmt.Sprintf("function %q not available for service %q", e.Function, e.Service)
}

func (e *ServiceFunctionNotAvailableError) Args() []string {
	return []string{e.Service, e.Function}
}

// UnknownSocketTypeError reports a socket_type outside the closed enum.
type UnknownSocketTypeError struct {
	SocketType string
}

func (e *UnknownSocketTypeError) Error() string {
	return fmt.Sprintf("no corresponding socket pair for socket type: %s", e.SocketType)
}

func (e *UnknownSocketTypeError) Args() []string { return []string{e.SocketType} }

// StopServiceError is the sentinel raised by the stop handler to unwind
// the dispatch loop cleanly. It is never wrapped or logged as a failure.
type StopServiceError struct{}

func (e *StopServiceError) Error() string { return "stop requested" }

// ServiceClientTimeoutError reports a receive timeout after a send.
type ServiceClientTimeoutError struct {
	Service          string
	Function         string
	TimeoutMS        int
	MaxTries         int
	SleepBeforeRetry int
}

func (e *ServiceClientTimeoutError) Error() string {
	return fmt.Sprintf("service %q function %q timed out after %dms (max_tries=%d, sleep_before_retry=%dms)",
		e.Service, e.Function, e.TimeoutMS, e.MaxTries, e.SleepBeforeRetry)
}

func (e *ServiceClientTimeoutError) Args() []string {
	return []string{
		e.Service,
		e.Function,
		strconv.Itoa(e.TimeoutMS),
		strconv.Itoa(e.MaxTries),
		strconv.Itoa(e.SleepBeforeRetry),
	}
}

// ServiceClientError wraps a transport-level or otherwise terminal error
// encountered during a client call. It is never retried.
type ServiceClientError struct {
	Cause error
}

func (e *ServiceClientError) Error() string {
	if e.Cause == nil {
		return "service client error"
	}
	return fmt.Sprintf("service client error: %v", e.Cause)
}

func (e *ServiceClientError) Unwrap() error { return e.Cause }

func (e *ServiceClientError) Args() []string {
	if e.Cause == nil {
		return nil
	}
	return []string{e.Cause.Error()}
}

// BadServiceRequestError reports decoding/validation failure of a
// structured request.
type BadServiceRequestError struct {
	Cause error
}

func (e *BadServiceRequestError) Error() string {
	return fmt.Sprintf("bad service request: %v", e.Cause)
}

func (e *BadServiceRequestError) Unwrap() error { return e.Cause }

func (e *BadServiceRequestError) Args() []string {
	if e.Cause == nil {
		return nil
	}
	return []string{e.Cause.Error()}
}

// ServiceHandlerUncaughtError reports a handler panic or unexpected error
// that escaped its own error stamping.
type ServiceHandlerUncaughtError struct {
	Function string
	Cause    error
}

func (e *ServiceHandlerUncaughtError) Error() string {
	return fmt.Sprintf("uncaught error in handler %q: %v", e.Function, e.Cause)
}

func (e *ServiceHandlerUncaughtError) Unwrap() error { return e.Cause }

func (e *ServiceHandlerUncaughtError) Args() []string {
	if e.Cause == nil {
		return []string{e.Function}
	}
	return []string{e.Function, e.Cause.Error()}
}

// BadServiceMessageHandlerError reports a misconfigured handler (e.g. a
// structured handler missing its request/response types).
type BadServiceMessageHandlerError struct {
	Reason string
}

func (e *BadServiceMessageHandlerError) Error() string {
	return fmt.Sprintf("bad service message handler: %s", e.Reason)
}

func (e *BadServiceMessageHandlerError) Args() []string { return []string{e.Reason} }

// ClientResourceNotAvailableError reports a pool acquisition timeout.
type ClientResourceNotAvailableError struct {
	Service string
}

func (e *ClientResourceNotAvailableError) Error() string {
	return fmt.Sprintf("no client resource available for service: %s", e.Service)
}

func (e *ClientResourceNotAvailableError) Args() []string { return []string{e.Service} }

// UnknownServiceError reports a method-caller call against an unmanaged service.
type UnknownServiceError struct {
	Service string
}

func (e *UnknownServiceError) Error() string {
	return fmt.Sprintf("service unknown: %s", e.Service)
}

func (e *UnknownServiceError) Args() []string { return []string{e.Service} }
