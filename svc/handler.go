package svc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"microrpc/rpcerr"
)

// Handler answers one function call and returns the reply payload.
// Opaque handlers (heartbeat, stop, the bundled status handlers) just
// produce bytes; StructuredHandler wraps the decode/validate/encode
// boilerplate around a typed business function.
type Handler interface {
	Handle(ctx context.Context, payload []byte) ([]byte, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, payload []byte) ([]byte, error)

func (f HandlerFunc) Handle(ctx context.Context, payload []byte) ([]byte, error) {
	return f(ctx, payload)
}

// ErrorDetail describes a failed call the way a structured handler's
// response header reports it.
type ErrorDetail struct {
	Type    string   `json:"type"`
	Message string   `json:"message"`
	Args    []string `json:"args,omitempty"`
}

// Envelope is the header every structured request/response carries:
// request_guid and client identify the call, success/response_time/
// error report its outcome, and Payload carries the typed body. The
// caller stamps RequestGUID/Client before sending; the handler echoes
// them back untouched on both the success and the error path, so
// request_guid survives the round trip through a handler either way.
type Envelope[T any] struct {
	RequestGUID  string       `json:"request_guid,omitempty"`
	Client       string       `json:"client,omitempty"`
	Success      bool         `json:"success"`
	ResponseTime int64        `json:"response_time,omitempty"`
	Error        *ErrorDetail `json:"error,omitempty"`
	Payload      T            `json:"payload,omitempty"`
}

// StructuredHandler is the generic template method every typed
// endpoint follows: decode the request envelope, validate its payload,
// run the business function, and encode the response envelope. Go's
// generics let this be a single reusable type instead of a
// per-message-type subclass.
type StructuredHandler[Req any, Resp any] struct {
	// Validate is optional; a nil Validate accepts every decoded request.
	Validate func(*Req) error
	// Run is the business logic. Its error is reported as a well-formed
	// error envelope rather than propagated raw, so the client always
	// gets back success/error fields it can inspect.
	Run func(ctx context.Context, req *Req) (*Resp, error)
}

func (h *StructuredHandler[Req, Resp]) Handle(ctx context.Context, payload []byte) ([]byte, error) {
	start := time.Now()

	var in Envelope[Req]
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &in); err != nil {
			return h.errorEnvelope("", "", start, &rpcerr.BadServiceRequestError{Cause: err})
		}
	}
	if h.Validate != nil {
		if err := h.Validate(&in.Payload); err != nil {
			return h.errorEnvelope(in.RequestGUID, in.Client, start, &rpcerr.BadServiceRequestError{Cause: err})
		}
	}

	resp, err := h.Run(ctx, &in.Payload)
	if err != nil {
		return h.errorEnvelope(in.RequestGUID, in.Client, start, err)
	}

	out := Envelope[Resp]{
		RequestGUID:  in.RequestGUID,
		Client:       in.Client,
		Success:      true,
		ResponseTime: time.Since(start).Microseconds(),
	}
	if resp != nil {
		out.Payload = *resp
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		return nil, &rpcerr.ServiceHandlerUncaughtError{Cause: err}
	}
	return encoded, nil
}

// errorEnvelope builds the well-formed, success=false response body
// for a failed call. It returns the encoded envelope alongside err
// itself, so the runtime's dispatch loop can still record the failure
// and recognize StopServiceError while sending this body on the wire
// instead of an opaque placeholder.
func (h *StructuredHandler[Req, Resp]) errorEnvelope(requestGUID, client string, start time.Time, err error) ([]byte, error) {
	out := Envelope[Resp]{
		RequestGUID:  requestGUID,
		Client:       client,
		Success:      false,
		ResponseTime: time.Since(start).Microseconds(),
		Error:        newErrorDetail(err),
	}
	encoded, marshalErr := json.Marshal(out)
	if marshalErr != nil {
		return nil, err
	}
	return encoded, err
}

// newErrorDetail reports err's concrete rpcerr type name and message.
// Errors that carry extra context implement an Args() []string method
// (see rpcerr) which is surfaced in the envelope's error.args field.
func newErrorDetail(err error) *ErrorDetail {
	detail := &ErrorDetail{Type: errorType(err), Message: err.Error()}
	if a, ok := err.(interface{ Args() []string }); ok {
		detail.Args = a.Args()
	}
	return detail
}

func errorType(err error) string {
	name := fmt.Sprintf("%T", err)
	name = strings.TrimPrefix(name, "*rpcerr.")
	return strings.TrimPrefix(name, "*")
}

// errorEnvelopeBytes builds a generic success=false envelope for
// handlers that don't speak the structured envelope themselves (the
// bundled opaque handlers), so every failure reaches the wire as a
// well-formed response rather than an opaque placeholder string.
func errorEnvelopeBytes(err error) []byte {
	out := Envelope[json.RawMessage]{Success: false, Error: newErrorDetail(err)}
	encoded, marshalErr := json.Marshal(out)
	if marshalErr != nil {
		return []byte(`{"success":false}`)
	}
	return encoded
}
