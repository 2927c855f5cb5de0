package svc

import (
	"context"
	"encoding/json"
	"testing"
)

type greetRequest struct {
	Name string `json:"name"`
}

type greetResponse struct {
	Greeting string `json:"greeting"`
}

func TestStructuredHandlerRoundTrip(t *testing.T) {
	h := &StructuredHandler[greetRequest, greetResponse]{
		Run: func(ctx context.Context, req *greetRequest) (*greetResponse, error) {
			return &greetResponse{Greeting: "hello, " + req.Name}, nil
		},
	}

	request, err := json.Marshal(Envelope[greetRequest]{
		RequestGUID: "guid-1",
		Client:      "test-client",
		Payload:     greetRequest{Name: "ada"},
	})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := h.Handle(context.Background(), request)
	if err != nil {
		t.Fatal(err)
	}

	var out Envelope[greetResponse]
	if err := json.Unmarshal(resp, &out); err != nil {
		t.Fatalf("response is not a well-formed envelope: %v", err)
	}
	if !out.Success {
		t.Fatalf("expected success=true, got envelope: %+v", out)
	}
	if out.RequestGUID != "guid-1" {
		t.Fatalf("request_guid did not round trip: got %q", out.RequestGUID)
	}
	if out.Client != "test-client" {
		t.Fatalf("client did not round trip: got %q", out.Client)
	}
	if out.Payload.Greeting != "hello, ada" {
		t.Fatalf("unexpected payload: %+v", out.Payload)
	}
}

func TestStructuredHandlerValidateRejects(t *testing.T) {
	h := &StructuredHandler[greetRequest, greetResponse]{
		Validate: func(req *greetRequest) error {
			if req.Name == "" {
				return errEmptyName
			}
			return nil
		},
		Run: func(ctx context.Context, req *greetRequest) (*greetResponse, error) {
			return &greetResponse{Greeting: "hello, " + req.Name}, nil
		},
	}

	request, err := json.Marshal(Envelope[greetRequest]{RequestGUID: "guid-2", Payload: greetRequest{Name: ""}})
	if err != nil {
		t.Fatal(err)
	}

	resp, err := h.Handle(context.Background(), request)
	if err == nil {
		t.Fatal("expected validation to reject an empty name")
	}

	var out Envelope[greetResponse]
	if jsonErr := json.Unmarshal(resp, &out); jsonErr != nil {
		t.Fatalf("error response is not a well-formed envelope: %v", jsonErr)
	}
	if out.Success {
		t.Fatal("expected success=false on validation failure")
	}
	if out.RequestGUID != "guid-2" {
		t.Fatalf("request_guid did not round trip on error path: got %q", out.RequestGUID)
	}
	if out.Error == nil || out.Error.Message == "" {
		t.Fatalf("expected a populated error detail, got %+v", out.Error)
	}
}

var errEmptyName = &validationError{"name must not be empty"}

type validationError struct{ msg string }

func (e *validationError) Error() string { return e.msg }
