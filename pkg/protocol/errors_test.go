package protocol_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"work/pkg/protocol"
)

func TestNotFoundError_ErrorsAs(t *testing.T) {
	wrapped := fmt.Errorf("rollover: %w", &protocol.NotFoundError{Kind: "worker", Key: "7"})

	var target *protocol.NotFoundError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As failed to extract NotFoundError")
	}
	if target.Kind != "worker" || target.Key != "7" {
		t.Errorf("unexpected fields: %+v", target)
	}
	if !strings.Contains(wrapped.Error(), "worker 7 not found") {
		t.Errorf("unexpected message: %q", wrapped.Error())
	}
}

func TestStoreUnavailableError_Unwraps(t *testing.T) {
	cause := errors.New("database is locked")
	err := &protocol.StoreUnavailableError{Op: "update stage", Err: cause}

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the driver error")
	}
	if !strings.Contains(err.Error(), "update stage") {
		t.Errorf("expected op in message, got %q", err.Error())
	}
}

func TestPreconditionFailedError_Message(t *testing.T) {
	err := &protocol.PreconditionFailedError{Reason: "no active session for worker 7"}
	if err.Error() != "precondition failed: no active session for worker 7" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestMalformedError_Unwraps(t *testing.T) {
	cause := errors.New("unexpected end of JSON input")
	err := &protocol.MalformedError{Line: 3, Err: cause}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the parse error")
	}
	if !strings.Contains(err.Error(), "line 3") {
		t.Errorf("expected line number in message, got %q", err.Error())
	}
}
