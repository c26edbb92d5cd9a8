package provider

import (
	"errors"
	"testing"

	"github.com/learnloop/cortex/engine/core"
)

func TestAsKindError_MapsConfigurationErrorToProviderNotReady(t *testing.T) {
	err := AsKindError(&ConfigurationError{Provider: "local", Reason: "missing url"})
	if !core.Is(err, core.KindProviderNotReady) {
		t.Fatalf("expected KindProviderNotReady, got %v", err)
	}
}

func TestAsKindError_MapsTimeoutErrorToTransientInternal(t *testing.T) {
	err := AsKindError(&TimeoutError{Provider: "hosted"})
	if !core.Is(err, core.KindTransientInternal) {
		t.Fatalf("expected KindTransientInternal, got %v", err)
	}
}

func TestAsKindError_MapsNotReadyErrorToProviderNotReady(t *testing.T) {
	err := AsKindError(&NotReadyError{Provider: "local", Reason: "init failed"})
	if !core.Is(err, core.KindProviderNotReady) {
		t.Fatalf("expected KindProviderNotReady, got %v", err)
	}
}

func TestAsKindError_MapsUnknownErrorToTransientInternal(t *testing.T) {
	err := AsKindError(errors.New("some other failure"))
	if !core.Is(err, core.KindTransientInternal) {
		t.Fatalf("expected KindTransientInternal, got %v", err)
	}
}

func TestError_UnwrapReturnsCause(t *testing.T) {
	cause := errors.New("underlying")
	wrapped := &Error{Provider: "hosted", Cause: cause}
	if !errors.Is(wrapped, cause) {
		t.Fatal("expected errors.Is to find the wrapped cause")
	}
}
