package provider

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBase_AccessorsReflectConstruction(t *testing.T) {
	b := NewBase("test", "test-model", true, 5*time.Second, true, func() bool { return true })
	if b.Name() != "test" {
		t.Fatalf("expected name %q, got %q", "test", b.Name())
	}
	if b.ModelName() != "test-model" {
		t.Fatalf("expected model %q, got %q", "test-model", b.ModelName())
	}
	if !b.SupportsStreaming() {
		t.Fatal("expected streaming support")
	}
	if b.Timeout() != 5*time.Second {
		t.Fatalf("expected timeout 5s, got %s", b.Timeout())
	}
	if !b.IsEnabled() {
		t.Fatal("expected enabled")
	}
	if !b.IsConfigured() {
		t.Fatal("expected configured")
	}
	info := b.Info()
	if info.Name != "test" || info.Model != "test-model" || !info.SupportsStreaming {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestBase_EnsureReady_NotConfiguredReturnsConfigurationError(t *testing.T) {
	b := NewBase("test", "m", false, time.Second, true, func() bool { return false })
	err := b.EnsureReady(context.Background(), func(context.Context) error { return nil })
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigurationError, got %v (%T)", err, err)
	}
}

func TestBase_EnsureReady_InitFailureWrapsAsNotReadyError(t *testing.T) {
	b := NewBase("test", "m", false, time.Second, true, func() bool { return true })
	initErr := errors.New("boom")
	err := b.EnsureReady(context.Background(), func(context.Context) error { return initErr })
	var notReady *NotReadyError
	if !errors.As(err, &notReady) {
		t.Fatalf("expected *NotReadyError, got %v (%T)", err, err)
	}
}

func TestBase_EnsureReady_RunsInitOnlyOnce(t *testing.T) {
	b := NewBase("test", "m", false, time.Second, true, func() bool { return true })
	calls := 0
	init := func(context.Context) error {
		calls++
		return nil
	}
	if err := b.EnsureReady(context.Background(), init); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.EnsureReady(context.Background(), init); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected init to run once, ran %d times", calls)
	}
}

func TestBase_EnsureReady_CachesFailureWithoutRetrying(t *testing.T) {
	b := NewBase("test", "m", false, time.Second, true, func() bool { return true })
	calls := 0
	init := func(context.Context) error {
		calls++
		return errors.New("still broken")
	}
	_ = b.EnsureReady(context.Background(), init)
	_ = b.EnsureReady(context.Background(), init)
	if calls != 1 {
		t.Fatalf("expected init to run once even after failure, ran %d times", calls)
	}
}
