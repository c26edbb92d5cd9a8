package provider

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLocal_IsConfiguredReflectsServerURL(t *testing.T) {
	withURL := NewLocal(LocalConfig{Model: "llama3", ServerURL: "http://localhost:11434", Enabled: true})
	if !withURL.IsConfigured() {
		t.Fatal("expected configured when ServerURL is set")
	}

	withoutURL := NewLocal(LocalConfig{Model: "llama3", Enabled: true})
	if withoutURL.IsConfigured() {
		t.Fatal("expected not configured when ServerURL is empty")
	}
}

func TestLocal_EnsureReady_FailsConfigurationCheckWhenNoServerURL(t *testing.T) {
	l := NewLocal(LocalConfig{Model: "llama3", Enabled: true, Timeout: time.Second})
	err := l.EnsureReady(context.Background())
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigurationError, got %v (%T)", err, err)
	}
}

func TestLocal_Info_ReflectsConfig(t *testing.T) {
	l := NewLocal(LocalConfig{Model: "llama3", ServerURL: "http://localhost:11434", Streaming: true})
	info := l.Info()
	if info.Name != "local" || info.Model != "llama3" || !info.SupportsStreaming {
		t.Fatalf("unexpected info: %+v", info)
	}
}

func TestLocal_Generate_NotReadyPropagatesError(t *testing.T) {
	l := NewLocal(LocalConfig{Model: "llama3", Enabled: true, Timeout: time.Second})
	_, err := l.Generate(context.Background(), Request{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error for unconfigured provider")
	}
}
