package nats

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()
	opts := DefaultServerOptions()
	opts.StoreDir = t.TempDir()
	srv, err := NewServer(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown() })
	return srv
}

func TestNewServer_IsRunning(t *testing.T) {
	srv := startTestServer(t)
	require.True(t, srv.IsRunning())
}

func TestQueue_PublishAndConsume(t *testing.T) {
	srv := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	q, err := NewQueue(ctx, srv.Conn, "TEST_STREAM", "test.subject", time.Hour)
	require.NoError(t, err)

	require.NoError(t, q.Publish(ctx, []byte("hello")))

	var mu sync.Mutex
	var received []byte
	consumeCtx, stop := context.WithCancel(ctx)
	go func() {
		_ = q.Consume(consumeCtx, "test-consumer", func(_ context.Context, payload []byte) error {
			mu.Lock()
			received = payload
			mu.Unlock()
			stop()
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) > 0
	}, 3*time.Second, 50*time.Millisecond)
	require.Equal(t, "hello", string(received))
}

func TestQueue_NakRedeliversOnHandlerError(t *testing.T) {
	srv := startTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	q, err := NewQueue(ctx, srv.Conn, "RETRY_STREAM", "retry.subject", time.Hour)
	require.NoError(t, err)
	require.NoError(t, q.Publish(ctx, []byte("payload")))

	var mu sync.Mutex
	attempts := 0
	consumeCtx, stop := context.WithCancel(ctx)
	go func() {
		_ = q.Consume(consumeCtx, "retry-consumer", func(_ context.Context, _ []byte) error {
			mu.Lock()
			attempts++
			n := attempts
			mu.Unlock()
			if n < 2 {
				return errFail
			}
			stop()
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts >= 2
	}, 4*time.Second, 50*time.Millisecond)
}

var errFail = &testError{"forced failure"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
