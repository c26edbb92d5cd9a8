package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/learnloop/cortex/engine/chat"
	"github.com/learnloop/cortex/engine/core"
	"github.com/learnloop/cortex/pkg/logger"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat HTTP surface and metrics endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cfg, err := loadContext(ctx)
			if err != nil {
				return err
			}
			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())
			return runServer(ctx, a, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	return cmd
}

func runServer(ctx context.Context, a *app, addr string) error {
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Monitoring.Path, a.monitor.ExporterHandler())
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/chat", handleChat(a.coordinator))
	mux.HandleFunc("/chat/stream", handleChatStream(a.coordinator))

	srv := &http.Server{Addr: addr, Handler: mux}
	log := logger.FromContext(ctx)

	errCh := make(chan error, 1)
	go func() {
		log.Info("serve: listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// chatRequest is the wire shape of a /chat or /chat/stream request body.
type chatRequest struct {
	UserID           string `json:"user_id"`
	SessionID        string `json:"session_id"`
	SubscriptionTier string `json:"subscription_tier"`
	Text             string `json:"text"`
}

func handleChat(coord *chat.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		resp, err := coord.Send(r.Context(), chat.Request{
			UserID:           req.UserID,
			SessionID:        req.SessionID,
			SubscriptionTier: req.SubscriptionTier,
			Text:             req.Text,
		})
		if err != nil {
			writeChatError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func handleChatStream(coord *chat.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}
		bw := bufio.NewWriter(w)
		started := false
		err := coord.Stream(r.Context(), chat.Request{
			UserID:           req.UserID,
			SessionID:        req.SessionID,
			SubscriptionTier: req.SubscriptionTier,
			Text:             req.Text,
		}, func(c chat.Chunk) error {
			if !started {
				started = true
				w.Header().Set("Content-Type", "text/event-stream")
				w.Header().Set("Cache-Control", "no-cache")
			}
			payload, mErr := json.Marshal(c)
			if mErr != nil {
				return mErr
			}
			if _, wErr := fmt.Fprintf(bw, "data: %s\n\n", payload); wErr != nil {
				return wErr
			}
			bw.Flush()
			flusher.Flush()
			return nil
		})
		if err != nil {
			logger.FromContext(r.Context()).Warn("serve: stream failed", "error", core.RedactError(err))
			// A failure before the first chunk means no bytes have reached the
			// client yet, so the error can still be reported with a real status
			// code instead of degrading to an empty 200 SSE response.
			if !started {
				writeChatError(w, err)
			}
		}
	}
}

func writeChatError(w http.ResponseWriter, err error) {
	var quotaErr *chat.QuotaExceededError
	switch {
	case errors.As(err, &quotaErr):
		writeError(w, http.StatusTooManyRequests, quotaErr.Message)
	case core.Is(err, core.KindInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case core.Is(err, core.KindProviderNotReady):
		writeError(w, http.StatusServiceUnavailable, "no language model provider is currently available")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
