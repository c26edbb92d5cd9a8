// Package nats embeds a single-process NATS server with JetStream enabled,
// used as the transport for the reflection task queue (C9) so the module
// has no external broker dependency in development and single-node
// deployments.
package nats

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// ServerOptions configures the embedded broker.
type ServerOptions struct {
	EnableLogging   bool
	ServerName      string
	JetStreamDomain string
	Port            int
	StoreDir        string
}

// DefaultServerOptions returns sane defaults for an embedded, ephemeral-port
// JetStream server rooted under the OS temp dir.
func DefaultServerOptions() ServerOptions {
	return ServerOptions{
		EnableLogging:   false,
		ServerName:      "cortex_embedded_nats",
		JetStreamDomain: "cortex",
		Port:            0,
		StoreDir:        filepath.Join(os.TempDir(), "cortex-nats"),
	}
}

// Server wraps an embedded *server.Server and a client *nats.Conn to it.
type Server struct {
	NatsServer *server.Server
	Conn       *nats.Conn
	Options    ServerOptions
}

// NewServer starts an embedded NATS server with JetStream enabled and
// returns a connected client.
func NewServer(options ServerOptions) (*Server, error) {
	nc, ns, err := runEmbeddedServer(options)
	if err != nil {
		return nil, fmt.Errorf("failed to start embedded NATS server: %w", err)
	}
	return &Server{NatsServer: ns, Conn: nc, Options: options}, nil
}

func runEmbeddedServer(options ServerOptions) (*nats.Conn, *server.Server, error) {
	serverOpts := &server.Options{
		ServerName:      options.ServerName,
		JetStream:       true,
		JetStreamDomain: options.JetStreamDomain,
		StoreDir:        options.StoreDir,
		Host:            "127.0.0.1",
		Port:            options.Port,
	}

	ns, err := server.NewServer(serverOpts)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating NATS server: %w", err)
	}
	if options.EnableLogging {
		ns.ConfigureLogger()
	}

	go ns.Start()

	if !ns.ReadyForConnections(15 * time.Second) {
		return nil, nil, fmt.Errorf("server failed to start in time")
	}

	addr, ok := ns.Addr().(*net.TCPAddr)
	if !ok {
		return nil, nil, fmt.Errorf("failed to get server address: unexpected address type")
	}
	nc, err := nats.Connect(fmt.Sprintf("nats://127.0.0.1:%d", addr.Port))
	if err != nil {
		return nil, nil, fmt.Errorf("error connecting to NATS server: %w", err)
	}
	return nc, ns, nil
}

// Shutdown closes the client connection and stops the embedded server.
func (s *Server) Shutdown() error {
	if s.Conn != nil {
		s.Conn.Close()
	}
	if s.NatsServer != nil {
		s.NatsServer.Shutdown()
		s.NatsServer.WaitForShutdown()
	}
	return nil
}

// IsRunning reports whether the embedded server is still accepting connections.
func (s *Server) IsRunning() bool {
	return s.NatsServer != nil && s.NatsServer.Running()
}
