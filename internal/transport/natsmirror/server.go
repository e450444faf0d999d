package natsmirror

import (
	"fmt"
	"time"

	"github.com/nats-io/nats-server/v2/server"
)

// EmbeddedServer runs a NATS server inside the bridge process for setups
// without an external broker.
type EmbeddedServer struct {
	ns *server.Server

	startupTimeout time.Duration
	host           string
	port           int
}

type ServerOpt func(*EmbeddedServer)

// WithStartTimeout sets how long Start waits for the server to accept clients.
func WithStartTimeout(d time.Duration) ServerOpt {
	return func(s *EmbeddedServer) { s.startupTimeout = d }
}

func WithHost(host string) ServerOpt {
	return func(s *EmbeddedServer) { s.host = host }
}

// WithPort sets the listen port; -1 picks a random free port.
func WithPort(port int) ServerOpt {
	return func(s *EmbeddedServer) { s.port = port }
}

func NewEmbeddedServer(opts ...ServerOpt) (*EmbeddedServer, error) {
	s := &EmbeddedServer{
		startupTimeout: 10 * time.Second,
		host:           "127.0.0.1",
		port:           4222,
	}
	for _, opt := range opts {
		opt(s)
	}

	ns, err := server.NewServer(&server.Options{
		Host:   s.host,
		Port:   s.port,
		NoSigs: true, // the bridge handles signals
	})
	if err != nil {
		return nil, err
	}
	s.ns = ns
	return s, nil
}

func (s *EmbeddedServer) Start() error {
	s.ns.Start()
	if !s.ns.ReadyForConnections(s.startupTimeout) {
		return fmt.Errorf("nats server not ready for connections")
	}
	return nil
}

func (s *EmbeddedServer) ClientURL() string { return s.ns.ClientURL() }

func (s *EmbeddedServer) Shutdown() {
	s.ns.Shutdown()
	s.ns.WaitForShutdown()
}
