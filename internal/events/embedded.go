package events

import (
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
)

const embeddedStartTimeout = 5 * time.Second

// StartEmbedded runs an in-process NATS server for deployments without
// external messaging infrastructure. Port -1 selects a random free port.
// The caller owns Shutdown.
func StartEmbedded(port int) (*natsserver.Server, error) {
	opts := &natsserver.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	}

	srv, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("creating embedded NATS server: %w", err)
	}

	go srv.Start()
	if !srv.ReadyForConnections(embeddedStartTimeout) {
		srv.Shutdown()
		return nil, fmt.Errorf("embedded NATS server not ready after %s", embeddedStartTimeout)
	}
	return srv, nil
}
