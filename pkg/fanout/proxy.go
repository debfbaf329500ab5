package fanout

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-zeromq/zmq4"

	"github.com/platinummonkey/baselayer/pkg/observability"
)

// Proxy is the message broker: it binds a PULL socket for handler ingress
// and a PUB socket for websocket-server egress, forwarding every message
// between them. There is no queue beyond the sockets' high-water marks and
// no user code on the forwarding path.
type Proxy struct {
	pull   zmq4.Socket
	pub    zmq4.Socket
	logger *observability.Logger
}

// NewProxy binds the broker's ingress and egress sockets
func NewProxy(ctx context.Context, ingressAddr, egressAddr string, logger *observability.Logger) (*Proxy, error) {
	pull := zmq4.NewPull(ctx)
	if err := pull.Listen(ingressAddr); err != nil {
		return nil, fmt.Errorf("failed to bind broker ingress %s: %w", ingressAddr, err)
	}
	pub := zmq4.NewPub(ctx)
	if err := pub.Listen(egressAddr); err != nil {
		pull.Close()
		return nil, fmt.Errorf("failed to bind broker egress %s: %w", egressAddr, err)
	}
	logger.WithFields(map[string]interface{}{
		"ingress": ingressAddr,
		"egress":  egressAddr,
	}).Info("message broker listening")
	return &Proxy{pull: pull, pub: pub, logger: logger}, nil
}

// Run forwards messages until the context is cancelled
func (p *Proxy) Run(ctx context.Context) error {
	defer p.pull.Close()
	defer p.pub.Close()

	for {
		msg, err := p.pull.Recv()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			p.logger.WithError(err).Error("failed to receive from ingress")
			continue
		}
		if err := p.pub.Send(msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.WithError(err).Error("failed to forward to egress")
		}
	}
}
