package fanout

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-zeromq/zmq4"

	"github.com/platinummonkey/baselayer/pkg/observability"
)

// Publisher is a handler process's connection to the message broker. One
// publisher is shared process-wide; its PUSH socket queues without
// blocking the request path. Delivery is best-effort: callers log publish
// errors and never fail the request that triggered them.
type Publisher struct {
	socket  zmq4.Socket
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewPublisher connects a PUSH socket to the broker's ingress address
func NewPublisher(ctx context.Context, ingressAddr string, logger *observability.Logger, metrics *observability.Metrics) (*Publisher, error) {
	socket := zmq4.NewPush(ctx)
	if err := socket.Dial(ingressAddr); err != nil {
		return nil, fmt.Errorf("failed to connect to broker ingress %s: %w", ingressAddr, err)
	}
	return &Publisher{socket: socket, logger: logger, metrics: metrics}, nil
}

// Push sends an action to every socket authenticated as the given user
func (p *Publisher) Push(userID int64, actionType string, payload interface{}) error {
	return p.push(strconv.FormatInt(userID, 10), actionType, payload)
}

// PushAll broadcasts an action to every connected socket
func (p *Publisher) PushAll(actionType string, payload interface{}) error {
	return p.push(Broadcast, actionType, payload)
}

func (p *Publisher) push(routingKey, actionType string, payload interface{}) error {
	msg, err := Envelope{UserID: routingKey, ActionType: actionType, Payload: payload}.encode()
	if err != nil {
		return err
	}
	if err := p.socket.Send(msg); err != nil {
		p.logger.WithError(err).Warnf("failed to publish %s to %s", actionType, routingKey)
		return fmt.Errorf("failed to publish to broker: %w", err)
	}
	if p.metrics != nil {
		target := "user"
		if routingKey == Broadcast {
			target = "broadcast"
		}
		p.metrics.FanoutPublishedTotal.WithLabelValues(target).Inc()
	}
	return nil
}

// Close releases the PUSH socket
func (p *Publisher) Close() error {
	return p.socket.Close()
}
