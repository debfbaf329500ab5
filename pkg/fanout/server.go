package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/gorilla/websocket"

	"github.com/platinummonkey/baselayer/pkg/auth"
	"github.com/platinummonkey/baselayer/pkg/observability"
)

const (
	actionAuthRequest = "AUTH REQUEST"
	actionAuthOK      = "AUTH OK"
	actionAuthFailed  = "AUTH FAILED"

	// authFailureCap bounds how many times a socket may fail the
	// handshake before the server stops re-issuing AUTH REQUEST
	authFailureCap = 3

	// heartbeatInterval defeats intermediate proxy idle timeouts
	heartbeatInterval = 45 * time.Second

	// sendQueueSize bounds the per-socket queue; a slow client beyond it
	// loses messages rather than blocking other deliveries
	sendQueueSize = 64
)

var heartbeatPayload = []byte("<3")

// controlMessage is the JSON shape of handshake frames
type controlMessage struct {
	ActionType string `json:"actionType"`
}

// outFrame is one queued websocket write
type outFrame struct {
	messageType int
	data        []byte
}

// client is one browser socket. userID is set once the AUTH handshake
// succeeds and never changes afterwards.
type client struct {
	conn      *websocket.Conn
	send      chan outFrame
	done      chan struct{}
	closeOnce sync.Once

	userID    string
	authFails int
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// Server delivers bus messages to authenticated browser sockets. It
// subscribes to the broadcast topic at startup and to each user's topic
// while that user has at least one open socket.
type Server struct {
	secret   []byte
	sub      zmq4.Socket
	logger   *observability.Logger
	metrics  *observability.Metrics
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*client]struct{}
	users map[string]map[*client]struct{}
}

// NewServer connects a SUB socket to the broker's egress address and
// subscribes to the broadcast topic
func NewServer(ctx context.Context, egressAddr string, secret []byte, logger *observability.Logger, metrics *observability.Metrics) (*Server, error) {
	sub := zmq4.NewSub(ctx)
	if err := sub.Dial(egressAddr); err != nil {
		return nil, fmt.Errorf("failed to connect to broker egress %s: %w", egressAddr, err)
	}
	if err := sub.SetOption(zmq4.OptionSubscribe, Broadcast); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe to broadcast topic: %w", err)
	}
	return &Server{
		secret:  secret,
		sub:     sub,
		logger:  logger,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			// The socket-auth token, not the Origin header, establishes
			// subscriber identity
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*client]struct{}),
		users: make(map[string]map[*client]struct{}),
	}, nil
}

// Run consumes the bus and heartbeats open sockets until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	defer s.sub.Close()

	go s.heartbeatLoop(ctx)

	for {
		msg, err := s.sub.Recv()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			s.logger.WithError(err).Error("failed to receive from broker")
			continue
		}
		routingKey, payload, err := decodeMsg(msg)
		if err != nil {
			s.logger.WithError(err).Warn("dropping malformed bus message")
			continue
		}
		s.route(routingKey, payload)
	}
}

// route writes a payload to the sockets selected by the routing key
func (s *Server) route(routingKey string, payload []byte) {
	s.mu.Lock()
	var targets []*client
	if routingKey == Broadcast {
		targets = make([]*client, 0, len(s.conns))
		for c := range s.conns {
			targets = append(targets, c)
		}
	} else {
		for c := range s.users[routingKey] {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	for _, c := range targets {
		s.enqueue(c, outFrame{messageType: websocket.TextMessage, data: payload})
	}
}

// enqueue performs a non-blocking send; slow clients drop
func (s *Server) enqueue(c *client, f outFrame) {
	select {
	case c.send <- f:
	default:
		if s.metrics != nil {
			s.metrics.FanoutDroppedTotal.Inc()
		}
	}
}

func (s *Server) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			targets := make([]*client, 0, len(s.conns))
			for c := range s.conns {
				targets = append(targets, c)
			}
			s.mu.Unlock()
			for _, c := range targets {
				s.enqueue(c, outFrame{messageType: websocket.BinaryMessage, data: heartbeatPayload})
			}
		case <-ctx.Done():
			return
		}
	}
}

// HandleUpgrade is the HTTP handler browsers connect to
func (s *Server) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}

	c := &client{
		conn: conn,
		send: make(chan outFrame, sendQueueSize),
		done: make(chan struct{}),
	}
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.WebsocketConnections.Inc()
	}

	go s.writeLoop(c)
	s.sendControl(c, actionAuthRequest)
	s.readLoop(c)
	s.dropClient(c)
}

func (s *Server) sendControl(c *client, actionType string) {
	data, _ := json.Marshal(controlMessage{ActionType: actionType})
	s.enqueue(c, outFrame{messageType: websocket.TextMessage, data: data})
}

func (s *Server) writeLoop(c *client) {
	for {
		select {
		case f := <-c.send:
			if err := c.conn.WriteMessage(f.messageType, f.data); err != nil {
				c.close()
				return
			}
			if s.metrics != nil && f.messageType == websocket.TextMessage {
				s.metrics.FanoutDeliveredTotal.Inc()
			}
		case <-c.done:
			return
		}
	}
}

// readLoop drives the AUTH handshake. Frames arriving before
// authentication are treated as socket-auth tokens; frames after it are
// ignored.
func (s *Server) readLoop(c *client) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if c.userID != "" {
			continue
		}

		userID, err := auth.VerifySocketToken(s.secret, string(data))
		if err != nil {
			c.authFails++
			s.logger.WithError(err).Debug("websocket auth failed")
			s.sendControl(c, actionAuthFailed)
			if c.authFails < authFailureCap {
				s.sendControl(c, actionAuthRequest)
			}
			continue
		}

		c.userID = userID
		s.registerUser(c)
		s.sendControl(c, actionAuthOK)
	}
}

// registerUser adds the socket to its user's set, subscribing the user's
// topic when this is the first socket for that user on this server
func (s *Server) registerUser(c *client) {
	s.mu.Lock()
	set, ok := s.users[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		s.users[c.userID] = set
	}
	first := len(set) == 0
	set[c] = struct{}{}
	s.mu.Unlock()

	if first {
		if err := s.sub.SetOption(zmq4.OptionSubscribe, c.userID); err != nil {
			s.logger.WithError(err).Errorf("failed to subscribe topic %s", c.userID)
		}
	}
}

// dropClient removes a closed socket, unsubscribing its user's topic when
// it was the user's last socket on this server
func (s *Server) dropClient(c *client) {
	c.close()

	s.mu.Lock()
	delete(s.conns, c)
	last := false
	if c.userID != "" {
		set := s.users[c.userID]
		delete(set, c)
		if len(set) == 0 {
			delete(s.users, c.userID)
			last = true
		}
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.WebsocketConnections.Dec()
	}
	if last {
		if err := s.sub.SetOption(zmq4.OptionUnsubscribe, c.userID); err != nil {
			s.logger.WithError(err).Errorf("failed to unsubscribe topic %s", c.userID)
		}
	}
}
