// Package fanout implements the websocket fan-out plane: a PUSH/PULL/PUB
// broker pipeline carrying two-frame messages from handler processes to a
// websocket server that delivers them to authenticated browser sockets.
package fanout

import (
	"encoding/json"
	"fmt"

	"github.com/go-zeromq/zmq4"
)

// Broadcast is the routing key that reaches every connected socket
const Broadcast = "*"

// Envelope is the JSON payload carried in the second frame of every bus
// message. The first frame repeats the user id as the routing key.
type Envelope struct {
	UserID     string      `json:"user_id"`
	ActionType string      `json:"actionType"`
	Payload    interface{} `json:"payload"`
}

// encode renders the two-frame multipart bus message
func (e Envelope) encode() (zmq4.Msg, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return zmq4.Msg{}, fmt.Errorf("failed to encode fan-out envelope: %w", err)
	}
	return zmq4.NewMsgFrom([]byte(e.UserID), body), nil
}

// decodeMsg splits a bus message into its routing key and JSON payload
func decodeMsg(msg zmq4.Msg) (routingKey string, payload []byte, err error) {
	if len(msg.Frames) != 2 {
		return "", nil, fmt.Errorf("expected 2 frames, got %d", len(msg.Frames))
	}
	return string(msg.Frames[0]), msg.Frames[1], nil
}
