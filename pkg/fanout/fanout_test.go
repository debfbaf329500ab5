package fanout

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/gorilla/websocket"

	"github.com/platinummonkey/baselayer/pkg/auth"
	"github.com/platinummonkey/baselayer/pkg/observability"
)

var testSecret = []byte("fanout-test-secret")

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

// fakeSocket records the calls the server and publisher make. Embedding the
// interface leaves the unused methods unimplemented.
type fakeSocket struct {
	zmq4.Socket

	mu           sync.Mutex
	sent         []zmq4.Msg
	sendErr      error
	subscribed   []string
	unsubscribed []string
}

func (f *fakeSocket) Send(msg zmq4.Msg) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSocket) SetOption(name string, value interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	topic, _ := value.(string)
	switch name {
	case zmq4.OptionSubscribe:
		f.subscribed = append(f.subscribed, topic)
	case zmq4.OptionUnsubscribe:
		f.unsubscribed = append(f.unsubscribed, topic)
	}
	return nil
}

func (f *fakeSocket) Close() error { return nil }

func (f *fakeSocket) topics() (subscribed, unsubscribed []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subscribed...), append([]string(nil), f.unsubscribed...)
}

func newTestServer(sub zmq4.Socket) *Server {
	return &Server{
		secret: testSecret,
		sub:    sub,
		logger: testLogger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*client]struct{}),
		users: make(map[string]map[*client]struct{}),
	}
}

func dialServer(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	httpServer := httptest.NewServer(http.HandlerFunc(srv.HandleUpgrade))
	t.Cleanup(httpServer.Close)

	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readAction(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("frame is not a control message: %s", data)
	}
	return msg.ActionType
}

func authenticate(t *testing.T, conn *websocket.Conn, userID int64) {
	t.Helper()
	if got := readAction(t, conn); got != actionAuthRequest {
		t.Fatalf("expected %s, got %s", actionAuthRequest, got)
	}
	token, err := auth.IssueSocketToken(testSecret, userID)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(token)); err != nil {
		t.Fatalf("failed to send token: %v", err)
	}
	if got := readAction(t, conn); got != actionAuthOK {
		t.Fatalf("expected %s, got %s", actionAuthOK, got)
	}
}

func TestHandshakeSubscribesUserTopic(t *testing.T) {
	fake := &fakeSocket{}
	srv := newTestServer(fake)

	conn := dialServer(t, srv)
	authenticate(t, conn, 42)

	subscribed, _ := fake.topics()
	if len(subscribed) != 1 || subscribed[0] != "42" {
		t.Errorf("first socket should subscribe the user topic, got %v", subscribed)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for {
		_, unsubscribed := fake.topics()
		if len(unsubscribed) == 1 && unsubscribed[0] == "42" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("last socket should unsubscribe the user topic, got %v", unsubscribed)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSecondSocketDoesNotResubscribe(t *testing.T) {
	fake := &fakeSocket{}
	srv := newTestServer(fake)

	first := dialServer(t, srv)
	authenticate(t, first, 42)
	second := dialServer(t, srv)
	authenticate(t, second, 42)

	subscribed, _ := fake.topics()
	if len(subscribed) != 1 {
		t.Errorf("only the first socket should subscribe, got %v", subscribed)
	}

	first.Close()
	time.Sleep(50 * time.Millisecond)
	_, unsubscribed := fake.topics()
	if len(unsubscribed) != 0 {
		t.Errorf("topic must stay subscribed while a socket remains, got %v", unsubscribed)
	}
}

func TestRouteTargetsUser(t *testing.T) {
	srv := newTestServer(&fakeSocket{})

	target := dialServer(t, srv)
	authenticate(t, target, 42)
	other := dialServer(t, srv)
	authenticate(t, other, 7)

	srv.route("42", []byte(`{"actionType":"ping"}`))

	target.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := target.ReadMessage()
	if err != nil {
		t.Fatalf("target should receive the message: %v", err)
	}
	if !strings.Contains(string(data), "ping") {
		t.Errorf("unexpected payload %s", data)
	}

	other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Errorf("other user's socket must not receive a targeted message")
	}
}

func TestRouteBroadcastReachesEveryConnection(t *testing.T) {
	srv := newTestServer(&fakeSocket{})

	authed := dialServer(t, srv)
	authenticate(t, authed, 42)
	// Unauthenticated sockets still receive broadcasts
	pending := dialServer(t, srv)
	if got := readAction(t, pending); got != actionAuthRequest {
		t.Fatalf("expected %s, got %s", actionAuthRequest, got)
	}

	srv.route(Broadcast, []byte(`{"actionType":"announcement"}`))

	for name, conn := range map[string]*websocket.Conn{"authed": authed, "pending": pending} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("%s socket should receive the broadcast: %v", name, err)
		}
		if !strings.Contains(string(data), "announcement") {
			t.Errorf("%s socket got unexpected payload %s", name, data)
		}
	}
}

func TestHandshakeFailureCap(t *testing.T) {
	srv := newTestServer(&fakeSocket{})
	conn := dialServer(t, srv)

	if got := readAction(t, conn); got != actionAuthRequest {
		t.Fatalf("expected %s, got %s", actionAuthRequest, got)
	}
	for i := 0; i < 3; i++ {
		if err := conn.WriteMessage(websocket.TextMessage, []byte("not-a-token")); err != nil {
			t.Fatalf("failed to send: %v", err)
		}
	}
	token, err := auth.IssueSocketToken(testSecret, 42)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(token)); err != nil {
		t.Fatalf("failed to send token: %v", err)
	}

	// Two failures re-issue the challenge, the third does not, and a valid
	// token still authenticates afterwards
	want := []string{
		actionAuthFailed, actionAuthRequest,
		actionAuthFailed, actionAuthRequest,
		actionAuthFailed,
		actionAuthOK,
	}
	for i, expected := range want {
		if got := readAction(t, conn); got != expected {
			t.Fatalf("frame %d: expected %s, got %s", i, expected, got)
		}
	}
}

func TestPublisherFramesMessages(t *testing.T) {
	fake := &fakeSocket{}
	pub := &Publisher{socket: fake, logger: testLogger()}

	if err := pub.Push(42, "report_finished", map[string]string{"report_id": "abc"}); err != nil {
		t.Fatalf("push failed: %v", err)
	}
	if err := pub.PushAll("maintenance", nil); err != nil {
		t.Fatalf("broadcast failed: %v", err)
	}

	fake.mu.Lock()
	sent := append([]zmq4.Msg(nil), fake.sent...)
	fake.mu.Unlock()

	if len(sent) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(sent))
	}
	if string(sent[0].Frames[0]) != "42" {
		t.Errorf("targeted routing key should be the user id, got %q", sent[0].Frames[0])
	}
	var env Envelope
	if err := json.Unmarshal(sent[0].Frames[1], &env); err != nil {
		t.Fatalf("payload frame should be JSON: %v", err)
	}
	if env.ActionType != "report_finished" {
		t.Errorf("unexpected action type %q", env.ActionType)
	}
	if string(sent[1].Frames[0]) != Broadcast {
		t.Errorf("broadcast routing key should be %q, got %q", Broadcast, sent[1].Frames[0])
	}
}

func TestPublisherSurfacesSendErrors(t *testing.T) {
	fake := &fakeSocket{sendErr: errors.New("broker away")}
	pub := &Publisher{socket: fake, logger: testLogger()}

	if err := pub.Push(42, "ping", nil); err == nil {
		t.Errorf("send failure should surface to the caller")
	}
}
