package broadcaster

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/goevery/callwatch/internal/auth"
	"github.com/goevery/callwatch/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeTransport struct {
	mu sync.Mutex

	messages  []Message
	pings     int
	closed    bool
	closeCode int

	failWrites bool
	failPings  bool
	onPing     func()
}

func (f *fakeTransport) WriteMessage(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWrites || f.closed {
		return errors.New("broken pipe")
	}

	var message Message
	if err := json.Unmarshal(data, &message); err != nil {
		return err
	}

	f.messages = append(f.messages, message)

	return nil
}

func (f *fakeTransport) WritePing() error {
	f.mu.Lock()
	onPing := f.onPing
	fail := f.failPings || f.closed
	if !fail {
		f.pings++
	}
	f.mu.Unlock()

	if fail {
		return errors.New("broken pipe")
	}

	if onPing != nil {
		onPing()
	}

	return nil
}

func (f *fakeTransport) Close(code int, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	f.closeCode = code

	return nil
}

func (f *fakeTransport) Messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]Message(nil), f.messages...)
}

func (f *fakeTransport) MessagesOfType(messageType string) []Message {
	var matching []Message
	for _, message := range f.Messages() {
		if message.Type == messageType {
			matching = append(matching, message)
		}
	}

	return matching
}

func (f *fakeTransport) Pings() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.pings
}

func (f *fakeTransport) CloseCode() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.closeCode
}

func (f *fakeTransport) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.closed
}

// respondToProbes makes the transport answer every ping the way a browser
// answers a websocket ping with a pong.
func (f *fakeTransport) respondToProbes(connection *Connection) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.onPing = connection.MarkAlive
}

func newTestHub(t *testing.T) (*Hub, *metrics.WebSocketMetrics) {
	logger, _ := zap.NewDevelopment()
	wsMetrics := metrics.NewWebSocketMetrics(prometheus.NewRegistry())

	return NewHub(logger, auth.DefaultPolicy(), wsMetrics, 16), wsMetrics
}

func connect(t *testing.T, hub *Hub, userId string, role auth.Role) (*Connection, *fakeTransport) {
	transport := &fakeTransport{}
	return connectWith(t, hub, userId, role, transport), transport
}

func connectWith(t *testing.T, hub *Hub, userId string, role auth.Role, transport *fakeTransport) *Connection {
	connection := hub.NewConnection(userId, role, transport)
	require.NoError(t, hub.Connect(connection))

	t.Cleanup(func() {
		hub.Disconnect(connection, CloseNormalClosure, "")
	})

	return connection
}

// assertNoOrphans checks that every subscriber of every channel is registered.
func assertNoOrphans(t *testing.T, hub *Hub) {
	t.Helper()

	for channel := range hub.Subscriptions().SubscriberCounts() {
		for _, connection := range hub.Subscriptions().Subscribers(channel) {
			require.True(t, hub.Registry().Contains(connection),
				"connection %s subscribed to %s but not registered", connection.Id, channel)
		}
	}
}
