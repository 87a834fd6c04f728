package broadcaster

import (
	"errors"

	"github.com/goevery/callwatch/internal/auth"
	"github.com/goevery/callwatch/internal/ierr"
	"github.com/goevery/callwatch/internal/metrics"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

// RFC 6455 close codes used when the server ends a connection.
const (
	CloseNormalClosure   = 1000
	CloseGoingAway       = 1001
	ClosePolicyViolation = 1008
)

const DefaultSendBufferSize = 64

// Hub owns connection lifetime. It keeps the registry and the subscription
// table consistent: a connection is only ever subscribed while registered.
type Hub struct {
	logger  *zap.Logger
	policy  *auth.Policy
	metrics *metrics.WebSocketMetrics

	registry      *ConnectionRegistry
	subscriptions *SubscriptionTable

	sendBufferSize int
}

func NewHub(
	logger *zap.Logger,
	policy *auth.Policy,
	wsMetrics *metrics.WebSocketMetrics,
	sendBufferSize int,
) *Hub {
	if sendBufferSize <= 0 {
		sendBufferSize = DefaultSendBufferSize
	}

	return &Hub{
		logger:         logger,
		policy:         policy,
		metrics:        wsMetrics,
		registry:       NewConnectionRegistry(),
		subscriptions:  NewSubscriptionTable(),
		sendBufferSize: sendBufferSize,
	}
}

func (h *Hub) Registry() *ConnectionRegistry {
	return h.registry
}

func (h *Hub) Subscriptions() *SubscriptionTable {
	return h.subscriptions
}

func (h *Hub) NewConnection(userId string, role auth.Role, transport Transport) *Connection {
	return NewConnection(gonanoid.Must(), userId, role, transport, h.sendBufferSize)
}

// Connect registers an authenticated connection and starts its writer.
func (h *Hub) Connect(connection *Connection) error {
	if connection.UserId == "" || connection.Role == "" {
		return ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("connection requires a user and a role"))
	}

	// Incremented before the connection is visible to Disconnect.
	h.adjustActiveConnections(1)

	if !h.registry.Add(connection) {
		h.adjustActiveConnections(-1)
		return ierr.New(ierr.ErrorCodeFailedPrecondition, errors.New("connection already registered"))
	}

	if connection.IsClosed() {
		if h.registry.Remove(connection) {
			h.adjustActiveConnections(-1)
		}

		return errConnectionClosed
	}

	go connection.writePump(h.logger)

	h.logger.Info("connection registered",
		zap.String("connectionId", connection.Id),
		zap.String("userId", connection.UserId),
		zap.String("role", string(connection.Role)))

	return nil
}

// Disconnect closes the connection and purges it from every channel and from
// the registry. It is safe to call more than once and from any goroutine.
func (h *Hub) Disconnect(connection *Connection, code int, reason string) {
	connection.Close(code, reason)

	channels := h.subscriptions.RemoveConnection(connection)
	removed := h.registry.Remove(connection)

	if h.metrics != nil {
		h.metrics.ChannelSubscriptions.Set(float64(h.subscriptions.Size()))
	}

	if removed {
		h.adjustActiveConnections(-1)

		h.logger.Info("connection unregistered",
			zap.String("connectionId", connection.Id),
			zap.String("userId", connection.UserId),
			zap.Strings("channels", channels))
	}
}

// Subscribe checks the access policy before touching the subscription table;
// a denied request leaves the table unchanged.
func (h *Hub) Subscribe(connection *Connection, channel string) error {
	if !h.policy.Allowed(connection.Role, channel) {
		return ierr.New(ierr.ErrorCodePermissionDenied,
			errors.New("not authorized to subscribe to channel "+channel))
	}

	added, err := h.subscriptions.Subscribe(channel, connection)
	if err != nil {
		return err
	}

	if added && h.metrics != nil {
		h.metrics.ChannelSubscriptions.Inc()
	}

	return nil
}

func (h *Hub) Unsubscribe(connection *Connection, channel string) bool {
	removed := h.subscriptions.Unsubscribe(channel, connection)

	if removed && h.metrics != nil {
		h.metrics.ChannelSubscriptions.Dec()
	}

	return removed
}

func (h *Hub) adjustActiveConnections(delta float64) {
	if h.metrics != nil {
		h.metrics.ActiveConnections.Add(delta)
	}
}

// Shutdown closes every live connection with a going-away code.
func (h *Hub) Shutdown() {
	for _, connection := range h.registry.AllConnections() {
		h.Disconnect(connection, CloseGoingAway, "server shutting down")
	}
}
