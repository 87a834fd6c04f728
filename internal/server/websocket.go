package server

import (
	"errors"
	"net/http"

	"github.com/goevery/callwatch/internal/broadcaster"
	"github.com/goevery/callwatch/internal/handler"
	"github.com/goevery/callwatch/internal/metrics"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Maximum inbound frame size. A larger frame is a transport violation: the
// peer gets a message-too-big close and the connection is cleaned up.
const maxMessageSize = 4096

type WebSocketServer struct {
	logger   *zap.Logger
	upgrader *websocket.Upgrader
	metrics  *metrics.WebSocketMetrics

	connectHandler handler.ConnectHandlerInterface
	hub            *broadcaster.Hub
	router         *Router
}

func NewWebSocketServer(
	logger *zap.Logger,
	upgrader *websocket.Upgrader,
	wsMetrics *metrics.WebSocketMetrics,
	connectHandler handler.ConnectHandlerInterface,
	hub *broadcaster.Hub,
	router *Router,
) *WebSocketServer {
	return &WebSocketServer{
		logger,
		upgrader,
		wsMetrics,
		connectHandler,
		hub,
		router,
	}
}

func (s *WebSocketServer) Register(router *mux.Router) {
	router.HandleFunc("/websocket", s.serveWebSocket).Methods(http.MethodGet)
}

// serveWebSocket owns one connection from upgrade to cleanup. Inbound frames
// are handled sequentially on this goroutine, so a client's subscribe and
// unsubscribe always apply in the order sent.
func (s *WebSocketServer) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	transport := NewWebSocketTransport(conn)
	ctx := r.Context()

	authentication, connected, err := s.connectHandler.Handle(ctx, r.URL.Query().Get("token"))
	if err != nil {
		s.logger.Info("refusing websocket connection",
			zap.String("remoteAddr", r.RemoteAddr),
			zap.Error(err))

		if s.metrics != nil {
			s.metrics.AuthFailures.Inc()
		}

		_ = transport.Close(broadcaster.ClosePolicyViolation, "authentication failed")
		return
	}

	connection := s.hub.NewConnection(authentication.UserId, authentication.Role, transport)
	logger := s.logger.With(
		zap.String("connectionId", connection.Id),
		zap.String("userId", connection.UserId))

	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		connection.MarkAlive()
		return nil
	})

	// Queued before registration so the acknowledgement precedes any event.
	if err := connection.SendMessage(connected); err != nil {
		logger.Warn("failed to queue connected message", zap.Error(err))
	}

	if err := s.hub.Connect(connection); err != nil {
		logger.Error("failed to register connection", zap.Error(err))
		_ = transport.Close(websocket.CloseInternalServerErr, "registration failed")
		return
	}
	defer s.hub.Disconnect(connection, broadcaster.CloseNormalClosure, "")

	ctx = broadcaster.WithConnection(ctx, connection)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				logger.Warn("closing connection after oversized frame", zap.Int64("limit", maxMessageSize))
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket read failed", zap.Error(err))
			}

			return
		}

		reply := s.router.RouteMessage(ctx, data)
		if reply == nil {
			continue
		}

		if err := connection.SendMessage(*reply); err != nil {
			logger.Warn("failed to queue reply",
				zap.String("type", reply.Type),
				zap.Error(err))
		}
	}
}
