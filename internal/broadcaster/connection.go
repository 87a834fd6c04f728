package broadcaster

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/goevery/callwatch/internal/auth"
	"github.com/goevery/callwatch/internal/ierr"
	"go.uber.org/zap"
)

var (
	errConnectionClosed = ierr.New(ierr.ErrorCodeUnavailable, errors.New("connection closed"))
	errSendBufferFull   = ierr.New(ierr.ErrorCodeUnavailable, errors.New("send buffer full"))
	errProbePending     = ierr.New(ierr.ErrorCodeUnavailable, errors.New("previous probe still pending"))
)

// Transport is the wire underneath a Connection. WriteMessage and WritePing
// are only ever called from the connection's writer goroutine; Close may be
// called concurrently with both.
type Transport interface {
	WriteMessage(data []byte) error
	WritePing() error
	Close(code int, reason string) error
}

type Connection struct {
	Id     string
	UserId string
	Role   auth.Role

	transport Transport
	send      chan []byte
	probe     chan struct{}
	done      chan struct{}

	closeOnce  sync.Once
	closed     atomic.Bool
	alive      atomic.Bool
	registered atomic.Bool
}

func NewConnection(id string, userId string, role auth.Role, transport Transport, sendBufferSize int) *Connection {
	c := &Connection{
		Id:        id,
		UserId:    userId,
		Role:      role,
		transport: transport,
		send:      make(chan []byte, sendBufferSize),
		probe:     make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	c.alive.Store(true)

	return c
}

// Send queues an already encoded frame without blocking. A closed connection
// or a full buffer is reported as an Unavailable error.
func (c *Connection) Send(data []byte) error {
	if c.closed.Load() {
		return errConnectionClosed
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return errConnectionClosed
	default:
		return errSendBufferFull
	}
}

func (c *Connection) SendMessage(message Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return ierr.New(ierr.ErrorCodeInvalidArgument, err)
	}

	return c.Send(data)
}

// Probe asks the writer goroutine to emit a transport-level ping.
func (c *Connection) Probe() error {
	if c.closed.Load() {
		return errConnectionClosed
	}

	select {
	case c.probe <- struct{}{}:
		return nil
	default:
		return errProbePending
	}
}

// MarkAlive records a probe response.
func (c *Connection) MarkAlive() {
	c.alive.Store(true)
}

func (c *Connection) IsAlive() bool {
	return c.alive.Load()
}

// expireLiveness clears the alive flag and reports whether it was set.
func (c *Connection) expireLiveness() bool {
	return c.alive.CompareAndSwap(true, false)
}

func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}

// IsRegistered reports whether the connection is currently in a registry.
func (c *Connection) IsRegistered() bool {
	return c.registered.Load()
}

// Close stops the writer and closes the transport. Only the first call has
// any effect; it reports whether this call closed the connection.
func (c *Connection) Close(code int, reason string) bool {
	closed := false

	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		_ = c.transport.Close(code, reason)
		closed = true
	})

	return closed
}

func (c *Connection) writePump(logger *zap.Logger) {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			if err := c.transport.WriteMessage(data); err != nil {
				logger.Debug("failed to write message",
					zap.String("connectionId", c.Id),
					zap.Error(err))
			}
		case <-c.probe:
			if err := c.transport.WritePing(); err != nil {
				logger.Debug("failed to write liveness probe",
					zap.String("connectionId", c.Id),
					zap.Error(err))
			}
		}
	}
}

type contextKey string

const connectionKey contextKey = "connection"

func WithConnection(ctx context.Context, conn *Connection) context.Context {
	return context.WithValue(ctx, connectionKey, conn)
}

func ConnectionFromContext(ctx context.Context) (*Connection, bool) {
	conn, ok := ctx.Value(connectionKey).(*Connection)

	return conn, ok
}
