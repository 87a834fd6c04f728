package broadcaster

import (
	"sync"
)

// ConnectionRegistry tracks live connections grouped by user. One user may
// hold several connections at once, one per browser tab.
type ConnectionRegistry struct {
	mu sync.RWMutex

	connectionsByUser map[string]map[*Connection]struct{}
	count             int
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		connectionsByUser: make(map[string]map[*Connection]struct{}),
	}
}

// Add reports whether the connection was inserted; adding it twice is a no-op.
func (r *ConnectionRegistry) Add(connection *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	userConnections, ok := r.connectionsByUser[connection.UserId]
	if !ok {
		userConnections = make(map[*Connection]struct{})
		r.connectionsByUser[connection.UserId] = userConnections
	}

	if _, ok := userConnections[connection]; ok {
		return false
	}

	userConnections[connection] = struct{}{}
	connection.registered.Store(true)
	r.count++

	return true
}

// Remove reports whether the connection was present.
func (r *ConnectionRegistry) Remove(connection *Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	userConnections, ok := r.connectionsByUser[connection.UserId]
	if !ok {
		return false
	}

	if _, ok := userConnections[connection]; !ok {
		return false
	}

	delete(userConnections, connection)
	connection.registered.Store(false)
	if len(userConnections) == 0 {
		delete(r.connectionsByUser, connection.UserId)
	}

	r.count--

	return true
}

func (r *ConnectionRegistry) Contains(connection *Connection) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.connectionsByUser[connection.UserId][connection]
	return ok
}

// AllForUser returns a snapshot; it is empty when the user is offline.
func (r *ConnectionRegistry) AllForUser(userId string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userConnections := r.connectionsByUser[userId]

	connections := make([]*Connection, 0, len(userConnections))
	for connection := range userConnections {
		connections = append(connections, connection)
	}

	return connections
}

func (r *ConnectionRegistry) AllConnections() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connections := make([]*Connection, 0, r.count)
	for _, userConnections := range r.connectionsByUser {
		for connection := range userConnections {
			connections = append(connections, connection)
		}
	}

	return connections
}

// Count returns the number of connections and of distinct users.
func (r *ConnectionRegistry) Count() (int, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.count, len(r.connectionsByUser)
}
