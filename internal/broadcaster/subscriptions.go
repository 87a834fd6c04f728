package broadcaster

import (
	"errors"
	"sync"

	"github.com/goevery/callwatch/internal/ierr"
)

// SubscriptionTable maps channel names to subscribed connections. It holds
// non-owning references: a channel entry exists only while it has at least
// one subscriber.
type SubscriptionTable struct {
	mu sync.RWMutex

	connectionsByChannel map[string]map[*Connection]struct{}
	channelsByConnection map[*Connection]map[string]struct{}
	size                 int
}

func NewSubscriptionTable() *SubscriptionTable {
	return &SubscriptionTable{
		connectionsByChannel: make(map[string]map[*Connection]struct{}),
		channelsByConnection: make(map[*Connection]map[string]struct{}),
	}
}

// Subscribe adds the connection to the channel. It reports whether the set
// grew; subscribing twice is not an error. Closed and unregistered
// connections are rejected under the table lock, so a subscribe racing a
// disconnect never leaves an entry behind.
func (t *SubscriptionTable) Subscribe(channel string, connection *Connection) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if connection.IsClosed() {
		return false, ierr.New(ierr.ErrorCodeFailedPrecondition, errors.New("connection closed"))
	}

	if !connection.IsRegistered() {
		return false, ierr.New(ierr.ErrorCodeFailedPrecondition, errors.New("connection not registered"))
	}

	channelConnections, ok := t.connectionsByChannel[channel]
	if !ok {
		channelConnections = make(map[*Connection]struct{})
		t.connectionsByChannel[channel] = channelConnections
	}

	if _, ok := channelConnections[connection]; ok {
		return false, nil
	}

	channelConnections[connection] = struct{}{}

	connectionChannels, ok := t.channelsByConnection[connection]
	if !ok {
		connectionChannels = make(map[string]struct{})
		t.channelsByConnection[connection] = connectionChannels
	}

	connectionChannels[channel] = struct{}{}
	t.size++

	return true, nil
}

// Unsubscribe reports whether the connection was subscribed.
func (t *SubscriptionTable) Unsubscribe(channel string, connection *Connection) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.unsubscribeLocked(channel, connection)
}

// RemoveConnection drops the connection from every channel and returns the
// channels it left.
func (t *SubscriptionTable) RemoveConnection(connection *Connection) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	connectionChannels := t.channelsByConnection[connection]

	channels := make([]string, 0, len(connectionChannels))
	for channel := range connectionChannels {
		channels = append(channels, channel)
	}

	for _, channel := range channels {
		t.unsubscribeLocked(channel, connection)
	}

	return channels
}

// IMPORTANT: It must be called only when a write lock is already held.
func (t *SubscriptionTable) unsubscribeLocked(channel string, connection *Connection) bool {
	channelConnections, ok := t.connectionsByChannel[channel]
	if !ok {
		return false
	}

	if _, ok := channelConnections[connection]; !ok {
		return false
	}

	delete(channelConnections, connection)
	if len(channelConnections) == 0 {
		delete(t.connectionsByChannel, channel)
	}

	connectionChannels, ok := t.channelsByConnection[connection]
	if !ok {
		panic("inconsistent state: connection not found in channelsByConnection")
	}

	delete(connectionChannels, channel)
	if len(connectionChannels) == 0 {
		delete(t.channelsByConnection, connection)
	}

	t.size--

	return true
}

func (t *SubscriptionTable) Subscribers(channel string) []*Connection {
	t.mu.RLock()
	defer t.mu.RUnlock()

	channelConnections := t.connectionsByChannel[channel]

	connections := make([]*Connection, 0, len(channelConnections))
	for connection := range channelConnections {
		connections = append(connections, connection)
	}

	return connections
}

func (t *SubscriptionTable) Channels(connection *Connection) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	channels := make([]string, 0, len(t.channelsByConnection[connection]))
	for channel := range t.channelsByConnection[connection] {
		channels = append(channels, channel)
	}

	return channels
}

func (t *SubscriptionTable) HasChannel(channel string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.connectionsByChannel[channel]
	return ok
}

// SubscriberCounts returns the number of subscribers per existing channel.
func (t *SubscriptionTable) SubscriberCounts() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	counts := make(map[string]int, len(t.connectionsByChannel))
	for channel, connections := range t.connectionsByChannel {
		counts[channel] = len(connections)
	}

	return counts
}

// Size is the total number of channel subscriptions.
func (t *SubscriptionTable) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.size
}
