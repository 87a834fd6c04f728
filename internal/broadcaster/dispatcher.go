package broadcaster

import (
	"encoding/json"
	"slices"

	"github.com/goevery/callwatch/internal/auth"
	"github.com/goevery/callwatch/internal/metrics"
	"go.uber.org/zap"
)

type Stats struct {
	TotalConnections   int            `json:"totalConnections"`
	DistinctUsers      int            `json:"distinctUsers"`
	ChannelSubscribers map[string]int `json:"channelSubscribers"`
}

// Dispatcher is the application's entry point for pushing events. Delivery is
// best effort: a failed send is logged and skipped, and no Notify method ever
// returns an error. Each returns how many connections accepted the event.
type Dispatcher struct {
	logger  *zap.Logger
	hub     *Hub
	metrics *metrics.WebSocketMetrics
}

func NewDispatcher(logger *zap.Logger, hub *Hub, wsMetrics *metrics.WebSocketMetrics) *Dispatcher {
	return &Dispatcher{
		logger,
		hub,
		wsMetrics,
	}
}

func (d *Dispatcher) NotifyUser(userId string, event Event) int {
	return d.deliver(d.hub.Registry().AllForUser(userId), event)
}

func (d *Dispatcher) NotifyChannel(channel string, event Event) int {
	return d.deliver(d.hub.Subscriptions().Subscribers(channel), event)
}

// NotifyRole scans every live connection; reserve it for coarse announcements.
func (d *Dispatcher) NotifyRole(role auth.Role, event Event) int {
	return d.NotifyAudience(nil, []auth.Role{role}, event)
}

// NotifyAudience delivers once to every connection that belongs to one of the
// users or holds one of the roles.
func (d *Dispatcher) NotifyAudience(userIds []string, roles []auth.Role, event Event) int {
	seen := make(map[*Connection]struct{})
	var connections []*Connection

	for _, userId := range userIds {
		for _, connection := range d.hub.Registry().AllForUser(userId) {
			if _, ok := seen[connection]; !ok {
				seen[connection] = struct{}{}
				connections = append(connections, connection)
			}
		}
	}

	if len(roles) > 0 {
		for _, connection := range d.hub.Registry().AllConnections() {
			if _, ok := seen[connection]; ok {
				continue
			}

			if slices.Contains(roles, connection.Role) {
				seen[connection] = struct{}{}
				connections = append(connections, connection)
			}
		}
	}

	return d.deliver(connections, event)
}

func (d *Dispatcher) ConnectionStats() Stats {
	connections, users := d.hub.Registry().Count()

	return Stats{
		TotalConnections:   connections,
		DistinctUsers:      users,
		ChannelSubscribers: d.hub.Subscriptions().SubscriberCounts(),
	}
}

func (d *Dispatcher) deliver(connections []*Connection, event Event) int {
	if len(connections) == 0 {
		return 0
	}

	data, err := json.Marshal(event.Message())
	if err != nil {
		d.logger.Error("failed to encode event",
			zap.String("eventId", event.Id),
			zap.String("kind", string(event.Kind)),
			zap.Error(err))

		return 0
	}

	delivered := 0

	for _, connection := range connections {
		if err := connection.Send(data); err != nil {
			d.logger.Warn("failed to send event, skipping recipient",
				zap.String("eventId", event.Id),
				zap.String("connectionId", connection.Id),
				zap.String("userId", connection.UserId),
				zap.Error(err))

			if d.metrics != nil {
				d.metrics.SendFailures.Inc()
			}

			continue
		}

		delivered++
	}

	if d.metrics != nil {
		d.metrics.MessagesSent.Add(float64(delivered))
	}

	return delivered
}
