package broadcaster

import (
	"math"
	"testing"
	"time"

	"github.com/goevery/callwatch/internal/auth"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *Hub) {
	hub, wsMetrics := newTestHub(t)

	return NewDispatcher(hub.logger, hub, wsMetrics), hub
}

func eventually(t *testing.T, condition func() bool) {
	t.Helper()
	assert.Eventually(t, condition, time.Second, 5*time.Millisecond)
}

func TestDispatcher_NotifyChannel(t *testing.T) {
	t.Run("subscriber receives the event", func(t *testing.T) {
		dispatcher, hub := newTestDispatcher(t)
		bob, transport := connect(t, hub, "bob-id", auth.RoleUser)
		require.NoError(t, hub.Subscribe(bob, "calls"))

		event := NewEvent(KindCallUpdate, map[string]any{"callId": "call-1", "status": "ended"})
		delivered := dispatcher.NotifyChannel("calls", event)

		assert.Equal(t, 1, delivered)
		eventually(t, func() bool { return len(transport.MessagesOfType("call_update")) == 1 })

		message := transport.MessagesOfType("call_update")[0]
		assert.Equal(t, map[string]any{"callId": "call-1", "status": "ended"}, message.Data)
		assert.Equal(t, event.Timestamp.UnixMilli(), message.Timestamp)
	})

	t.Run("missing channel is a silent no-op", func(t *testing.T) {
		dispatcher, _ := newTestDispatcher(t)

		assert.Equal(t, 0, dispatcher.NotifyChannel("calls", NewEvent(KindCallUpdate, nil)))
	})

	t.Run("non-subscribers do not receive", func(t *testing.T) {
		dispatcher, hub := newTestDispatcher(t)
		subscriber, subscriberTransport := connect(t, hub, "bob-id", auth.RoleUser)
		_, bystanderTransport := connect(t, hub, "alice-id", auth.RoleUser)
		require.NoError(t, hub.Subscribe(subscriber, "calls"))

		dispatcher.NotifyChannel("calls", NewEvent(KindCallUpdate, "x"))

		eventually(t, func() bool { return len(subscriberTransport.Messages()) == 1 })
		assert.Empty(t, bystanderTransport.Messages())
	})

	t.Run("closed recipients are skipped without aborting the broadcast", func(t *testing.T) {
		dispatcher, hub := newTestDispatcher(t)

		const total, failing = 6, 2
		transports := make([]*fakeTransport, total)
		for i := 0; i < total; i++ {
			var connection *Connection
			connection, transports[i] = connect(t, hub, "user-"+string(rune('a'+i)), auth.RoleUser)
			require.NoError(t, hub.Subscribe(connection, "calls"))

			if i < failing {
				connection.Close(CloseNormalClosure, "")
			}
		}

		delivered := dispatcher.NotifyChannel("calls", NewEvent(KindCallUpdate, "x"))

		assert.Equal(t, total-failing, delivered)
		eventually(t, func() bool {
			received := 0
			for _, transport := range transports {
				received += len(transport.MessagesOfType("call_update"))
			}
			return received == total-failing
		})
		assert.Equal(t, float64(failing), testutil.ToFloat64(dispatcher.metrics.SendFailures))
	})

	t.Run("write failures only affect the failing recipient", func(t *testing.T) {
		dispatcher, hub := newTestDispatcher(t)

		healthy := []*fakeTransport{{}, {}, {}}
		broken := []*fakeTransport{{failWrites: true}, {failWrites: true}}

		for i, transport := range append(append([]*fakeTransport{}, healthy...), broken...) {
			connection := connectWith(t, hub, "user-"+string(rune('a'+i)), auth.RoleUser, transport)
			require.NoError(t, hub.Subscribe(connection, "dashboard"))
		}

		assert.NotPanics(t, func() {
			dispatcher.NotifyChannel("dashboard", NewEvent(KindDashboardUpdate, "x"))
		})

		for _, transport := range healthy {
			eventually(t, func() bool { return len(transport.Messages()) == 1 })
		}
		for _, transport := range broken {
			assert.Empty(t, transport.Messages())
		}

		connections, _ := hub.Registry().Count()
		assert.Equal(t, 5, connections)
	})

	t.Run("full send buffer skips the recipient", func(t *testing.T) {
		dispatcher, hub := newTestDispatcher(t)
		connection := hub.NewConnection("bob-id", auth.RoleUser, &fakeTransport{})
		hub.Registry().Add(connection)
		_, err := hub.Subscriptions().Subscribe("calls", connection)
		require.NoError(t, err)

		for i := 0; i < hub.sendBufferSize; i++ {
			require.NoError(t, connection.Send([]byte(`{}`)))
		}

		assert.Equal(t, 0, dispatcher.NotifyChannel("calls", NewEvent(KindCallUpdate, "x")))
	})

	t.Run("unencodable payload is dropped", func(t *testing.T) {
		dispatcher, hub := newTestDispatcher(t)
		bob, transport := connect(t, hub, "bob-id", auth.RoleUser)
		require.NoError(t, hub.Subscribe(bob, "calls"))

		delivered := dispatcher.NotifyChannel("calls", NewEvent(KindCallUpdate, math.Inf(1)))

		assert.Equal(t, 0, delivered)
		assert.Empty(t, transport.Messages())
	})
}

func TestDispatcher_NotifyUser(t *testing.T) {
	t.Run("every tab receives the event", func(t *testing.T) {
		dispatcher, hub := newTestDispatcher(t)
		tab1, transport1 := connect(t, hub, "bob-id", auth.RoleUser)
		_, transport2 := connect(t, hub, "bob-id", auth.RoleUser)

		assert.Equal(t, 2, dispatcher.NotifyUser("bob-id", NewEvent(KindNotification, "first")))
		eventually(t, func() bool {
			return len(transport1.Messages()) == 1 && len(transport2.Messages()) == 1
		})

		hub.Disconnect(tab1, CloseNormalClosure, "")

		assert.Equal(t, 1, dispatcher.NotifyUser("bob-id", NewEvent(KindNotification, "second")))
		eventually(t, func() bool { return len(transport2.Messages()) == 2 })
		assert.Len(t, transport1.Messages(), 1)
	})

	t.Run("offline user is a silent no-op", func(t *testing.T) {
		dispatcher, _ := newTestDispatcher(t)

		assert.Equal(t, 0, dispatcher.NotifyUser("nobody", NewEvent(KindNotification, "x")))
	})

	t.Run("subject is carried on the wire", func(t *testing.T) {
		dispatcher, hub := newTestDispatcher(t)
		_, transport := connect(t, hub, "bob-id", auth.RoleUser)

		dispatcher.NotifyUser("bob-id", NewEvent(KindAgentUpdate, "x").WithSubject("carol-id"))

		eventually(t, func() bool { return len(transport.Messages()) == 1 })
		assert.Equal(t, "carol-id", transport.Messages()[0].SubjectUserId)
	})
}

func TestDispatcher_NotifyRole(t *testing.T) {
	dispatcher, hub := newTestDispatcher(t)
	_, admin1 := connect(t, hub, "admin-1", auth.RoleAdmin)
	_, admin2 := connect(t, hub, "admin-2", auth.RoleAdmin)
	_, user := connect(t, hub, "bob-id", auth.RoleUser)

	delivered := dispatcher.NotifyRole(auth.RoleAdmin, NewEvent(KindNotification, "maintenance"))

	assert.Equal(t, 2, delivered)
	eventually(t, func() bool { return len(admin1.Messages()) == 1 && len(admin2.Messages()) == 1 })
	assert.Empty(t, user.Messages())
}

func TestDispatcher_NotifyAudience(t *testing.T) {
	dispatcher, hub := newTestDispatcher(t)
	_, admin := connect(t, hub, "admin-1", auth.RoleAdmin)
	_, bob := connect(t, hub, "bob-id", auth.RoleUser)
	_, alice := connect(t, hub, "alice-id", auth.RoleUser)

	delivered := dispatcher.NotifyAudience(
		[]string{"admin-1", "bob-id", "bob-id"},
		[]auth.Role{auth.RoleAdmin},
		NewEvent(KindAgentUpdate, "x"),
	)

	assert.Equal(t, 2, delivered)
	eventually(t, func() bool { return len(admin.Messages()) == 1 && len(bob.Messages()) == 1 })
	assert.Empty(t, alice.Messages())
}

func TestDispatcher_ConnectionStats(t *testing.T) {
	dispatcher, hub := newTestDispatcher(t)
	tab1, _ := connect(t, hub, "bob-id", auth.RoleUser)
	tab2, _ := connect(t, hub, "bob-id", auth.RoleUser)
	admin, _ := connect(t, hub, "admin-1", auth.RoleAdmin)
	require.NoError(t, hub.Subscribe(tab1, "calls"))
	require.NoError(t, hub.Subscribe(tab2, "calls"))
	require.NoError(t, hub.Subscribe(admin, "admin"))

	stats := dispatcher.ConnectionStats()

	assert.Equal(t, Stats{
		TotalConnections:   3,
		DistinctUsers:      2,
		ChannelSubscribers: map[string]int{"calls": 2, "admin": 1},
	}, stats)
}
