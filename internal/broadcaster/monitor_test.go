package broadcaster

import (
	"context"
	"testing"
	"time"

	"github.com/goevery/callwatch/internal/auth"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestMonitor(t *testing.T, hub *Hub, clock clockwork.Clock) *LivenessMonitor {
	logger, _ := zap.NewDevelopment()

	return NewLivenessMonitor(logger, hub, hub.metrics, clock, time.Second)
}

func TestLivenessMonitor_Scan(t *testing.T) {
	t.Run("responsive connection is never evicted", func(t *testing.T) {
		hub, _ := newTestHub(t)
		monitor := newTestMonitor(t, hub, clockwork.NewFakeClock())
		connection, transport := connect(t, hub, "bob-id", auth.RoleUser)
		transport.respondToProbes(connection)

		for i := 1; i <= 5; i++ {
			assert.Equal(t, 0, monitor.Scan())
			assert.Eventually(t, func() bool {
				return transport.Pings() == i && connection.IsAlive()
			}, time.Second, 5*time.Millisecond)
		}

		assert.True(t, hub.Registry().Contains(connection))
	})

	t.Run("silent connection survives one probe and is evicted on the next", func(t *testing.T) {
		hub, wsMetrics := newTestHub(t)
		monitor := newTestMonitor(t, hub, clockwork.NewFakeClock())
		connection, transport := connect(t, hub, "bob-id", auth.RoleUser)

		assert.Equal(t, 0, monitor.Scan())
		assert.True(t, hub.Registry().Contains(connection))
		assert.False(t, connection.IsAlive())
		assert.Eventually(t, func() bool { return transport.Pings() == 1 }, time.Second, 5*time.Millisecond)

		assert.Equal(t, 1, monitor.Scan())
		assert.False(t, hub.Registry().Contains(connection))
		assert.True(t, transport.IsClosed())
		assert.Equal(t, 1.0, testutil.ToFloat64(wsMetrics.Evictions))
	})

	t.Run("late response resets the grace window", func(t *testing.T) {
		hub, _ := newTestHub(t)
		monitor := newTestMonitor(t, hub, clockwork.NewFakeClock())
		connection, _ := connect(t, hub, "bob-id", auth.RoleUser)

		monitor.Scan()
		connection.MarkAlive()
		monitor.Scan()

		assert.True(t, hub.Registry().Contains(connection))
	})

	t.Run("failed probe counts as a missed response", func(t *testing.T) {
		hub, _ := newTestHub(t)
		monitor := newTestMonitor(t, hub, clockwork.NewFakeClock())
		transport := &fakeTransport{failPings: true}
		connection := connectWith(t, hub, "bob-id", auth.RoleUser, transport)
		transport.respondToProbes(connection)

		assert.Equal(t, 0, monitor.Scan())
		assert.Equal(t, 1, monitor.Scan())
		assert.False(t, hub.Registry().Contains(connection))
	})

	t.Run("eviction removes subscriptions without unsubscribe", func(t *testing.T) {
		hub, _ := newTestHub(t)
		dispatcher := NewDispatcher(hub.logger, hub, hub.metrics)
		monitor := newTestMonitor(t, hub, clockwork.NewFakeClock())

		silent, _ := connect(t, hub, "bob-id", auth.RoleUser)
		healthy, healthyTransport := connect(t, hub, "alice-id", auth.RoleUser)
		healthyTransport.respondToProbes(healthy)
		require.NoError(t, hub.Subscribe(silent, "calls"))
		require.NoError(t, hub.Subscribe(silent, "agents"))
		require.NoError(t, hub.Subscribe(healthy, "calls"))

		before := dispatcher.ConnectionStats()
		assert.Equal(t, 2, before.TotalConnections)
		assert.Equal(t, map[string]int{"calls": 2, "agents": 1}, before.ChannelSubscribers)

		monitor.Scan()
		assert.Eventually(t, healthy.IsAlive, time.Second, 5*time.Millisecond)
		monitor.Scan()

		after := dispatcher.ConnectionStats()
		assert.Equal(t, 1, after.TotalConnections)
		assert.Equal(t, 1, after.DistinctUsers)
		assert.Equal(t, map[string]int{"calls": 1}, after.ChannelSubscribers)
		assertNoOrphans(t, hub)
	})
}

func TestLivenessMonitor_Run(t *testing.T) {
	hub, _ := newTestHub(t)
	clock := clockwork.NewFakeClock()
	monitor := newTestMonitor(t, hub, clock)
	connection, transport := connect(t, hub, "bob-id", auth.RoleUser)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- monitor.Run(ctx) }()

	blockCtx, blockCancel := context.WithTimeout(ctx, time.Second)
	defer blockCancel()
	require.NoError(t, clock.BlockUntilContext(blockCtx, 1))
	clock.Advance(time.Second)
	assert.Eventually(t, func() bool { return transport.Pings() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, hub.Registry().Contains(connection))

	clock.Advance(time.Second)
	assert.Eventually(t, func() bool {
		return !hub.Registry().Contains(connection)
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
