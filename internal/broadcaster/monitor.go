package broadcaster

import (
	"context"
	"time"

	"github.com/goevery/callwatch/internal/metrics"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

const DefaultHeartbeatPeriod = 30 * time.Second

// LivenessMonitor probes every connection once per period and evicts those
// that did not answer the previous probe, so a silent connection is gone
// within two periods.
type LivenessMonitor struct {
	logger  *zap.Logger
	hub     *Hub
	metrics *metrics.WebSocketMetrics
	clock   clockwork.Clock
	period  time.Duration
}

func NewLivenessMonitor(
	logger *zap.Logger,
	hub *Hub,
	wsMetrics *metrics.WebSocketMetrics,
	clock clockwork.Clock,
	period time.Duration,
) *LivenessMonitor {
	if period <= 0 {
		period = DefaultHeartbeatPeriod
	}

	return &LivenessMonitor{
		logger:  logger,
		hub:     hub,
		metrics: wsMetrics,
		clock:   clock,
		period:  period,
	}
}

// Run scans on every tick until ctx is cancelled.
func (m *LivenessMonitor) Run(ctx context.Context) error {
	ticker := m.clock.NewTicker(m.period)
	defer ticker.Stop()

	m.logger.Info("liveness monitor started", zap.Duration("period", m.period))

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("liveness monitor stopped")
			return nil
		case <-ticker.Chan():
			m.Scan()
		}
	}
}

// Scan runs one heartbeat cycle and returns the number of evicted connections.
func (m *LivenessMonitor) Scan() int {
	evicted := 0

	for _, connection := range m.hub.Registry().AllConnections() {
		if !connection.expireLiveness() {
			m.logger.Info("evicting unresponsive connection",
				zap.String("connectionId", connection.Id),
				zap.String("userId", connection.UserId))

			m.hub.Disconnect(connection, CloseGoingAway, "liveness timeout")
			evicted++

			if m.metrics != nil {
				m.metrics.Evictions.Inc()
			}

			continue
		}

		if err := connection.Probe(); err != nil {
			m.logger.Debug("failed to send liveness probe",
				zap.String("connectionId", connection.Id),
				zap.Error(err))
		}
	}

	return evicted
}
