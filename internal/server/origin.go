package server

import (
	"net/http"
	"slices"

	"go.uber.org/zap"
)

// OriginChecker validates the Origin header of websocket upgrades. An empty
// allow list accepts every origin; requests without an Origin header
// (non-browser clients) are always accepted.
type OriginChecker struct {
	logger         *zap.Logger
	allowedOrigins []string
}

func NewOriginChecker(logger *zap.Logger, allowedOrigins []string) *OriginChecker {
	return &OriginChecker{
		logger,
		allowedOrigins,
	}
}

func (c *OriginChecker) Check(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(c.allowedOrigins) == 0 {
		return true
	}

	if slices.Contains(c.allowedOrigins, origin) {
		return true
	}

	c.logger.Warn("websocket origin rejected",
		zap.String("origin", origin),
		zap.String("remoteAddr", r.RemoteAddr))

	return false
}
