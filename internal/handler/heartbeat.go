package handler

import "github.com/goevery/callwatch/internal/broadcaster"

type HeartbeatHandlerInterface interface {
	Handle() broadcaster.Message
}

// HeartbeatHandler answers application-level pings. It is independent of the
// transport-level probes sent by the liveness monitor.
type HeartbeatHandler struct{}

func NewHeartbeatHandler() *HeartbeatHandler {
	return &HeartbeatHandler{}
}

func (h *HeartbeatHandler) Handle() broadcaster.Message {
	return broadcaster.NewPongMessage()
}
