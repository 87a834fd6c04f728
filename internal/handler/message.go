package handler

const (
	RequestTypeSubscribe   = "subscribe"
	RequestTypeUnsubscribe = "unsubscribe"
	RequestTypePing        = "ping"
)

// Request is an inbound client frame, discriminated by Type.
type Request struct {
	Type    string `json:"type" validate:"required"`
	Channel string `json:"channel,omitempty"`
}
