package broadcaster

import "time"

const (
	MessageTypeConnected    = "connected"
	MessageTypeSubscribed   = "subscribed"
	MessageTypeUnsubscribed = "unsubscribed"
	MessageTypePong         = "pong"
	MessageTypeError        = "error"
)

// Message is the outbound frame written to a client.
type Message struct {
	Type          string `json:"type"`
	Data          any    `json:"data,omitempty"`
	SubjectUserId string `json:"subjectUserId,omitempty"`
	Timestamp     int64  `json:"timestamp,omitempty"`
}

type ConnectedData struct {
	UserId string `json:"userId"`
	Role   string `json:"role"`
}

type ChannelData struct {
	Channel string `json:"channel"`
}

type ErrorData struct {
	Message string `json:"message"`
}

func NewConnectedMessage(userId string, role string) Message {
	return Message{Type: MessageTypeConnected, Data: ConnectedData{UserId: userId, Role: role}}
}

func NewSubscribedMessage(channel string) Message {
	return Message{Type: MessageTypeSubscribed, Data: ChannelData{Channel: channel}}
}

func NewUnsubscribedMessage(channel string) Message {
	return Message{Type: MessageTypeUnsubscribed, Data: ChannelData{Channel: channel}}
}

func NewPongMessage() Message {
	return Message{Type: MessageTypePong}
}

func NewErrorMessage(message string) Message {
	return Message{Type: MessageTypeError, Data: ErrorData{Message: message}}
}

func epochMillis(t time.Time) int64 {
	return t.UnixMilli()
}
