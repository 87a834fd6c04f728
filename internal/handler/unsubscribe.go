package handler

import (
	"context"
	"errors"

	"github.com/goevery/callwatch/internal/broadcaster"
)

type UnsubscribeRequest struct {
	Channel string `json:"channel" validate:"required"`
}

type UnsubscribeHandlerInterface interface {
	Handle(ctx context.Context, req UnsubscribeRequest) (broadcaster.Message, error)
}

type UnsubscribeHandler struct {
	channelValidator    *ChannelValidator
	subscriptionManager SubscriptionManager
}

func NewUnsubscribeHandler(
	channelValidator *ChannelValidator,
	subscriptionManager SubscriptionManager,
) *UnsubscribeHandler {
	return &UnsubscribeHandler{
		channelValidator,
		subscriptionManager,
	}
}

// Handle always acknowledges; leaving a channel the connection never joined
// changes nothing.
func (h *UnsubscribeHandler) Handle(ctx context.Context, req UnsubscribeRequest) (broadcaster.Message, error) {
	err := h.channelValidator.Validate(req.Channel)
	if err != nil {
		return broadcaster.Message{}, err
	}

	connection, ok := broadcaster.ConnectionFromContext(ctx)
	if !ok {
		return broadcaster.Message{}, errors.New("connection not found in context")
	}

	h.subscriptionManager.Unsubscribe(connection, req.Channel)

	return broadcaster.NewUnsubscribedMessage(req.Channel), nil
}
