package handler

import (
	"context"
	"errors"

	"github.com/goevery/callwatch/internal/broadcaster"
)

type SubscribeRequest struct {
	Channel string `json:"channel" validate:"required"`
}

type SubscribeHandlerInterface interface {
	Handle(ctx context.Context, req SubscribeRequest) (broadcaster.Message, error)
}

type SubscriptionManager interface {
	Subscribe(connection *broadcaster.Connection, channel string) error
	Unsubscribe(connection *broadcaster.Connection, channel string) bool
}

type SubscribeHandler struct {
	channelValidator    *ChannelValidator
	subscriptionManager SubscriptionManager
}

func NewSubscribeHandler(
	channelValidator *ChannelValidator,
	subscriptionManager SubscriptionManager,
) *SubscribeHandler {
	return &SubscribeHandler{
		channelValidator,
		subscriptionManager,
	}
}

func (h *SubscribeHandler) Handle(ctx context.Context, req SubscribeRequest) (broadcaster.Message, error) {
	err := h.channelValidator.Validate(req.Channel)
	if err != nil {
		return broadcaster.Message{}, err
	}

	connection, ok := broadcaster.ConnectionFromContext(ctx)
	if !ok {
		return broadcaster.Message{}, errors.New("connection not found in context")
	}

	err = h.subscriptionManager.Subscribe(connection, req.Channel)
	if err != nil {
		return broadcaster.Message{}, err
	}

	return broadcaster.NewSubscribedMessage(req.Channel), nil
}
