package handler

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/goevery/callwatch/internal/auth"
	"github.com/goevery/callwatch/internal/broadcaster"
	"github.com/goevery/callwatch/internal/ierr"
)

const (
	NotifyTargetUser    = "user"
	NotifyTargetChannel = "channel"
	NotifyTargetRole    = "role"
	NotifyTargetAgent   = "agent"
)

type NotifyRequest struct {
	Target  string `json:"-" validate:"required,oneof=user channel role agent"`
	UserId  string `json:"userId,omitempty" validate:"required_if=Target user"`
	Channel string `json:"channel,omitempty" validate:"required_if=Target channel"`
	Role    string `json:"role,omitempty" validate:"required_if=Target role"`
	AgentId string `json:"agentId,omitempty" validate:"required_if=Target agent"`
	Kind    string `json:"kind" validate:"required"`
	Payload any    `json:"payload"`
}

type NotifyResponse struct {
	EventId   string `json:"eventId"`
	Delivered int    `json:"delivered"`
}

type NotifyHandlerInterface interface {
	Handle(ctx context.Context, req NotifyRequest) (NotifyResponse, error)
}

type Notifier interface {
	NotifyUser(userId string, event broadcaster.Event) int
	NotifyChannel(channel string, event broadcaster.Event) int
	NotifyRole(role auth.Role, event broadcaster.Event) int
}

type AgentNotifier interface {
	NotifyAgent(ctx context.Context, agentId string, event broadcaster.Event) int
}

type NotifyHandler struct {
	validate         *validator.Validate
	channelValidator *ChannelValidator
	notifier         Notifier
	agentNotifier    AgentNotifier
}

func NewNotifyHandler(
	channelValidator *ChannelValidator,
	notifier Notifier,
	agentNotifier AgentNotifier,
) *NotifyHandler {
	return &NotifyHandler{
		validator.New(validator.WithRequiredStructEnabled()),
		channelValidator,
		notifier,
		agentNotifier,
	}
}

func (h *NotifyHandler) Handle(ctx context.Context, req NotifyRequest) (NotifyResponse, error) {
	err := h.validate.Struct(req)
	if err != nil {
		return NotifyResponse{}, ierr.New(ierr.ErrorCodeInvalidArgument, err)
	}

	kind, err := broadcaster.ParseKind(req.Kind)
	if err != nil {
		return NotifyResponse{}, err
	}

	event := broadcaster.NewEvent(kind, req.Payload)

	var delivered int

	switch req.Target {
	case NotifyTargetUser:
		delivered = h.notifier.NotifyUser(req.UserId, event)
	case NotifyTargetChannel:
		if err := h.channelValidator.Validate(req.Channel); err != nil {
			return NotifyResponse{}, err
		}

		delivered = h.notifier.NotifyChannel(req.Channel, event)
	case NotifyTargetRole:
		role, err := auth.ParseRole(req.Role)
		if err != nil {
			return NotifyResponse{}, err
		}

		delivered = h.notifier.NotifyRole(role, event)
	case NotifyTargetAgent:
		if kind != broadcaster.KindCallUpdate && kind != broadcaster.KindAgentUpdate {
			return NotifyResponse{},
				ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("agent notifications must be call_update or agent_update"))
		}

		delivered = h.agentNotifier.NotifyAgent(ctx, req.AgentId, event)
	}

	return NotifyResponse{
		EventId:   event.Id,
		Delivered: delivered,
	}, nil
}
