package server

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/goevery/callwatch/internal/broadcaster"
	"github.com/goevery/callwatch/internal/handler"
	"github.com/goevery/callwatch/internal/ierr"
	"go.uber.org/zap"
)

// Router decodes inbound frames and dispatches them by type. Frames that
// cannot be decoded, and unknown types, are logged and dropped without a
// reply; handler errors are answered with an error message.
type Router struct {
	logger   *zap.Logger
	validate *validator.Validate

	heartbeatHandler   handler.HeartbeatHandlerInterface
	subscribeHandler   handler.SubscribeHandlerInterface
	unsubscribeHandler handler.UnsubscribeHandlerInterface
}

func NewRouter(
	logger *zap.Logger,
	heartbeatHandler handler.HeartbeatHandlerInterface,
	subscribeHandler handler.SubscribeHandlerInterface,
	unsubscribeHandler handler.UnsubscribeHandlerInterface,
) *Router {
	return &Router{
		logger,
		validator.New(validator.WithRequiredStructEnabled()),
		heartbeatHandler,
		subscribeHandler,
		unsubscribeHandler,
	}
}

func (r *Router) RouteMessage(ctx context.Context, data []byte) *broadcaster.Message {
	var request handler.Request
	if err := json.Unmarshal(data, &request); err != nil {
		r.logger.Warn("ignoring undecodable message", zap.Error(err))

		return nil
	}

	if err := r.validate.Struct(request); err != nil {
		r.logger.Warn("ignoring message without type", zap.Error(err))

		return nil
	}

	response, err := r.Handle(ctx, request)
	if err != nil {
		if errors.Is(err, errUnknownType) {
			r.logger.Warn("ignoring message of unknown type", zap.String("type", request.Type))

			return nil
		}

		response := broadcaster.NewErrorMessage(r.mapError(err).Message)

		return &response
	}

	return &response
}

var errUnknownType = errors.New("unknown message type")

func (r *Router) Handle(ctx context.Context, request handler.Request) (broadcaster.Message, error) {
	switch request.Type {
	case handler.RequestTypePing:
		return r.heartbeatHandler.Handle(), nil
	case handler.RequestTypeSubscribe:
		subscribeReq := handler.SubscribeRequest{Channel: request.Channel}
		if err := r.validateRequest(subscribeReq); err != nil {
			return broadcaster.Message{}, err
		}

		return r.subscribeHandler.Handle(ctx, subscribeReq)
	case handler.RequestTypeUnsubscribe:
		unsubscribeReq := handler.UnsubscribeRequest{Channel: request.Channel}
		if err := r.validateRequest(unsubscribeReq); err != nil {
			return broadcaster.Message{}, err
		}

		return r.unsubscribeHandler.Handle(ctx, unsubscribeReq)
	default:
		return broadcaster.Message{}, errUnknownType
	}
}

func (r *Router) validateRequest(v any) error {
	if err := r.validate.Struct(v); err != nil {
		return ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("missing channel"))
	}

	return nil
}

func (r *Router) mapError(err error) ierr.Error {
	var handlerErr ierr.Error
	if errors.As(err, &handlerErr) {
		return handlerErr
	}

	r.logger.Error("error in message handler", zap.Error(err))

	return ierr.New(ierr.ErrorCodeInternal, errors.New("internal error"))
}
