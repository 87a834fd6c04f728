package handler

import (
	"context"

	"github.com/goevery/callwatch/internal/auth"
	"github.com/goevery/callwatch/internal/broadcaster"
)

type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Authentication, error)
}

type ConnectHandlerInterface interface {
	Handle(ctx context.Context, token string) (*auth.Authentication, broadcaster.Message, error)
}

// ConnectHandler authenticates a connection attempt and builds the
// acknowledgement sent once the connection is registered.
type ConnectHandler struct {
	authenticator TokenAuthenticator
}

func NewConnectHandler(authenticator TokenAuthenticator) *ConnectHandler {
	return &ConnectHandler{
		authenticator,
	}
}

func (h *ConnectHandler) Handle(ctx context.Context, token string) (*auth.Authentication, broadcaster.Message, error) {
	authentication, err := h.authenticator.Authenticate(ctx, token)
	if err != nil {
		return nil, broadcaster.Message{}, err
	}

	return authentication, broadcaster.NewConnectedMessage(authentication.UserId, string(authentication.Role)), nil
}
