package persistence

import (
	"context"
	"errors"

	"github.com/goevery/callwatch/internal/ierr"
)

var ErrUserNotFound = ierr.New(ierr.ErrorCodeNotFound, errors.New("user not found"))

type User struct {
	Id       string
	Role     string
	IsActive bool
}

// Engine is the read side of the dashboard data store that the presence
// service consults.
type Engine interface {
	Setup(ctx context.Context) error
	FindUser(ctx context.Context, userId string) (User, error)
	UsersWithAccessToAgent(ctx context.Context, agentId string) ([]string, error)
}
