package auth

import (
	"errors"

	"github.com/goevery/callwatch/internal/ierr"
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleUser    Role = "user"
)

var roles = []Role{RoleAdmin, RoleManager, RoleUser}

func ParseRole(value string) (Role, error) {
	for _, role := range roles {
		if string(role) == value {
			return role, nil
		}
	}

	return "", ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("unknown role: "+value))
}
