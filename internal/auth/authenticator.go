package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/goevery/callwatch/internal/ierr"
	"github.com/goevery/callwatch/internal/persistence"
	"github.com/golang-jwt/jwt/v5"
)

const Audience = "callwatch"

type Authentication struct {
	UserId string
	Role   Role
}

type UserFinder interface {
	FindUser(ctx context.Context, userId string) (persistence.User, error)
}

type Authenticator struct {
	secret    []byte
	apiKeys   []string
	users     UserFinder
	jwtParser *jwt.Parser
}

func NewAuthenticator(secret string, apiKeys []string, users UserFinder) *Authenticator {
	jwtParser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30*time.Second),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithAudience(Audience),
	)

	return &Authenticator{
		secret:    []byte(secret),
		apiKeys:   apiKeys,
		users:     users,
		jwtParser: jwtParser,
	}
}

func (a *Authenticator) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("unexpected signing method"))
	}
	return a.secret, nil
}

// Authenticate resolves a connection credential to the user behind it. Every
// failure, including a store outage, refuses the connection with an
// Unauthenticated error.
func (a *Authenticator) Authenticate(ctx context.Context, tokenString string) (*Authentication, error) {
	if tokenString == "" {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("missing token"))
	}

	claims := jwt.RegisteredClaims{}

	_, err := a.jwtParser.ParseWithClaims(tokenString, &claims, a.keyFunc)
	if err != nil {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, err)
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("invalid subject claim"))
	}

	user, err := a.users.FindUser(ctx, subject)
	if err != nil {
		if ierr.Is(err, ierr.ErrorCodeNotFound) {
			return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("unknown user"))
		}

		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("user lookup failed: "+err.Error()))
	}

	if !user.IsActive {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("user is inactive"))
	}

	role, err := ParseRole(user.Role)
	if err != nil {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, err)
	}

	return &Authentication{
		UserId: user.Id,
		Role:   role,
	}, nil
}

func (a *Authenticator) AuthenticateAPIKey(apiKey string) error {
	for _, key := range a.apiKeys {
		if key != "" && subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
			return nil
		}
	}

	return ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("invalid api key"))
}
