package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/goevery/callwatch/internal/auth"
	"github.com/goevery/callwatch/internal/persistence"
)

type Settings struct {
	Port                   int    `env:"PORT,default=8000"`
	BasePath               string `env:"BASE_PATH,default=/callwatch"`
	JWTSecret              string `env:"JWT_SECRET,required=true"`
	APIKeys                string `env:"API_KEYS"`
	AllowedOrigins         string `env:"ALLOWED_ORIGINS"`
	LogEncoding            string `env:"LOG_ENCODING,default=console"`
	MongoDBURI             string `env:"MONGODB_URI"`
	MongoDBDatabase        string `env:"MONGODB_DATABASE,default=callwatch"`
	MemoryUsers            string `env:"MEMORY_USERS"`
	MemoryAssignments      string `env:"MEMORY_ASSIGNMENTS"`
	HeartbeatPeriodSeconds int    `env:"HEARTBEAT_PERIOD_SECONDS,default=30"`
	SendBufferSize         int    `env:"SEND_BUFFER_SIZE,default=64"`
}

func (s Settings) HeartbeatPeriod() time.Duration {
	return time.Duration(s.HeartbeatPeriodSeconds) * time.Second
}

func (s Settings) APIKeyList() []string {
	return splitList(s.APIKeys)
}

func (s Settings) AllowedOriginList() []string {
	return splitList(s.AllowedOrigins)
}

type AgentAssignment struct {
	UserId  string
	AgentId string
}

// MemoryUserList parses MEMORY_USERS, "id:role,...". Seeded users are active.
func (s Settings) MemoryUserList() ([]persistence.User, error) {
	var users []persistence.User
	for _, item := range splitList(s.MemoryUsers) {
		userId, roleName, err := splitPair(item)
		if err != nil {
			return nil, fmt.Errorf("invalid MEMORY_USERS entry: %w", err)
		}

		role, err := auth.ParseRole(roleName)
		if err != nil {
			return nil, fmt.Errorf("invalid MEMORY_USERS entry %q: %w", item, err)
		}

		users = append(users, persistence.User{Id: userId, Role: string(role), IsActive: true})
	}

	return users, nil
}

// MemoryAssignmentList parses MEMORY_ASSIGNMENTS, "userId:agentId,...".
func (s Settings) MemoryAssignmentList() ([]AgentAssignment, error) {
	var assignments []AgentAssignment
	for _, item := range splitList(s.MemoryAssignments) {
		userId, agentId, err := splitPair(item)
		if err != nil {
			return nil, fmt.Errorf("invalid MEMORY_ASSIGNMENTS entry: %w", err)
		}

		assignments = append(assignments, AgentAssignment{UserId: userId, AgentId: agentId})
	}

	return assignments, nil
}

func splitPair(item string) (string, string, error) {
	left, right, ok := strings.Cut(item, ":")
	left, right = strings.TrimSpace(left), strings.TrimSpace(right)
	if !ok || left == "" || right == "" {
		return "", "", fmt.Errorf("%q is not of the form a:b", item)
	}

	return left, right, nil
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}

	return items
}
