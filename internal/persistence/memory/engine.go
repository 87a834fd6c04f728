package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/goevery/callwatch/internal/persistence"
)

// PersistenceEngine keeps users and agent assignments in process memory. It
// backs local development when no MongoDB is configured.
type PersistenceEngine struct {
	mu sync.RWMutex

	users        map[string]persistence.User
	usersByAgent map[string]map[string]struct{}
}

func NewPersistenceEngine() *PersistenceEngine {
	return &PersistenceEngine{
		users:        make(map[string]persistence.User),
		usersByAgent: make(map[string]map[string]struct{}),
	}
}

func (e *PersistenceEngine) Setup(ctx context.Context) error {
	return nil
}

func (e *PersistenceEngine) PutUser(user persistence.User) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.users[user.Id] = user
}

func (e *PersistenceEngine) UserCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.users)
}

func (e *PersistenceEngine) Assign(userId string, agentId string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.usersByAgent[agentId]; !ok {
		e.usersByAgent[agentId] = make(map[string]struct{})
	}

	e.usersByAgent[agentId][userId] = struct{}{}
}

func (e *PersistenceEngine) FindUser(ctx context.Context, userId string) (persistence.User, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	user, ok := e.users[userId]
	if !ok {
		return persistence.User{}, persistence.ErrUserNotFound
	}

	return user, nil
}

func (e *PersistenceEngine) UsersWithAccessToAgent(ctx context.Context, agentId string) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	userIds := make([]string, 0, len(e.usersByAgent[agentId]))
	for userId := range e.usersByAgent[agentId] {
		userIds = append(userIds, userId)
	}

	slices.Sort(userIds)

	return userIds, nil
}
