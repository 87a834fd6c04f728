package notify

import (
	"context"

	"github.com/goevery/callwatch/internal/auth"
	"github.com/goevery/callwatch/internal/broadcaster"
	"go.uber.org/zap"
)

type AgentAccessResolver interface {
	UsersWithAccessToAgent(ctx context.Context, agentId string) ([]string, error)
}

type Publisher interface {
	NotifyAudience(userIds []string, roles []auth.Role, event broadcaster.Event) int
}

// Triggers turn agent-scoped changes into targeted events. Like the
// dispatcher they never fail: collaborator errors are logged and delivery
// proceeds with whatever audience could be resolved.
type Triggers struct {
	logger    *zap.Logger
	resolver  AgentAccessResolver
	publisher Publisher
	policy    *auth.Policy
}

func NewTriggers(
	logger *zap.Logger,
	resolver AgentAccessResolver,
	publisher Publisher,
	policy *auth.Policy,
) *Triggers {
	return &Triggers{
		logger,
		resolver,
		publisher,
		policy,
	}
}

// NotifyAgent delivers event to every user assigned to the agent and to every
// role the policy lets see all agents. A user matching both gets it once.
func (t *Triggers) NotifyAgent(ctx context.Context, agentId string, event broadcaster.Event) int {
	userIds, err := t.resolver.UsersWithAccessToAgent(ctx, agentId)
	if err != nil {
		t.logger.Error("failed to resolve users with access to agent",
			zap.String("agentId", agentId),
			zap.String("eventId", event.Id),
			zap.Error(err))

		userIds = nil
	}

	return t.publisher.NotifyAudience(userIds, t.policy.GlobalAgentRoles(), event)
}
