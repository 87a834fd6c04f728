package auth

import (
	"slices"
	"strings"
)

const ChannelSeparator = ":"

// Policy decides which roles may subscribe to a channel. It is immutable once
// built, so Allowed can be called from any goroutine without locking.
type Policy struct {
	rules            map[string][]Role
	globalAgentRoles []Role
}

func NewPolicy(rules map[string][]Role, globalAgentRoles []Role) *Policy {
	copied := make(map[string][]Role, len(rules))
	for baseName, allowed := range rules {
		copied[baseName] = slices.Clone(allowed)
	}

	return &Policy{
		rules:            copied,
		globalAgentRoles: slices.Clone(globalAgentRoles),
	}
}

func DefaultPolicy() *Policy {
	everyone := []Role{RoleAdmin, RoleManager, RoleUser}

	return NewPolicy(map[string][]Role{
		"dashboard":     everyone,
		"calls":         everyone,
		"agents":        everyone,
		"notifications": everyone,
		"analytics":     {RoleAdmin, RoleManager},
		"admin":         {RoleAdmin},
	}, []Role{RoleAdmin})
}

// BaseName strips the instance suffix, "notifications:user123" -> "notifications".
func BaseName(channel string) string {
	baseName, _, _ := strings.Cut(channel, ChannelSeparator)
	return baseName
}

// Allowed reports whether role may subscribe to channel. Base names missing
// from the table deny every role.
func (p *Policy) Allowed(role Role, channel string) bool {
	allowed, ok := p.rules[BaseName(channel)]
	if !ok {
		return false
	}

	return slices.Contains(allowed, role)
}

// GlobalAgentRoles lists the roles that receive call and agent updates for
// every agent regardless of assignment.
func (p *Policy) GlobalAgentRoles() []Role {
	return slices.Clone(p.globalAgentRoles)
}
