package main

import (
	"testing"
	"time"

	"github.com/Netflix/go-env"
	"github.com/goevery/callwatch/internal/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")

		var settings Settings
		_, err := env.UnmarshalFromEnviron(&settings)
		require.NoError(t, err)

		assert.Equal(t, "/callwatch", settings.BasePath)
		assert.Equal(t, "callwatch", settings.MongoDBDatabase)
		assert.Equal(t, 30*time.Second, settings.HeartbeatPeriod())
		assert.Equal(t, 64, settings.SendBufferSize)
	})

	t.Run("lists", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("API_KEYS", "key-1, key-2,,")
		t.Setenv("ALLOWED_ORIGINS", "https://app.example.com")

		var settings Settings
		_, err := env.UnmarshalFromEnviron(&settings)
		require.NoError(t, err)

		assert.Equal(t, []string{"key-1", "key-2"}, settings.APIKeyList())
		assert.Equal(t, []string{"https://app.example.com"}, settings.AllowedOriginList())
	})

	t.Run("empty list", func(t *testing.T) {
		assert.Nil(t, Settings{}.APIKeyList())
	})
}

func TestSettings_MemorySeed(t *testing.T) {
	t.Run("users and assignments", func(t *testing.T) {
		settings := Settings{
			MemoryUsers:       "bob-id:user, admin-id:admin",
			MemoryAssignments: "bob-id:agent-1,bob-id:agent-2",
		}

		users, err := settings.MemoryUserList()
		require.NoError(t, err)
		assert.Equal(t, []persistence.User{
			{Id: "bob-id", Role: "user", IsActive: true},
			{Id: "admin-id", Role: "admin", IsActive: true},
		}, users)

		assignments, err := settings.MemoryAssignmentList()
		require.NoError(t, err)
		assert.Equal(t, []AgentAssignment{
			{UserId: "bob-id", AgentId: "agent-1"},
			{UserId: "bob-id", AgentId: "agent-2"},
		}, assignments)
	})

	t.Run("read from the environment", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("MEMORY_USERS", "bob-id:manager")
		t.Setenv("MEMORY_ASSIGNMENTS", "bob-id:agent-1")

		var settings Settings
		_, err := env.UnmarshalFromEnviron(&settings)
		require.NoError(t, err)

		users, err := settings.MemoryUserList()
		require.NoError(t, err)
		assert.Equal(t, []persistence.User{{Id: "bob-id", Role: "manager", IsActive: true}}, users)
	})

	invalid := map[string]Settings{
		"missing role":        {MemoryUsers: "bob-id"},
		"empty id":            {MemoryUsers: ":user"},
		"unknown role":        {MemoryUsers: "bob-id:guest"},
		"assignment no agent": {MemoryAssignments: "bob-id:"},
	}

	for name, settings := range invalid {
		t.Run(name, func(t *testing.T) {
			_, usersErr := settings.MemoryUserList()
			_, assignmentsErr := settings.MemoryAssignmentList()

			assert.True(t, usersErr != nil || assignmentsErr != nil)
		})
	}
}
