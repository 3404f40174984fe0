package knowledge

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// TestNewEntityID_Deterministic 相同输入必须产生相同 ID
func TestNewEntityID_Deterministic(t *testing.T) {
	id1 := NewEntityID("repo-1", "src/auth/login.ts", "GoogleLoginHandler")
	id2 := NewEntityID("repo-1", "src/auth/login.ts", "GoogleLoginHandler")

	assert.Equal(t, id1, id2)

	// 必须是合法的 UUID
	_, err := uuid.Parse(id1)
	assert.NoError(t, err)
}

// TestNewEntityID_DistinctInputs 任一维度变化都应产生不同 ID
func TestNewEntityID_DistinctInputs(t *testing.T) {
	base := NewEntityID("repo-1", "src/auth/login.ts", "GoogleLoginHandler")

	assert.NotEqual(t, base, NewEntityID("repo-2", "src/auth/login.ts", "GoogleLoginHandler"))
	assert.NotEqual(t, base, NewEntityID("repo-1", "src/auth/logout.ts", "GoogleLoginHandler"))
	assert.NotEqual(t, base, NewEntityID("repo-1", "src/auth/login.ts", "SessionStore"))
}

func TestEntityMetadata_IsEmpty(t *testing.T) {
	assert.True(t, EntityMetadata{}.IsEmpty())
	assert.False(t, EntityMetadata{Tags: []string{"auth"}}.IsEmpty())
	assert.False(t, EntityMetadata{Snippet: "func login() {}"}.IsEmpty())
	assert.False(t, EntityMetadata{RouteMethod: "POST", RoutePath: "/login"}.IsEmpty())
}
