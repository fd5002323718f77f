package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNodeIDDeterministic(t *testing.T) {
	a := NodeID("user-1", "/Documents/note.txt")
	b := NodeID("user-1", "/Documents/note.txt")
	assert.Equal(t, a, b, "node id must be a pure function of (user, path)")
}

func TestNodeIDChangesWithPath(t *testing.T) {
	a := NodeID("user-1", "/Documents/note.txt")
	b := NodeID("user-1", "/Documents/note2.txt")
	assert.NotEqual(t, a, b)
}

func TestNodeIDChangesWithUser(t *testing.T) {
	a := NodeID("user-1", "/Documents/note.txt")
	b := NodeID("user-2", "/Documents/note.txt")
	assert.NotEqual(t, a, b)
}

func TestContainerName(t *testing.T) {
	assert.Equal(t, "aisu_abc-123", ContainerName("abc-123"))
}

func TestContainerHostname(t *testing.T) {
	tests := []struct {
		name     string
		userID   string
		expected string
	}{
		{"uuid is truncated", "f47ac10b-58cc-4372-a567-0e02b2c3d479", "aisu-f47ac10b"},
		{"short id kept whole", "abc", "aisu-abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ContainerHostname(tt.userID))
		})
	}
}
