package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGateSingleShot(t *testing.T) {
	var g Gate
	g.Arm("text:b")

	assert.True(t, g.TryConsume("text:b"))
	assert.False(t, g.TryConsume("text:b"))
}

func TestGateMismatchLeavesSlotArmed(t *testing.T) {
	var g Gate
	g.Arm("text:b")

	assert.False(t, g.TryConsume("text:c"))
	hash, armed := g.Armed()
	assert.True(t, armed)
	assert.Equal(t, "text:b", hash)

	assert.True(t, g.TryConsume("text:b"))
}

func TestGateRearmReplaces(t *testing.T) {
	var g Gate
	g.Arm("text:a")
	g.Arm("text:b")

	assert.False(t, g.TryConsume("text:a"))
	assert.True(t, g.TryConsume("text:b"))
}

func TestGateEmpty(t *testing.T) {
	var g Gate
	assert.False(t, g.TryConsume(""))

	g.Arm("text:a")
	g.Disarm()
	assert.False(t, g.TryConsume("text:a"))
}
