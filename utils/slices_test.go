package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnyOf(t *testing.T) {
	assert.True(t, AnyOf(2, 1, 2, 3))
	assert.False(t, AnyOf(4, 1, 2, 3))
	assert.False(t, AnyOf("a"))
}
