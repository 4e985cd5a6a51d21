package app

import (
	"testing"

	"github.com/stretchr/testify/assert"

	_ "github.com/mpk-pharma/kanha/internal/testing/guard"
)

func TestTestModeFromEnvironment(t *testing.T) {
	RefreshTestMode()
	assert.True(t, InTestMode())

	t.Setenv(testModeEnv, "0")
	RefreshTestMode()
	assert.False(t, InTestMode())

	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())
}
