package utils

import (
	"os"
	"testing"

	"github.com/Trinoooo/quail_ev/consts"
	"github.com/stretchr/testify/assert"
)

func TestGetValueOnEnv(t *testing.T) {
	old := os.Getenv(consts.Env)
	defer os.Setenv(consts.Env, old)

	assert.Nil(t, os.Setenv(consts.Env, "test"))
	assert.True(t, IsTest())
	assert.Equal(t, 2, GetValueOnEnv(1, 2))

	assert.Nil(t, os.Setenv(consts.Env, "prod"))
	assert.False(t, IsTest())
	assert.Equal(t, 1, GetValueOnEnv(1, 2))
}
