package util_test

import (
	"testing"
	"time"

	"github.com/kashguard/go-mpc-roomsigner/internal/util"
	"github.com/stretchr/testify/assert"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("TEST_ENV_STRING", "relay")
	t.Setenv("TEST_ENV_INT", "42")
	t.Setenv("TEST_ENV_BAD_INT", "x")
	t.Setenv("TEST_ENV_BOOL", "true")
	t.Setenv("TEST_ENV_DURATION", "45s")
	t.Setenv("TEST_ENV_BAD_DURATION", "soon")

	assert.Equal(t, "relay", util.GetEnv("TEST_ENV_STRING", "x"))
	assert.Equal(t, "x", util.GetEnv("TEST_ENV_MISSING", "x"))
	assert.Equal(t, 42, util.GetEnvAsInt("TEST_ENV_INT", 1))
	assert.Equal(t, 1, util.GetEnvAsInt("TEST_ENV_BAD_INT", 1))
	assert.Equal(t, int64(42), util.GetEnvAsInt64("TEST_ENV_INT", 1))
	assert.True(t, util.GetEnvAsBool("TEST_ENV_BOOL", false))
	assert.Equal(t, 45*time.Second, util.GetEnvAsDuration("TEST_ENV_DURATION", time.Second))
	assert.Equal(t, time.Second, util.GetEnvAsDuration("TEST_ENV_BAD_DURATION", time.Second))
}

func TestGetEnvAsArrays(t *testing.T) {
	t.Setenv("TEST_ENV_URLS", "http://a:8001, http://b:8001,")
	t.Setenv("TEST_ENV_PARTIES", "1,3")
	t.Setenv("TEST_ENV_BAD_PARTIES", "1,70000")

	assert.Equal(t, []string{"http://a:8001", "http://b:8001"}, util.GetEnvAsStringArr("TEST_ENV_URLS", nil))
	assert.Equal(t, []string{"d"}, util.GetEnvAsStringArr("TEST_ENV_MISSING", []string{"d"}))
	assert.Equal(t, []uint16{1, 3}, util.GetEnvAsUint16Arr("TEST_ENV_PARTIES", nil))
	assert.Equal(t, []uint16{1, 2}, util.GetEnvAsUint16Arr("TEST_ENV_BAD_PARTIES", []uint16{1, 2}))
}
