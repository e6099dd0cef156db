package config_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/kashguard/go-mpc-roomsigner/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintServiceEnv(t *testing.T) {
	config := config.DefaultServiceConfigFromEnv()
	_, err := json.MarshalIndent(config, "", "  ")

	if err != nil {
		t.Fatal(err)
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_LOGGER_LEVEL", "warn")
	t.Setenv("MPC_SIGNING_PARTIES", "1,3")
	t.Setenv("MPC_KEY_SHARE_PASSWORD", "secret")
	t.Setenv("RELAY_IDLE_TIMEOUT", "5s")
	t.Setenv("CHAIN_ID", "1")
	t.Setenv("SERVER_TLS_CERT_FILE", "certs/server.crt")

	cfg := config.DefaultServiceConfigFromEnv()
	assert.Equal(t, zerolog.WarnLevel, cfg.Logger.Level)
	assert.Equal(t, []uint16{1, 3}, cfg.MPC.SigningParties)
	assert.Equal(t, 5*time.Second, cfg.Relay.IdleTimeout)
	assert.Equal(t, int64(1), cfg.Chain.ID)
	assert.False(t, cfg.TLS.Enabled())

	out, err := json.Marshal(cfg)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "secret")
}
