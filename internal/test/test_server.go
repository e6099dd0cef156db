package test

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kashguard/go-mpc-roomsigner/internal/api"
	"github.com/kashguard/go-mpc-roomsigner/internal/api/router"
	"github.com/kashguard/go-mpc-roomsigner/internal/config"
	"github.com/rs/zerolog"
)

const TestKeySharePassword = "test-password"

// ServerRoles selects what WithTestServer initializes.
type ServerRoles struct {
	Party bool
	Relay bool
}

// DefaultTestConfig returns an in-memory configuration. Key shares go to a temporary directory.
func DefaultTestConfig(t *testing.T) config.Server {
	t.Helper()

	cfg := config.DefaultServiceConfigFromEnv()
	cfg.Logger.Level = zerolog.Disabled
	cfg.Echo.HideInternalServerErrorDetails = false
	cfg.TLS = config.TLS{}
	cfg.MPC.NodeID = "test-node"
	cfg.MPC.KeySharePath = t.TempDir()
	cfg.MPC.KeySharePassword = TestKeySharePassword
	cfg.MPC.SessionStore = "memory"
	cfg.MPC.SessionTimeout = 5 * time.Second
	// sessions cut short by Shutdown may still be computing, they must not hit a torn down pool
	cfg.MPC.PoolWorkers = -1
	cfg.Relay.Store = "memory"
	cfg.Relay.HeartbeatInterval = 50 * time.Millisecond
	cfg.Relay.IdleTimeout = time.Second
	cfg.Relay.ReconnectBackoff = 10 * time.Millisecond
	return cfg
}

// WithTestServer serves s over httptest and passes its base URL to closure. A party
// server without its own relay URL uses itself as relay.
func WithTestServer(t *testing.T, cfg config.Server, roles ServerRoles, closure func(s *api.Server, baseURL string)) {
	t.Helper()

	ts := httptest.NewUnstartedServer(nil)
	baseURL := "http://" + ts.Listener.Addr().String()
	if roles.Party && roles.Relay {
		cfg.MPC.RelayURL = baseURL
	}

	s := api.NewServer(cfg)
	s.Clock = api.NewClock(t)
	if roles.Party {
		if err := s.InitParty(); err != nil {
			t.Fatalf("failed to init party: %v", err)
		}
	}
	if roles.Relay {
		if err := s.InitRelay(); err != nil {
			t.Fatalf("failed to init relay: %v", err)
		}
	}
	router.Init(s)

	ts.Config.Handler = s.Echo
	ts.Start()

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ts.CloseClientConnections()
		if err := s.Shutdown(ctx); err != nil {
			t.Logf("shutdown: %v", err)
		}
		ts.Close()
	}()

	closure(s, baseURL)
}
