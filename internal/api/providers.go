package api

import (
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/dropbox/godropbox/time2"
	"github.com/kashguard/go-mpc-roomsigner/internal/config"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/chain"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/relay"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/session"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/storage"
	"github.com/kashguard/go-mpc-roomsigner/internal/util/cert"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/taurusgroup/multi-party-sig/pkg/pool"
)

// NewClock returns the wall clock, or a mock clock frozen at the current time when t is given.
func NewClock(t ...*testing.T) time2.Clock {
	var clock time2.Clock

	useMock := len(t) > 0 && t[0] != nil

	if useMock {
		clock = time2.NewMockClock(time.Now())
	} else {
		clock = time2.DefaultClock
	}

	return clock
}

func NewRedisClient(cfg config.Server) redis.UniversalClient {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func NewKeyShareStorage(cfg config.Server) (storage.KeyShareStorage, error) {
	if cfg.MPC.KeySharePassword == "" {
		return nil, errors.New("MPC_KEY_SHARE_PASSWORD is required")
	}
	shares, err := storage.NewFileSystemKeyShareStorage(cfg.MPC.KeySharePath, cfg.MPC.KeySharePassword, cfg.MPC.KeyShareSalt)
	if err != nil {
		return nil, err
	}
	return shares, nil
}

// NewHTTPClient returns a client trusting SERVER_TLS_CA_FILE when it is set.
// It has no Timeout, relay subscriptions are long lived.
func NewHTTPClient(cfg config.Server) (*http.Client, error) {
	if cfg.TLS.CAFile == "" {
		return &http.Client{}, nil
	}
	tlsConfig, err := cert.ClientTLSConfig(cfg.TLS.CAFile)
	if err != nil {
		return nil, err
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = tlsConfig
	return &http.Client{Transport: transport}, nil
}

func NewRelayClient(cfg config.Server) (*relay.Client, error) {
	httpClient, err := NewHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	return relay.NewClient(relay.Options{
		BaseURL:          cfg.MPC.RelayURL,
		HTTPClient:       httpClient,
		IdleTimeout:      cfg.Relay.IdleTimeout,
		MaxReconnects:    cfg.Relay.MaxReconnects,
		ReconnectBackoff: cfg.Relay.ReconnectBackoff,
		RequestTimeout:   cfg.Relay.RequestTimeout,
	})
}

// NewPool returns the worker pool shared by every protocol run. 0 workers means one per CPU,
// a negative count runs protocol computations on the calling goroutine.
func NewPool(cfg config.Server) *pool.Pool {
	if cfg.MPC.PoolWorkers < 0 {
		return nil
	}
	return pool.NewPool(cfg.MPC.PoolWorkers)
}

func NewOrchestrator(cfg config.Server, client *relay.Client, sessions storage.SessionStore, shares storage.KeyShareStorage, pl *pool.Pool, clock time2.Clock) *session.Orchestrator {
	manager := session.NewManager(sessions, cfg.MPC.SessionTimeout, clock)
	return session.NewOrchestrator(session.NewRelayJoiner(client), manager, shares, cfg.MPC.NodeID, pl)
}

func NewCodec(cfg config.Server) (*chain.Codec, error) {
	return chain.NewCodec(big.NewInt(cfg.Chain.ID))
}
