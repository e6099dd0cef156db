package api

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/dropbox/godropbox/time2"
	"github.com/hashicorp/go-multierror"
	"github.com/kashguard/go-mpc-roomsigner/internal/config"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/chain"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/session"
	"github.com/kashguard/go-mpc-roomsigner/internal/mpc/storage"
	"github.com/kashguard/go-mpc-roomsigner/internal/util/cert"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/taurusgroup/multi-party-sig/pkg/pool"
)

type Router struct {
	Routes     []*echo.Route
	Root       *echo.Group
	Management *echo.Group
	Rooms      *echo.Group
}

// Server is a central struct keeping all the dependencies.
// A party node is set up with InitParty, a relay with InitRelay; one process may do both.
// Echo and Router are initialized afterwards with router.Init(s).
type Server struct {
	Echo   *echo.Echo
	Router *Router

	Config config.Server
	Redis  redis.UniversalClient
	Clock  time2.Clock

	// party node
	Pool         *pool.Pool
	Orchestrator *session.Orchestrator
	Codec        *chain.Codec

	// relay
	Rooms storage.RoomStore

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewServer(config config.Server) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		Config: config,
		Clock:  NewClock(),
		ctx:    ctx,
		cancel: cancel,
	}

	return s
}

// InitParty sets up the session orchestrator of this party node.
func (s *Server) InitParty() error {
	shares, err := NewKeyShareStorage(s.Config)
	if err != nil {
		return err
	}

	sessions, err := s.sessionStore()
	if err != nil {
		return err
	}

	relayClient, err := NewRelayClient(s.Config)
	if err != nil {
		return err
	}

	codec, err := NewCodec(s.Config)
	if err != nil {
		return err
	}

	s.Pool = NewPool(s.Config)
	s.Codec = codec
	s.Orchestrator = NewOrchestrator(s.Config, relayClient, sessions, shares, s.Pool, s.Clock)

	log.Info().
		Str("node_id", s.Config.MPC.NodeID).
		Str("relay_url", s.Config.MPC.RelayURL).
		Str("session_store", s.Config.MPC.SessionStore).
		Msg("Party node initialized")

	return nil
}

// InitRelay sets up the room store served under /rooms.
func (s *Server) InitRelay() error {
	switch s.Config.Relay.Store {
	case "memory", "":
		s.Rooms = storage.NewMemoryRoomStore()
	case "redis":
		s.Rooms = storage.NewRedisRoomStore(s.redisClient(), s.Config.Relay.RoomTTL)
	default:
		return errors.New("unknown relay store: " + s.Config.Relay.Store)
	}

	log.Info().Str("store", s.Config.Relay.Store).Msg("Relay initialized")
	return nil
}

func (s *Server) sessionStore() (storage.SessionStore, error) {
	switch s.Config.MPC.SessionStore {
	case "memory", "":
		return storage.NewMemorySessionStore(s.Clock), nil
	case "redis":
		return storage.NewRedisSessionStore(s.redisClient()), nil
	default:
		return nil, errors.New("unknown session store: " + s.Config.MPC.SessionStore)
	}
}

func (s *Server) redisClient() redis.UniversalClient {
	if s.Redis == nil {
		s.Redis = NewRedisClient(s.Config)
	}
	return s.Redis
}

func (s *Server) Ready() bool {
	if s.Echo == nil || s.Router == nil {
		log.Debug().Msg("Server is not fully initialized: router missing")
		return false
	}
	if s.Orchestrator == nil && s.Rooms == nil {
		log.Debug().Msg("Server is not fully initialized: neither party nor relay")
		return false
	}

	return true
}

// Context is cancelled on Shutdown. Sessions started by handlers run under it.
func (s *Server) Context() context.Context {
	return s.ctx
}

// Go runs fn in the background until it returns; Shutdown waits for it.
func (s *Server) Go(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

func (s *Server) Start() error {
	if !s.Ready() {
		return errors.New("server is not ready")
	}

	tlsCfg := s.Config.TLS
	if tlsCfg.Enabled() {
		if err := cert.VerifyTLSConfig(tlsCfg.CertFile, tlsCfg.KeyFile, tlsCfg.CAFile); err != nil {
			return err
		}
		log.Info().Str("address", s.Config.Echo.ListenAddress).Msg("Starting HTTPS server")
		return s.Echo.StartTLS(s.Config.Echo.ListenAddress, tlsCfg.CertFile, tlsCfg.KeyFile)
	}

	log.Info().Str("address", s.Config.Echo.ListenAddress).Msg("Starting HTTP server")
	return s.Echo.Start(s.Config.Echo.ListenAddress)
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Warn().Msg("Shutting down server")

	var errs error

	s.cancel()

	if s.Echo != nil {
		log.Debug().Msg("Shutting down echo server")
		if err := s.Echo.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Failed to shutdown echo server")
			errs = multierror.Append(errs, err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Error().Msg("Background sessions did not stop in time")
		errs = multierror.Append(errs, ctx.Err())
	}

	if s.Pool != nil {
		s.Pool.TearDown()
	}

	if s.Redis != nil {
		log.Debug().Msg("Closing redis connection")
		if err := s.Redis.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close redis connection")
			errs = multierror.Append(errs, err)
		}
	}

	return errs
}
