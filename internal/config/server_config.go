package config

import (
	"time"

	"github.com/kashguard/go-mpc-roomsigner/internal/util"
	"github.com/rs/zerolog"
)

type EchoServer struct {
	Debug                          bool
	ListenAddress                  string
	HideInternalServerErrorDetails bool
}

type LoggerServer struct {
	Level              zerolog.Level
	PrettyPrintConsole bool
}

// TLS is enabled when both CertFile and KeyFile are set.
type TLS struct {
	CertFile string
	KeyFile  string
	CAFile   string
}

func (t TLS) Enabled() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

type MPC struct {
	NodeID           string
	RelayURL         string
	KeySharePath     string
	KeySharePassword string `json:"-"`
	KeyShareSalt     string `json:"-"`
	DefaultKeyID     string
	SigningParties   []uint16
	PeerURLs         []string
	SessionTimeout   time.Duration
	SessionStore     string
	PoolWorkers      int
}

type Relay struct {
	IdleTimeout       time.Duration
	MaxReconnects     int
	ReconnectBackoff  time.Duration
	RequestTimeout    time.Duration
	HeartbeatInterval time.Duration
	RoomTTL           time.Duration
	Store             string
}

type Redis struct {
	Addr     string
	Password string `json:"-"`
	DB       int
}

type Chain struct {
	ID     int64
	RPCURL string
}

type Server struct {
	Echo   EchoServer
	Logger LoggerServer
	TLS    TLS
	MPC    MPC
	Relay  Relay
	Redis  Redis
	Chain  Chain
}

// DefaultServiceConfigFromEnv returns the server config as parsed from environment variables
// and their respective defaults defined below.
// We don't expect that ENV_VARs change while we are running our application or our tests
// (and it would be a bad thing to do anyways with parallel testing).
func DefaultServiceConfigFromEnv() Server {
	return Server{
		Echo: EchoServer{
			Debug:                          util.GetEnvAsBool("SERVER_ECHO_DEBUG", false),
			ListenAddress:                  util.GetEnv("SERVER_ECHO_LISTEN_ADDRESS", ":8000"),
			HideInternalServerErrorDetails: util.GetEnvAsBool("SERVER_ECHO_HIDE_INTERNAL_SERVER_ERROR_DETAILS", true),
		},
		Logger: LoggerServer{
			Level:              util.LogLevelFromString(util.GetEnv("SERVER_LOGGER_LEVEL", zerolog.InfoLevel.String())),
			PrettyPrintConsole: util.GetEnvAsBool("SERVER_LOGGER_PRETTY_PRINT_CONSOLE", false),
		},
		TLS: TLS{
			CertFile: util.GetEnv("SERVER_TLS_CERT_FILE", ""),
			KeyFile:  util.GetEnv("SERVER_TLS_KEY_FILE", ""),
			CAFile:   util.GetEnv("SERVER_TLS_CA_FILE", ""),
		},
		MPC: MPC{
			NodeID:           util.GetEnv("MPC_NODE_ID", "node"),
			RelayURL:         util.GetEnv("MPC_RELAY_URL", "http://127.0.0.1:8000"),
			KeySharePath:     util.GetEnv("MPC_KEY_SHARE_PATH", "/app/data/key-shares"),
			KeySharePassword: util.GetEnv("MPC_KEY_SHARE_PASSWORD", ""),
			KeyShareSalt:     util.GetEnv("MPC_KEY_SHARE_SALT", "mpc-key-share-salt"),
			DefaultKeyID:     util.GetEnv("MPC_DEFAULT_KEY_ID", ""),
			SigningParties:   util.GetEnvAsUint16Arr("MPC_SIGNING_PARTIES", []uint16{1, 2}),
			PeerURLs:         util.GetEnvAsStringArr("MPC_PEER_URLS", []string{}),
			SessionTimeout:   util.GetEnvAsDuration("MPC_SESSION_TIMEOUT", 10*time.Minute),
			SessionStore:     util.GetEnv("MPC_SESSION_STORE", "memory"),
			PoolWorkers:      util.GetEnvAsInt("MPC_POOL_WORKERS", 0),
		},
		Relay: Relay{
			IdleTimeout:       util.GetEnvAsDuration("RELAY_IDLE_TIMEOUT", 30*time.Second),
			MaxReconnects:     util.GetEnvAsInt("RELAY_MAX_RECONNECTS", 5),
			ReconnectBackoff:  util.GetEnvAsDuration("RELAY_RECONNECT_BACKOFF", 500*time.Millisecond),
			RequestTimeout:    util.GetEnvAsDuration("RELAY_REQUEST_TIMEOUT", 10*time.Second),
			HeartbeatInterval: util.GetEnvAsDuration("RELAY_HEARTBEAT_INTERVAL", 15*time.Second),
			RoomTTL:           util.GetEnvAsDuration("RELAY_ROOM_TTL", time.Hour),
			Store:             util.GetEnv("RELAY_STORE", "memory"),
		},
		Redis: Redis{
			Addr:     util.GetEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: util.GetEnv("REDIS_PASSWORD", ""),
			DB:       util.GetEnvAsInt("REDIS_DB", 0),
		},
		Chain: Chain{
			ID:     util.GetEnvAsInt64("CHAIN_ID", 5),
			RPCURL: util.GetEnv("CHAIN_RPC_URL", ""),
		},
	}
}
