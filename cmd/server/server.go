package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kashguard/go-mpc-roomsigner/internal/api"
	"github.com/kashguard/go-mpc-roomsigner/internal/api/router"
	"github.com/kashguard/go-mpc-roomsigner/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

func New() *cobra.Command {
	var withRelay bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Starts a party node",
		Long: `Starts a party node serving POST /keygen/{room_id} and POST /sign/{room_id}.
With --relay the node also serves the relay rooms the parties meet in.`,
		Run: func(cmd *cobra.Command, args []string) {
			Serve(config.DefaultServiceConfigFromEnv(), true, withRelay)
		},
	}

	cmd.Flags().BoolVar(&withRelay, "relay", false, "Also serve relay rooms under /rooms")

	return cmd
}

// Serve runs the HTTP server until SIGINT or SIGTERM.
func Serve(cfg config.Server, party bool, relay bool) {
	s := api.NewServer(cfg)

	if party {
		if err := s.InitParty(); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize party node")
		}
	}
	if relay {
		if err := s.InitRelay(); err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize relay")
		}
	}

	router.Init(s)

	go func() {
		if err := s.Start(); err != nil {
			if errors.Is(err, http.ErrServerClosed) {
				log.Info().Msg("Server closed")
			} else {
				log.Fatal().Err(err).Msg("Failed to start server")
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Failed to gracefully shut down server")
	}
}
