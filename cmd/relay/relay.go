package relay

import (
	"github.com/kashguard/go-mpc-roomsigner/cmd/server"
	"github.com/kashguard/go-mpc-roomsigner/internal/config"
	"github.com/spf13/cobra"
)

func New() *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Starts the relay parties exchange protocol messages through",
		Long: `Starts the relay. Parties reserve an index with POST /rooms/{room}/issue_unique_idx,
publish with POST /rooms/{room}/broadcast and read the room with GET /rooms/{room}/subscribe.
Rooms live in memory unless RELAY_STORE=redis.`,
		Run: func(cmd *cobra.Command, args []string) {
			server.Serve(config.DefaultServiceConfigFromEnv(), false, true)
		},
	}
}
