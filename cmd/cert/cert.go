package cert

import (
	"time"

	"github.com/kashguard/go-mpc-roomsigner/internal/util/cert"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cert",
		Short: "Certificate management tools",
	}

	cmd.AddCommand(newGenCmd())
	return cmd
}

func newGenCmd() *cobra.Command {
	var (
		outDir    string
		hostnames []string
		validFor  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate a development CA and a server certificate for relay and party nodes",
		Run: func(cmd *cobra.Command, args []string) {
			if err := cert.Generate(outDir, hostnames, validFor); err != nil {
				log.Fatal().Err(err).Msg("Failed to generate certificates")
			}
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "certs", "Output directory for certificates")
	cmd.Flags().StringSliceVar(&hostnames, "host", cert.DefaultHosts, "Hostnames/IPs for server certificate")
	cmd.Flags().DurationVar(&validFor, "valid-for", 365*24*time.Hour, "Certificate validity")

	return cmd
}
