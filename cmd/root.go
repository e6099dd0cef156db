package cmd

import (
	"fmt"
	"os"

	"github.com/kashguard/go-mpc-roomsigner/cmd/cert"
	"github.com/kashguard/go-mpc-roomsigner/cmd/keygen"
	"github.com/kashguard/go-mpc-roomsigner/cmd/relay"
	"github.com/kashguard/go-mpc-roomsigner/cmd/server"
	"github.com/kashguard/go-mpc-roomsigner/cmd/sign"
	"github.com/kashguard/go-mpc-roomsigner/internal/config"
	"github.com/kashguard/go-mpc-roomsigner/internal/util"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "roomsigner",
	Short: "Threshold ECDSA party nodes coordinated through relay rooms",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg := config.DefaultServiceConfigFromEnv()
		util.ConfigureLogger(cfg.Logger.Level, cfg.Logger.PrettyPrintConsole)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	rootCmd.AddCommand(
		server.New(),
		relay.New(),
		keygen.New(),
		sign.New(),
		cert.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
