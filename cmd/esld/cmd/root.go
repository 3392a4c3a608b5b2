package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"cosmossdk.io/log"
	"github.com/cometbft/cometbft/abci/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"escrowledger/internal/app"
)

const envPrefix = "ESLD"

// NewRootCmd creates the root command for esld. Flags may also be supplied
// through the environment as ESLD_HOME, ESLD_ADDR and ESLD_TRANSPORT.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:           "esld",
		Short:         "Escrow ledger ABCI daemon",
		Long:          "esld runs the escrow ledger as a standalone ABCI application for a CometBFT node to connect to.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			return serve(v)
		},
	}

	rootCmd.Flags().String("home", ".esld", "app home directory (state is stored under <home>/app)")
	rootCmd.Flags().String("addr", "tcp://127.0.0.1:26658", "ABCI listen address")
	rootCmd.Flags().String("transport", "socket", "ABCI transport (socket|grpc)")
	rootCmd.Flags().String("log-level", "info", "log level (debug|info|warn|error)")

	return rootCmd
}

func serve(v *viper.Viper) error {
	filter, err := log.ParseLogLevel(v.GetString("log-level"))
	if err != nil {
		return err
	}
	logger := log.NewLogger(os.Stderr, log.FilterOption(filter))

	a, err := app.New(v.GetString("home"), logger.With("module", "app"))
	if err != nil {
		return err
	}

	srv, err := server.NewServer(v.GetString("addr"), v.GetString("transport"), a)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	defer func() { _ = srv.Stop() }()

	logger.Info("abci server started", "addr", v.GetString("addr"), "transport", v.GetString("transport"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", "signal", sig.String())
	return nil
}
