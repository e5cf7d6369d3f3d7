package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	flagCallID string
	flagName   string
	flagRelay  string
)

var rootCmd = &cobra.Command{
	Use:   "softphone",
	Short: "Command line voice call client",
	Long:  "Registers with the signaling relay under a call id and places or receives peer to peer voice calls.",
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Register and wait for incoming calls",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSoftphone(cmd.Context(), "")
	},
}

var callCmd = &cobra.Command{
	Use:   "call <target-call-id>",
	Short: "Register and immediately dial a target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSoftphone(cmd.Context(), args[0])
	},
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	rootCmd.PersistentFlags().StringVar(&flagCallID, "id", "", "stable call id to register under (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagName, "name", "", "display name shown to callees (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagRelay, "relay", "", "relay websocket URL (overrides config)")
	rootCmd.AddCommand(listenCmd, callCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
