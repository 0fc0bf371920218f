package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/google/logger"
	"github.com/spf13/cobra"

	"github.com/gregLibert/eid-sim/pkg/iso7816"
	"github.com/gregLibert/eid-sim/pkg/metrics"
)

var (
	configFile string
	cfg        *Config

	// flag overrides of the configuration file
	profileFlag string
	verboseFlag int
)

var rootCmd = &cobra.Command{
	Use:   "eidsim",
	Short: "Simulated eID smart card",
	Long: `eidsim simulates the card side of an ISO 7816-4 eID card with file
management and terminal authentication.

Terminals talk to the card over TCP, one hex encoded APDU per line.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		if cfg, err = loadConfig(configFile); err != nil {
			return err
		}
		if cmd.Flags().Changed("profile") {
			cfg.Profile = profileFlag
		}
		if cmd.Flags().Changed("verbose") {
			cfg.Verbose = verboseFlag
		}

		logger.Init("eidsim", cfg.Verbose > 0, false, io.Discard)
		logger.SetLevel(logger.Level(cfg.Verbose))
		if !cfg.Metrics {
			metrics.Disable()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (YAML)")
	rootCmd.PersistentFlags().StringVarP(&profileFlag, "profile", "p", "", "personalization profile (YAML)")
	rootCmd.PersistentFlags().IntVarP(&verboseFlag, "verbose", "v", 0, "log verbosity")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(relayCmd)
}

// parseAPDUs decodes the hex command APDUs given on the command line.
func parseAPDUs(args []string) ([]*iso7816.CommandAPDU, error) {
	cmds := make([]*iso7816.CommandAPDU, 0, len(args))
	for _, arg := range args {
		raw, err := hex.DecodeString(strings.Join(strings.Fields(arg), ""))
		if err != nil {
			return nil, fmt.Errorf("invalid APDU %q: %w", arg, err)
		}
		cmd, err := iso7816.ParseCommandAPDU(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("invalid APDU %q: %w", arg, err)
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

// exchange sends every command through client and prints the traces.
func exchange(w io.Writer, client *iso7816.Client, cmds []*iso7816.CommandAPDU) error {
	for _, cmd := range cmds {
		trace, err := client.Send(cmd)
		if err != nil {
			return fmt.Errorf("%s: %w", cmd, err)
		}
		fmt.Fprintln(w, trace.Describe())
	}
	return nil
}
