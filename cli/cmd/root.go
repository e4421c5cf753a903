package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/airhawk/cli/pkg/output"
	"github.com/telhawk-systems/airhawk/common/config"
	"github.com/telhawk-systems/airhawk/enforcer/pkg/gateway"
)

var cfg *config.CLIConfig

var rootCmd = &cobra.Command{
	Use:   "airctl",
	Short: "AirHawk enforcer CLI",
	Long: `airctl talks to the AirHawk MAC enforcer over its line protocol.

Block, unblock and check transmitter MAC addresses, and list the current
blocklist, from your terminal.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		output.New(os.Stdout, os.Stderr, output.FormatTable).Error("%v", err)
		return err
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("addr", "", "enforcer address host:port (default from config, 127.0.0.1:9000)")
	rootCmd.PersistentFlags().Duration("timeout", 0, "per-request timeout (default from config, 3s)")
	rootCmd.PersistentFlags().StringP("output", "o", "", "output format: table, json, yaml")
}

func initConfig() {
	var err error
	cfg, err = config.LoadCLI()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.DefaultCLI()
	}
}

// settings resolves flags over the loaded config.
func settings(cmd *cobra.Command) (addr string, timeout time.Duration, format output.Format, err error) {
	c := cfg
	if c == nil {
		c = config.DefaultCLI()
	}
	addr, timeout = c.Addr, c.Timeout
	formatName := c.Output

	flags := cmd.Flags()
	if flags.Changed("addr") {
		addr, _ = flags.GetString("addr")
	}
	if flags.Changed("timeout") {
		timeout, _ = flags.GetDuration("timeout")
	}
	if flags.Changed("output") {
		formatName, _ = flags.GetString("output")
	}

	format, err = output.ParseFormat(formatName)
	return addr, timeout, format, err
}

func newClient(cmd *cobra.Command) (*gateway.Client, *output.Printer, error) {
	addr, timeout, format, err := settings(cmd)
	if err != nil {
		return nil, nil, err
	}
	client := gateway.New(addr, gateway.WithTimeout(timeout))
	return client, output.New(cmd.OutOrStdout(), cmd.ErrOrStderr(), format), nil
}
