package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fortune402/fortune/config"
)

// Version is set at build time.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "fortune",
	Short: "Fortune cookies paid for over x402",
	Long: `fortune - a fortune cookie behind an HTTP 402 paywall

  fortune serve   Run the resource server with the x402 gateway
  fortune open    Pay for and reveal one fortune

Settings come from the environment; a .env file in the working directory
is loaded first when present.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		files, _ := cmd.Flags().GetStringSlice("env-file")
		return config.LoadDotEnv(files...)
	},
}

// errReported marks a failure already shown to the user.
var errReported = errors.New("reported")

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, err)
		}
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringSlice("env-file", nil, "dotenv files to load (default: .env)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newOpenCmd())
}
