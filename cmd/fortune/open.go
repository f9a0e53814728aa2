package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fortune402/fortune"
	"github.com/fortune402/fortune/config"
	fortunehttp "github.com/fortune402/fortune/http"
)

func newOpenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open",
		Short: "Pay for a fortune and reveal it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadClient()
			if err != nil {
				return err
			}
			log, err := config.NewLogger(cfg.Log)
			if err != nil {
				return err
			}
			log.SetOutput(os.Stderr)

			format, _ := cmd.Flags().GetString("output")
			r, err := newRenderer(cmd.OutOrStdout(), format)
			if err != nil {
				return err
			}

			opts := []fortune.ControllerOption{
				fortune.WithLogger(log),
				fortune.WithTimeout(cfg.RequestTimeout),
			}
			client, err := fortunehttp.NewPaymentClient(cfg.Key(),
				fortunehttp.WithNetworkPattern(cfg.NetworkPattern()),
				fortunehttp.WithClientTimeout(cfg.RequestTimeout),
			)
			switch {
			case errors.Is(err, fortune.ErrNotConfigured):
				// The controller reports the missing wallet itself.
			case err != nil:
				return fmt.Errorf("payment client: %w", err)
			default:
				r.wallet = client.Address()
				opts = append(opts, fortune.WithFetcher(client), fortune.WithSettlementExtractor(client))
			}

			controller := fortune.NewController(cfg.ResourceURL(), opts...)
			cancel := controller.Subscribe(r.progress)
			defer cancel()

			snap := controller.RequestFortune(cmd.Context())
			if err := r.result(snap); err != nil {
				return err
			}
			if snap.Err != nil {
				return errReported
			}
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "text", "Output format: text, json")
	return cmd
}
