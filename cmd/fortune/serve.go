package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	x402http "github.com/x402-foundation/x402/go/http"

	"github.com/fortune402/fortune"
	"github.com/fortune402/fortune/config"
	fortunehttp "github.com/fortune402/fortune/http"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve fortunes behind the x402 gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadServer()
			if err != nil {
				return err
			}
			log, err := config.NewLogger(cfg.Log)
			if err != nil {
				return err
			}

			candidates, err := cfg.Fortunes()
			if err != nil {
				return err
			}
			teller, err := fortune.NewTeller(candidates)
			if err != nil {
				return err
			}

			facilitator := x402http.NewHTTPFacilitatorClient(&x402http.FacilitatorConfig{
				URL:     cfg.FacilitatorURL,
				Timeout: cfg.FacilitatorTimeout,
			})

			srv, err := fortunehttp.NewServer(fortunehttp.ServerConfig{
				Teller: teller,
				Gateway: fortunehttp.GatewayConfig{
					EndpointPath:      cfg.EndpointPath,
					Network:           cfg.Network,
					PayTo:             cfg.PayTo,
					Price:             cfg.Price,
					Description:       cfg.Description,
					MaxTimeoutSeconds: cfg.MaxTimeoutSeconds,
					Facilitator:       facilitator,
					Timeout:           cfg.FacilitatorTimeout,
					Paywall: &x402http.PaywallConfig{
						AppName: "Fortune Cookie",
						Testnet: config.IsTestnet(cfg.Network),
					},
				},
				Log: log,
			})
			if err != nil {
				return fmt.Errorf("build server: %w", err)
			}

			log.WithFields(logrus.Fields{
				"endpoint":    cfg.EndpointPath,
				"price":       cfg.Price,
				"network":     cfg.Network,
				"payTo":       cfg.PayTo,
				"facilitator": cfg.FacilitatorURL,
			}).Info("fortune gateway configured")

			// The server starts even when the facilitator is down; paid
			// requests fail until a restart finds it.
			_ = srv.Sync(cmd.Context())

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx, cfg.Addr())
		},
	}
}
