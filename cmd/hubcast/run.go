package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/hubcast/hubcast/creds"
	"github.com/hubcast/hubcast/hub"
	"github.com/hubcast/hubcast/mcpserver"
	"github.com/hubcast/hubcast/relay"
	"github.com/hubcast/hubcast/web"
)

func runCmd() *cobra.Command {
	var (
		relayURL   string
		credsPath  string
		layoutPath string
		statusAddr string
		withMCP    bool
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the relay and serve the local hub",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogger(logLevel)

			if credsPath == "" {
				var err error
				credsPath, err = creds.DefaultPath()
				if err != nil {
					return err
				}
			}
			store := creds.NewFileStore(credsPath)
			credentials, err := store.Load()
			if err != nil {
				return err
			}
			if relayURL == "" {
				relayURL = credentials.RelayURL
			}
			if relayURL == "" {
				return fmt.Errorf("no relay URL: pass --relay-url or set relay_url in %s", credsPath)
			}
			if credentials.Token == "" {
				return fmt.Errorf("no token in %s: authenticate first", credsPath)
			}

			var provider *hub.SimHub
			if layoutPath != "" {
				provider, err = hub.LoadLayout(layoutPath)
				if err != nil {
					return err
				}
			} else {
				provider = hub.NewSimHub()
			}

			registry := prometheus.NewRegistry()
			engine := relay.NewEngine(relay.Config{
				URL: relayURL,
				Credentials: relay.Credentials{
					DeviceID:   credentials.DeviceID,
					DeviceName: credentials.DeviceName,
					Token:      credentials.Token,
				},
				Provider: provider,
				Registry: registry,
			})

			engine.OnConnect = func() {
				slog.Info("Relay session established")
			}
			engine.OnDisconnect = func(err error) {
				slog.Warn("Relay session lost", "error", err.Error())
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			engine.OnAuthError = func() {
				slog.Error("Relay retries exhausted, re-authentication required")
				stop()
			}

			statusServer := web.NewServer(statusAddr, engine, registry)
			go func() {
				if err := statusServer.Start(); err != nil {
					slog.Error("Status server failed", "error", err.Error())
				}
			}()

			if withMCP {
				go func() {
					if err := mcpserver.NewServer(provider).Run(); err != nil {
						slog.Error("MCP server failed", "error", err.Error())
					}
				}()
			}

			if err := engine.Connect(ctx); err != nil {
				slog.Warn("Initial connection failed, retrying in background", "error", err.Error())
			}

			<-ctx.Done()
			slog.Info("Shutting down")
			engine.Disconnect()
			if err := statusServer.Shutdown(); err != nil {
				slog.Error("There was an error when shutting down the status server", "error", err.Error())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&relayURL, "relay-url", "", "Relay websocket URL (wss://...)")
	cmd.Flags().StringVar(&credsPath, "creds", "", "Path to credentials file (default: user config dir)")
	cmd.Flags().StringVar(&layoutPath, "layout", "", "Path to a simulated hub layout JSON file")
	cmd.Flags().StringVar(&statusAddr, "status-addr", "127.0.0.1:9190", "Local status/metrics listen address")
	cmd.Flags().BoolVar(&withMCP, "mcp", false, "Also serve hub tools over MCP stdio")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	return cmd
}

func setupLogger(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
