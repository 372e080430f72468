package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/profclems/tracepage/config"
	"github.com/profclems/tracepage/page"
	"github.com/profclems/tracepage/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newServeCmd() *cobra.Command {
	var (
		listen     string
		payload    string
		backend    string
		endpoint   string
		store      string
		layout     string
		layoutPath string
		rateLimit  float64
		rateBurst  int
		tlsCert    string
		tlsKey     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve diagnostic pages and the activation endpoint",
		Long: `Serve diagnostic pages for captured exceptions.

Example config file (tracepage.yaml):
  listen: "127.0.0.1:1984"
  payload: "./last_exception.json"
  backend: "http://127.0.0.1:1985/__wdb/on"
  store: "/var/lib/tracepage"
  rate_limit: 1
  rate_burst: 5

Usage:
  tracepage serve --payload exception.json
  tracepage serve --config /etc/tracepage/tracepage.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServeConfig()
			if err != nil {
				return err
			}

			// CLI flags win over the config file
			flags := cmd.Flags()
			if flags.Changed("listen") {
				cfg.Listen = listen
			}
			if flags.Changed("payload") {
				cfg.Payload = payload
			}
			if flags.Changed("backend") {
				cfg.Backend = backend
			}
			if flags.Changed("endpoint") {
				cfg.Endpoint = endpoint
			}
			if flags.Changed("store") {
				cfg.Store = store
			}
			if flags.Changed("layout") {
				cfg.Layout = layout
			}
			if flags.Changed("layout-path") {
				cfg.LayoutPath = layoutPath
			}
			if flags.Changed("rate-limit") {
				cfg.RateLimit = rateLimit
			}
			if flags.Changed("rate-burst") {
				cfg.RateBurst = rateBurst
			}
			if flags.Changed("tls-cert") {
				cfg.TLSCert = tlsCert
			}
			if flags.Changed("tls-key") {
				cfg.TLSKey = tlsKey
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			srv, closeStore, err := buildServer(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			// Handle interrupt signals
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigCh
				logger.Info("shutting down...")
				cancel()
			}()

			return srv.Start(ctx)
		},
	}

	def := config.Default()
	cmd.Flags().StringVar(&listen, "listen", def.Listen, "Listen address (host:port)")
	cmd.Flags().StringVar(&payload, "payload", "", "Payload file shown at / (.json or .msgpack)")
	cmd.Flags().StringVar(&backend, "backend", "", "Debugging backend activation URL (in-process switch if empty)")
	cmd.Flags().StringVar(&endpoint, "endpoint", def.Endpoint, "Activation endpoint path")
	cmd.Flags().StringVar(&store, "store", "", "Directory for persistent trace storage (in-memory if empty)")
	cmd.Flags().StringVar(&layout, "layout", def.Layout, "Page layout: only wdb available")
	cmd.Flags().StringVar(&layoutPath, "layout-path", "", "Path to custom layout file (overrides --layout)")
	cmd.Flags().Float64Var(&rateLimit, "rate-limit", def.RateLimit, "Activation requests per second per client (0 to disable)")
	cmd.Flags().IntVar(&rateBurst, "rate-burst", def.RateBurst, "Burst capacity for activation rate limiting")
	cmd.Flags().StringVar(&tlsCert, "tls-cert", "", "TLS certificate file")
	cmd.Flags().StringVar(&tlsKey, "tls-key", "", "TLS key file")

	return cmd
}

// loadServeConfig layers the config file and TRACEPAGE_* environment
// variables over the defaults. Every key needs a viper default, otherwise
// Unmarshal never consults the environment for it.
func loadServeConfig() (*config.File, error) {
	def := config.Default()
	viper.SetDefault("listen", def.Listen)
	viper.SetDefault("payload", def.Payload)
	viper.SetDefault("backend", def.Backend)
	viper.SetDefault("endpoint", def.Endpoint)
	viper.SetDefault("store", def.Store)
	viper.SetDefault("layout", def.Layout)
	viper.SetDefault("layout_path", def.LayoutPath)
	viper.SetDefault("rate_limit", def.RateLimit)
	viper.SetDefault("rate_burst", def.RateBurst)
	viper.SetDefault("tls_cert", def.TLSCert)
	viper.SetDefault("tls_key", def.TLSKey)

	cfg := config.Default()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// buildServer wires a server from configuration. The returned func
// closes the trace store.
func buildServer(cfg *config.File) (*server.Server, func(), error) {
	layoutOpt, err := layoutOption(cfg.Layout, cfg.LayoutPath)
	if err != nil {
		return nil, nil, err
	}
	renderer := page.NewRenderer(layoutOpt, page.WithEndpoint(cfg.Endpoint))

	opts := []server.Option{server.WithRenderer(renderer)}

	if cfg.Payload != "" {
		p, err := loadPayload(cfg.Payload)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, server.WithPayload(p))
		logger.Info("loaded payload", "file", cfg.Payload, "title", p.Title, "frames", len(p.Trace))
	}

	if cfg.Backend != "" {
		opts = append(opts, server.WithHook(&server.ProxyHook{URL: cfg.Backend}))
	}

	var st server.Store = server.NewMemoryStore(0)
	if cfg.Store != "" {
		pst, err := server.OpenPebbleStore(cfg.Store)
		if err != nil {
			return nil, nil, err
		}
		st = pst
		logger.Info("using persistent trace store", "dir", cfg.Store)
	}
	opts = append(opts, server.WithStore(st))

	srv := server.NewServer(server.Config{
		Addr:      cfg.Listen,
		Endpoint:  cfg.Endpoint,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
		TLS: server.TLSConfig{
			CertFile: cfg.TLSCert,
			KeyFile:  cfg.TLSKey,
		},
	}, logger, opts...)

	return srv, func() {
		if err := st.Close(); err != nil {
			logger.Error("failed to close trace store", "error", err)
		}
	}, nil
}
