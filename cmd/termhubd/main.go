package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/termhub/internal/infrastructure/config"
	"github.com/GriffinCanCode/termhub/internal/infrastructure/server"
	"github.com/GriffinCanCode/termhub/internal/profiles"
)

// Set with -ldflags "-X main.version=..."
var version = "0.1.0-dev"

type serveFlags struct {
	host        string
	port        string
	dev         bool
	logLevel    string
	profiles    string
	noRateLimit bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "termhubd:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "termhubd",
		Short:         "PTY terminal session daemon",
		Long:          "termhubd runs local shells and ssh clients behind pseudo-terminals and streams their output over HTTP and WebSocket.",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	serve := newServeCmd()
	root.AddCommand(serve, newConfigCmd(), newProfilesCmd(), newVersionCmd())

	// Bare termhubd serves
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func newServeCmd() *cobra.Command {
	var f serveFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the daemon",
		Long: `Starts the HTTP and WebSocket API. Configuration comes from the
environment (PORT, HOST, LOG_LEVEL, TERMINAL_*, PROFILES_PATH, ...);
flags override it.

Examples:
  termhubd serve
  termhubd serve --port 9000 --dev
  termhubd serve --profiles ~/.config/termhub/hosts.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.host, "host", "", "listen host (default from HOST or 127.0.0.1)")
	flags.StringVarP(&f.port, "port", "p", "", "listen port (default from PORT or 7681)")
	flags.BoolVar(&f.dev, "dev", false, "development logging")
	flags.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	flags.StringVar(&f.profiles, "profiles", "", "host profile file (.yaml, .yml, .toml or .json)")
	flags.BoolVar(&f.noRateLimit, "no-rate-limit", false, "disable per-client rate limiting")

	return cmd
}

// loadConfig reads the environment, then applies flags that were set
func loadConfig(cmd *cobra.Command, f serveFlags) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host = f.host
	}
	if flags.Changed("port") {
		cfg.Server.Port = f.port
	}
	if flags.Changed("dev") {
		cfg.Logging.Development = f.dev
		if f.dev && !flags.Changed("log-level") {
			cfg.Logging.Level = "debug"
		}
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if flags.Changed("profiles") {
		cfg.Profiles.Path = f.profiles
	}
	if flags.Changed("no-rate-limit") {
		cfg.RateLimit.Enabled = !f.noRateLimit
	}

	return cfg, cfg.Validate()
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.NewServer(cfg, version)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Run(ctx)
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func newProfilesCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Validate and list host profiles",
		Long: `Loads a host profile file and lists its entries.

Examples:
  termhubd profiles --file hosts.yaml
  PROFILES_PATH=hosts.toml termhubd profiles`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = os.Getenv("PROFILES_PATH")
			}
			if path == "" {
				return fmt.Errorf("no profile file: pass --file or set PROFILES_PATH")
			}

			store, err := profiles.Load(path)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTARGET\tTAG")
			for _, p := range store.List() {
				target := p.Host
				if p.User != "" {
					target = p.User + "@" + target
				}
				if p.Port != 0 {
					target = fmt.Sprintf("%s:%d", target, p.Port)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", p.Name, target, p.EnvironmentTag)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&path, "file", "f", "", "profile file")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "termhubd", version)
		},
	}
}
