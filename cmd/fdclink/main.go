package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zsiec/fdclink/internal/config"
	"github.com/zsiec/fdclink/internal/logger"
	"github.com/zsiec/fdclink/internal/telemetry"
	"github.com/zsiec/fdclink/pkg/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	releaseOnDone(ctx, stop)

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fdclink:", err)
		stop()
		os.Exit(1)
	}
}

// releaseOnDone calls stop once ctx is done. After the first signal the
// default handlers are back, so a second one terminates a run stuck in a
// blocking serial read.
func releaseOnDone(ctx context.Context, stop context.CancelFunc) {
	go func() {
		<-ctx.Done()
		stop()
	}()
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "fdclink",
		Short:         "Decode the flight computer's serial telemetry link",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLink(cmd, configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file (defaults and FDCLINK_ env only when empty)")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Decode the link and hand frames to the configured sink",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runLink(cmd, configPath)
			},
		},
		&cobra.Command{
			Use:   "watch",
			Short: "Decode the link into a live terminal dashboard",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runWatch(cmd, configPath)
			},
		},
		newSimulateCmd(),
		&cobra.Command{
			Use:   "schemas",
			Short: "Print the frame layouts",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				for _, s := range telemetry.DefaultRegistry().Schemas() {
					fmt.Fprintln(cmd.OutOrStdout(), s.Describe())
				}
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version.GetInfo().String())
			},
		},
	)
	return root
}

// setup loads the configuration and builds the process logger. Console
// outputs follow the command's writers so the CLI can be driven in tests.
func setup(cmd *cobra.Command, configPath string) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	switch cfg.Logging.Output {
	case "stderr", "":
		log.SetOutput(cmd.ErrOrStderr())
	case "stdout":
		log.SetOutput(cmd.OutOrStdout())
	}

	log.WithField("version", version.GetInfo().Short()).Info("Starting fdclink")
	log.WithField("config_path", configPath).Debug("Configuration loaded")
	return cfg, log, nil
}

// quiet keeps file logging but silences console logging, which would tear
// the dashboard.
func quiet(log *logrus.Logger, cfg config.LoggingConfig) {
	if cfg.Output == "stderr" || cfg.Output == "stdout" || cfg.Output == "" {
		log.SetOutput(io.Discard)
	}
}
