package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/buildforge/modguard/internal/engine"
	"github.com/buildforge/modguard/internal/logging"
	"github.com/buildforge/modguard/internal/telemetry"
	"github.com/buildforge/modguard/internal/watch"
)

var watchAddr string

var watchCmd = &cobra.Command{
	Use:   "watch [root]",
	Short: "Continuously validate a tree and serve its state over HTTP",
	Long: `Watch re-validates the tree whenever a build descriptor changes and
serves the current violation state:

  GET /health      liveness and last scan time
  GET /violations  current violations as JSON
  GET /metrics     Prometheus metrics

Examples:
  # Watch the working directory
  modguard watch

  # Watch a tree on a custom address
  modguard watch --addr localhost:7777 /repos/platform`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchAddr, "addr", "", "HTTP listen address (overrides config)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		rootDir = args[0]
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if watchAddr != "" {
		cfg.Watch.Addr = watchAddr
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	metrics := telemetry.New()
	ecfg, err := engineConfig(cfg)
	if err != nil {
		return err
	}
	eng, err := engine.New(ecfg, metrics, log)
	if err != nil {
		return err
	}

	svc := watch.New(watch.Config{
		Addr:           cfg.Watch.Addr,
		DescriptorName: cfg.Project.Descriptor,
		Debounce:       cfg.Watch.Debounce.Duration(),
	}, eng, metrics, log)

	ctx, stop := signal.NotifyContext(logging.WithLogger(cmd.Context(), log), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return svc.Run(ctx)
}
