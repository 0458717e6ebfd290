package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ritzau/neural-portfolio/pkg/camera"
	"github.com/ritzau/neural-portfolio/pkg/config"
	"github.com/ritzau/neural-portfolio/pkg/interaction"
	"github.com/ritzau/neural-portfolio/pkg/layout"
	"github.com/ritzau/neural-portfolio/pkg/lens"
	"github.com/ritzau/neural-portfolio/pkg/logging"
	"github.com/ritzau/neural-portfolio/pkg/metrics"
	"github.com/ritzau/neural-portfolio/pkg/model"
	"github.com/ritzau/neural-portfolio/pkg/output"
	"github.com/ritzau/neural-portfolio/pkg/pubsub"
	"github.com/ritzau/neural-portfolio/pkg/scene"
	"github.com/ritzau/neural-portfolio/pkg/watcher"
	"github.com/ritzau/neural-portfolio/pkg/web"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "neural-portfolio",
		Short:        "Lay out and serve a portfolio as an interactive 3D graph",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "Path to a TOML config file (default "+config.DefaultFile+" if present)")
	pf.StringP("data", "d", "portfolio.json", "Portfolio graph file (JSON or YAML)")
	pf.Uint64("seed", 0, "Layout random seed (0 seeds from the clock)")
	pf.Int("iterations", 300, "Layout simulation ticks")
	pf.String("filter", "", "Visible node types, e.g. main,skill (empty shows all)")
	pf.String("verbosity", "", "Log level: trace, debug, info, warn or error")
	pf.CountP("verbose", "v", "Increase log verbosity (-v debug, -vv trace)")
	pf.BoolP("quiet", "q", false, "Only log warnings and errors")
	pf.Bool("json-logs", false, "Log as JSON")

	root.AddCommand(newServeCmd(), newLayoutCmd())
	return root
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the graph, camera and pointer API with live updates",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	f := cmd.Flags()
	f.IntP("port", "p", 8080, "HTTP port")
	f.BoolP("watch", "w", false, "Reload the graph when the data file changes")
	f.Int("fps", 60, "Frame loop rate")
	f.Float64("fov", camera.DefaultProjection.FOV, "Vertical field of view in degrees")
	f.Float64("aspect", camera.DefaultProjection.Aspect, "Viewport aspect ratio")
	return cmd
}

func newLayoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Compute the layout once and print positions and quality",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(cmd)
			if err != nil {
				return err
			}
			format, _ := cmd.Flags().GetString("format")
			return printLayout(cmd, cfg, format)
		},
	}
	cmd.Flags().StringP("format", "f", output.FormatText, "Output format: text, json or yaml")
	return cmd
}

// setup loads configuration and configures logging
func setup(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	level := cfg.Level()
	if cfg.Log.JSON {
		logging.SetJSONOutput(level)
	} else {
		logging.SetLevel(level)
	}
	logging.Debug("configuration loaded", "data", cfg.Data, "seed", cfg.Layout.Seed, "iterations", cfg.Layout.Iterations)
	return cfg, nil
}

func layoutOptions(cfg *config.Config) layout.Options {
	return layout.Options{Seed: cfg.Layout.Seed, Iterations: cfg.Layout.Iterations}
}

func printLayout(cmd *cobra.Command, cfg *config.Config, format string) error {
	g, err := model.LoadFile(cfg.Data)
	if err != nil {
		return err
	}
	opts := layoutOptions(cfg)
	res, err := layout.NewEngine(&opts, nil).Layout(g)
	if err != nil {
		return err
	}
	report := output.BuildReport(cfg.Data, model.NormalizeConnections(g), res)
	return output.WriteReport(cmd.OutOrStdout(), format, report)
}

func serve(parent context.Context, cfg *config.Config) error {
	g, err := model.LoadFile(cfg.Data)
	if err != nil {
		return err
	}
	filter, err := lens.ParseFilter(cfg.Filter)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pub := pubsub.NewScenePublisher()
	defer pub.Close()
	collector := metrics.NewCollector("neural_portfolio")

	sc, err := scene.New(g, pub, collector, &scene.Options{
		Layout: layoutOptions(cfg),
		Interaction: interaction.Options{
			Projection: camera.Projection{FOV: cfg.Camera.FOV, Aspect: cfg.Camera.Aspect},
		},
		Filter: filter,
	})
	if err != nil {
		return err
	}

	go func() {
		if err := sc.Run(ctx, cfg.FPS); err != nil {
			logging.Error("frame loop failed", "error", err)
		}
	}()

	if cfg.Watch {
		if err := watch(ctx, cfg, sc); err != nil {
			return err
		}
	}

	return web.NewServer(sc, pub, collector).Start(ctx, cfg.Port)
}

// watch reloads the scene when the data file changes
func watch(ctx context.Context, cfg *config.Config, sc *scene.Scene) error {
	fw, err := watcher.NewFileWatcher(cfg.Data)
	if err != nil {
		return err
	}
	if _, err := os.Stat(config.DefaultFile); err == nil {
		if err := fw.Add(config.DefaultFile, watcher.ChangeTypeConfig); err != nil {
			logging.Warn("not watching config file", "error", err)
		}
	}
	if err := fw.Start(ctx); err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}

	debouncer := watcher.NewDebouncer(fw.Events(), 300*time.Millisecond, 2*time.Second)
	debouncer.Start(ctx)

	go func() {
		for event := range debouncer.Output() {
			analysis := watcher.AnalyzeChanges(event)
			switch {
			case analysis.ReloadGraph:
				reload(cfg.Data, sc)
			case analysis.KeepCurrent:
				logging.Warn("data file removed, keeping current graph", "files", analysis.ChangedFiles)
			case analysis.RestartRequired:
				logging.Warn("configuration changed, restart to apply", "files", analysis.ChangedFiles)
			}
		}
	}()
	return nil
}

func reload(path string, sc *scene.Scene) {
	g, err := model.LoadFile(path)
	if err != nil {
		logging.Warn("reload failed, keeping current graph", "path", path, "error", err)
		return
	}
	if err := sc.Reload(g); err != nil {
		logging.Warn("reload rejected, keeping current graph", "path", path, "error", err)
	}
}
