package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/fdclink/internal/config"
	"github.com/zsiec/fdclink/internal/dashboard"
	"github.com/zsiec/fdclink/internal/health"
	"github.com/zsiec/fdclink/internal/link"
	"github.com/zsiec/fdclink/internal/logger"
	"github.com/zsiec/fdclink/internal/queue"
	"github.com/zsiec/fdclink/internal/reconnect"
	"github.com/zsiec/fdclink/internal/recorder"
	"github.com/zsiec/fdclink/internal/server"
	"github.com/zsiec/fdclink/internal/source"
	"github.com/zsiec/fdclink/internal/telemetry"
)

const (
	linkStaleAfter    = 10 * time.Second
	linkMinValidRatio = 0.9
	spoolMaxDepth     = 10000
	feedBuffer        = 256
)

// pipeline is one configured link: source, driver, sink and the servers
// reporting on them.
type pipeline struct {
	cfg    *config.Config
	log    *logrus.Logger
	health *health.Manager
	driver *link.Driver

	starts  []func(context.Context)
	closers []func() error
}

func newPipeline(cfg *config.Config, log *logrus.Logger) *pipeline {
	return &pipeline{
		cfg:    cfg,
		log:    log,
		health: health.NewManager(logger.WithComponent(log, "health")),
	}
}

// openSink builds the configured recorder. stdout backs the "-" JSONL path.
func (p *pipeline) openSink(stdout io.Writer) (link.Consumer, error) {
	cfg := p.cfg
	switch cfg.Sink.Kind {
	case config.SinkJSONL:
		if cfg.Sink.Path == "-" {
			return recorder.NewJSONL(stdout), nil
		}
		j, err := recorder.OpenJSONL(cfg.Sink.Path)
		if err != nil {
			return nil, err
		}
		p.closers = append(p.closers, j.Close)
		return j, nil

	case config.SinkRedis:
		client := recorder.NewRedisClient(cfg.Redis)
		spool, err := queue.NewHybridQueue(queue.Options{
			Name:       "frames",
			Dir:        cfg.Spool.Dir,
			MemorySize: cfg.Spool.MemorySize,
			Rate:       cfg.Spool.Rate,
			Burst:      cfg.Spool.Burst,
		})
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to open spool: %w", err)
		}
		rec := recorder.NewRedis(client, spool, recorder.RedisOptions{
			Stream: cfg.Sink.Stream,
			MaxLen: cfg.Sink.MaxLen,
		}, logger.WithComponent(p.log, "recorder"))

		p.health.Register(health.NewRedisChecker(client, cfg.Sink.Stream))
		p.health.Register(health.NewSpoolChecker(spool, spoolMaxDepth))
		p.starts = append(p.starts, rec.Start)
		p.closers = append(p.closers, rec.Close, client.Close)
		return rec, nil

	default:
		return recorder.NewConsole(logger.WithComponent(p.log, "recorder")), nil
	}
}

func (p *pipeline) buildDriver(consumer link.Consumer, sink string) error {
	src := p.cfg.Source
	opts := link.Options{
		Registry: telemetry.DefaultRegistry(),
		Open:     source.NewOpener(src),
		Consumer: consumer,
		Source:   source.Describe(src),
		Sink:     sink,
		Logger:   logger.WithSource(logger.WithComponent(p.log, "link"), src.Kind, sourceTarget(src)),
	}
	if src.Reopen.Enabled {
		opts.Reopen = reconnect.FromConfig(src.Reopen)
	}

	driver, err := link.NewDriver(opts)
	if err != nil {
		return err
	}
	p.driver = driver
	p.health.Register(health.NewLinkChecker(driver.Stats, linkStaleAfter, linkMinValidRatio))
	return nil
}

func sourceTarget(src config.SourceConfig) string {
	switch src.Kind {
	case config.SourceSerial:
		return src.Device
	case config.SourceFile:
		return src.Path
	default:
		return src.Address
	}
}

// serve runs foreground next to the status and metrics servers. When
// foreground returns everything else is stopped and the sinks are closed.
func (p *pipeline) serve(ctx context.Context, foreground func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, start := range p.starts {
		start(gctx)
	}

	if p.cfg.Server.Enabled {
		srv := server.New(&p.cfg.Server, logger.WithComponent(p.log, "server"), server.Deps{
			Health:   p.health,
			Stats:    p.driver.Stats,
			Registry: telemetry.DefaultRegistry(),
		})
		g.Go(func() error { return srv.Start(gctx) })
	}
	if p.cfg.Metrics.Enabled {
		ms := server.NewMetricsServer(p.cfg.Metrics)
		g.Go(func() error { return server.ServeMetrics(gctx, ms, logger.WithComponent(p.log, "metrics")) })
	}

	g.Go(func() error {
		defer cancel()
		return foreground(gctx)
	})

	err := g.Wait()
	return errors.Join(err, p.close())
}

func (p *pipeline) close() error {
	var errs []error
	for _, c := range p.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}

func runLink(cmd *cobra.Command, configPath string) error {
	cfg, log, err := setup(cmd, configPath)
	if err != nil {
		return err
	}

	p := newPipeline(cfg, log)
	consumer, err := p.openSink(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if err := p.buildDriver(consumer, cfg.Sink.Kind); err != nil {
		return errors.Join(err, p.close())
	}

	err = p.serve(cmd.Context(), p.driver.Run)
	st := p.driver.Stats()
	log.WithFields(logrus.Fields{
		"frames":          st.Frames,
		"invalid":         st.Invalid,
		"bytes_read":      st.BytesRead,
		"bytes_discarded": st.BytesDiscarded,
	}).Info("Link stopped")
	return err
}

func runWatch(cmd *cobra.Command, configPath string) error {
	cfg, log, err := setup(cmd, configPath)
	if err != nil {
		return err
	}
	quiet(log, cfg.Logging)

	p := newPipeline(cfg, log)
	feed := dashboard.NewFeed(feedBuffer)
	if err := p.buildDriver(feed, "dashboard"); err != nil {
		return err
	}

	return p.serve(cmd.Context(), func(ctx context.Context) error {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			err := p.driver.Run(ctx)
			feed.Close()
			done <- err
		}()

		model := dashboard.NewModel(feed.Frames(), p.driver.Stats, cancel)
		uiErr := dashboard.Run(ctx, model, tea.WithInput(cmd.InOrStdin()), tea.WithOutput(cmd.OutOrStdout()))
		cancel()
		return errors.Join(uiErr, <-done)
	})
}
