// Package watch keeps a tree under continuous validation: descriptor
// changes trigger debounced re-detection, and the current violation state
// is served over HTTP alongside metrics.
package watch

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/buildforge/modguard/internal/engine"
	"github.com/buildforge/modguard/internal/logging"
	"github.com/buildforge/modguard/internal/rules"
	"github.com/buildforge/modguard/internal/telemetry"
)

// DefaultDebounce batches rapid descriptor edits into one re-detection.
const DefaultDebounce = 500 * time.Millisecond

// Config configures the watch service.
type Config struct {
	// Addr is the HTTP listen address, e.g. "localhost:9590".
	Addr string

	// DescriptorName is the watched build descriptor filename.
	DescriptorName string

	// Debounce is the quiet period after the last event before
	// re-detection runs.
	Debounce time.Duration
}

// state is the last completed detection, served read-only.
type state struct {
	Violations []rules.Violation `json:"violations"`
	Modules    int               `json:"modules"`
	ScannedAt  time.Time         `json:"scanned_at"`
}

// Service watches a tree and serves its validation state.
type Service struct {
	cfg     Config
	engine  *engine.Engine
	metrics *telemetry.Metrics
	log     *logging.Logger
	echo    *echo.Echo

	mu    sync.RWMutex
	state state
}

// New creates a watch service around an engine.
func New(cfg Config, eng *engine.Engine, metrics *telemetry.Metrics, log *logging.Logger) *Service {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.DescriptorName == "" {
		cfg.DescriptorName = "pom.xml"
	}
	if log == nil {
		log = logging.Nop()
	}
	if metrics == nil {
		metrics = telemetry.New()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Service{cfg: cfg, engine: eng, metrics: metrics, log: log, echo: e}

	e.GET("/health", s.handleHealth)
	e.GET("/violations", s.handleViolations)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	return s
}

// Handler exposes the HTTP mux, for embedding and tests.
func (s *Service) Handler() http.Handler {
	return s.echo
}

// Run performs an initial detection, then blocks serving HTTP and watching
// for descriptor changes until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := s.refresh(ctx, watcher); err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := s.echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var timer *time.Timer
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return s.echo.Shutdown(shutdownCtx)
		case err := <-serveErr:
			return err
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !s.relevant(event) {
				continue
			}
			s.log.Debug(ctx, "descriptor change", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			if timer == nil {
				timer = time.NewTimer(s.cfg.Debounce)
			} else {
				timer.Reset(s.cfg.Debounce)
			}
			pending = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn(ctx, "watch error", zap.Error(err))
		case <-pending:
			pending = nil
			if err := s.refresh(ctx, watcher); err != nil {
				s.log.Error(ctx, "re-detection failed", zap.Error(err))
			}
		}
	}
}

// relevant reports whether an event concerns a build descriptor or a
// directory change that may add one.
func (s *Service) relevant(event fsnotify.Event) bool {
	if filepath.Base(event.Name) == s.cfg.DescriptorName {
		return true
	}
	// Created directories are watched on the next refresh; creation of
	// anything is worth a re-check since directory events carry no type.
	return event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0
}

// refresh re-detects violations and re-aligns the watched directory set
// with the scanned module dirs.
func (s *Service) refresh(ctx context.Context, watcher *fsnotify.Watcher) error {
	tree, violations, err := s.engine.Detect(ctx)
	if err != nil {
		return err
	}

	watched := make(map[string]bool)
	for _, dir := range watcher.WatchList() {
		watched[dir] = true
	}
	for _, n := range tree.Nodes {
		if watched[n.Dir] {
			continue
		}
		if err := watcher.Add(n.Dir); err != nil {
			s.log.Warn(ctx, "watching module dir", zap.String("dir", n.Dir), zap.Error(err))
		}
	}

	s.mu.Lock()
	s.state = state{
		Violations: violations,
		Modules:    len(tree.Nodes),
		ScannedAt:  time.Now(),
	}
	s.mu.Unlock()

	s.log.Info(ctx, "validation state refreshed",
		zap.Int("modules", len(tree.Nodes)),
		zap.Int("violations", len(violations)))
	return nil
}

type healthResponse struct {
	Status    string    `json:"status"`
	ScannedAt time.Time `json:"scanned_at"`
}

func (s *Service) handleHealth(c echo.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return c.JSON(http.StatusOK, healthResponse{Status: "ok", ScannedAt: s.state.ScannedAt})
}

func (s *Service) handleViolations(c echo.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return c.JSON(http.StatusOK, s.state)
}
