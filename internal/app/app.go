package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/specialistvlad/variantforge/internal/config"
	"github.com/specialistvlad/variantforge/internal/ctxlog"
	"github.com/specialistvlad/variantforge/internal/fsutil"
	"github.com/specialistvlad/variantforge/internal/materialize"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	loader config.Loader
	config *Config
}

// NewApp is the constructor for the main application. Logs go to logW and
// command output (plans, reset reports) goes to outW.
func NewApp(outW, logW io.Writer, cfg *Config, loader config.Loader) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	logger.Debug("Logger configured successfully.")

	return &App{
		outW:   outW,
		logger: logger,
		loader: loader,
		config: cfg,
	}
}

// load reads the project and applies the command-line overrides.
func (a *App) load(ctx context.Context) (*config.Project, error) {
	project, err := a.loader.Load(ctx, a.config.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if a.config.StagingRoot != "" {
		root, err := filepath.Abs(a.config.StagingRoot)
		if err != nil {
			return nil, err
		}
		// An output left at its default follows the staging override.
		if a.config.Output == "" && project.Output == filepath.Join(project.StagingRoot, config.DefaultOutput) {
			project.Output = filepath.Join(root, config.DefaultOutput)
		}
		project.StagingRoot = root
	}
	if a.config.Output != "" {
		out, err := filepath.Abs(a.config.Output)
		if err != nil {
			return nil, err
		}
		project.Output = out
	}

	ctxlog.FromContext(ctx).Debug("Configuration loaded and translated into unified model.",
		"modules", len(project.Modules),
		"libraries", len(project.Libraries),
		"staging_root", project.StagingRoot,
	)
	return project, nil
}

// newMaterializer wires the staging area of project to a fresh template
// cache for one run.
func (a *App) newMaterializer(project *config.Project, runID string) (*materialize.Materializer, error) {
	cache, err := fsutil.NewContentCache(a.config.CacheSize)
	if err != nil {
		return nil, err
	}
	return materialize.New(project.StagingRoot, cache, runID), nil
}

// withLogger attaches the app logger, and the run id when set, to ctx.
func (a *App) withLogger(ctx context.Context, runID string) context.Context {
	logger := a.logger
	if runID != "" {
		logger = logger.With("run_id", runID)
	}
	return ctxlog.WithLogger(ctx, logger)
}

// newRunID returns a fresh identifier for one generate run.
func newRunID() string {
	return uuid.NewString()
}
