package app

import (
	"io"
	"log/slog"

	"github.com/vk/assembly/internal/runtime"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	config  *Config
	runtime *runtime.Runtime
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger and runtime. The
// instance tree goes to outW; logs go to errW so the JSON output stays
// parseable.
func NewApp(outW, errW io.Writer, cfg *Config) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, errW)
	logger.Debug("Logger configured successfully.")

	return &App{
		outW:    outW,
		logger:  logger,
		config:  cfg,
		runtime: runtime.New(runtime.Options{DataDir: cfg.DataDir}),
	}
}

// Runtime returns the application's runtime. This is primarily for testing.
func (a *App) Runtime() *runtime.Runtime {
	return a.runtime
}
