package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"ingest/internal/config"
	"ingest/internal/logger"
)

type shutdownHook struct {
	name string
	fn   func(ctx context.Context) error
}

// Base carries what every service process shares: its configuration, its
// logger and the components to close on the way out.
type Base struct {
	Config *config.Config
	Logger logger.Logger

	hooks []shutdownHook
}

func NewBase(cfg *config.Config, log logger.Logger) *Base {
	return &Base{
		Config: cfg,
		Logger: log,
	}
}

// OnShutdown registers fn to run during Shutdown. Hooks run in reverse
// registration order, so components close before what they depend on.
func (b *Base) OnShutdown(name string, fn func(ctx context.Context) error) {
	b.hooks = append(b.hooks, shutdownHook{name: name, fn: fn})
}

// Shutdown runs every hook even when earlier ones fail and joins the errors.
func (b *Base) Shutdown(ctx context.Context) error {
	b.Logger.InfowCtx(ctx, "Shutting down application...")

	var errs []error
	for i := len(b.hooks) - 1; i >= 0; i-- {
		h := b.hooks[i]
		if err := h.fn(ctx); err != nil {
			b.Logger.WarnwCtx(ctx, "Shutdown step failed", "component", h.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
		}
	}
	b.hooks = nil

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	b.Logger.InfowCtx(ctx, "Application exited successfully")
	return nil
}
