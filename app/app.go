// Package app assembles the clipstream service: configuration,
// logging, database, domain services, HTTP handlers and the server,
// wired together through fx with graceful shutdown.
package app

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tech-arch1tect/clipstream/config"
	"github.com/tech-arch1tect/clipstream/database"
	"github.com/tech-arch1tect/clipstream/handlers"
	"github.com/tech-arch1tect/clipstream/server"
	"github.com/tech-arch1tect/clipstream/services/logging"
	"github.com/tech-arch1tect/clipstream/services/session"
	"github.com/tech-arch1tect/clipstream/services/storage"
	"github.com/tech-arch1tect/clipstream/services/token"
	"github.com/tech-arch1tect/clipstream/services/user"
	"go.uber.org/fx"
)

type App struct {
	fx     *fx.App
	logger *logging.Service
}

// New builds the application. cfg may be nil, in which case
// configuration is loaded from the environment.
func New(cfg *config.Config, extra ...fx.Option) *App {
	a := &App{}

	options := []fx.Option{
		config.NewProvider(cfg),
		logging.Module,
		fx.Supply(database.WithModels(&user.User{}, &session.RefreshSession{})),
		database.Module,
		token.Options,
		user.Options,
		session.Options,
		storage.Options,
		handlers.Options,
		server.NewProvider(),
		fx.Invoke(func(logger *logging.Service) {
			a.logger = logger
		}),
		fx.NopLogger,
	}
	options = append(options, extra...)

	a.fx = fx.New(options...)
	return a
}

func (a *App) Start(ctx context.Context) error {
	return a.fx.Start(ctx)
}

func (a *App) Stop(ctx context.Context) error {
	return a.fx.Stop(ctx)
}

// Run starts the application and blocks until SIGINT or SIGTERM, then
// shuts down gracefully.
func (a *App) Run() {
	if err := a.Start(context.Background()); err != nil {
		log.Fatalf("failed to start application: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	if a.logger != nil {
		a.logger.Info("received shutdown signal, stopping gracefully")
	} else {
		log.Printf("received signal %v, shutting down gracefully", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.fx.Stop(ctx); err != nil {
		if a.logger != nil {
			a.logger.Error("failed to stop application gracefully")
		} else {
			log.Printf("failed to stop application gracefully: %v", err)
		}
	}
}
