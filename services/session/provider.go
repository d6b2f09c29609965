package session

import (
	"context"

	"github.com/tech-arch1tect/clipstream/config"
	"github.com/tech-arch1tect/clipstream/services/logging"
	"github.com/tech-arch1tect/clipstream/services/token"
	"github.com/tech-arch1tect/clipstream/services/user"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func NewSessionStore(db *gorm.DB, logger *logging.Service) *Store {
	return NewStore(db, logger)
}

func NewSessionService(tokens *token.Service, users *user.Service, store *Store, logger *logging.Service) *Service {
	return NewService(tokens, users, store, logger)
}

var Options = fx.Options(
	fx.Provide(NewSessionStore),
	fx.Provide(NewSessionService),
	fx.Invoke(func(lc fx.Lifecycle, svc *Service, cfg *config.Config) {
		stop := make(chan struct{})
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				svc.StartCleanupWorker(cfg.Session.CleanupInterval, stop)
				return nil
			},
			OnStop: func(ctx context.Context) error {
				close(stop)
				return nil
			},
		})
	}),
)
