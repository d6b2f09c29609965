package handlers

import (
	"github.com/tech-arch1tect/clipstream/config"
	"github.com/tech-arch1tect/clipstream/server"
	"github.com/tech-arch1tect/clipstream/services/logging"
	"github.com/tech-arch1tect/clipstream/services/token"
	"go.uber.org/fx"
)

var Options = fx.Options(
	fx.Provide(NewAuthHandler),
	fx.Provide(NewUserHandler),
	fx.Invoke(func(srv *server.Server, cfg *config.Config, logger *logging.Service, authHandler *AuthHandler, userHandler *UserHandler, tokens *token.Service) {
		srv.Echo().HTTPErrorHandler = NewErrorHandler(cfg, logger)
		RegisterRoutes(srv.Echo(), authHandler, userHandler, tokens)
	}),
)
