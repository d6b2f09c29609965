package storage

import (
	"github.com/tech-arch1tect/clipstream/config"
	"github.com/tech-arch1tect/clipstream/services/logging"
	"go.uber.org/fx"
)

func NewDiskStorage(cfg *config.Config, logger *logging.Service) (Storage, error) {
	return NewDisk(cfg, logger)
}

var Options = fx.Options(
	fx.Provide(NewDiskStorage),
)
