package directory

import (
	"time"

	"github.com/vhodhq/vhod/internal/config"
	"github.com/vhodhq/vhod/internal/directory/domain"
	"github.com/vhodhq/vhod/internal/directory/service"
	"github.com/vhodhq/vhod/internal/identity"
	"github.com/vhodhq/vhod/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("directory.service",
	fx.Provide(repository.ProvideStore[domain.User]),
	fx.Provide(service.NewService),
	fx.Provide(func(svc domain.Service, cfg config.Config) identity.Provider {
		return identity.NewTimeoutProvider(
			service.NewIdentityProvider(svc),
			time.Duration(cfg.IdentityTimeoutMS)*time.Millisecond,
		)
	}),
)
