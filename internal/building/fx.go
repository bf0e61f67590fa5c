package building

import (
	"github.com/vhodhq/vhod/internal/building/domain"
	"github.com/vhodhq/vhod/internal/building/service"
	"github.com/vhodhq/vhod/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("building.service",
	fx.Provide(repository.ProvideStore[domain.Building]),
	fx.Provide(repository.ProvideStore[domain.Unit]),
	fx.Provide(service.NewService),
)
