package intercom

import (
	"github.com/vhodhq/vhod/internal/intercom/domain"
	"github.com/vhodhq/vhod/internal/intercom/service"
	"github.com/vhodhq/vhod/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("intercom.service",
	fx.Provide(repository.ProvideStore[domain.Endpoint]),
	fx.Provide(service.NewService),
)
