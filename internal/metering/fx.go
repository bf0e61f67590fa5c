package metering

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/vhodhq/vhod/internal/clock"
	"github.com/vhodhq/vhod/internal/config"
	"github.com/vhodhq/vhod/internal/metering/domain"
	"github.com/vhodhq/vhod/internal/metering/service"
	"github.com/vhodhq/vhod/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Source  domain.Source `optional:"true"`
	Config  config.Config
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
	Log     *zap.Logger
}

var Module = fx.Module("metering.service",
	fx.Provide(func(p Params) domain.Service {
		return service.NewService(
			p.DB,
			p.Source,
			time.Duration(p.Config.ReadingTimeoutMS)*time.Millisecond,
			p.GenID,
			p.Clock,
			p.Metrics,
			p.Log,
		)
	}),
)
