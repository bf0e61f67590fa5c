package billing

import (
	allocationdomain "github.com/vhodhq/vhod/internal/allocation/domain"
	"github.com/vhodhq/vhod/internal/billing/domain"
	"github.com/vhodhq/vhod/internal/billing/service"
	"go.uber.org/fx"
)

var Module = fx.Module("billing.service",
	fx.Provide(service.NewService),
	// The allocation engine is built before billing exists, so the
	// recalc flagger is attached here instead of in its constructor.
	fx.Invoke(func(alloc allocationdomain.Service, svc domain.Service) {
		sink, ok := alloc.(allocationdomain.FlaggerSink)
		if !ok {
			return
		}
		if flagger, ok := svc.(allocationdomain.InvoiceFlagger); ok {
			sink.BindInvoiceFlagger(flagger)
		}
	}),
)
