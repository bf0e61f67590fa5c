package expense

import (
	"github.com/vhodhq/vhod/internal/expense/domain"
	"github.com/vhodhq/vhod/internal/expense/service"
	"github.com/vhodhq/vhod/pkg/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("expense.service",
	fx.Provide(repository.ProvideStore[domain.ExpenseCategory]),
	fx.Provide(repository.ProvideStore[domain.Expense]),
	fx.Provide(service.NewService),
)
