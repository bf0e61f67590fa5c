package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	allocationdomain "github.com/vhodhq/vhod/internal/allocation/domain"
	"github.com/vhodhq/vhod/internal/billing/domain"
	buildingdomain "github.com/vhodhq/vhod/internal/building/domain"
	"github.com/vhodhq/vhod/internal/clock"
	"github.com/vhodhq/vhod/internal/events"
	expensedomain "github.com/vhodhq/vhod/internal/expense/domain"
	"github.com/vhodhq/vhod/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Allocations allocationdomain.Service
	Hub         *events.Hub `optional:"true"`
	GenID       *snowflake.Node
	Clock       clock.Clock
	Metrics     *metrics.Metrics `optional:"true"`
	Log         *zap.Logger
}

type service struct {
	db          *gorm.DB
	allocations allocationdomain.Service
	hub         *events.Hub
	genID       *snowflake.Node
	clock       clock.Clock
	metrics     *metrics.Metrics
	log         *zap.Logger
}

func NewService(p Params) domain.Service {
	return &service{
		db:          p.DB,
		allocations: p.Allocations,
		hub:         p.Hub,
		genID:       p.GenID,
		clock:       p.Clock,
		metrics:     p.Metrics,
		log:         p.Log.Named("billing.service"),
	}
}

func lockRow(tx *gorm.DB) *gorm.DB {
	switch tx.Dialector.Name() {
	case "postgres", "mysql":
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	default:
		return tx
	}
}

func (s *service) buildingSettings(tx *gorm.DB, buildingID snowflake.ID) (buildingdomain.Settings, error) {
	var building buildingdomain.Building
	if err := tx.First(&building, "id = ?", buildingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return buildingdomain.Settings{}, buildingdomain.ErrBuildingNotFound
		}
		return buildingdomain.Settings{}, err
	}
	return building.Settings.Data(), nil
}

func (s *service) IssueInvoices(ctx context.Context, buildingID snowflake.ID, period expensedomain.Period) ([]domain.Invoice, error) {
	if !period.Valid() {
		return nil, expensedomain.ErrInvalidPeriod
	}

	var issued, created []domain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		settings, err := s.buildingSettings(tx, buildingID)
		if err != nil {
			return err
		}

		totals, err := s.allocations.WithTx(tx).ActiveTotalsForPeriod(ctx, buildingID, period)
		if err != nil {
			return err
		}
		if len(totals) == 0 {
			return domain.ErrNothingToInvoice
		}

		var existing []domain.Invoice
		if err := tx.Where("building_id = ? AND period = ? AND status <> ?", buildingID, period, domain.InvoiceVoid).
			Find(&existing).Error; err != nil {
			return err
		}
		existingByUnit := make(map[snowflake.ID]domain.Invoice, len(existing))
		for _, inv := range existing {
			existingByUnit[inv.UnitID] = inv
		}

		unitIDs := make([]snowflake.ID, 0, len(totals))
		for unitID := range totals {
			unitIDs = append(unitIDs, unitID)
		}
		sort.Slice(unitIDs, func(a, b int) bool { return unitIDs[a] < unitIDs[b] })

		now := s.clock.Now()
		dueDate := dueDateFor(period, settings.DueDayOrDefault())

		for _, unitID := range unitIDs {
			// A rerun hands back the invoice already issued for the unit.
			if inv, ok := existingByUnit[unitID]; ok {
				issued = append(issued, inv)
				continue
			}
			total := totals[unitID]
			if total <= 0 {
				continue
			}

			number, err := s.nextNumber(tx, unitID, period)
			if err != nil {
				return err
			}

			invoice := domain.Invoice{
				ID:             s.genID.Generate(),
				Number:         number,
				BuildingID:     buildingID,
				UnitID:         unitID,
				Period:         period,
				Status:         domain.InvoiceOpen,
				AmountDueCents: total,
				DueDate:        dueDate,
				IssuedAt:       now,
				UpdatedAt:      now,
			}

			if err := s.applyCredit(tx, &invoice, now); err != nil {
				return err
			}
			if err := tx.Create(&invoice).Error; err != nil {
				return err
			}
			issued = append(issued, invoice)
			created = append(created, invoice)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, invoice := range created {
		s.metrics.IncInvoiceIssued()
		s.hub.Publish(events.New(events.TypeInvoiceIssued, map[string]any{
			"invoice_id": invoice.ID.String(),
			"number":     invoice.Number,
			"unit_id":    invoice.UnitID.String(),
			"period":     invoice.Period.String(),
			"amount_due": invoice.AmountDueCents,
		}))
	}
	s.log.Info("invoices issued",
		zap.String("building_id", buildingID.String()),
		zap.String("period", period.String()),
		zap.Int("count", len(created)),
	)
	return issued, nil
}

// applyCredit draws down the unit's prepaid balance against a fresh
// invoice and derives the resulting status.
func (s *service) applyCredit(tx *gorm.DB, invoice *domain.Invoice, now time.Time) error {
	var credit domain.UnitCredit
	err := lockRow(tx).First(&credit, "unit_id = ?", invoice.UnitID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if credit.BalanceCents <= 0 {
		return nil
	}

	use := credit.BalanceCents
	if use > invoice.AmountDueCents {
		use = invoice.AmountDueCents
	}
	invoice.CreditUsedCents = use
	invoice.AmountPaidCents = use
	invoice.Status = deriveStatus(invoice)

	credit.BalanceCents -= use
	credit.UpdatedAt = now
	return tx.Save(&credit).Error
}

func (s *service) nextNumber(tx *gorm.DB, unitID snowflake.ID, period expensedomain.Period) (string, error) {
	var count int64
	if err := tx.Model(&domain.Invoice{}).
		Where("unit_id = ? AND period = ?", unitID, period).
		Count(&count).Error; err != nil {
		return "", err
	}
	return fmt.Sprintf("INV-%s-%s-%d", unitID, period.Compact(), count+1), nil
}

func dueDateFor(period expensedomain.Period, dueDay int) time.Time {
	next := period.End()
	return time.Date(next.Year(), next.Month(), dueDay, 0, 0, 0, 0, time.UTC)
}

func deriveStatus(invoice *domain.Invoice) domain.InvoiceStatus {
	switch {
	case invoice.AmountPaidCents >= invoice.AmountDueCents && invoice.AmountDueCents > 0:
		return domain.InvoicePaid
	case invoice.AmountPaidCents > 0:
		return domain.InvoicePartiallyPaid
	default:
		return domain.InvoiceOpen
	}
}

func (s *service) ApplyPayment(ctx context.Context, req domain.ApplyPaymentRequest) (*domain.Invoice, error) {
	if req.AmountCents <= 0 {
		return nil, domain.ErrInvalidPaymentAmount
	}
	method := req.Method
	if method == "" {
		method = "cash"
	}

	var updated domain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invoice domain.Invoice
		if err := lockRow(tx).First(&invoice, "id = ?", req.InvoiceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrInvoiceNotFound
			}
			return err
		}
		if invoice.Status == domain.InvoiceVoid {
			return domain.ErrInvoiceVoid
		}

		excess := req.AmountCents - invoice.Outstanding()
		if excess > 0 {
			settings, err := s.buildingSettings(tx, invoice.BuildingID)
			if err != nil {
				return err
			}
			if !settings.AllowOverpayment {
				return domain.ErrOverpaymentNotAllowed
			}
			if err := s.addCredit(tx, invoice.BuildingID, invoice.UnitID, excess); err != nil {
				return err
			}
		}

		now := s.clock.Now()
		payment := domain.Payment{
			ID:          s.genID.Generate(),
			InvoiceID:   invoice.ID,
			AmountCents: req.AmountCents,
			Method:      method,
			Reference:   req.Reference,
			ReceivedBy:  req.ReceivedBy,
			ReceivedAt:  now,
			CreatedAt:   now,
		}
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}

		applied := req.AmountCents
		if excess > 0 {
			applied -= excess
		}
		invoice.AmountPaidCents += applied
		invoice.Status = deriveStatus(&invoice)
		invoice.UpdatedAt = now
		if err := tx.Save(&invoice).Error; err != nil {
			return err
		}
		updated = invoice
		return nil
	})
	if err != nil {
		s.metrics.IncPaymentApplied("error")
		return nil, err
	}

	s.metrics.IncPaymentApplied(string(updated.Status))
	s.hub.Publish(events.New(events.TypePaymentApplied, map[string]any{
		"invoice_id": updated.ID.String(),
		"number":     updated.Number,
		"amount":     req.AmountCents,
		"status":     string(updated.Status),
	}))
	return &updated, nil
}

func (s *service) addCredit(tx *gorm.DB, buildingID, unitID snowflake.ID, amountCents int64) error {
	now := s.clock.Now()
	var credit domain.UnitCredit
	err := lockRow(tx).First(&credit, "unit_id = ?", unitID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return tx.Create(&domain.UnitCredit{
			UnitID:       unitID,
			BuildingID:   buildingID,
			BalanceCents: amountCents,
			UpdatedAt:    now,
		}).Error
	case err != nil:
		return err
	default:
		credit.BalanceCents += amountCents
		credit.UpdatedAt = now
		return tx.Save(&credit).Error
	}
}

func (s *service) VoidInvoice(ctx context.Context, id snowflake.ID) (*domain.Invoice, error) {
	var updated domain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invoice domain.Invoice
		if err := lockRow(tx).First(&invoice, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrInvoiceNotFound
			}
			return err
		}
		if invoice.Status == domain.InvoiceVoid {
			return domain.ErrInvoiceVoid
		}
		// Only an untouched invoice may be voided. Credit drawn at
		// issuance already moves the status off open, so settled and
		// credit-settled invoices both land here.
		if invoice.Status != domain.InvoiceOpen {
			return domain.ErrInvoiceNotVoidable
		}

		invoice.Status = domain.InvoiceVoid
		invoice.UpdatedAt = s.clock.Now()
		if err := tx.Save(&invoice).Error; err != nil {
			return err
		}
		updated = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("invoice voided", zap.String("number", updated.Number))
	return &updated, nil
}

func (s *service) AddLateFee(ctx context.Context, id snowflake.ID) (*domain.Invoice, error) {
	var updated domain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invoice domain.Invoice
		if err := lockRow(tx).First(&invoice, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrInvoiceNotFound
			}
			return err
		}
		switch invoice.Status {
		case domain.InvoiceVoid:
			return domain.ErrInvoiceVoid
		case domain.InvoicePaid:
			return domain.ErrLateFeeNotDue
		}
		if invoice.LateFeeCents > 0 {
			return domain.ErrLateFeeApplied
		}

		settings, err := s.buildingSettings(tx, invoice.BuildingID)
		if err != nil {
			return err
		}
		deadline := invoice.DueDate.AddDate(0, 0, settings.GraceDays)
		if !s.clock.Now().After(deadline) {
			return domain.ErrLateFeeNotDue
		}

		fee := (invoice.Outstanding()*settings.LateFeeBps + 5_000) / 10_000
		if fee <= 0 {
			return domain.ErrLateFeeNotDue
		}

		invoice.LateFeeCents = fee
		invoice.AmountDueCents += fee
		invoice.Status = deriveStatus(&invoice)
		invoice.UpdatedAt = s.clock.Now()
		if err := tx.Save(&invoice).Error; err != nil {
			return err
		}
		updated = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("late fee applied",
		zap.String("number", updated.Number),
		zap.Int64("fee_cents", updated.LateFeeCents),
	)
	return &updated, nil
}

func (s *service) Recalculate(ctx context.Context, id snowflake.ID) (*domain.Invoice, error) {
	var updated domain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var invoice domain.Invoice
		if err := lockRow(tx).First(&invoice, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrInvoiceNotFound
			}
			return err
		}
		if invoice.Status == domain.InvoiceVoid {
			return domain.ErrInvoiceVoid
		}
		if !invoice.NeedsRecalc {
			return domain.ErrRecalcNotNeeded
		}

		var paymentCount int64
		if err := tx.Model(&domain.Payment{}).Where("invoice_id = ?", invoice.ID).Count(&paymentCount).Error; err != nil {
			return err
		}
		if paymentCount > 0 {
			return domain.ErrRecalcAfterPayment
		}

		allocations, err := s.allocations.WithTx(tx).ActiveForUnitPeriod(ctx, invoice.UnitID, invoice.Period)
		if err != nil {
			return err
		}
		total := int64(0)
		for _, a := range allocations {
			total += a.AmountCents
		}

		now := s.clock.Now()
		// Hand back previously drawn credit, then re-apply against the
		// fresh amount.
		if invoice.CreditUsedCents > 0 {
			if err := s.addCredit(tx, invoice.BuildingID, invoice.UnitID, invoice.CreditUsedCents); err != nil {
				return err
			}
		}
		invoice.AmountDueCents = total + invoice.LateFeeCents
		invoice.AmountPaidCents = 0
		invoice.CreditUsedCents = 0
		invoice.NeedsRecalc = false
		invoice.Status = domain.InvoiceOpen
		if err := s.applyCredit(tx, &invoice, now); err != nil {
			return err
		}
		invoice.UpdatedAt = now
		if err := tx.Save(&invoice).Error; err != nil {
			return err
		}
		updated = invoice
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// FlagForRecalc marks the period's non-void invoices stale. Runs inside
// the caller's transaction; the allocation service calls it after a
// recompute.
func (s *service) FlagForRecalc(_ context.Context, tx *gorm.DB, buildingID snowflake.ID, period expensedomain.Period) (int64, error) {
	res := tx.Model(&domain.Invoice{}).
		Where("building_id = ? AND period = ? AND status <> ?", buildingID, period, domain.InvoiceVoid).
		Update("needs_recalc", true)
	return res.RowsAffected, res.Error
}

func (s *service) GetInvoice(ctx context.Context, id snowflake.ID) (*domain.Invoice, error) {
	var invoice domain.Invoice
	if err := s.db.WithContext(ctx).First(&invoice, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrInvoiceNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

func (s *service) ListInvoices(ctx context.Context, buildingID snowflake.ID, period expensedomain.Period) ([]domain.Invoice, error) {
	stmt := s.db.WithContext(ctx).Where("building_id = ?", buildingID)
	if period != "" {
		stmt = stmt.Where("period = ?", period)
	}
	var rows []domain.Invoice
	err := stmt.Order("period DESC, unit_id ASC").Find(&rows).Error
	return rows, err
}

func (s *service) ListUnitInvoices(ctx context.Context, unitID snowflake.ID) ([]domain.Invoice, error) {
	var rows []domain.Invoice
	err := s.db.WithContext(ctx).
		Where("unit_id = ?", unitID).
		Order("period DESC").
		Find(&rows).Error
	return rows, err
}

func (s *service) ListPayments(ctx context.Context, invoiceID snowflake.ID) ([]domain.Payment, error) {
	var rows []domain.Payment
	err := s.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("received_at ASC").
		Find(&rows).Error
	return rows, err
}

func (s *service) CreditBalance(ctx context.Context, unitID snowflake.ID) (int64, error) {
	var credit domain.UnitCredit
	err := s.db.WithContext(ctx).First(&credit, "unit_id = ?", unitID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return credit.BalanceCents, nil
}
