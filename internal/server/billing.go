package server

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	billingdomain "github.com/vhodhq/vhod/internal/billing/domain"
	"github.com/vhodhq/vhod/internal/policy"
	"github.com/vhodhq/vhod/internal/providers/pdf"
)

func (s *Server) IssueInvoices(c *gin.Context) {
	buildingID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if !s.authorize(c, buildingID, policy.ActionInvoiceIssue) {
		return
	}
	period, ok := queryPeriod(c)
	if !ok {
		return
	}

	invoices, err := s.billingSvc.IssueInvoices(c.Request.Context(), buildingID, period)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"invoices": invoices})
}

func (s *Server) ListInvoices(c *gin.Context) {
	buildingID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if !s.authorize(c, buildingID, policy.ActionInvoiceView) {
		return
	}
	period, ok := queryPeriod(c)
	if !ok {
		return
	}
	invoices, err := s.billingSvc.ListInvoices(c.Request.Context(), buildingID, period)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invoices})
}

func (s *Server) GetInvoice(c *gin.Context) {
	invoice, ok := s.invoiceForAction(c, policy.ActionInvoiceView)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, invoice)
}

func (s *Server) ListUnitInvoices(c *gin.Context) {
	unitID, ok := paramID(c, "id")
	if !ok {
		return
	}
	unit, err := s.buildingSvc.GetUnit(c.Request.Context(), unitID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !s.authorizeUnit(c, unit.BuildingID, unit.ID, policy.ActionInvoiceView) {
		return
	}
	invoices, err := s.billingSvc.ListUnitInvoices(c.Request.Context(), unitID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": invoices})
}

func (s *Server) GetUnitCredit(c *gin.Context) {
	unitID, ok := paramID(c, "id")
	if !ok {
		return
	}
	unit, err := s.buildingSvc.GetUnit(c.Request.Context(), unitID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !s.authorizeUnit(c, unit.BuildingID, unit.ID, policy.ActionInvoiceView) {
		return
	}
	balance, err := s.billingSvc.CreditBalance(c.Request.Context(), unitID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unit_id": unitID, "balance_cents": balance})
}

func (s *Server) ListPayments(c *gin.Context) {
	invoice, ok := s.invoiceForAction(c, policy.ActionInvoiceView)
	if !ok {
		return
	}
	payments, err := s.billingSvc.ListPayments(c.Request.Context(), invoice.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

type recordPaymentRequest struct {
	AmountCents int64  `json:"amount_cents" binding:"required"`
	Method      string `json:"method"`
	Reference   string `json:"reference"`
}

func (s *Server) RecordPayment(c *gin.Context) {
	invoice, ok := s.invoiceForAction(c, policy.ActionPaymentRecord)
	if !ok {
		return
	}

	var req recordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	updated, err := s.billingSvc.ApplyPayment(c.Request.Context(), billingdomain.ApplyPaymentRequest{
		InvoiceID:   invoice.ID,
		AmountCents: req.AmountCents,
		Method:      req.Method,
		Reference:   req.Reference,
		ReceivedBy:  snowflake.ID(currentIdentity(c).UserID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) VoidInvoice(c *gin.Context) {
	invoice, ok := s.invoiceForAction(c, policy.ActionInvoiceVoid)
	if !ok {
		return
	}
	updated, err := s.billingSvc.VoidInvoice(c.Request.Context(), invoice.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) AddLateFee(c *gin.Context) {
	invoice, ok := s.invoiceForAction(c, policy.ActionLateFeeApply)
	if !ok {
		return
	}
	updated, err := s.billingSvc.AddLateFee(c.Request.Context(), invoice.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) RecalculateInvoice(c *gin.Context) {
	invoice, ok := s.invoiceForAction(c, policy.ActionInvoiceIssue)
	if !ok {
		return
	}
	updated, err := s.billingSvc.Recalculate(c.Request.Context(), invoice.ID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) RenderInvoicePDF(c *gin.Context) {
	if s.pdfProvider == nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	invoice, ok := s.invoiceForAction(c, policy.ActionInvoiceView)
	if !ok {
		return
	}

	doc, err := s.buildInvoiceDocument(c, invoice)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	reader, err := s.pdfProvider.RenderInvoice(c.Request.Context(), doc)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	raw, err := io.ReadAll(reader)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+invoice.Number+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", raw)
}

func (s *Server) buildInvoiceDocument(c *gin.Context, invoice *billingdomain.Invoice) (pdf.InvoiceDocument, error) {
	ctx := c.Request.Context()

	building, err := s.buildingSvc.GetByID(ctx, invoice.BuildingID)
	if err != nil {
		return pdf.InvoiceDocument{}, err
	}
	unit, err := s.buildingSvc.GetUnit(ctx, invoice.UnitID)
	if err != nil {
		return pdf.InvoiceDocument{}, err
	}
	allocations, err := s.allocationSvc.ActiveForUnitPeriod(ctx, invoice.UnitID, invoice.Period)
	if err != nil {
		return pdf.InvoiceDocument{}, err
	}

	resident := ""
	memberships, err := s.directorySvc.ActiveForUnit(ctx, invoice.UnitID, time.Time{})
	if err == nil && len(memberships) > 0 {
		if user, uerr := s.directorySvc.GetUser(ctx, memberships[0].UserID); uerr == nil {
			resident = user.FullName
		}
	}

	items := make([]pdf.LineItem, 0, len(allocations))
	var subtotal int64
	for _, allocation := range allocations {
		snapshot := allocation.Snapshot.Data()
		name := s.categoryNameForExpense(ctx, allocation.ExpenseID)
		items = append(items, pdf.LineItem{
			Category:    name,
			Method:      string(snapshot.Method),
			AmountCents: allocation.AmountCents,
		})
		subtotal += allocation.AmountCents
	}

	return pdf.InvoiceDocument{
		Number:           invoice.Number,
		Period:           invoice.Period.String(),
		Status:           string(invoice.Status),
		IssueDate:        invoice.IssuedAt.Format("2006-01-02"),
		DueDate:          invoice.DueDate.Format("2006-01-02"),
		BuildingName:     building.Name,
		Address:          building.Address,
		UnitLabel:        unit.Label,
		ResidentName:     resident,
		Items:            items,
		SubtotalCents:    subtotal,
		LateFeeCents:     invoice.LateFeeCents,
		CreditUsedCents:  invoice.CreditUsedCents,
		PaidCents:        invoice.AmountPaidCents,
		OutstandingCents: invoice.Outstanding(),
	}, nil
}

func (s *Server) categoryNameForExpense(ctx context.Context, expenseID snowflake.ID) string {
	expense, err := s.expenseSvc.GetExpense(ctx, expenseID)
	if err != nil {
		return "expense " + strconv.FormatInt(int64(expenseID), 10)
	}
	category, err := s.expenseSvc.GetCategory(ctx, expense.CategoryID)
	if err != nil {
		return expense.Description
	}
	return category.Name
}

// invoiceForAction loads the invoice and authorizes the action in its
// building.
func (s *Server) invoiceForAction(c *gin.Context, action string) (*billingdomain.Invoice, bool) {
	id, ok := paramID(c, "id")
	if !ok {
		return nil, false
	}
	invoice, err := s.billingSvc.GetInvoice(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	if !s.authorizeUnit(c, invoice.BuildingID, invoice.UnitID, action) {
		return nil, false
	}
	return invoice, true
}
