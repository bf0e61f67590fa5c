package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	expensedomain "github.com/vhodhq/vhod/internal/expense/domain"
	"github.com/vhodhq/vhod/internal/policy"
)

type createCategoryRequest struct {
	Name     string                         `json:"name" binding:"required"`
	Method   expensedomain.AllocationMethod `json:"method" binding:"required"`
	Settings expensedomain.CategorySettings `json:"settings"`
}

func (s *Server) CreateCategory(c *gin.Context) {
	buildingID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if !s.authorize(c, buildingID, policy.ActionExpenseCreate) {
		return
	}

	var req createCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	category, err := s.expenseSvc.CreateCategory(c.Request.Context(), expensedomain.CreateCategoryRequest{
		BuildingID: buildingID,
		Name:       req.Name,
		Method:     req.Method,
		Settings:   req.Settings,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

func (s *Server) ListCategories(c *gin.Context) {
	buildingID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if !s.authorize(c, buildingID, policy.ActionExpenseView) {
		return
	}
	categories, err := s.expenseSvc.ListCategories(c.Request.Context(), buildingID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func (s *Server) UpdateCategory(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	category, err := s.expenseSvc.GetCategory(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !s.authorize(c, category.BuildingID, policy.ActionExpenseUpdate) {
		return
	}

	var req expensedomain.UpdateCategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	updated, err := s.expenseSvc.UpdateCategory(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

type createExpenseRequest struct {
	CategoryID  snowflake.ID `json:"category_id" binding:"required"`
	Period      string       `json:"period" binding:"required"`
	Description string       `json:"description"`
	AmountCents int64        `json:"amount_cents" binding:"gte=0"`
}

func (s *Server) CreateExpense(c *gin.Context) {
	buildingID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if !s.authorize(c, buildingID, policy.ActionExpenseCreate) {
		return
	}

	var req createExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	period, err := expensedomain.ParsePeriod(req.Period)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	expense, err := s.expenseSvc.CreateExpense(c.Request.Context(), expensedomain.CreateExpenseRequest{
		BuildingID:  buildingID,
		CategoryID:  req.CategoryID,
		Period:      period,
		Description: req.Description,
		AmountCents: req.AmountCents,
		CreatedBy:   snowflake.ID(currentIdentity(c).UserID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, expense)
}

func (s *Server) ListExpenses(c *gin.Context) {
	buildingID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if !s.authorize(c, buildingID, policy.ActionExpenseView) {
		return
	}
	period, ok := queryPeriod(c)
	if !ok {
		return
	}
	expenses, err := s.expenseSvc.ListExpenses(c.Request.Context(), buildingID, period)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expenses": expenses})
}

func (s *Server) GetExpense(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	expense, err := s.expenseSvc.GetExpense(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !s.authorize(c, expense.BuildingID, policy.ActionExpenseView) {
		return
	}
	c.JSON(http.StatusOK, expense)
}

type updateExpenseAmountRequest struct {
	AmountCents int64 `json:"amount_cents" binding:"gte=0"`
}

func (s *Server) UpdateExpenseAmount(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	expense, err := s.expenseSvc.GetExpense(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !s.authorize(c, expense.BuildingID, policy.ActionExpenseUpdate) {
		return
	}

	var req updateExpenseAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	updated, err := s.expenseSvc.UpdateExpenseAmount(c.Request.Context(), id, req.AmountCents)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) VoidExpense(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	expense, err := s.expenseSvc.GetExpense(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !s.authorize(c, expense.BuildingID, policy.ActionExpenseDelete) {
		return
	}

	if err := s.expenseSvc.VoidExpense(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	// Voiding retires the expense's active allocations too.
	if _, err := s.allocationSvc.Recompute(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "voided"})
}

func (s *Server) RecomputeExpense(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	expense, err := s.expenseSvc.GetExpense(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !s.authorize(c, expense.BuildingID, policy.ActionAllocationRecompute) {
		return
	}

	result, err := s.allocationSvc.Recompute(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) RecomputePeriod(c *gin.Context) {
	buildingID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if !s.authorize(c, buildingID, policy.ActionAllocationRecompute) {
		return
	}
	period, ok := queryPeriod(c)
	if !ok {
		return
	}

	results, err := s.allocationSvc.RecomputePeriod(c.Request.Context(), buildingID, period)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) ListExpenseAllocations(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	expense, err := s.expenseSvc.GetExpense(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !s.authorize(c, expense.BuildingID, policy.ActionExpenseView) {
		return
	}

	allocations, err := s.allocationSvc.ListForExpense(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"allocations": allocations})
}

func (s *Server) ListUnitAllocations(c *gin.Context) {
	unitID, ok := paramID(c, "id")
	if !ok {
		return
	}
	unit, err := s.buildingSvc.GetUnit(c.Request.Context(), unitID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !s.authorize(c, unit.BuildingID, policy.ActionExpenseView) {
		return
	}
	period, ok := queryPeriod(c)
	if !ok {
		return
	}

	allocations, err := s.allocationSvc.ActiveForUnitPeriod(c.Request.Context(), unitID, period)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"allocations": allocations})
}

// queryPeriod reads the required "period" query parameter.
func queryPeriod(c *gin.Context) (expensedomain.Period, bool) {
	return parsePeriodParam(c, c.Query("period"))
}

func parsePeriodParam(c *gin.Context, raw string) (expensedomain.Period, bool) {
	period, err := expensedomain.ParsePeriod(strings.TrimSpace(raw))
	if err != nil {
		AbortWithError(c, err)
		return "", false
	}
	return period, true
}
