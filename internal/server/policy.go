package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	buildingdomain "github.com/vhodhq/vhod/internal/building/domain"
	"github.com/vhodhq/vhod/internal/policy"
)

// CheckPolicy answers "may I perform this action here" for the caller
// themselves; no extra grant is needed to ask.
func (s *Server) CheckPolicy(c *gin.Context) {
	buildingID, ok := paramID(c, "id")
	if !ok {
		return
	}
	action := strings.TrimSpace(c.Query("action"))
	if action == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	var unitID snowflake.ID
	if raw := c.Query("unit_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		unitID = snowflake.ID(parsed)
	}

	decision, err := s.policySvc.Resolve(c.Request.Context(), currentIdentity(c), buildingID, unitID, action)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

type replaceOverridesRequest struct {
	Overrides []buildingdomain.PolicyOverride `json:"overrides"`
}

// ReplacePolicyOverrides swaps the building's override set, keeping the
// copy in building settings and the enforcer in step.
func (s *Server) ReplacePolicyOverrides(c *gin.Context) {
	buildingID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if !s.authorize(c, buildingID, policy.ActionPolicyOverride) {
		return
	}

	var req replaceOverridesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if err := s.policySvc.ValidateOverrides(req.Overrides); err != nil {
		AbortWithError(c, err)
		return
	}

	building, err := s.buildingSvc.GetByID(c.Request.Context(), buildingID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	settings := building.Settings.Data()
	settings.PolicyOverrides = req.Overrides
	if _, err := s.buildingSvc.UpdateSettings(c.Request.Context(), buildingID, settings); err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.policySvc.SyncOverrides(c.Request.Context(), buildingID, req.Overrides); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"overrides": req.Overrides})
}
