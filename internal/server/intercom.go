package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	intercomdomain "github.com/vhodhq/vhod/internal/intercom/domain"
	"github.com/vhodhq/vhod/internal/policy"
)

type createEndpointRequest struct {
	UnitID    int64    `json:"unit_id" binding:"required"`
	Transport string   `json:"transport" binding:"required"`
	Address   string   `json:"address" binding:"required"`
	Public    bool     `json:"public"`
	Allow     []string `json:"allow"`
	Block     []string `json:"block"`
}

func (s *Server) CreateIntercomEndpoint(c *gin.Context) {
	buildingID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if !s.authorize(c, buildingID, policy.ActionIntercomManage) {
		return
	}

	var req createEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	unit, err := s.buildingSvc.GetUnit(c.Request.Context(), snowflake.ID(req.UnitID))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if unit.BuildingID != buildingID {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	endpoint, err := s.intercomSvc.CreateEndpoint(c.Request.Context(), intercomdomain.CreateEndpointRequest{
		UnitID:    unit.ID,
		Transport: req.Transport,
		Address:   req.Address,
		Public:    req.Public,
		Allow:     req.Allow,
		Block:     req.Block,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, endpoint)
}

func (s *Server) ListIntercomEndpoints(c *gin.Context) {
	buildingID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if !s.authorize(c, buildingID, policy.ActionIntercomManage) {
		return
	}
	endpoints, err := s.intercomSvc.ListEndpoints(c.Request.Context(), buildingID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"endpoints": endpoints})
}

func (s *Server) UpdateIntercomEndpoint(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	endpoint, err := s.intercomSvc.GetEndpoint(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !s.authorize(c, endpoint.BuildingID, policy.ActionIntercomManage) {
		return
	}

	var req intercomdomain.UpdateEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	updated, err := s.intercomSvc.UpdateEndpoint(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// IntercomCall answers whether the caller may ring the endpoint's unit.
// Door hardware treats a deny as "do not connect".
func (s *Server) IntercomCall(c *gin.Context) {
	endpointID, ok := paramID(c, "id")
	if !ok {
		return
	}

	decision, err := s.intercomSvc.CanCall(c.Request.Context(), currentIdentity(c), endpointID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	status := http.StatusOK
	if !decision.Allowed {
		status = http.StatusForbidden
	}
	c.JSON(status, decision)
}
