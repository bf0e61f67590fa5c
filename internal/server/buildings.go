package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	buildingdomain "github.com/vhodhq/vhod/internal/building/domain"
	"github.com/vhodhq/vhod/internal/policy"
)

type createBuildingRequest struct {
	Name      string                  `json:"name" binding:"required"`
	Address   string                  `json:"address"`
	City      string                  `json:"city"`
	Entrances []string                `json:"entrances"`
	Settings  buildingdomain.Settings `json:"settings"`
}

func (s *Server) CreateBuilding(c *gin.Context) {
	if !s.authorize(c, 0, policy.ActionBuildingManage) {
		return
	}

	var req createBuildingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if err := s.policySvc.ValidateOverrides(req.Settings.PolicyOverrides); err != nil {
		AbortWithError(c, err)
		return
	}

	building, err := s.buildingSvc.Create(c.Request.Context(), buildingdomain.CreateBuildingRequest{
		Name:      req.Name,
		Address:   req.Address,
		City:      req.City,
		Entrances: req.Entrances,
		Settings:  req.Settings,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.policySvc.SyncOverrides(c.Request.Context(), building.ID, req.Settings.PolicyOverrides); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, building)
}

func (s *Server) ListBuildings(c *gin.Context) {
	if !s.authorize(c, 0, policy.ActionBuildingView) {
		return
	}
	buildings, err := s.buildingSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"buildings": buildings})
}

func (s *Server) GetBuilding(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if !s.authorize(c, id, policy.ActionBuildingView) {
		return
	}
	building, err := s.buildingSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, building)
}

func (s *Server) UpdateBuildingSettings(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if !s.authorize(c, id, policy.ActionBuildingManage) {
		return
	}

	var settings buildingdomain.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if err := s.policySvc.ValidateOverrides(settings.PolicyOverrides); err != nil {
		AbortWithError(c, err)
		return
	}

	building, err := s.buildingSvc.UpdateSettings(c.Request.Context(), id, settings)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.policySvc.SyncOverrides(c.Request.Context(), id, settings.PolicyOverrides); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, building)
}

type updateEntrancesRequest struct {
	Entrances []string `json:"entrances"`
}

func (s *Server) UpdateBuildingEntrances(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if !s.authorize(c, id, policy.ActionBuildingManage) {
		return
	}

	var req updateEntrancesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	building, err := s.buildingSvc.UpdateEntrances(c.Request.Context(), id, req.Entrances)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, building)
}

type createUnitRequest struct {
	Label       string `json:"label" binding:"required"`
	Entrance    string `json:"entrance"`
	Floor       int    `json:"floor"`
	AreaDm2     int64  `json:"area_dm2"`
	SharesMilli int64  `json:"shares_milli"`
	Occupants   int    `json:"occupants"`
	IntercomExt string `json:"intercom_ext"`
}

func (s *Server) CreateUnit(c *gin.Context) {
	buildingID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if !s.authorize(c, buildingID, policy.ActionUnitManage) {
		return
	}

	var req createUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	unit, err := s.buildingSvc.CreateUnit(c.Request.Context(), buildingdomain.CreateUnitRequest{
		BuildingID:  buildingID,
		Label:       req.Label,
		Entrance:    req.Entrance,
		Floor:       req.Floor,
		AreaDm2:     req.AreaDm2,
		SharesMilli: req.SharesMilli,
		Occupants:   req.Occupants,
		IntercomExt: req.IntercomExt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, unit)
}

func (s *Server) ListUnits(c *gin.Context) {
	buildingID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if !s.authorize(c, buildingID, policy.ActionBuildingView) {
		return
	}
	units, err := s.buildingSvc.ListUnits(c.Request.Context(), buildingID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"units": units})
}

func (s *Server) GetUnit(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	unit, err := s.buildingSvc.GetUnit(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !s.authorize(c, unit.BuildingID, policy.ActionBuildingView) {
		return
	}
	c.JSON(http.StatusOK, unit)
}

func (s *Server) UpdateUnit(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	unit, err := s.buildingSvc.GetUnit(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !s.authorizeUnit(c, unit.BuildingID, unit.ID, policy.ActionUnitManage) {
		return
	}

	var req buildingdomain.UpdateUnitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	updated, err := s.buildingSvc.UpdateUnit(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

type setUnitActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

func (s *Server) SetUnitActive(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	unit, err := s.buildingSvc.GetUnit(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !s.authorizeUnit(c, unit.BuildingID, unit.ID, policy.ActionUnitManage) {
		return
	}

	var req setUnitActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	updated, err := s.buildingSvc.SetUnitActive(c.Request.Context(), id, *req.Active)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}
