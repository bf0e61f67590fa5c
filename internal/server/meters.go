package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	meteringdomain "github.com/vhodhq/vhod/internal/metering/domain"
	"github.com/vhodhq/vhod/internal/policy"
)

type registerMeterRequest struct {
	UnitID snowflake.ID `json:"unit_id" binding:"required"`
	Kind   string       `json:"kind" binding:"required"`
	Serial string       `json:"serial"`
}

func (s *Server) RegisterMeter(c *gin.Context) {
	buildingID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if !s.authorize(c, buildingID, policy.ActionReadingRecord) {
		return
	}

	var req registerMeterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	unit, err := s.buildingSvc.GetUnit(c.Request.Context(), req.UnitID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if unit.BuildingID != buildingID {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	meter, err := s.meteringSvc.RegisterMeter(c.Request.Context(), meteringdomain.RegisterMeterRequest{
		BuildingID: buildingID,
		UnitID:     req.UnitID,
		Kind:       req.Kind,
		Serial:     req.Serial,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, meter)
}

func (s *Server) ListMeters(c *gin.Context) {
	buildingID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if !s.authorize(c, buildingID, policy.ActionReadingView) {
		return
	}
	meters, err := s.meteringSvc.ListMeters(c.Request.Context(), buildingID, c.Query("kind"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"meters": meters})
}

func (s *Server) ListReadings(c *gin.Context) {
	meterID, ok := paramID(c, "id")
	if !ok {
		return
	}
	meter, err := s.meteringSvc.GetMeter(c.Request.Context(), meterID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !s.authorizeUnit(c, meter.BuildingID, meter.UnitID, policy.ActionReadingView) {
		return
	}
	readings, err := s.meteringSvc.ListReadings(c.Request.Context(), meterID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"readings": readings})
}

type recordReadingRequest struct {
	Period     string `json:"period" binding:"required"`
	ValueMilli int64  `json:"value_milli"`
}

func (s *Server) RecordReading(c *gin.Context) {
	meterID, ok := paramID(c, "id")
	if !ok {
		return
	}
	meter, err := s.meteringSvc.GetMeter(c.Request.Context(), meterID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !s.authorizeUnit(c, meter.BuildingID, meter.UnitID, policy.ActionReadingRecord) {
		return
	}

	var req recordReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	period, ok := parsePeriodParam(c, req.Period)
	if !ok {
		return
	}

	reading, err := s.meteringSvc.RecordReading(c.Request.Context(), meteringdomain.RecordReadingRequest{
		MeterID:    meterID,
		Period:     period,
		ValueMilli: req.ValueMilli,
		Source:     meteringdomain.SourceManual,
		RecordedBy: snowflake.ID(currentIdentity(c).UserID),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, reading)
}

func (s *Server) ImportReadings(c *gin.Context) {
	buildingID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if !s.authorize(c, buildingID, policy.ActionReadingRecord) {
		return
	}
	period, ok := queryPeriod(c)
	if !ok {
		return
	}
	kind := strings.TrimSpace(c.Query("kind"))
	if kind == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	imported, err := s.meteringSvc.ImportReadings(c.Request.Context(), buildingID, kind, period)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": imported})
}
