package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	directorydomain "github.com/vhodhq/vhod/internal/directory/domain"
	"github.com/vhodhq/vhod/internal/policy"
)

type createUserRequest struct {
	Email       string   `json:"email" binding:"required"`
	FullName    string   `json:"full_name"`
	Phone       string   `json:"phone"`
	SiteRoles   []string `json:"site_roles"`
	IsSuperuser bool     `json:"is_superuser"`
}

func (s *Server) CreateUser(c *gin.Context) {
	if !s.authorize(c, 0, policy.ActionMembershipManage) {
		return
	}

	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	user, err := s.directorySvc.CreateUser(c.Request.Context(), directorydomain.CreateUserRequest{
		Email:       req.Email,
		FullName:    req.FullName,
		Phone:       req.Phone,
		SiteRoles:   req.SiteRoles,
		IsSuperuser: req.IsSuperuser,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (s *Server) GetUser(c *gin.Context) {
	if !s.authorize(c, 0, policy.ActionMembershipView) {
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	user, err := s.directorySvc.GetUser(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

type assignMembershipRequest struct {
	UserID snowflake.ID                   `json:"user_id" binding:"required"`
	UnitID snowflake.ID                   `json:"unit_id" binding:"required"`
	Role   directorydomain.MembershipRole `json:"role" binding:"required"`
	Since  *time.Time                     `json:"since,omitempty"`
}

func (s *Server) AssignMembership(c *gin.Context) {
	buildingID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if !s.authorize(c, buildingID, policy.ActionMembershipManage) {
		return
	}

	var req assignMembershipRequest
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

	assign := directorydomain.AssignRequest{
		UserID:     req.UserID,
		BuildingID: buildingID,
		UnitID:     req.UnitID,
		Role:       req.Role,
	}
	if req.Since != nil {
		assign.Since = *req.Since
	}

	membership, err := s.directorySvc.Assign(c.Request.Context(), assign)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, membership)
}

func (s *Server) ListBuildingMemberships(c *gin.Context) {
	buildingID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if !s.authorize(c, buildingID, policy.ActionMembershipView) {
		return
	}
	memberships, err := s.directorySvc.ActiveForBuilding(c.Request.Context(), buildingID, time.Time{})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"memberships": memberships})
}

func (s *Server) ListUnitMemberships(c *gin.Context) {
	unitID, ok := paramID(c, "id")
	if !ok {
		return
	}
	unit, err := s.buildingSvc.GetUnit(c.Request.Context(), unitID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !s.authorize(c, unit.BuildingID, policy.ActionMembershipView) {
		return
	}
	memberships, err := s.directorySvc.ActiveForUnit(c.Request.Context(), unitID, time.Time{})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"memberships": memberships})
}

type endMembershipRequest struct {
	At *time.Time `json:"at,omitempty"`
}

func (s *Server) EndMembership(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	membership, err := s.directorySvc.GetMembership(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !s.authorize(c, membership.BuildingID, policy.ActionMembershipManage) {
		return
	}

	var req endMembershipRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	at := time.Time{}
	if req.At != nil {
		at = *req.At
	}

	if err := s.directorySvc.End(c.Request.Context(), id, at); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ended"})
}
