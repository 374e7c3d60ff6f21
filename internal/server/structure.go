package server

import (
	"net/http"

	"github.com/fauter/cochera-admin/internal/building"
	"github.com/gin-gonic/gin"
)

type capacityRequest struct {
	Capacity *int `json:"capacity"`
}

func (s *Server) GetStructure(c *gin.Context) {
	view, err := s.buildingSvc.Get(c.Request.Context(), c.Param(garageParam))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) ApplyStructure(c *gin.Context) {
	var req building.Structure
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	view, err := s.buildingSvc.ApplyStructure(c.Request.Context(), c.Param(garageParam), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) UpdateLevelCapacity(c *gin.Context) {
	levelID, err := parseInt64Param(c.Param("level_id"))
	if err != nil {
		AbortWithError(c, building.ErrInvalidID)
		return
	}
	var req capacityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Capacity == nil {
		AbortWithError(c, newValidationError("capacity", "required", "capacity is required"))
		return
	}
	level, err := s.buildingSvc.UpdateCapacity(c.Request.Context(), c.Param(garageParam), levelID, *req.Capacity)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, level)
}
