package server

import (
	"net/http"

	garagedomain "github.com/fauter/cochera-admin/internal/garage/domain"
	"github.com/fauter/cochera-admin/internal/role"
	"github.com/gin-gonic/gin"
)

func (s *Server) ListGarages(c *gin.Context) {
	p, err := principalFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	items, err := s.garageSvc.ListAccessible(c.Request.Context(), p)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) CreateGarage(c *gin.Context) {
	var req garagedomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	g, err := s.garageSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, g)
}

func (s *Server) GetGarage(c *gin.Context) {
	g, err := s.garageSvc.Get(c.Request.Context(), c.Param(garageParam))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (s *Server) UpdateGarage(c *gin.Context) {
	var req garagedomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	g, err := s.garageSvc.Update(c.Request.Context(), c.Param(garageParam), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (s *Server) DeleteGarage(c *gin.Context) {
	if err := s.garageSvc.Delete(c.Request.Context(), c.Param(garageParam)); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GarageNav lists the sections of a garage the principal may open.
func (s *Server) GarageNav(c *gin.Context) {
	p, err := principalFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"garage_id": c.Param(garageParam),
		"sections":  role.VisibleSections(p),
	})
}
