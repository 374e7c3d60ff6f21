package server

import (
	"net/http"

	staffdomain "github.com/fauter/cochera-admin/internal/staff/domain"
	"github.com/gin-gonic/gin"
)

// ListStaff lists the employees of the caller's tenant. Global admins may
// pass owner_id to look at another tenant.
func (s *Server) ListStaff(c *gin.Context) {
	items, err := s.staffSvc.List(c.Request.Context(), c.Query("owner_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) CreateStaff(c *gin.Context) {
	var req staffdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	emp, err := s.staffSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, emp)
}

func (s *Server) GetStaff(c *gin.Context) {
	emp, err := s.staffSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, emp)
}

func (s *Server) UpdateStaff(c *gin.Context) {
	var req staffdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	emp, err := s.staffSvc.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, emp)
}

func (s *Server) DeleteStaff(c *gin.Context) {
	if err := s.staffSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
