package server

import (
	"net/http"
	"strings"

	admindomain "github.com/fauter/cochera-admin/internal/admin/domain"
	auditdomain "github.com/fauter/cochera-admin/internal/audit/domain"
	"github.com/gin-gonic/gin"
)

type listAuditLogsQuery struct {
	Action string `form:"action"`
	Before string `form:"before"`
	Limit  string `form:"limit"`
}

func (s *Server) AdminListGarages(c *gin.Context) {
	items, err := s.adminSvc.ListAllGarages(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

// FactoryReset wipes tenant data. The identities of the signed-in user come
// from the session, never from the request body.
func (s *Server) FactoryReset(c *gin.Context) {
	st, err := storeFromContext(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	var req admindomain.FactoryResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.Identities = nil
	if std := st.Snapshot().Identity.Standard; std != nil {
		req.Identities = []string{std.UserID, std.Email}
	}
	if err := s.adminSvc.FactoryReset(c.Request.Context(), req); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": true})
}

func (s *Server) Diagnostics(c *gin.Context) {
	report, err := s.adminSvc.Diagnostics(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	var query listAuditLogsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	req := auditdomain.ListRequest{Action: strings.TrimSpace(query.Action)}
	before, err := parseOptionalSnowflakeID(query.Before)
	if err != nil {
		AbortWithError(c, newValidationError("before", "invalid_before", "invalid before"))
		return
	}
	if before != nil {
		req.Before = *before
	}
	limit, err := parseOptionalInt(query.Limit)
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}
	if limit != nil {
		req.Limit = *limit
	}

	items, err := s.adminSvc.ListAuditLogs(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}
