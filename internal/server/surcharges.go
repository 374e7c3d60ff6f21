package server

import (
	"net/http"
	"time"

	"github.com/fauter/cochera-admin/internal/surcharge"
	"github.com/gin-gonic/gin"
)

type surchargeView struct {
	*surcharge.Config
	Effective  surcharge.Rule                   `json:"effective"`
	Month      time.Month                       `json:"month"`
	Violations map[string][]surcharge.Violation `json:"violations"`
}

// GetSurcharges returns the stored rules, the rule in force this month and the
// step-order problems of each stored rule. Problems are reported, never fixed.
func (s *Server) GetSurcharges(c *gin.Context) {
	cfg, err := s.surchargeSvc.Get(c.Request.Context(), c.Param(garageParam))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	month := time.Now().Month()
	view := surchargeView{
		Config:     cfg,
		Effective:  surcharge.Effective(*cfg, month),
		Month:      month,
		Violations: map[string][]surcharge.Violation{},
	}
	if v := surcharge.Validate(cfg.Default); len(v) > 0 {
		view.Violations["default"] = v
	}
	for m, rule := range cfg.Overrides {
		if v := surcharge.Validate(rule); len(v) > 0 {
			view.Violations[monthKey(m)] = v
		}
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) SaveDefaultSurcharge(c *gin.Context) {
	var rule surcharge.Rule
	if err := c.ShouldBindJSON(&rule); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	res, err := s.surchargeSvc.SaveDefault(c.Request.Context(), c.Param(garageParam), rule)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) SaveMonthSurcharge(c *gin.Context) {
	month, ok := parseMonth(c.Param("month"))
	if !ok {
		AbortWithError(c, surcharge.ErrInvalidMonth)
		return
	}
	var rule surcharge.Rule
	if err := c.ShouldBindJSON(&rule); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	res, err := s.surchargeSvc.SaveOverride(c.Request.Context(), c.Param(garageParam), month, rule)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) DeleteMonthSurcharge(c *gin.Context) {
	month, ok := parseMonth(c.Param("month"))
	if !ok {
		AbortWithError(c, surcharge.ErrInvalidMonth)
		return
	}
	if err := s.surchargeSvc.DeleteOverride(c.Request.Context(), c.Param(garageParam), month); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func monthKey(m time.Month) string {
	return spanishMonths[m-1]
}
