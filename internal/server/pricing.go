package server

import (
	"fmt"
	"net/http"
	"strings"

	pricingdomain "github.com/fauter/cochera-admin/internal/pricing/domain"
	"github.com/gin-gonic/gin"
	"github.com/gosimple/slug"
)

func (s *Server) ListVehicleTypes(c *gin.Context) {
	items, err := s.pricingSvc.ListVehicleTypes(c.Request.Context(), c.Param(garageParam))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) CreateVehicleType(c *gin.Context) {
	var req pricingdomain.VehicleTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	item, err := s.pricingSvc.CreateVehicleType(c.Request.Context(), c.Param(garageParam), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (s *Server) UpdateVehicleType(c *gin.Context) {
	id, err := parseInt64Param(c.Param("id"))
	if err != nil {
		AbortWithError(c, pricingdomain.ErrInvalidID)
		return
	}
	var req pricingdomain.VehicleTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	item, err := s.pricingSvc.UpdateVehicleType(c.Request.Context(), c.Param(garageParam), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) DeleteVehicleType(c *gin.Context) {
	id, err := parseInt64Param(c.Param("id"))
	if err != nil {
		AbortWithError(c, pricingdomain.ErrInvalidID)
		return
	}
	if err := s.pricingSvc.DeleteVehicleType(c.Request.Context(), c.Param(garageParam), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) ListTariffs(c *gin.Context) {
	items, err := s.pricingSvc.ListTariffs(c.Request.Context(), c.Param(garageParam))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) CreateTariff(c *gin.Context) {
	var req pricingdomain.TariffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	item, err := s.pricingSvc.CreateTariff(c.Request.Context(), c.Param(garageParam), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (s *Server) UpdateTariff(c *gin.Context) {
	id, err := parseInt64Param(c.Param("id"))
	if err != nil {
		AbortWithError(c, pricingdomain.ErrInvalidID)
		return
	}
	var req pricingdomain.TariffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	item, err := s.pricingSvc.UpdateTariff(c.Request.Context(), c.Param(garageParam), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (s *Server) DeleteTariff(c *gin.Context) {
	id, err := parseInt64Param(c.Param("id"))
	if err != nil {
		AbortWithError(c, pricingdomain.ErrInvalidID)
		return
	}
	if err := s.pricingSvc.DeleteTariff(c.Request.Context(), c.Param(garageParam), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) GetPriceMatrix(c *gin.Context) {
	m, err := s.pricingSvc.Matrix(c.Request.Context(), c.Param(garageParam), priceListQuery(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// UpsertPrice writes a single matrix cell. A second write to a cell that is
// still being saved is refused with cell_busy.
func (s *Server) UpsertPrice(c *gin.Context) {
	var req pricingdomain.UpsertPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	req.GarageID = c.Param(garageParam)
	if strings.TrimSpace(req.PriceList) == "" {
		req.PriceList = pricingdomain.DefaultPriceList
	}
	price, err := s.pricingSvc.UpsertPrice(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, price)
}

func (s *Server) ExportPriceSheet(c *gin.Context) {
	garageID := c.Param(garageParam)
	priceList := priceListQuery(c)
	r, err := s.pricingSvc.ExportPDF(c.Request.Context(), garageID, priceList)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	filename := fmt.Sprintf("precios-%s.pdf", slug.Make(priceList))
	c.DataFromReader(http.StatusOK, -1, "application/pdf", r, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", filename),
	})
}

func priceListQuery(c *gin.Context) string {
	if v := strings.TrimSpace(c.Query("price_list")); v != "" {
		return v
	}
	return pricingdomain.DefaultPriceList
}
