// internal/handler/discovery_handler.go
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fastbus-service/internal/discovery"
	"fastbus-service/internal/utils"
)

// DiscoveryHandler lists the ports a FAST processor could be attached to
type DiscoveryHandler struct {
	scanners *discovery.ScannerManager
	logger   *utils.ServiceLogger
}

// NewDiscoveryHandler creates a new discovery handler
func NewDiscoveryHandler(scanners *discovery.ScannerManager, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		scanners: scanners,
		logger:   utils.NewServiceLogger(logger, "discovery-handler"),
	}
}

// RegisterRoutes registers discovery routes
func (h *DiscoveryHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/ports", h.ListPorts)
}

// ListPorts scans the host for serial ports
// @Summary List serial ports
// @Description Scan the host for serial ports and flag the ones configured for NET or EXP
// @Tags Discovery
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]discovery.DiscoveredPort} "Ports scanned"
// @Failure 500 {object} utils.APIResponse "Port scan failed"
// @Router /api/v1/ports [get]
func (h *DiscoveryHandler) ListPorts(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	ports, err := h.scanners.ScanAll(ctx)
	if err != nil {
		h.logger.Error("Port scan failed", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Port scan failed", err)
		return
	}
	if ports == nil {
		ports = []*discovery.DiscoveredPort{}
	}

	utils.SuccessResponse(c, http.StatusOK, "Ports scanned", ports)
}
