// internal/handler/fast_handler.go
package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fastbus-service/internal/fast"
	"fastbus-service/internal/protocol"
	"fastbus-service/internal/utils"
	"fastbus-service/internal/variables"
)

// ProcessorStatus is the API view of one processor connection
type ProcessorStatus struct {
	Processor string              `json:"processor"`
	Port      string              `json:"port"`
	Connected bool                `json:"connected"`
	Identity  fast.RemoteIdentity `json:"identity"`
	QueueLen  int                 `json:"queue_length"`
	Error     string              `json:"error,omitempty"`

	Transport *protocol.TransportStats `json:"transport,omitempty"`
}

// AddressResolution is the API view of a resolved device number string
type AddressResolution struct {
	Number   string `json:"number"`
	Address  string `json:"address"`
	Breakout int    `json:"breakout"`
	Device   string `json:"device"`
}

// FastHandler exposes the state of the FAST platform
type FastHandler struct {
	platform  *fast.Platform
	variables *variables.Store
	logger    *utils.ServiceLogger
}

// NewFastHandler creates a new FAST status handler
func NewFastHandler(platform *fast.Platform, store *variables.Store, logger *zap.Logger) *FastHandler {
	return &FastHandler{
		platform:  platform,
		variables: store,
		logger:    utils.NewServiceLogger(logger, "fast-handler"),
	}
}

// RegisterRoutes registers the FAST routes
func (h *FastHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/processors", h.ListProcessors)
	router.GET("/boards", h.ListBoards)
	router.GET("/boards/:address", h.GetBoard)
	router.POST("/boards/:address/soft-reset", h.SoftResetBoard)
	router.GET("/addresses/:number", h.ResolveAddress)
	router.GET("/variables", h.ListVariables)
	router.GET("/variables/:name", h.GetVariable)
}

// ListProcessors returns every configured processor connection
// @Summary List processors
// @Description Connection state, identity and queue depth of every configured FAST processor
// @Tags FAST
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]ProcessorStatus} "Processors retrieved"
// @Router /api/v1/processors [get]
func (h *FastHandler) ListProcessors(c *gin.Context) {
	comms := h.platform.Communicators()

	out := make([]ProcessorStatus, 0, len(comms))
	for _, comm := range comms {
		status := ProcessorStatus{
			Processor: comm.Processor(),
			Port:      comm.Port(),
			Connected: comm.IsConnected(),
			Identity:  comm.Identity(),
			QueueLen:  comm.QueueLen(),
		}
		if err := comm.Err(); err != nil {
			status.Error = err.Error()
		}
		if stats, ok := comm.TransportStats(); ok {
			status.Transport = &stats
		}
		out = append(out, status)
	}

	utils.SuccessResponse(c, http.StatusOK, "Processors retrieved", out)
}

// ListBoards returns the expansion boards in discovery order
// @Summary List expansion boards
// @Description Expansion boards in discovery order, with their breakouts
// @Tags FAST
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]fast.BoardInfo} "Expansion boards retrieved"
// @Router /api/v1/boards [get]
func (h *FastHandler) ListBoards(c *gin.Context) {
	boards := h.platform.ExpansionBoards()

	out := make([]fast.BoardInfo, 0, len(boards))
	for _, b := range boards {
		out = append(out, b.Info())
	}

	utils.SuccessResponse(c, http.StatusOK, "Expansion boards retrieved", out)
}

func (h *FastHandler) findBoard(address string) *fast.ExpansionBoard {
	for _, b := range h.platform.ExpansionBoards() {
		if strings.EqualFold(b.Address, address) || b.Name == address {
			return b
		}
	}
	return nil
}

// GetBoard returns one board by bus address or name
// @Summary Get expansion board
// @Description Look up a board by its two character bus address or its configured name
// @Tags FAST
// @Produce json
// @Param address path string true "Bus address (e.g. 48) or board name"
// @Success 200 {object} utils.APIResponse{data=fast.BoardInfo} "Expansion board retrieved"
// @Failure 404 {object} utils.APIResponse "Expansion board not found"
// @Router /api/v1/boards/{address} [get]
func (h *FastHandler) GetBoard(c *gin.Context) {
	board := h.findBoard(c.Param("address"))
	if board == nil {
		utils.ErrorResponse(c, http.StatusNotFound, "Expansion board not found", nil)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Expansion board retrieved", board.Info())
}

// SoftResetBoard turns off every output on the board's breakouts
// @Summary Soft reset expansion board
// @Description Turn off every LED and output on the board's breakouts
// @Tags FAST
// @Produce json
// @Param address path string true "Bus address (e.g. 48) or board name"
// @Success 200 {object} utils.APIResponse{data=fast.BoardInfo} "Soft reset sent"
// @Failure 404 {object} utils.APIResponse "Expansion board not found"
// @Failure 500 {object} utils.APIResponse "Soft reset failed"
// @Failure 503 {object} utils.APIResponse "FAST platform is not running"
// @Router /api/v1/boards/{address}/soft-reset [post]
func (h *FastHandler) SoftResetBoard(c *gin.Context) {
	board := h.findBoard(c.Param("address"))
	if board == nil {
		utils.ErrorResponse(c, http.StatusNotFound, "Expansion board not found", nil)
		return
	}
	if !h.platform.Started() {
		utils.ErrorResponse(c, http.StatusServiceUnavailable, "FAST platform is not running", nil)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := board.SoftReset(ctx); err != nil {
		h.logger.Error("Soft reset failed", zap.String("board", board.Name), zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Soft reset failed", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Soft reset sent", board.Info())
}

// ResolveAddress resolves a device number string such as exp-0071-i0-b0-p1-1
// @Summary Resolve device number string
// @Description Resolve exp-<board>-i<instance>[-b<breakout>]-<device> to a bus address
// @Tags FAST
// @Produce json
// @Param number path string true "Device number string" example(exp-0071-i0-b0-p1-1)
// @Success 200 {object} utils.APIResponse{data=AddressResolution} "Address resolved"
// @Failure 400 {object} utils.APIResponse "Malformed number string"
// @Failure 404 {object} utils.APIResponse "Unknown expansion board"
// @Router /api/v1/addresses/{number} [get]
func (h *FastHandler) ResolveAddress(c *gin.Context) {
	number := c.Param("number")

	addr, breakout, device, err := fast.ResolveAddress(number)
	if err != nil {
		var cfgErr *fast.ConfigError
		if errors.As(err, &cfgErr) && cfgErr.Code == fast.CodeUnknownAddress {
			utils.ErrorResponse(c, http.StatusNotFound, "Unknown expansion board", err)
			return
		}
		utils.ValidationErrorResponse(c, map[string]string{"number": err.Error()})
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Address resolved", AddressResolution{
		Number:   number,
		Address:  addr,
		Breakout: breakout,
		Device:   device,
	})
}

// ListVariables returns every machine variable
// @Summary List machine variables
// @Tags Variables
// @Produce json
// @Success 200 {object} utils.APIResponse{data=[]variables.MachineVariable} "Machine variables retrieved"
// @Router /api/v1/variables [get]
func (h *FastHandler) ListVariables(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Machine variables retrieved", h.variables.List())
}

// GetVariable returns one machine variable
// @Summary Get machine variable
// @Tags Variables
// @Produce json
// @Param name path string true "Variable name" example(fast_exp_firmware)
// @Success 200 {object} utils.APIResponse "Machine variable retrieved"
// @Failure 404 {object} utils.APIResponse "Machine variable not found"
// @Router /api/v1/variables/{name} [get]
func (h *FastHandler) GetVariable(c *gin.Context) {
	name := c.Param("name")

	value, ok := h.variables.Get(name)
	if !ok {
		utils.ErrorResponse(c, http.StatusNotFound, "Machine variable not found", nil)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Machine variable retrieved", gin.H{
		"name":  name,
		"value": value,
	})
}
