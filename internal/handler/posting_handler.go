package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"autopost-engine/internal/service"
	"autopost-engine/pkg/logger"
	"autopost-engine/pkg/response"
)

type PostingHandler struct {
	service service.PostingService
}

func NewPostingHandler(service service.PostingService) *PostingHandler {
	return &PostingHandler{service: service}
}

type ExecuteRunRequest struct {
	CompanyCode string `json:"company_code" binding:"required"`
	TriggeredBy int64  `json:"triggered_by" binding:"required"`
}

// ExecuteRun godoc
// @Summary Execute a posting run
// @Description Process all pending statement lines of a company into vouchers
// @Tags posting
// @Accept json
// @Produce json
// @Param run body ExecuteRunRequest true "Run request"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/posting/runs [post]
func (h *PostingHandler) ExecuteRun(c *gin.Context) {
	var req ExecuteRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	run, err := h.service.ExecuteRun(c.Request.Context(), req.CompanyCode, req.TriggeredBy)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("company_code", req.CompanyCode).Error("Posting run failed")
		response.InternalError(c, "Posting run failed", err.Error())
		return
	}

	response.Success(c, http.StatusCreated, "Posting run completed", run)
}

// PreviewReservation godoc
// @Summary Preview an open-item reservation
// @Description Show which open items an amount would clear, without locking or writing
// @Tags posting
// @Accept json
// @Produce json
// @Param preview body service.PreviewRequest true "Preview request"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/posting/preview [post]
func (h *PostingHandler) PreviewReservation(c *gin.Context) {
	var req service.PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	reservation, matched, err := h.service.PreviewReservation(c.Request.Context(), req)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Reservation preview failed")
		response.InternalError(c, "Reservation preview failed", err.Error())
		return
	}

	response.Success(c, http.StatusOK, "Reservation preview completed", gin.H{
		"matched":     matched,
		"reservation": reservation,
	})
}

// GetRun godoc
// @Summary Get posting run by run ID
// @Description Get the status and counters of a posting run
// @Tags posting
// @Produce json
// @Param run_id path string true "Run ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/posting/runs/{run_id} [get]
func (h *PostingHandler) GetRun(c *gin.Context) {
	runID := c.Param("run_id")

	run, err := h.service.GetRun(c.Request.Context(), runID)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("run_id", runID).Error("Posting run not found")
		response.NotFound(c, "Posting run not found")
		return
	}

	response.Success(c, http.StatusOK, "Posting run retrieved successfully", run)
}

// ListRunItems godoc
// @Summary List per-line outcomes of a posting run
// @Description List the outcome recorded for each statement line a run touched
// @Tags posting
// @Produce json
// @Param run_id path string true "Run ID"
// @Success 200 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/posting/runs/{run_id}/items [get]
func (h *PostingHandler) ListRunItems(c *gin.Context) {
	runID := c.Param("run_id")

	items, err := h.service.ListRunItems(c.Request.Context(), runID)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("run_id", runID).Error("Failed to list run items")
		response.InternalError(c, "Failed to list run items", err.Error())
		return
	}

	response.Success(c, http.StatusOK, "Run items retrieved successfully", items)
}
