package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"autopost-engine/internal/domain"
	"autopost-engine/internal/service"
	"autopost-engine/pkg/logger"
	"autopost-engine/pkg/response"
)

type StatementHandler struct {
	service service.StatementService
}

func NewStatementHandler(service service.StatementService) *StatementHandler {
	return &StatementHandler{service: service}
}

type ImportStatementRequest struct {
	CompanyCode string `json:"company_code" binding:"required"`
	FilePath    string `json:"file_path" binding:"required"`
}

type CreateStatementLineRequest struct {
	CompanyCode      string  `json:"company_code" binding:"required"`
	TransactionDate  string  `json:"transaction_date" binding:"required"`
	DepositAmount    float64 `json:"deposit_amount"`
	WithdrawalAmount float64 `json:"withdrawal_amount"`
	Balance          float64 `json:"balance"`
	Currency         string  `json:"currency"`
	BankName         string  `json:"bank_name"`
	AccountName      string  `json:"account_name"`
	AccountNumber    string  `json:"account_number"`
	Description      string  `json:"description"`
	RowSequence      int     `json:"row_sequence"`
}

type BulkCreateStatementRequest struct {
	Lines []CreateStatementLineRequest `json:"lines" binding:"required,min=1"`
}

type ListStatementsRequest struct {
	CompanyCode string `form:"company_code" binding:"required"`
	Status      string `form:"status"`
	StartDate   string `form:"start_date" binding:"required"`
	EndDate     string `form:"end_date" binding:"required"`
}

// ImportStatement godoc
// @Summary Import a bank statement file
// @Description Parse a CSV bank statement and store its lines as pending
// @Tags statements
// @Accept json
// @Produce json
// @Param import body ImportStatementRequest true "Import request"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/statements/import [post]
func (h *StatementHandler) ImportStatement(c *gin.Context) {
	var req ImportStatementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	count, err := h.service.ImportCSV(c.Request.Context(), req.CompanyCode, req.FilePath)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("file_path", req.FilePath).Error("Failed to import statement")
		response.InternalError(c, "Failed to import statement", err.Error())
		return
	}

	response.Success(c, http.StatusCreated, "Statement imported successfully", map[string]int{"imported": count})
}

// BulkCreateStatements godoc
// @Summary Bulk create statement lines
// @Description Store statement lines delivered via API instead of file import
// @Tags statements
// @Accept json
// @Produce json
// @Param lines body BulkCreateStatementRequest true "Statement lines"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/statements [post]
func (h *StatementHandler) BulkCreateStatements(c *gin.Context) {
	var req BulkCreateStatementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	lines := make([]domain.StatementLine, 0, len(req.Lines))
	for _, lineReq := range req.Lines {
		transactionDate, err := time.Parse("2006-01-02", lineReq.TransactionDate)
		if err != nil {
			response.BadRequest(c, "Invalid transaction_date format", "Use YYYY-MM-DD")
			return
		}

		lines = append(lines, domain.StatementLine{
			CompanyCode:      lineReq.CompanyCode,
			TransactionDate:  transactionDate,
			DepositAmount:    decimal.NewFromFloat(lineReq.DepositAmount),
			WithdrawalAmount: decimal.NewFromFloat(lineReq.WithdrawalAmount),
			Balance:          decimal.NewFromFloat(lineReq.Balance),
			Currency:         lineReq.Currency,
			BankName:         lineReq.BankName,
			AccountName:      lineReq.AccountName,
			AccountNumber:    lineReq.AccountNumber,
			Description:      lineReq.Description,
			RowSequence:      lineReq.RowSequence,
		})
	}

	if err := h.service.BulkCreate(c.Request.Context(), lines); err != nil {
		logger.GetLogger().WithError(err).Error("Failed to bulk create statement lines")
		response.InternalError(c, "Failed to create statement lines", err.Error())
		return
	}

	response.Success(c, http.StatusCreated, "Statement lines created successfully", map[string]int{"count": len(lines)})
}

// GetStatement godoc
// @Summary Get statement line by ID
// @Description Get a single statement line with its posting outcome
// @Tags statements
// @Produce json
// @Param id path int true "Statement line ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/statements/{id} [get]
func (h *StatementHandler) GetStatement(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "Invalid statement line id", err.Error())
		return
	}

	line, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		logger.GetLogger().WithError(err).WithField("line_id", id).Error("Statement line not found")
		response.NotFound(c, "Statement line not found")
		return
	}

	response.Success(c, http.StatusOK, "Statement line retrieved successfully", line)
}

// ListStatements godoc
// @Summary List statement lines
// @Description List statement lines of a company by status and date range
// @Tags statements
// @Produce json
// @Param company_code query string true "Company code"
// @Param status query string false "Posting status filter"
// @Param start_date query string true "Start date (YYYY-MM-DD)"
// @Param end_date query string true "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 500 {object} response.Response
// @Router /api/v1/statements [get]
func (h *StatementHandler) ListStatements(c *gin.Context) {
	var req ListStatementsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		response.BadRequest(c, "Invalid start_date format", "Use YYYY-MM-DD")
		return
	}
	endDate, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		response.BadRequest(c, "Invalid end_date format", "Use YYYY-MM-DD")
		return
	}

	var statuses []domain.PostingStatus
	if req.Status != "" {
		statuses = []domain.PostingStatus{domain.PostingStatus(req.Status)}
	}

	lines, err := h.service.ListByStatus(c.Request.Context(), req.CompanyCode, statuses, startDate, endDate)
	if err != nil {
		logger.GetLogger().WithError(err).Error("Failed to list statement lines")
		response.InternalError(c, "Failed to list statement lines", err.Error())
		return
	}

	response.Success(c, http.StatusOK, "Statement lines retrieved successfully", lines)
}
