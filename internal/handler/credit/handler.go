package credit

import (
	"github.com/gin-gonic/gin"

	"github.com/ankit50/mediMeet/internal/middleware"
	"github.com/ankit50/mediMeet/internal/model"
	"github.com/ankit50/mediMeet/internal/service/ledger"
	apperrors "github.com/ankit50/mediMeet/pkg/errors"
	"github.com/ankit50/mediMeet/pkg/httputil"
)

type Handler struct {
	ledger *ledger.Service
}

func NewHandler(ledgerService *ledger.Service) *Handler {
	return &Handler{ledger: ledgerService}
}

func (h *Handler) RegisterRoutes(authed *gin.RouterGroup) {
	authed.POST("/credits/allocate", h.Allocate)
	authed.GET("/credits/balance", h.Balance)
	authed.GET("/credits/transactions", h.Transactions)
}

// Allocate grants the caller their monthly plan credits. Idempotent
// within a calendar month, so the billing provider may call it on every
// login.
func (h *Handler) Allocate(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized("", nil))
		return
	}

	var req model.AllocateCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	balance, err := h.ledger.AllocateMonthlyCredits(c.Request.Context(), accountID, req.PlanID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, balance)
}

func (h *Handler) Balance(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized("", nil))
		return
	}

	balance, err := h.ledger.GetBalance(c.Request.Context(), accountID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, balance)
}

func (h *Handler) Transactions(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized("", nil))
		return
	}

	entries, err := h.ledger.GetHistory(c.Request.Context(), accountID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, entries)
}
