package account

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ankit50/mediMeet/internal/middleware"
	"github.com/ankit50/mediMeet/internal/model"
	accountsvc "github.com/ankit50/mediMeet/internal/service/account"
	"github.com/ankit50/mediMeet/pkg/auth"
	apperrors "github.com/ankit50/mediMeet/pkg/errors"
	"github.com/ankit50/mediMeet/pkg/httputil"
)

type Handler struct {
	accounts *accountsvc.Service
	jwt      auth.JWTService
}

func NewHandler(accounts *accountsvc.Service, jwt auth.JWTService) *Handler {
	return &Handler{accounts: accounts, jwt: jwt}
}

func (h *Handler) RegisterRoutes(public, authed, admin *gin.RouterGroup) {
	public.POST("/auth/sync", h.Sync)
	public.GET("/doctors", h.ListDoctors)
	public.GET("/doctors/:id", h.GetDoctor)

	authed.GET("/accounts/me", h.Me)
	authed.POST("/accounts/me/role", h.SetRole)

	admin.GET("/doctors/pending", h.ListPendingDoctors)
	admin.PATCH("/doctors/:id/verification", h.SetVerification)
}

type syncResponse struct {
	Account *model.Account `json:"account"`
	Token   string         `json:"token"`
}

// Sync resolves the identity provider subject to a local account and
// mints an API token for it. Called by the frontend after login.
func (h *Handler) Sync(c *gin.Context) {
	var req model.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	account, err := h.accounts.EnsureAccount(c.Request.Context(), &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	token, err := h.jwt.GenerateToken(account.ID, account.Email, string(account.Role))
	if err != nil {
		httputil.RespondWithError(c, apperrors.Internal("failed to issue token", err))
		return
	}

	httputil.RespondWithSuccess(c, syncResponse{Account: account, Token: token})
}

func (h *Handler) Me(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized("", nil))
		return
	}
	account, err := h.accounts.Get(c.Request.Context(), accountID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, account)
}

// SetRole completes onboarding. The response includes a fresh token
// because the role is baked into the JWT.
func (h *Handler) SetRole(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized("", nil))
		return
	}

	var req model.SetRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	account, err := h.accounts.SetRole(c.Request.Context(), accountID, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	token, err := h.jwt.GenerateToken(account.ID, account.Email, string(account.Role))
	if err != nil {
		httputil.RespondWithError(c, apperrors.Internal("failed to issue token", err))
		return
	}

	httputil.RespondWithSuccess(c, syncResponse{Account: account, Token: token})
}

func (h *Handler) ListDoctors(c *gin.Context) {
	doctors, err := h.accounts.ListDoctors(c.Request.Context(), model.VerificationVerified)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, doctors)
}

func (h *Handler) GetDoctor(c *gin.Context) {
	doctorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid doctor id", err))
		return
	}
	doctor, err := h.accounts.GetDoctor(c.Request.Context(), doctorID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, doctor)
}

func (h *Handler) ListPendingDoctors(c *gin.Context) {
	doctors, err := h.accounts.ListDoctors(c.Request.Context(), model.VerificationPending)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, doctors)
}

func (h *Handler) SetVerification(c *gin.Context) {
	doctorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid doctor id", err))
		return
	}

	var req model.SetVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	doctor, err := h.accounts.SetVerificationStatus(c.Request.Context(), doctorID, req.Status)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, doctor)
}
