package availability

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ankit50/mediMeet/internal/middleware"
	"github.com/ankit50/mediMeet/internal/model"
	"github.com/ankit50/mediMeet/internal/service/scheduling"
	apperrors "github.com/ankit50/mediMeet/pkg/errors"
	"github.com/ankit50/mediMeet/pkg/httputil"
)

type Handler struct {
	scheduling *scheduling.Service
}

func NewHandler(schedulingService *scheduling.Service) *Handler {
	return &Handler{scheduling: schedulingService}
}

func (h *Handler) RegisterRoutes(public, doctor *gin.RouterGroup) {
	public.GET("/doctors/:id/slots", h.GetSlots)

	doctor.POST("/availability", h.SetAvailability)
	doctor.GET("/availability", h.GetAvailability)
}

// GetSlots returns the doctor's bookable slots over the next few days,
// grouped by day. Days without free slots are present with an empty
// list.
func (h *Handler) GetSlots(c *gin.Context) {
	doctorID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid doctor id", err))
		return
	}

	days, err := h.scheduling.GetAvailableSlots(c.Request.Context(), doctorID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, days)
}

func (h *Handler) SetAvailability(c *gin.Context) {
	doctorID, ok := middleware.AccountID(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized("", nil))
		return
	}

	var req model.SetAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	window, err := h.scheduling.SetAvailability(c.Request.Context(), doctorID, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, window)
}

func (h *Handler) GetAvailability(c *gin.Context) {
	doctorID, ok := middleware.AccountID(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized("", nil))
		return
	}

	windows, err := h.scheduling.GetAvailability(c.Request.Context(), doctorID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, windows)
}
