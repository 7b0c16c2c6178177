package appointment

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ankit50/mediMeet/internal/middleware"
	"github.com/ankit50/mediMeet/internal/model"
	"github.com/ankit50/mediMeet/internal/service/booking"
	apperrors "github.com/ankit50/mediMeet/pkg/errors"
	"github.com/ankit50/mediMeet/pkg/httputil"
)

type Handler struct {
	booking *booking.Service
}

func NewHandler(bookingService *booking.Service) *Handler {
	return &Handler{booking: bookingService}
}

func (h *Handler) RegisterRoutes(authed, patient, doctor *gin.RouterGroup) {
	patient.POST("/appointments", h.Book)

	authed.GET("/appointments", h.List)
	authed.GET("/appointments/:id", h.Get)
	authed.POST("/appointments/:id/cancel", h.Cancel)
	authed.GET("/appointments/:id/video-token", h.VideoToken)

	doctor.POST("/appointments/:id/complete", h.Complete)
	doctor.PATCH("/appointments/:id/notes", h.UpdateNotes)
}

func (h *Handler) Book(c *gin.Context) {
	patientID, ok := middleware.AccountID(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized("", nil))
		return
	}

	var req model.BookAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	appointment, err := h.booking.BookAppointment(c.Request.Context(), patientID, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithCreated(c, appointment)
}

// List returns the caller's own appointments: as patient for patients,
// as doctor for doctors.
func (h *Handler) List(c *gin.Context) {
	accountID, ok := middleware.AccountID(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized("", nil))
		return
	}

	filters := &model.AppointmentFilters{
		Status: model.AppointmentStatus(c.Query("status")),
	}
	if model.Role(c.GetString(middleware.ContextRole)) == model.RoleDoctor {
		filters.DoctorID = accountID
	} else {
		filters.PatientID = accountID
	}

	appointments, err := h.booking.ListAppointments(c.Request.Context(), filters)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, appointments)
}

func (h *Handler) Get(c *gin.Context) {
	accountID, appointmentID, ok := h.ids(c)
	if !ok {
		return
	}
	appointment, err := h.booking.GetAppointment(c.Request.Context(), accountID, appointmentID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, appointment)
}

func (h *Handler) Cancel(c *gin.Context) {
	accountID, appointmentID, ok := h.ids(c)
	if !ok {
		return
	}
	appointment, err := h.booking.CancelAppointment(c.Request.Context(), accountID, appointmentID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, appointment)
}

func (h *Handler) Complete(c *gin.Context) {
	accountID, appointmentID, ok := h.ids(c)
	if !ok {
		return
	}
	appointment, err := h.booking.MarkCompleted(c.Request.Context(), accountID, appointmentID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, appointment)
}

func (h *Handler) UpdateNotes(c *gin.Context) {
	accountID, appointmentID, ok := h.ids(c)
	if !ok {
		return
	}

	var req model.UpdateNotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid request body", err))
		return
	}

	appointment, err := h.booking.UpdateNotes(c.Request.Context(), accountID, appointmentID, req.Notes)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, appointment)
}

func (h *Handler) VideoToken(c *gin.Context) {
	accountID, appointmentID, ok := h.ids(c)
	if !ok {
		return
	}
	token, err := h.booking.GenerateVideoToken(c.Request.Context(), accountID, appointmentID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, token)
}

func (h *Handler) ids(c *gin.Context) (accountID, appointmentID uuid.UUID, ok bool) {
	accountID, ok = middleware.AccountID(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized("", nil))
		return uuid.Nil, uuid.Nil, false
	}
	appointmentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid appointment id", err))
		return uuid.Nil, uuid.Nil, false
	}
	return accountID, appointmentID, true
}
