package availability

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medassist/booking-api/internal/middleware"
	"github.com/medassist/booking-api/internal/model"
	"github.com/medassist/booking-api/pkg/errors"
	"github.com/medassist/booking-api/pkg/httputil"
)

type Service interface {
	SetAvailability(ctx context.Context, principal model.Principal, req *model.SetAvailabilityRequest) ([]*model.Availability, error)
	ListForDoctor(ctx context.Context, doctorID uuid.UUID, date model.Date) ([]*model.Availability, error)
	ListAvailableDoctors(ctx context.Context, date model.Date) ([]*model.DoctorSlots, error)
}

var errInvalidDate = errors.BadRequest("date must be formatted as YYYY-MM-DD", nil)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	doctors := r.Group("/doctors")
	{
		doctors.POST("/availability", middleware.RequireRole(model.RoleDoctor), h.SetAvailability)
		doctors.GET("/availability/:date", middleware.RequireRole(model.RoleDoctor), h.MySchedule)
		doctors.GET("/available/:date", h.AvailableDoctors)
	}
}

func (h *Handler) SetAvailability(c *gin.Context) {
	principal, _ := middleware.GetPrincipal(c)

	var req model.SetAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, middleware.BindingError(err))
		return
	}

	slots, err := h.service.SetAvailability(c.Request.Context(), principal, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondCreated(c, "availability updated", slots)
}

// MySchedule lists the calling doctor's slots on a date, booked ones included.
func (h *Handler) MySchedule(c *gin.Context) {
	principal, _ := middleware.GetPrincipal(c)

	date, err := model.ParseDate(c.Param("date"))
	if err != nil {
		httputil.RespondWithError(c, errInvalidDate)
		return
	}

	slots, err := h.service.ListForDoctor(c.Request.Context(), principal.ID, date)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, slots)
}

func (h *Handler) AvailableDoctors(c *gin.Context) {
	date, err := model.ParseDate(c.Param("date"))
	if err != nil {
		httputil.RespondWithError(c, errInvalidDate)
		return
	}

	doctors, err := h.service.ListAvailableDoctors(c.Request.Context(), date)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, doctors)
}
