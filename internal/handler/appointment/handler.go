package appointment

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
	Book(ctx context.Context, principal model.Principal, req *model.BookRequest) (*model.BookResponse, error)
	Respond(ctx context.Context, principal model.Principal, id uuid.UUID, req *model.RespondRequest) (*model.Appointment, error)
	List(ctx context.Context, principal model.Principal, filter model.AppointmentFilter, page model.Pagination) ([]*model.Appointment, int, error)
	PendingRequests(ctx context.Context, principal model.Principal, page model.Pagination) ([]*model.Appointment, int, error)
	Get(ctx context.Context, principal model.Principal, id uuid.UUID) (*model.Appointment, error)
	Reminders(ctx context.Context, principal model.Principal, id uuid.UUID) ([]*model.AppointmentReminder, error)
}

var errInvalidID = errors.BadRequest("invalid appointment ID", nil)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group("/appointments")
	{
		appointments.POST("/book", middleware.RequireRole(model.RolePatient), h.Book)
		appointments.PUT("/respond/:id", middleware.RequireRole(model.RoleDoctor), h.Respond)
		appointments.GET("", h.List)
		appointments.GET("/requests", middleware.RequireRole(model.RoleDoctor), h.PendingRequests)
		appointments.GET("/:id", h.Get)
		appointments.GET("/:id/reminders", middleware.RequireRole(model.RolePatient, model.RoleDoctor), h.Reminders)
	}
}

func (h *Handler) Book(c *gin.Context) {
	principal, _ := middleware.GetPrincipal(c)

	var req model.BookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, middleware.BindingError(err))
		return
	}

	resp, err := h.service.Book(c.Request.Context(), principal, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondCreated(c, "appointment requested", resp)
}

func (h *Handler) Respond(c *gin.Context) {
	principal, _ := middleware.GetPrincipal(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, errInvalidID)
		return
	}

	var req model.RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, middleware.BindingError(err))
		return
	}

	appt, err := h.service.Respond(c.Request.Context(), principal, id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, appt)
}

type listQuery struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Status   string `form:"status" binding:"omitempty,oneof=pending accepted rejected"`
	Date     string `form:"date"`
}

func (h *Handler) List(c *gin.Context) {
	principal, _ := middleware.GetPrincipal(c)

	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httputil.RespondWithError(c, middleware.BindingError(err))
		return
	}

	var filter model.AppointmentFilter
	if q.Status != "" {
		status := model.RequestStatus(q.Status)
		filter.RequestStatus = &status
	}
	if q.Date != "" {
		date, err := model.ParseDate(q.Date)
		if err != nil {
			httputil.RespondWithError(c, errors.BadRequest("date must be formatted as YYYY-MM-DD", err))
			return
		}
		filter.Date = &date
	}

	page := model.Pagination{Page: q.Page, PageSize: q.PageSize}.Normalize()
	appointments, total, err := h.service.List(c.Request.Context(), principal, filter, page)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithPagination(c, appointments, page.Page, page.PageSize, total)
}

func (h *Handler) PendingRequests(c *gin.Context) {
	principal, _ := middleware.GetPrincipal(c)

	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httputil.RespondWithError(c, middleware.BindingError(err))
		return
	}

	page := model.Pagination{Page: q.Page, PageSize: q.PageSize}.Normalize()
	appointments, total, err := h.service.PendingRequests(c.Request.Context(), principal, page)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithPagination(c, appointments, page.Page, page.PageSize, total)
}

func (h *Handler) Get(c *gin.Context) {
	principal, _ := middleware.GetPrincipal(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, errInvalidID)
		return
	}

	appt, err := h.service.Get(c.Request.Context(), principal, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, appt)
}

func (h *Handler) Reminders(c *gin.Context) {
	principal, _ := middleware.GetPrincipal(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, errInvalidID)
		return
	}

	reminders, err := h.service.Reminders(c.Request.Context(), principal, id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, reminders)
}
