package jobs

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rateshop-backend/internal/shared/server/middleware"
	"rateshop-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the job service.
type Handler struct {
	Svc *Service
	// SubmitLimit guards POST /jobs. Nil disables it.
	SubmitLimit gin.HandlerFunc
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches job routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	submit := []gin.HandlerFunc{h.submitJob}
	if h.SubmitLimit != nil {
		submit = append([]gin.HandlerFunc{h.SubmitLimit}, submit...)
	}
	rg.POST("/jobs", submit...)
	rg.GET("/jobs", h.listJobs)
	rg.GET("/jobs/:id", h.getJob)
	rg.GET("/jobs/:id/results", h.getResults)
}

func (h *Handler) submitJob(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	if userID == "" {
		respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
		return
	}

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "request body must be a JSON object with shipments and carrierAccountIds", nil)
		return
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	job, err := h.Svc.Submit(ctx, userID, req)
	if err != nil {
		var verr *ValidationError
		switch {
		case errors.As(err, &verr):
			respond.Error(c, http.StatusBadRequest, "validation_error", "invalid job submission", []map[string]string{
				{"field": verr.Field, "issue": verr.Issue},
			})
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to submit job", nil)
		}
		return
	}

	c.Set("jobId", job.ID)
	c.Set("statusTransition", "->"+string(job.Status))
	respond.JSON(c, http.StatusAccepted, gin.H{
		"jobId":  job.ID,
		"status": job.Status,
	})
}

func (h *Handler) getJob(c *gin.Context) {
	jobID := c.Param("id")
	c.Set("jobId", jobID)

	view, err := h.Svc.GetStatus(c.Request.Context(), middleware.UserIDFromContext(c), jobID)
	if err != nil {
		writeLookupError(c, err, "failed to fetch job")
		return
	}
	respond.OK(c, view)
}

func (h *Handler) getResults(c *gin.Context) {
	jobID := c.Param("id")
	c.Set("jobId", jobID)

	set, err := h.Svc.Results(c.Request.Context(), middleware.UserIDFromContext(c), jobID)
	if err != nil {
		writeLookupError(c, err, "failed to fetch job results")
		return
	}
	respond.OK(c, set)
}

func (h *Handler) listJobs(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	limit := 20
	offset := 0

	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit < 0 {
		limit = 0
	}
	if limit > 100 {
		limit = 100
	}

	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = 0
	}

	jobs, err := h.Svc.List(c.Request.Context(), userID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list jobs", nil)
		return
	}

	resp := make([]gin.H, 0, len(jobs))
	for _, j := range jobs {
		item := gin.H{
			"jobId":          j.ID,
			"status":         j.Status,
			"processedCount": j.ProcessedCount,
			"totalCount":     j.TotalCount,
			"createdAt":      j.CreatedAt,
		}
		if j.Summary != nil {
			item["summary"] = j.Summary
		}
		if j.Error != "" {
			item["error"] = j.Error
		}
		resp = append(resp, item)
	}
	respond.OK(c, resp)
}

func writeLookupError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "job not found", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", message, nil)
	}
}
