package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bayneri/slareport/internal/jobs"
	"github.com/bayneri/slareport/internal/report"
	"github.com/bayneri/slareport/internal/spec"
)

// Submitter starts report jobs. jobs.Runner implements it.
type Submitter interface {
	Submit(ctx context.Context, req spec.Spec) (*jobs.Task, error)
}

// JobReader reads job records. Every jobs.Store implements it.
type JobReader interface {
	Get(ctx context.Context, id string) (jobs.Job, error)
	List(ctx context.Context, limit int) ([]jobs.Job, error)
}

type HandlerConfig struct {
	Defaults      spec.Defaults
	MaxWorkersCap int
	ListLimit     int
	ListMax       int
}

// ReportHandler serves report submission and retrieval.
type ReportHandler struct {
	submitter Submitter
	jobs      JobReader
	types     spec.TypeLookup
	cfg       HandlerConfig
	logger    *zap.Logger
}

func NewReportHandler(submitter Submitter, reader JobReader, types spec.TypeLookup, cfg HandlerConfig, logger *zap.Logger) *ReportHandler {
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = 20
	}
	if cfg.ListMax < cfg.ListLimit {
		cfg.ListMax = cfg.ListLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportHandler{
		submitter: submitter,
		jobs:      reader,
		types:     types,
		cfg:       cfg,
		logger:    logger,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type submitResponse struct {
	JobID  string      `json:"jobId"`
	Status jobs.Status `json:"status"`
}

type listResponse struct {
	Jobs []jobs.Job `json:"jobs"`
}

// HandleSubmit handles POST /api/v1/reports
func (h *ReportHandler) HandleSubmit(c *gin.Context) {
	var req spec.Spec
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	req.Normalize(h.cfg.Defaults)
	if err := req.Validate(h.types, h.cfg.MaxWorkersCap); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	task, err := h.submitter.Submit(c.Request.Context(), req)
	if err != nil {
		h.logger.Error("report submission failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "could not start report"})
		return
	}
	c.Header("Location", "/api/v1/reports/"+task.ID)
	c.JSON(http.StatusAccepted, submitResponse{JobID: task.ID, Status: jobs.StatusProcessing})
}

// HandleGet handles GET /api/v1/reports/:id
func (h *ReportHandler) HandleGet(c *gin.Context) {
	id := c.Param("id")
	job, err := h.jobs.Get(c.Request.Context(), id)
	if errors.Is(err, jobs.ErrNotFound) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "report not found"})
		return
	}
	if err != nil {
		h.logger.Error("report lookup failed", zap.String("job_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "could not load report"})
		return
	}

	switch c.Query("format") {
	case "", "json":
		c.JSON(http.StatusOK, job)
	case "md", "markdown":
		if job.Status != jobs.StatusCompleted {
			c.JSON(http.StatusConflict, errorResponse{Error: "report is " + string(job.Status)})
			return
		}
		r := report.Build(job.Data, job.Window)
		r.JobID = job.ID
		var buf bytes.Buffer
		if err := report.RenderMarkdown(&buf, r, report.Options{}); err != nil {
			c.JSON(http.StatusInternalServerError, errorResponse{Error: "could not render report"})
			return
		}
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", buf.Bytes())
	default:
		c.JSON(http.StatusBadRequest, errorResponse{Error: "format must be json or md"})
	}
}

// HandleList handles GET /api/v1/reports
func (h *ReportHandler) HandleList(c *gin.Context) {
	limit := h.cfg.ListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, h.cfg.ListMax)
	}

	list, err := h.jobs.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("report listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "could not list reports"})
		return
	}
	c.JSON(http.StatusOK, listResponse{Jobs: list})
}
