package apihandlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"stagehand/internal/models"
	"stagehand/internal/pipeline"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type APIHandler struct {
	Service *pipeline.Service
	Health  Pinger
}

func NewAPIHandler(svc *pipeline.Service, health Pinger) *APIHandler {
	return &APIHandler{Service: svc, Health: health}
}

// RegisterRoutes mounts the API on router.
func (h *APIHandler) RegisterRoutes(router gin.IRouter) {
	router.GET("/health", h.HealthHandler)

	v1 := router.Group("/api/v1")
	jobs := v1.Group("/jobs")
	{
		jobs.POST("", h.CreateJobHandler)
		jobs.GET("", h.ListJobsHandler)
		jobs.GET("/:id", h.GetJobHandler)
		jobs.POST("/:id/schedule", h.ScheduleHandler)
		jobs.POST("/:id/shortlist-stage", h.ShortlistStageHandler)
		jobs.GET("/:id/progress", h.PipelineProgressHandler)
		jobs.POST("/:id/screenings", h.AddScreeningHandler)
		jobs.GET("/:id/screenings", h.ListScreeningsHandler)
		jobs.POST("/:id/candidates/:candidateId/assessment-link", h.SendAssessmentLinkHandler)
		jobs.POST("/:id/candidates/:candidateId/scores", h.RecordScoreHandler)
	}
}

// NewRouter builds a gin engine with recovery and the API routes.
func NewRouter(h *APIHandler) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	h.RegisterRoutes(router)
	return router
}

func (h *APIHandler) HealthHandler(c *gin.Context) {
	if h.Health != nil {
		if err := h.Health.Ping(c.Request.Context()); err != nil {
			JSONError(c, http.StatusServiceUnavailable, "unavailable", "database unreachable")
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- Jobs ---

type createJobRequest struct {
	Title              string                 `json:"title" binding:"required"`
	Status             models.JobStatus       `json:"status"`
	Pipeline           []models.PipelineStage `json:"pipeline"`
	TotalRounds        int                    `json:"total_rounds"`
	SubmissionDeadline *time.Time             `json:"submission_deadline"`
	TopN               int                    `json:"top_n"`
}

func (h *APIHandler) CreateJobHandler(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	job, err := h.Service.CreateJob(c.Request.Context(), &models.Job{
		Title:              req.Title,
		Status:             req.Status,
		Pipeline:           req.Pipeline,
		TotalRounds:        req.TotalRounds,
		SubmissionDeadline: req.SubmissionDeadline,
		TopN:               req.TopN,
	})
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": job})
}

func (h *APIHandler) ListJobsHandler(c *gin.Context) {
	limit, err := queryInt(c, "limit", 50)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	jobs, err := h.Service.ListJobs(c.Request.Context(), limit, offset)
	if err != nil {
		WriteError(c, err)
		return
	}
	if jobs == nil {
		jobs = []*models.Job{}
	}
	c.JSON(http.StatusOK, gin.H{"data": jobs, "limit": limit, "offset": offset})
}

func (h *APIHandler) GetJobHandler(c *gin.Context) {
	jobID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	job, err := h.Service.GetJob(c.Request.Context(), jobID)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": job})
}

// --- Scheduling and elimination ---

type scheduleRequest struct {
	// StartDate is RFC 3339 or YYYY-MM-DD; empty anchors on the deadline or now.
	StartDate string `json:"start_date"`
}

func (h *APIHandler) ScheduleHandler(c *gin.Context) {
	jobID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req scheduleRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, "Invalid request body: "+err.Error())
			return
		}
	}
	anchor, err := ParseStartDate(req.StartDate, h.Service.Location())
	if err != nil {
		BadRequest(c, err.Error())
		return
	}
	job, err := h.Service.Schedule(c.Request.Context(), jobID, anchor)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": job})
}

type roundRequest struct {
	RoundNumber int `json:"round_number" binding:"required,gte=1"`
}

func (h *APIHandler) ShortlistStageHandler(c *gin.Context) {
	jobID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req roundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	count, err := h.Service.ShortlistStage(c.Request.Context(), jobID, req.RoundNumber)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"round_number": req.RoundNumber, "rejected": count}})
}

func (h *APIHandler) PipelineProgressHandler(c *gin.Context) {
	jobID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	progress, err := h.Service.PipelineProgress(c.Request.Context(), jobID)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": progress})
}

// --- Screenings ---

type addScreeningRequest struct {
	CandidateID    uuid.UUID `json:"candidate_id"`
	CandidateName  string    `json:"candidate_name" binding:"required"`
	CandidateEmail string    `json:"candidate_email" binding:"required,email"`
	Score          *float64  `json:"score" binding:"omitempty,gte=0,lte=100"`
}

func (h *APIHandler) AddScreeningHandler(c *gin.Context) {
	jobID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	var req addScreeningRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	sc, err := h.Service.AddScreening(c.Request.Context(), &models.Screening{
		JobID:          jobID,
		CandidateID:    req.CandidateID,
		CandidateName:  req.CandidateName,
		CandidateEmail: req.CandidateEmail,
		Score:          req.Score,
	})
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": sc})
}

func (h *APIHandler) ListScreeningsHandler(c *gin.Context) {
	jobID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	list, err := h.Service.ListScreenings(c.Request.Context(), jobID)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

// --- Candidates ---

func (h *APIHandler) SendAssessmentLinkHandler(c *gin.Context) {
	jobID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	candidateID, ok := pathUUID(c, "candidateId")
	if !ok {
		return
	}
	var req roundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	res, err := h.Service.SendAssessmentLink(c.Request.Context(), jobID, candidateID, req.RoundNumber)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}

type recordScoreRequest struct {
	RoundNumber int      `json:"round_number" binding:"required,gte=1"`
	Score       *float64 `json:"score" binding:"required"`
}

func (h *APIHandler) RecordScoreHandler(c *gin.Context) {
	jobID, ok := pathUUID(c, "id")
	if !ok {
		return
	}
	candidateID, ok := pathUUID(c, "candidateId")
	if !ok {
		return
	}
	var req recordScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	rec, err := h.Service.RecordRoundScore(c.Request.Context(), jobID, candidateID, req.RoundNumber, *req.Score)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rec})
}

// --- Helpers ---

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		BadRequest(c, fmt.Sprintf("Invalid %s: %q", name, c.Param(name)))
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter %q", name, raw)
	}
	return v, nil
}

// ParseStartDate accepts RFC 3339 or a bare YYYY-MM-DD, read as midnight in loc
// (UTC when loc is nil). Empty means nil.
func ParseStartDate(s string, loc *time.Location) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: start date %q is neither RFC 3339 nor YYYY-MM-DD", models.ErrValidation, s)
	}
	return &t, nil
}
