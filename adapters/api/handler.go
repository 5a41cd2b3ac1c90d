package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gosplit/adapters/stats/hypothesis"
	"gosplit/domain/core"
	domain "gosplit/domain/experiment"
	"gosplit/internal"
	"gosplit/internal/errors"
	"gosplit/internal/experiment"
	"gosplit/internal/monitor"
	"gosplit/internal/power"
	"gosplit/internal/templates"
	"gosplit/ports"
)

// Handler serves the experiment JSON API
type Handler struct {
	manager *experiment.Manager
	monitor *monitor.Evaluator
	catalog *templates.Catalog
	tasks   ports.TaskSource
	hub     *SignalHub
	logger  *internal.Logger
}

// NewHandler creates a new experiment handler. Evaluator, tasks and hub may be nil.
func NewHandler(manager *experiment.Manager, evaluator *monitor.Evaluator, catalog *templates.Catalog, tasks ports.TaskSource, hub *SignalHub, logger *internal.Logger) *Handler {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Handler{
		manager: manager,
		monitor: evaluator,
		catalog: catalog,
		tasks:   tasks,
		hub:     hub,
		logger:  logger,
	}
}

type createRequest struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Template    string           `json:"template"`
	Variants    []domain.Variant `json:"variants"`
	Config      domain.Config    `json:"config"`
}

type tasksRequest struct {
	Tasks []domain.TaskContext `json:"tasks"`
}

type stopRequest struct {
	Reason string `json:"reason"`
}

type observationRequest struct {
	VariantID  core.VariantID     `json:"variant_id" binding:"required"`
	TaskID     core.TaskID        `json:"task_id"`
	Success    bool               `json:"success"`
	Metrics    map[string]float64 `json:"metrics"`
	Attributes map[string]string  `json:"attributes"`
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request %s %s failed: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": errors.GetCode(err)})
}

func experimentID(c *gin.Context) (core.ExperimentID, error) {
	id, err := core.ParseExperimentID(c.Param("id"))
	if err != nil {
		return "", errors.InvalidInput(err.Error())
	}
	return id, nil
}

// bindOptional decodes a JSON body when one is present
func bindOptional(c *gin.Context, dst interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		return errors.InvalidInput("invalid request body: " + err.Error())
	}
	return nil
}

// CreateExperiment handles POST /api/experiments
func (h *Handler) CreateExperiment(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errors.InvalidInput("invalid request body: "+err.Error()))
		return
	}

	snap, err := h.manager.Create(c.Request.Context(), experiment.CreateRequest{
		Name:        req.Name,
		Description: req.Description,
		Template:    req.Template,
		Variants:    req.Variants,
		Config:      req.Config,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, snap)
}

// ListExperiments handles GET /api/experiments?state=&limit=
func (h *Handler) ListExperiments(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.fail(c, errors.InvalidInput("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	list, err := h.manager.List(c.Request.Context(), c.Query("state"), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	if list == nil {
		list = []domain.Summary{}
	}
	c.JSON(http.StatusOK, gin.H{"experiments": list, "count": len(list)})
}

// GetExperiment handles GET /api/experiments/:id
func (h *Handler) GetExperiment(c *gin.Context) {
	id, err := experimentID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	snap, err := h.manager.Status(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// resolveTasks prefers tasks in the body and falls back to the configured source
func (h *Handler) resolveTasks(c *gin.Context) ([]domain.TaskContext, error) {
	var req tasksRequest
	if err := bindOptional(c, &req); err != nil {
		return nil, err
	}
	if len(req.Tasks) > 0 || h.tasks == nil {
		return req.Tasks, nil
	}
	tasks, err := h.tasks.LoadTasks(c.Request.Context())
	if err != nil {
		return nil, errors.Wrap(err, "failed to load tasks")
	}
	return tasks, nil
}

// StartExperiment handles POST /api/experiments/:id/start
func (h *Handler) StartExperiment(c *gin.Context) {
	id, err := experimentID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	tasks, err := h.resolveTasks(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	snap, err := h.manager.Start(c.Request.Context(), id, tasks)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// RunBatch handles POST /api/experiments/:id/batches
func (h *Handler) RunBatch(c *gin.Context) {
	id, err := experimentID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	tasks, err := h.resolveTasks(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	snap, err := h.manager.RunBatch(c.Request.Context(), id, tasks)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// PauseExperiment handles POST /api/experiments/:id/pause
func (h *Handler) PauseExperiment(c *gin.Context) {
	id, err := experimentID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	snap, err := h.manager.Pause(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// StopExperiment handles POST /api/experiments/:id/stop
func (h *Handler) StopExperiment(c *gin.Context) {
	id, err := experimentID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	var req stopRequest
	if err := bindOptional(c, &req); err != nil {
		h.fail(c, err)
		return
	}

	analysis, err := h.manager.Stop(c.Request.Context(), id, req.Reason)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

// RecordObservation handles POST /api/experiments/:id/observations
func (h *Handler) RecordObservation(c *gin.Context) {
	id, err := experimentID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	var req observationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errors.InvalidInput("invalid request body: "+err.Error()))
		return
	}

	obs, err := h.manager.RecordObservation(c.Request.Context(), id, domain.Observation{
		VariantID:  req.VariantID,
		TaskID:     req.TaskID,
		Success:    req.Success,
		Metrics:    req.Metrics,
		Attributes: req.Attributes,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, obs)
}

// GetAnalysis handles GET /api/experiments/:id/analysis. With ?family=all every
// applicable test family is run against the current samples.
func (h *Handler) GetAnalysis(c *gin.Context) {
	id, err := experimentID(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	if c.Query("family") == "all" {
		snap, err := h.manager.Status(c.Request.Context(), id)
		if err != nil {
			h.fail(c, err)
			return
		}
		ids := make([]core.VariantID, len(snap.Variants))
		for i, v := range snap.Variants {
			ids[i] = v.ID
		}
		groups := hypothesis.GroupsFromObservations(snap.Samples, ids)
		results, err := h.manager.Engine().RunAll(c.Request.Context(), groups, snap.Config.Metric, snap.Config.Alpha)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"experiment_id": id, "metric": snap.Config.Metric, "results": results})
		return
	}

	analysis, err := h.manager.Analyze(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

// GetCohorts handles GET /api/experiments/:id/cohorts/:definition
func (h *Handler) GetCohorts(c *gin.Context) {
	id, err := experimentID(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	report, err := h.manager.Cohorts(c.Request.Context(), id, c.Param("definition"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Power handles POST /api/power
func (h *Handler) Power(c *gin.Context) {
	var req power.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, errors.InvalidInput("invalid request body: "+err.Error()))
		return
	}
	result, err := power.Analyze(req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Overview handles GET /api/overview
func (h *Handler) Overview(c *gin.Context) {
	if h.monitor != nil {
		c.JSON(http.StatusOK, h.monitor.Overview())
		return
	}
	c.JSON(http.StatusOK, h.manager.Overview())
}

// ListTemplates handles GET /api/templates
func (h *Handler) ListTemplates(c *gin.Context) {
	if h.catalog == nil {
		c.JSON(http.StatusOK, gin.H{"templates": []templates.Template{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"templates": h.catalog.List()})
}
