package api

import (
	"errors"
	"net/http"

	"github.com/altafino/order-mail-extractor/internal/jobs"
	"github.com/altafino/order-mail-extractor/internal/models"
	"github.com/gin-gonic/gin"
)

// submitJob handles POST /api/jobs
func (r *Router) submitJob(c *gin.Context) {
	var req struct {
		Type models.JobType `json:"type"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			errorJSON(c, http.StatusBadRequest, "invalid request")
			return
		}
	}

	job, err := r.deps.Runner.Submit(c.Request.Context(), req.Type, r.deps.Settings.Get())
	switch {
	case errors.Is(err, jobs.ErrJobRunning):
		errorJSON(c, http.StatusConflict, err.Error())
		return
	case errors.Is(err, jobs.ErrUnknownJobType):
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		errorJSON(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusAccepted, job)
}

// listJobs handles GET /api/jobs
func (r *Router) listJobs(c *gin.Context) {
	c.JSON(http.StatusOK, r.deps.Runner.List())
}

// currentJob handles GET /api/jobs/current
func (r *Router) currentJob(c *gin.Context) {
	job, ok := r.deps.Runner.Current()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"job": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

// getJob handles GET /api/jobs/:id
func (r *Router) getJob(c *gin.Context) {
	job, ok := r.deps.Runner.Get(c.Param("id"))
	if !ok {
		errorJSON(c, http.StatusNotFound, "job not found")
		return
	}
	c.JSON(http.StatusOK, job)
}

// stopJob handles POST /api/jobs/stop
func (r *Router) stopJob(c *gin.Context) {
	running := r.deps.Runner.RequestStop()
	c.JSON(http.StatusAccepted, gin.H{"stop_requested": true, "job_running": running})
}
