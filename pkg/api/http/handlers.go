package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/crewd/crewd/internal/application/jobs"
	"github.com/crewd/crewd/internal/application/workflow"
	"github.com/crewd/crewd/pkg/domain"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"workers":   len(s.manager.ListWorkers()),
	})
}

// handleListWorkers handles listing worker instances
func (s *Server) handleListWorkers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"workers": s.manager.ListWorkers(),
	})
}

// handleGetWorker handles getting a specific worker instance
func (s *Server) handleGetWorker(c *gin.Context) {
	id := c.Param("id")

	inst, ok := s.manager.GetWorker(id)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "WORKER_NOT_FOUND",
				Message: "Worker not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, inst)
}

// SpawnRequest represents a spawn request
type SpawnRequest struct {
	ProfileID string `json:"profile_id" binding:"required"`
}

// handleSpawnWorker handles spawning a worker from the profile catalog
func (s *Server) handleSpawnWorker(c *gin.Context) {
	var req SpawnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	inst, err := s.manager.SpawnByID(c.Request.Context(), req.ProfileID)
	if err != nil {
		s.logger.Error("spawn failed",
			zap.String("profile_id", req.ProfileID),
			zap.Error(err))

		status := http.StatusUnprocessableEntity
		code := "SPAWN_FAILED"
		if errors.Is(err, domain.ErrProfileNotFound) {
			status = http.StatusNotFound
			code = "PROFILE_NOT_FOUND"
		}
		c.JSON(status, ErrorResponse{
			Error: ErrorDetail{
				Code:    code,
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusCreated, inst)
}

// handleStopWorker handles stopping a worker
func (s *Server) handleStopWorker(c *gin.Context) {
	id := c.Param("id")

	if !s.manager.StopWorker(id) {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "WORKER_NOT_FOUND",
				Message: "Worker not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"worker_id": id,
		"status":    "stopped",
	})
}

// SendRequest represents a send request
type SendRequest struct {
	Message     string   `json:"message" binding:"required"`
	Attachments []string `json:"attachments"`
	TimeoutMs   int64    `json:"timeout_ms"`
	From        string   `json:"from"`
	Track       bool     `json:"track"`
}

// handleSend handles dispatching a message to a worker. With track=true
// the send is wrapped in a job whose id appears in the result.
func (s *Server) handleSend(c *gin.Context) {
	id := c.Param("id")

	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{
				Code:    "INVALID_REQUEST",
				Message: err.Error(),
			},
		})
		return
	}

	opts := domain.SendOptions{
		Attachments: req.Attachments,
		TimeoutMs:   req.TimeoutMs,
		From:        req.From,
	}

	var result domain.SendResult
	if req.Track {
		result = s.manager.SendTracked(c.Request.Context(), id, req.Message, opts)
	} else {
		result = s.manager.Send(c.Request.Context(), id, req.Message, opts)
	}

	c.JSON(http.StatusOK, result)
}

// handleListJobs handles GET /jobs?workerId=&limit=
func (s *Server) handleListJobs(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: ErrorDetail{
					Code:    "INVALID_REQUEST",
					Message: "limit must be a positive integer",
				},
			})
			return
		}
		limit = parsed
	}

	list := s.manager.Jobs().List(jobs.ListFilter{
		WorkerID: c.Query("workerId"),
		Limit:    limit,
	})
	c.JSON(http.StatusOK, gin.H{"jobs": list})
}

// handleGetJob handles getting a specific job
func (s *Server) handleGetJob(c *gin.Context) {
	job, err := s.manager.Jobs().Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{
				Code:    "JOB_NOT_FOUND",
				Message: err.Error(),
			},
		})
		return
	}

	c.JSON(http.StatusOK, job)
}

// AwaitRequest represents a job await request
type AwaitRequest struct {
	TimeoutMs int64 `json:"timeout_ms"`
}

// handleAwaitJob blocks until the job completes or the timeout elapses.
func (s *Server) handleAwaitJob(c *gin.Context) {
	// An empty or missing body is fine; the default timeout applies.
	var req AwaitRequest
	_ = c.ShouldBindJSON(&req)

	job, err := s.manager.Jobs().Await(c.Request.Context(), c.Param("id"), jobs.AwaitOptions{
		Timeout: time.Duration(req.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: ErrorDetail{Code: "JOB_NOT_FOUND", Message: err.Error()},
			})
		case errors.Is(err, domain.ErrAwaitTimeout):
			c.JSON(http.StatusRequestTimeout, ErrorResponse{
				Error: ErrorDetail{Code: "AWAIT_TIMEOUT", Message: err.Error()},
			})
		default:
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error: ErrorDetail{Code: "AWAIT_FAILED", Message: err.Error()},
			})
		}
		return
	}

	c.JSON(http.StatusOK, job)
}

// handleAttachReport merges a structured report into a job.
func (s *Server) handleAttachReport(c *gin.Context) {
	var report domain.JobReport
	if err := c.ShouldBindJSON(&report); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{Code: "INVALID_REQUEST", Message: err.Error()},
		})
		return
	}

	if err := s.manager.Jobs().AttachReport(c.Param("id"), &report); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{Code: "JOB_NOT_FOUND", Message: err.Error()},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"job_id": c.Param("id")})
}

// handleListWorkflows handles listing workflow definitions
func (s *Server) handleListWorkflows(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"workflows": s.workflows.List()})
}

// handleGetWorkflow handles getting a workflow definition
func (s *Server) handleGetWorkflow(c *gin.Context) {
	def, err := s.workflows.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: ErrorDetail{Code: "WORKFLOW_NOT_FOUND", Message: err.Error()},
		})
		return
	}
	c.JSON(http.StatusOK, def)
}

// RunWorkflowRequest represents a workflow run request
type RunWorkflowRequest struct {
	Task        string   `json:"task" binding:"required"`
	Attachments []string `json:"attachments"`
	AutoSpawn   bool     `json:"auto_spawn"`
}

// handleRunWorkflow executes a workflow synchronously and returns the
// full run result, including every attempted step.
func (s *Server) handleRunWorkflow(c *gin.Context) {
	var req RunWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorDetail{Code: "INVALID_REQUEST", Message: err.Error()},
		})
		return
	}

	result, err := s.workflows.Run(c.Request.Context(), workflow.RunInput{
		WorkflowID:  c.Param("id"),
		Task:        req.Task,
		Limits:      s.limits,
		Attachments: req.Attachments,
		AutoSpawn:   req.AutoSpawn,
	}, s.manager.WorkflowDeps())
	if err != nil {
		status := http.StatusUnprocessableEntity
		code := "VALIDATION_FAILED"
		if errors.Is(err, domain.ErrUnknownWorkflow) {
			status = http.StatusNotFound
			code = "WORKFLOW_NOT_FOUND"
		}
		c.JSON(status, ErrorResponse{
			Error: ErrorDetail{Code: code, Message: err.Error()},
		})
		return
	}

	c.JSON(http.StatusOK, result)
}
