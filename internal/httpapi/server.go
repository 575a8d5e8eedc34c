// Package httpapi exposes the queue and coordinator over a small gin HTTP
// API: task submission and status, worker status, and health.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/colonycore/colony/internal/coordinator"
	"github.com/colonycore/colony/internal/logging"
	"github.com/colonycore/colony/internal/queue"
	"github.com/colonycore/colony/internal/task"
)

// Server wires the HTTP handlers to the queue and coordinator.
type Server struct {
	q     *queue.Queue
	coord *coordinator.Coordinator
	log   *logging.Logger
}

// New creates a Server over the given queue and coordinator.
func New(q *queue.Queue, c *coordinator.Coordinator, log *logging.Logger) *Server {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Server{q: q, coord: c, log: log}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.healthz)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/tasks", s.createTask)
		v1.GET("/tasks/:id", s.getTask)
		v1.GET("/workers", s.listWorkers)
		v1.POST("/process", s.processQueue)
	}

	return r
}

// GET /healthz
func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
}

// CreateTaskRequest is the task submission body.
type CreateTaskRequest struct {
	Payload      string   `json:"payload" binding:"required"`
	Priority     int      `json:"priority"`
	Domain       string   `json:"domain"`
	From         string   `json:"from"`
	Dependencies []string `json:"dependencies"`
}

// POST /api/v1/tasks
func (s *Server) createTask(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "detail": err.Error()})
		return
	}

	from := req.From
	if from == "" {
		from = "api"
	}
	t := task.New(from, "", req.Payload, req.Priority)
	t.Domain = req.Domain

	id, err := s.q.Enqueue(t, req.Dependencies)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "enqueue failed", "detail": err.Error()})
		return
	}

	s.log.Info("task submitted via api", "task_id", id)
	qt, _ := s.q.GetTask(id)
	c.JSON(http.StatusCreated, gin.H{"task_id": id, "status": qt.Status.String()})
}

// GET /api/v1/tasks/:id
func (s *Server) getTask(c *gin.Context) {
	id := c.Param("id")

	qt, ok := s.q.GetTask(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	resp := gin.H{
		"task":         qt.Task,
		"status":       qt.Status.String(),
		"retry_count":  qt.RetryCount,
		"dependencies": qt.Dependencies,
	}
	if res, ok := s.q.GetResult(id); ok {
		resp["result"] = res
	}
	c.JSON(http.StatusOK, resp)
}

// workerView is the API projection of a registered worker.
type workerView struct {
	ID          string  `json:"id"`
	State       string  `json:"state"`
	SuccessRate float64 `json:"success_rate"`
	TaskCount   int     `json:"task_count"`
	CurrentTask string  `json:"current_task,omitempty"`
}

// GET /api/v1/workers
func (s *Server) listWorkers(c *gin.Context) {
	workers := s.coord.Workers()
	idle := 0
	views := make([]workerView, len(workers))
	for i, w := range workers {
		if w.Available() {
			idle++
		}
		views[i] = workerView{
			ID:          w.ID,
			State:       string(w.State),
			SuccessRate: w.SuccessRate,
			TaskCount:   w.TaskCount,
			CurrentTask: w.CurrentTask,
		}
	}
	c.JSON(http.StatusOK, gin.H{"workers": views, "idle": idle})
}

// POST /api/v1/process
func (s *Server) processQueue(c *gin.Context) {
	dispatched, err := s.coord.ProcessTaskQueue()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "process failed", "detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispatched": dispatched})
}

// Run starts the API server on addr, blocking until it exits.
func (s *Server) Run(addr string) error {
	s.log.Info("http api listening", "addr", addr)
	return s.Router().Run(addr)
}
