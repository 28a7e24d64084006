package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/singleflight"

	"taskboard/internal/cache"
	"taskboard/internal/database"
	"taskboard/internal/models"
	"taskboard/internal/repository"
	"taskboard/pkg/logger"
)

// EventPublisher is what the handlers need from the queue layer. Publish is
// best-effort and never fails the request.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, task models.TaskSnapshot)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, models.TaskSnapshot) {}

var publisher EventPublisher = noopPublisher{}

// SetPublisher wires the event publisher invoked after task mutations.
func SetPublisher(p EventPublisher) {
	if p == nil {
		publisher = noopPublisher{}
		return
	}
	publisher = p
}

var listTasksGroup singleflight.Group

type taskListResponse struct {
	Count int           `json:"count"`
	Tasks []models.Task `json:"tasks"`
}

// ListTasks returns all tasks ordered by id (cache-first as raw bytes;
// concurrent cache misses collapse into one DB read).
func ListTasks(c *gin.Context) {
	ctx := c.Request.Context()
	if b, ok := cache.GetRawTasks(ctx); ok {
		c.Data(http.StatusOK, "application/json", b)
		return
	}
	v, err, _ := listTasksGroup.Do("tasks", func() (interface{}, error) {
		tasks, err := repository.GetAll(context.Background())
		if err != nil {
			return nil, err
		}
		return json.Marshal(taskListResponse{Count: len(tasks), Tasks: tasks})
	})
	if err != nil {
		logger.Error(ctx, "ListTasks failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list tasks"})
		return
	}
	b := v.([]byte)
	c.Data(http.StatusOK, "application/json", b)
	cache.SetRawTasksAsync(b)
}

// CreateTask inserts a task and publishes task_created. The row is committed
// before the publish attempt; a publish failure never fails the request.
func CreateTask(c *gin.Context) {
	ctx := c.Request.Context()
	var body struct {
		Title string `json:"title" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	task, err := repository.Create(ctx, body.Title)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create task"})
		return
	}
	c.JSON(http.StatusCreated, task)
	cache.InvalidateTasks(ctx)
	publisher.Publish(ctx, models.EventTaskCreated, task.Snapshot())
}

// UpdateTask applies title/completed changes, returning 404 for unknown ids.
// A completed transition publishes task_completed or task_uncompleted; a
// title-only update publishes nothing.
func UpdateTask(c *gin.Context) {
	ctx := c.Request.Context()
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid task id"})
		return
	}
	var body struct {
		Title     *string `json:"title"`
		Completed *bool   `json:"completed"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	task, err := repository.Update(ctx, id, body.Title, body.Completed)
	if errors.Is(err, repository.ErrTaskNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update task"})
		return
	}
	c.JSON(http.StatusOK, task)
	cache.InvalidateTasks(ctx)
	if body.Completed != nil {
		eventType := models.EventTaskUncompleted
		if *body.Completed {
			eventType = models.EventTaskCompleted
		}
		publisher.Publish(ctx, eventType, task.Snapshot())
	}
}

// DeleteTask removes a task. Deleting an absent id still reports success,
// and either way a task_deleted event with an id-only snapshot is published:
// tasks_deleted counts delete requests, not rows removed.
func DeleteTask(c *gin.Context) {
	ctx := c.Request.Context()
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid task id"})
		return
	}
	if err := repository.Delete(ctx, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete task"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
	cache.InvalidateTasks(ctx)
	publisher.Publish(ctx, models.EventTaskDeleted, models.TaskSnapshot{ID: id})
}

// Analytics reports live task totals plus the last seven days of counters.
func Analytics(c *gin.Context) {
	ctx := c.Request.Context()
	total, completed, err := repository.TaskTotals(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load analytics"})
		return
	}
	daily, err := repository.LastDays(ctx, 7)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load analytics"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total_tasks":     total,
		"completed_tasks": completed,
		"pending_tasks":   total - completed,
		"daily_stats":     daily,
	})
}

// Health returns 200 if the process is alive.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready returns 200 if the database answers. Used by readiness probes.
func Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	db := database.DB(ctx)
	if db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
		return
	}
	if err := db.PingContext(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database ping failed"})
		return
	}
	c.String(http.StatusOK, "OK")
}
