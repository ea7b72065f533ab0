package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"alert-bulletin-service/internal/db"
	"alert-bulletin-service/internal/models"
	"alert-bulletin-service/internal/pipeline"
)

// Store is the read and admin surface of the database used by the API.
type Store interface {
	ListAlerts(ctx context.Context, f db.AlertFilter) ([]models.Alert, error)
	GetAlert(ctx context.Context, key models.AlertKey) (models.Alert, error)
	DeleteAlerts(ctx context.Context, ids []string) (db.BulkDeleteResult, error)
	GetBulletin(ctx context.Context, id uuid.UUID) (models.Bulletin, error)
	ListDisseminationRecords(ctx context.Context, bulletinID uuid.UUID) ([]models.DisseminationRecord, error)
	CreateChannelGroup(ctx context.Context, g models.ChannelGroup) (models.ChannelGroup, error)
	ListChannelGroups(ctx context.Context) ([]models.ChannelGroup, error)
	DeleteChannelGroup(ctx context.Context, id uuid.UUID) error
	ListRuns(ctx context.Context, limit int) ([]models.RunRecord, error)
	Ping(ctx context.Context) error
}

// RunQueue accepts pipeline runs for asynchronous execution.
type RunQueue interface {
	QueueRun(req pipeline.RunRequest) error
}

// Dispatcher sends a stored bulletin to channel groups on demand.
type Dispatcher interface {
	DispatchGroups(ctx context.Context, b models.Bulletin, reqs []models.ChannelRequest, initiatedBy string) models.DisseminationSummary
}

// statusFor maps error classes onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrPersistenceConflict):
		return http.StatusConflict
	case errors.Is(err, pipeline.ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, action string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Errorf("%s failed: %v", action, err)
	} else {
		h.logger.Warnf("%s rejected: %v", action, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func parseUUID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + param})
		return uuid.Nil, false
	}
	return id, true
}
