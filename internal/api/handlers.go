package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"alert-bulletin-service/internal/db"
	"alert-bulletin-service/internal/logging"
	"alert-bulletin-service/internal/models"
	"alert-bulletin-service/internal/pipeline"
	"alert-bulletin-service/internal/providers"
)

type Handler struct {
	store       Store
	runs        RunQueue
	dispatcher  Dispatcher
	linker      providers.Linker
	logger      *logging.Logger
	initiatedBy string
}

// NewHandler wires the API. linker may be nil when object storage is not configured.
func NewHandler(store Store, runs RunQueue, dispatcher Dispatcher, linker providers.Linker, logger *logging.Logger, initiatedBy string) *Handler {
	if initiatedBy == "" {
		initiatedBy = "api"
	}
	return &Handler{
		store:       store,
		runs:        runs,
		dispatcher:  dispatcher,
		linker:      linker,
		logger:      logger,
		initiatedBy: initiatedBy,
	}
}

func (h *Handler) QueueRun(c *gin.Context) {
	var req pipeline.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warnf("Invalid run request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.InitiatedBy == "" {
		req.InitiatedBy = h.initiatedBy
	}
	if err := req.Validate(); err != nil {
		h.fail(c, "Queue run", err)
		return
	}
	if err := h.runs.QueueRun(req); err != nil {
		h.fail(c, "Queue run", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "pipeline": req.Name()})
}

func (h *Handler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	runs, err := h.store.ListRuns(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, "List runs", err)
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (h *Handler) ListAlerts(c *gin.Context) {
	var f db.AlertFilter
	if p := c.Query("period_start"); p != "" {
		period, err := time.Parse(models.DateLayout, p)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid period_start"})
			return
		}
		f.PeriodStart = &period
	}
	f.AlertType = models.AlertType(c.Query("alert_type"))
	f.Limit, _ = strconv.Atoi(c.Query("limit"))
	f.Offset, _ = strconv.Atoi(c.Query("offset"))
	if f.Offset < 0 {
		f.Offset = 0
	}

	alerts, err := h.store.ListAlerts(c.Request.Context(), f)
	if err != nil {
		h.fail(c, "List alerts", err)
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	c.JSON(http.StatusOK, alerts)
}

func (h *Handler) GetAlert(c *gin.Context) {
	key, err := models.ParseAlertKey(c.Param("id"))
	if err != nil {
		h.fail(c, "Get alert", err)
		return
	}
	alert, err := h.store.GetAlert(c.Request.Context(), key)
	if err != nil {
		h.fail(c, "Get alert", err)
		return
	}
	c.JSON(http.StatusOK, alert)
}

type deleteAlertsRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

func (h *Handler) DeleteAlerts(c *gin.Context) {
	var req deleteAlertsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	res, err := h.store.DeleteAlerts(c.Request.Context(), req.IDs)
	if err != nil {
		h.fail(c, "Delete alerts", err)
		return
	}
	h.logger.Infof("Deleted alerts: deleted=%d not_found=%d malformed=%d", res.Deleted, res.NotFound, res.Malformed)
	c.JSON(http.StatusOK, res)
}

// bulletinView adds short-lived download links to a bulletin.
type bulletinView struct {
	models.Bulletin
	AttachmentURLs []string `json:"attachment_urls,omitempty"`
}

func (h *Handler) GetBulletin(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	b, err := h.store.GetBulletin(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Get bulletin", err)
		return
	}

	view := bulletinView{Bulletin: b}
	if h.linker != nil {
		for _, att := range b.Attachments {
			url, err := h.linker.PresignGet(c.Request.Context(), att.StorageKey)
			if err != nil {
				h.logger.Warnf("Presign %s failed: %v", att.StorageKey, err)
				continue
			}
			view.AttachmentURLs = append(view.AttachmentURLs, url)
		}
	}
	c.JSON(http.StatusOK, view)
}

type dispatchRequest struct {
	Channels    []models.ChannelRequest `json:"channels" binding:"required"`
	InitiatedBy string                  `json:"initiated_by"`
}

// DispatchBulletin sends a stored bulletin right away and returns the summary.
func (h *Handler) DispatchBulletin(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	var req dispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	for _, ch := range req.Channels {
		if !ch.Channel.Valid() || strings.TrimSpace(ch.Group) == "" {
			h.fail(c, "Dispatch bulletin", fmt.Errorf("%w: invalid channel request %s/%q", models.ErrValidation, ch.Channel, ch.Group))
			return
		}
	}

	b, err := h.store.GetBulletin(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "Dispatch bulletin", err)
		return
	}
	initiatedBy := req.InitiatedBy
	if initiatedBy == "" {
		initiatedBy = h.initiatedBy
	}
	summary := h.dispatcher.DispatchGroups(c.Request.Context(), b, req.Channels, initiatedBy)
	h.logger.Infof("Dispatched bulletin %s: %s", b.ID, summary.OverallStatus)
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) ListDisseminations(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	records, err := h.store.ListDisseminationRecords(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "List disseminations", err)
		return
	}
	if records == nil {
		records = []models.DisseminationRecord{}
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) CreateChannelGroup(c *gin.Context) {
	var g models.ChannelGroup
	if err := c.ShouldBindJSON(&g); err != nil {
		h.logger.Warnf("Invalid channel group: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	created, err := h.store.CreateChannelGroup(c.Request.Context(), g)
	if err != nil {
		h.fail(c, "Create channel group", err)
		return
	}
	h.logger.Infof("Saved channel group %s/%s (%d recipients)", created.Channel, created.Name, len(created.Recipients))
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) ListChannelGroups(c *gin.Context) {
	groups, err := h.store.ListChannelGroups(c.Request.Context())
	if err != nil {
		h.fail(c, "List channel groups", err)
		return
	}
	if groups == nil {
		groups = []models.ChannelGroup{}
	}
	c.JSON(http.StatusOK, groups)
}

func (h *Handler) DeleteChannelGroup(c *gin.Context) {
	id, ok := parseUUID(c, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteChannelGroup(c.Request.Context(), id); err != nil {
		h.fail(c, "Delete channel group", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Health(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		h.logger.Errorf("Health check failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
