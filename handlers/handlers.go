package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"alerts-service/apperrors"
	"alerts-service/config"
	"alerts-service/middleware"
	"alerts-service/models"
	"alerts-service/service"
	ws "alerts-service/websocket"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	svc *service.Service
	hub *ws.Hub
	cfg *config.Config
}

// NewHandlers creates a new handlers instance
func NewHandlers(svc *service.Service, hub *ws.Hub, cfg *config.Config) *Handlers {
	return &Handlers{svc: svc, hub: hub, cfg: cfg}
}

// respondError maps a failure to its HTTP status and the standard envelope.
func respondError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Errorf("Internal error on %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		message = "internal server error"
	}
	c.JSON(status, gin.H{"success": false, "message": message})
}

// CreateAlert handles POST /api/v3/alerts for both JSON and multipart
// bodies.
func (h *Handlers) CreateAlert(c *gin.Context) {
	citizenID := middleware.CitizenID(c)

	var req models.CreateAlertRequest
	var files []rawUpload
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		parsed, uploads, err := h.parseMultipartAlert(c)
		if err != nil {
			respondError(c, err)
			return
		}
		req = *parsed
		files = uploads
	} else {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid json body"})
			return
		}
	}

	rawFiles, err := readUploads(files)
	if err != nil {
		respondError(c, err)
		return
	}

	alert, err := h.svc.CreateAlert(c.Request.Context(), &req, rawFiles, citizenID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "alert created",
		"data":    alert,
	})
}

// GetMyAlerts handles GET /api/v3/alerts/me
func (h *Handlers) GetMyAlerts(c *gin.Context) {
	alerts, err := h.svc.GetAlertsByCitizen(c.Request.Context(), middleware.CitizenID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": alerts})
}

// GetNearbyAlerts handles GET /api/v3/alerts/nearby
func (h *Handlers) GetNearbyAlerts(c *gin.Context) {
	lngStr := c.Query("longitude")
	if lngStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Missing 'longitude' parameter"})
		return
	}
	latStr := c.Query("latitude")
	if latStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Missing 'latitude' parameter"})
		return
	}

	longitude, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid 'longitude' parameter. Must be a valid number."})
		return
	}
	latitude, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid 'latitude' parameter. Must be a valid number."})
		return
	}

	distance := 0.0
	if distStr := c.Query("distance"); distStr != "" {
		distance, err = strconv.ParseFloat(distStr, 64)
		if err != nil || distance <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Invalid 'distance' parameter. Must be a positive number of meters."})
			return
		}
	}

	alerts, err := h.svc.GetAlertsNearby(c.Request.Context(), longitude, latitude, distance, middleware.CitizenID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": alerts})
}

// GetAlertByID handles GET /api/v3/alerts/:id
func (h *Handlers) GetAlertByID(c *gin.Context) {
	alert, err := h.svc.GetAlertByID(c.Request.Context(), c.Param("id"), middleware.CitizenID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": alert})
}

// AddComment handles POST /api/v3/alerts/:id/comments
func (h *Handlers) AddComment(c *gin.Context) {
	var req models.CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid json body"})
		return
	}
	alert, err := h.svc.AddComment(c.Request.Context(), c.Param("id"), req.Text, middleware.CitizenID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "comment added",
		"data":    alert,
	})
}

// UpdateAlertStatus handles POST /api/v3/alerts/webhook/status. The service
// key middleware has already authenticated the caller.
func (h *Handlers) UpdateAlertStatus(c *gin.Context) {
	var req models.StatusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid json body"})
		return
	}
	alert, err := h.svc.UpdateAlertStatus(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "status updated",
		"data":    alert,
	})
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	connected, broadcasts := h.hub.GetStats()
	c.JSON(http.StatusOK, gin.H{
		"status":            "healthy",
		"service":           "alerts-service",
		"time":              time.Now().UTC().Format(time.RFC3339),
		"connected_clients": connected,
		"broadcasts":        broadcasts,
	})
}
