package handlers

import (
	"net/http"
	"time"

	"daohub_backend/internal/models"
	"daohub_backend/internal/services"
	"daohub_backend/internal/services/dto"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	*BaseHandler
	notificationService services.NotificationService
}

func NewNotificationHandler(base *BaseHandler, notificationService services.NotificationService) *NotificationHandler {
	return &NotificationHandler{
		BaseHandler:         base,
		notificationService: notificationService,
	}
}

// RegisterRoutes mounts the recipient API. mw runs before every route
// (authentication, rate limiting).
func (h *NotificationHandler) RegisterRoutes(r *gin.RouterGroup, mw ...gin.HandlerFunc) {
	notifications := r.Group("/notifications")
	notifications.Use(mw...)
	{
		notifications.GET("", h.GetUserNotifications)
		notifications.GET("/unread-count", h.GetUnreadCount)
		notifications.PUT("/read-all", h.MarkAllAsRead)
		notifications.PUT("/read-multiple", h.MarkMultipleAsRead)
		notifications.DELETE("", h.DeleteUserNotifications)
		notifications.GET("/:notificationId", h.GetNotification)
		notifications.PUT("/:notificationId/read", h.MarkAsRead)
		notifications.DELETE("/:notificationId", h.DeleteNotification)
	}
}

// RegisterAdminRoutes mounts the operator send endpoint.
func (h *NotificationHandler) RegisterAdminRoutes(r *gin.RouterGroup, mw ...gin.HandlerFunc) {
	admin := r.Group("/admin/notifications")
	admin.Use(mw...)
	{
		admin.POST("/send", h.SendNotification)
	}
}

// --- User notification handlers ---

func (h *NotificationHandler) GetUserNotifications(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	page, pageSize := ParsePagination(c)
	query := dto.ListQuery{
		Page:       page,
		Limit:      pageSize,
		UnreadOnly: c.Query("unread") == "true",
	}

	response, err := h.notificationService.List(c.Request.Context(), userID, query)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	if response.FromCache {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}
	c.JSON(http.StatusOK, response)
}

func (h *NotificationHandler) GetNotification(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}
	notificationID, ok := h.ValidateID(c, "notificationId")
	if !ok {
		return
	}

	notification, err := h.notificationService.Get(c.Request.Context(), userID, notificationID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, notification)
}

func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}
	notificationID, ok := h.ValidateID(c, "notificationId")
	if !ok {
		return
	}

	notification, err := h.notificationService.MarkRead(c.Request.Context(), userID, notificationID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, notification)
}

func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	updated, err := h.notificationService.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.CountResponse{Updated: updated})
}

func (h *NotificationHandler) MarkMultipleAsRead(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var req dto.MarkMultipleReadRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	updated, err := h.notificationService.MarkManyRead(c.Request.Context(), userID, req.IDs)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.CountResponse{Updated: updated})
}

func (h *NotificationHandler) DeleteNotification(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}
	notificationID, ok := h.ValidateID(c, "notificationId")
	if !ok {
		return
	}

	if err := h.notificationService.Delete(c.Request.Context(), userID, notificationID); err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *NotificationHandler) DeleteUserNotifications(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	deleted, err := h.notificationService.DeleteAll(c.Request.Context(), userID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (h *NotificationHandler) GetUnreadCount(c *gin.Context) {
	userID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	count, err := h.notificationService.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.UnreadCountResponse{Count: count})
}

// --- Admin handlers ---

func (h *NotificationHandler) SendNotification(c *gin.Context) {
	senderID, ok := h.GetAndAuthorizeUserID(c)
	if !ok {
		return
	}

	var req dto.SendNotificationRequest
	if !h.BindAndValidate_JSON(c, &req) {
		return
	}

	channels := make([]models.Channel, len(req.Channels))
	for i, ch := range req.Channels {
		channels[i] = models.Channel(ch)
	}
	opts := services.CreateOptions{
		SenderID: &senderID,
		Priority: models.Priority(req.Priority),
		Channels: channels,
		Metadata: req.Metadata,
		TTL:      time.Duration(req.TTLSeconds) * time.Second,
	}
	typ := models.NotificationType(req.Type)
	ctx := c.Request.Context()

	var (
		result *services.FanOutResult
		err    error
	)
	if req.DAOID != "" {
		result, err = h.notificationService.FanOutToDAO(ctx, req.DAOID, []string{senderID}, typ, req.Title, req.Message, opts)
	} else {
		result, err = h.notificationService.FanOut(ctx, req.RecipientIDs, typ, req.Title, req.Message, opts)
	}
	if err != nil {
		h.HandleServiceError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Created == 0 && result.Failed > 0 {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, result.Response())
}
