package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/yashrajoria/dining-backend/services/dining-service/models"
	"github.com/yashrajoria/dining-backend/services/dining-service/services"
)

type NotificationController struct {
	notificationService services.NotificationService
}

func NewNotificationController(notificationService services.NotificationService) *NotificationController {
	return &NotificationController{notificationService: notificationService}
}

// CallStaff lets a seated guest ask for a waiter.
func (nc *NotificationController) CallStaff(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}

	var req models.SupportCallRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			respondInvalidRequest(ctx, err)
			return
		}
	}

	n, svcErr := nc.notificationService.CallStaff(ctx.Request.Context(), actor.TableNumber, actor.GuestID, req.Message)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"message": "Staff notified", "data": n})
}

func (nc *NotificationController) GetNotifications(ctx *gin.Context) {
	page, limit := parsePaginationParams(ctx)
	filter := models.NotificationFilter{
		Room:  ctx.Query("room"),
		Type:  models.NotificationType(strings.ToUpper(ctx.Query("type"))),
		Page:  page,
		Limit: limit,
	}
	if unread, err := strconv.ParseBool(ctx.DefaultQuery("unread", "false")); err == nil {
		filter.Unread = unread
	}

	notifications, total, svcErr := nc.notificationService.List(ctx.Request.Context(), filter)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"data": notifications, "meta": newPaginationMeta(page, limit, total)})
}

func (nc *NotificationController) MarkRead(ctx *gin.Context) {
	id, ok := parseIDParam(ctx, "id", "notification")
	if !ok {
		return
	}

	if svcErr := nc.notificationService.MarkRead(ctx.Request.Context(), id); svcErr != nil {
		respondError(ctx, svcErr)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}
