package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yashrajoria/dining-backend/services/dining-service/models"
	"github.com/yashrajoria/dining-backend/services/dining-service/services"
)

const IdempotencyKeyHeader = "Idempotency-Key"

type OrderController struct {
	orderService services.OrderService
}

func NewOrderController(orderService services.OrderService) *OrderController {
	return &OrderController{orderService: orderService}
}

// SubmitOrders places a batch of dishes for one table. Guests are pinned to
// the table and guest id in their token.
func (oc *OrderController) SubmitOrders(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}

	var req models.SubmitOrderRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondInvalidRequest(ctx, err)
		return
	}

	orders, svcErr := oc.orderService.SubmitBatch(ctx.Request.Context(), actor, &req, ctx.GetHeader(IdempotencyKeyHeader))
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}

	ctx.JSON(http.StatusCreated, gin.H{"message": "Orders submitted", "data": orders})
}

func (oc *OrderController) UpdateOrderStatus(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}
	orderID, ok := parseIDParam(ctx, "id", "order")
	if !ok {
		return
	}

	var req models.UpdateOrderStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondInvalidRequest(ctx, err)
		return
	}

	order, svcErr := oc.orderService.Transition(ctx.Request.Context(), actor, orderID, req.Status)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "Order status updated", "data": order})
}

// GetKitchenQueue returns open orders for the kitchen, oldest first within
// each status.
func (oc *OrderController) GetKitchenQueue(ctx *gin.Context) {
	oc.list(ctx, oc.orderService.KitchenQueue)
}

func (oc *OrderController) GetDeliveryQueue(ctx *gin.Context) {
	oc.list(ctx, oc.orderService.DeliveryQueue)
}

func (oc *OrderController) GetOrders(ctx *gin.Context) {
	oc.list(ctx, oc.orderService.List)
}

type orderLister func(ctx context.Context, page, limit int) ([]models.Order, int64, *services.ServiceError)

func (oc *OrderController) list(ctx *gin.Context, fetch orderLister) {
	page, limit := parsePaginationParams(ctx)

	orders, total, svcErr := fetch(ctx.Request.Context(), page, limit)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"data": orders, "meta": newPaginationMeta(page, limit, total)})
}

func (oc *OrderController) GetTableOrders(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}
	table, ok := parseTableParam(ctx)
	if !ok {
		return
	}

	orders, svcErr := oc.orderService.ListByTable(ctx.Request.Context(), actor, table)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"data": orders})
}

func (oc *OrderController) GetOrderByID(ctx *gin.Context) {
	orderID, ok := parseIDParam(ctx, "id", "order")
	if !ok {
		return
	}

	order, svcErr := oc.orderService.Get(ctx.Request.Context(), orderID)
	if svcErr != nil {
		respondError(ctx, svcErr)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"data": order})
}

func (oc *OrderController) DeleteOrder(ctx *gin.Context) {
	actor, ok := actorFrom(ctx)
	if !ok {
		return
	}
	orderID, ok := parseIDParam(ctx, "id", "order")
	if !ok {
		return
	}

	if svcErr := oc.orderService.Delete(ctx.Request.Context(), actor, orderID); svcErr != nil {
		respondError(ctx, svcErr)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"message": "Order deleted"})
}
