package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yashrajoria/dining-backend/services/dining-service/controllers"
	"github.com/yashrajoria/dining-backend/services/dining-service/middleware"
	"github.com/yashrajoria/dining-backend/services/dining-service/models"
	"github.com/yashrajoria/dining-backend/services/dining-service/realtime"
)

var (
	staffRoles    = models.StaffRoles
	kitchenRoles  = append([]models.Role{models.RoleChef}, models.StaffRoles...)
	orderingRoles = append([]models.Role{models.RoleGuest}, models.StaffRoles...)
	everyRole     = append([]models.Role{models.RoleGuest, models.RoleChef}, models.StaffRoles...)
)

func RegisterHealthRoutes(r gin.IRouter, service string) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": service})
	})
}

// RegisterOrderRoutes wires the order lifecycle. publicLimit throttles guest
// submissions.
func RegisterOrderRoutes(r gin.IRouter, oc *controllers.OrderController, auth, publicLimit gin.HandlerFunc) {
	orders := r.Group("/orders")
	orders.Use(auth)
	{
		orders.POST("", publicLimit, middleware.RequireRoles(orderingRoles...), oc.SubmitOrders)
		orders.GET("", middleware.RequireRoles(staffRoles...), oc.GetOrders)
		orders.GET("/kitchen", middleware.RequireRoles(kitchenRoles...), oc.GetKitchenQueue)
		orders.GET("/delivery", middleware.RequireRoles(staffRoles...), oc.GetDeliveryQueue)
		orders.GET("/table/:number", middleware.RequireRoles(everyRole...), oc.GetTableOrders)
		orders.GET("/:id", middleware.RequireRoles(kitchenRoles...), oc.GetOrderByID)
		orders.PATCH("/:id/status", middleware.RequireRoles(kitchenRoles...), oc.UpdateOrderStatus)
		orders.DELETE("/:id", middleware.RequireRoles(staffRoles...), oc.DeleteOrder)
	}
}

func RegisterBillRoutes(r gin.IRouter, bc *controllers.BillController, auth gin.HandlerFunc) {
	bills := r.Group("/bills", auth, middleware.StaffOnly())
	{
		bills.GET("/tables", bc.GetSettleableTables)
		bills.POST("/preview", bc.PreviewBill)
		bills.POST("", bc.CreateBill)
		bills.GET("", bc.GetBills)
		bills.GET("/:id", bc.GetBillByID)
		bills.POST("/:id/confirm", bc.ConfirmBill)
		bills.DELETE("/:id", bc.DeleteBill)
	}
}

// RegisterPaymentRoutes wires settlement. The webhook and the browser
// redirects carry no token; the webhook is authenticated by its signature.
func RegisterPaymentRoutes(r gin.IRouter, pc *controllers.PaymentController, auth, publicLimit gin.HandlerFunc) {
	public := r.Group("/payments", publicLimit)
	{
		public.POST("/webhook", pc.GatewayWebhook)
		public.GET("/return", pc.GatewayReturn)
		public.GET("/cancel", pc.GatewayCancel)
	}

	payments := r.Group("/payments", auth, middleware.StaffOnly())
	{
		payments.POST("/cash", pc.PayCash)
		payments.POST("/gateway", pc.CreateCheckout)
		payments.GET("/:id/status", pc.GetPaymentStatus)
		payments.POST("/:id/cancel", pc.CancelPayment)
	}
}

func RegisterTableRoutes(r gin.IRouter, tc *controllers.TableController, auth gin.HandlerFunc) {
	tables := r.Group("/tables", auth, middleware.StaffOnly())
	tables.GET("", tc.GetTables)
	tables.PATCH("/:number/status", tc.UpdateTableStatus)
}

func RegisterNotificationRoutes(r gin.IRouter, nc *controllers.NotificationController, auth gin.HandlerFunc) {
	notifications := r.Group("/notifications", auth)
	notifications.POST("/support", middleware.RequireRoles(models.RoleGuest), nc.CallStaff)
	notifications.GET("", middleware.StaffOnly(), nc.GetNotifications)
	notifications.PATCH("/:id/read", middleware.StaffOnly(), nc.MarkRead)
}

// RegisterRealtimeRoutes mounts the websocket namespaces. The handler
// authenticates before upgrading, so no auth middleware runs here.
func RegisterRealtimeRoutes(r gin.IRouter, h *realtime.Handler) {
	r.GET("/ws/:namespace", h.Serve)
}
