package controllers_test

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/yashrajoria/dining-backend/services/dining-service/middleware"
	"github.com/yashrajoria/dining-backend/services/dining-service/models"
	"github.com/yashrajoria/dining-backend/services/dining-service/repository"
	"github.com/yashrajoria/dining-backend/services/dining-service/services"
)

func svcErr(args mock.Arguments, i int) *services.ServiceError {
	if e := args.Get(i); e != nil {
		return e.(*services.ServiceError)
	}
	return nil
}

// withActor stands in for AuthMiddleware.
func withActor(actor models.Actor) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ActorContextKey, actor)
		c.Next()
	}
}

var (
	staff = models.Actor{ID: "staff-1", Role: models.RoleStaff}
	chef  = models.Actor{ID: "chef-1", Role: models.RoleChef}
	guest = models.Actor{ID: "guest-1", Role: models.RoleGuest, TableNumber: 4, GuestID: "guest-1"}
)

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) SubmitBatch(ctx context.Context, actor models.Actor, req *models.SubmitOrderRequest, key string) ([]models.Order, *services.ServiceError) {
	args := m.Called(ctx, actor, req, key)
	orders, _ := args.Get(0).([]models.Order)
	return orders, svcErr(args, 1)
}

func (m *MockOrderService) Transition(ctx context.Context, actor models.Actor, id uuid.UUID, status models.OrderStatus) (*models.Order, *services.ServiceError) {
	args := m.Called(ctx, actor, id, status)
	order, _ := args.Get(0).(*models.Order)
	return order, svcErr(args, 1)
}

func (m *MockOrderService) KitchenQueue(ctx context.Context, page, limit int) ([]models.Order, int64, *services.ServiceError) {
	args := m.Called(ctx, page, limit)
	orders, _ := args.Get(0).([]models.Order)
	return orders, args.Get(1).(int64), svcErr(args, 2)
}

func (m *MockOrderService) DeliveryQueue(ctx context.Context, page, limit int) ([]models.Order, int64, *services.ServiceError) {
	args := m.Called(ctx, page, limit)
	orders, _ := args.Get(0).([]models.Order)
	return orders, args.Get(1).(int64), svcErr(args, 2)
}

func (m *MockOrderService) List(ctx context.Context, page, limit int) ([]models.Order, int64, *services.ServiceError) {
	args := m.Called(ctx, page, limit)
	orders, _ := args.Get(0).([]models.Order)
	return orders, args.Get(1).(int64), svcErr(args, 2)
}

func (m *MockOrderService) ListByTable(ctx context.Context, actor models.Actor, table int) ([]models.Order, *services.ServiceError) {
	args := m.Called(ctx, actor, table)
	orders, _ := args.Get(0).([]models.Order)
	return orders, svcErr(args, 1)
}

func (m *MockOrderService) Get(ctx context.Context, id uuid.UUID) (*models.Order, *services.ServiceError) {
	args := m.Called(ctx, id)
	order, _ := args.Get(0).(*models.Order)
	return order, svcErr(args, 1)
}

func (m *MockOrderService) Delete(ctx context.Context, actor models.Actor, id uuid.UUID) *services.ServiceError {
	return svcErr(m.Called(ctx, actor, id), 0)
}

type MockBillService struct {
	mock.Mock
}

func (m *MockBillService) SettleableTables(ctx context.Context) ([]models.TableBillSummary, *services.ServiceError) {
	args := m.Called(ctx)
	tables, _ := args.Get(0).([]models.TableBillSummary)
	return tables, svcErr(args, 1)
}

func (m *MockBillService) Preview(ctx context.Context, req *models.PreviewBillRequest) (*models.BillPreview, *services.ServiceError) {
	args := m.Called(ctx, req)
	preview, _ := args.Get(0).(*models.BillPreview)
	return preview, svcErr(args, 1)
}

func (m *MockBillService) Create(ctx context.Context, actor models.Actor, req *models.CreateBillRequest) (*models.Bill, *services.ServiceError) {
	args := m.Called(ctx, actor, req)
	bill, _ := args.Get(0).(*models.Bill)
	return bill, svcErr(args, 1)
}

func (m *MockBillService) Confirm(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Bill, *services.ServiceError) {
	args := m.Called(ctx, actor, id)
	bill, _ := args.Get(0).(*models.Bill)
	return bill, svcErr(args, 1)
}

func (m *MockBillService) Get(ctx context.Context, id uuid.UUID) (*models.Bill, *services.ServiceError) {
	args := m.Called(ctx, id)
	bill, _ := args.Get(0).(*models.Bill)
	return bill, svcErr(args, 1)
}

func (m *MockBillService) List(ctx context.Context, filter models.BillFilter) ([]models.Bill, int64, *services.ServiceError) {
	args := m.Called(ctx, filter)
	bills, _ := args.Get(0).([]models.Bill)
	return bills, args.Get(1).(int64), svcErr(args, 2)
}

func (m *MockBillService) Delete(ctx context.Context, actor models.Actor, id uuid.UUID) *services.ServiceError {
	return svcErr(m.Called(ctx, actor, id), 0)
}

func (m *MockBillService) Complete(ctx context.Context, tx repository.Store, s services.Settlement) error {
	return m.Called(ctx, tx, s).Error(0)
}

type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) OpenCash(ctx context.Context, actor models.Actor, req *models.CashPaymentRequest) (*models.CashPaymentResult, *services.ServiceError) {
	args := m.Called(ctx, actor, req)
	res, _ := args.Get(0).(*models.CashPaymentResult)
	return res, svcErr(args, 1)
}

func (m *MockPaymentService) OpenGateway(ctx context.Context, actor models.Actor, req *models.GatewayPaymentRequest) (*models.Payment, *services.ServiceError) {
	args := m.Called(ctx, actor, req)
	p, _ := args.Get(0).(*models.Payment)
	return p, svcErr(args, 1)
}

func (m *MockPaymentService) Reconcile(ctx context.Context, sig services.Signal) (*services.ReconcileResult, *services.ServiceError) {
	args := m.Called(ctx, sig)
	res, _ := args.Get(0).(*services.ReconcileResult)
	return res, svcErr(args, 1)
}

func (m *MockPaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*services.WebhookAck, *services.ServiceError) {
	args := m.Called(ctx, payload, signature)
	ack, _ := args.Get(0).(*services.WebhookAck)
	return ack, svcErr(args, 1)
}

func (m *MockPaymentService) HandleReturn(ctx context.Context, params services.ReturnParams) *services.Redirect {
	return m.Called(ctx, params).Get(0).(*services.Redirect)
}

func (m *MockPaymentService) HandleCancelReturn(ctx context.Context, params services.ReturnParams) *services.Redirect {
	return m.Called(ctx, params).Get(0).(*services.Redirect)
}

func (m *MockPaymentService) Status(ctx context.Context, id uuid.UUID) (*models.Payment, *services.ServiceError) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*models.Payment)
	return p, svcErr(args, 1)
}

func (m *MockPaymentService) Cancel(ctx context.Context, actor models.Actor, id uuid.UUID, reason string) (*models.Payment, *services.ServiceError) {
	args := m.Called(ctx, actor, id, reason)
	p, _ := args.Get(0).(*models.Payment)
	return p, svcErr(args, 1)
}

func (m *MockPaymentService) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

type MockTableService struct {
	mock.Mock
}

func (m *MockTableService) List(ctx context.Context) ([]models.Table, *services.ServiceError) {
	args := m.Called(ctx)
	tables, _ := args.Get(0).([]models.Table)
	return tables, svcErr(args, 1)
}

func (m *MockTableService) UpdateStatus(ctx context.Context, actor models.Actor, number int, status models.TableStatus) (*models.Table, *services.ServiceError) {
	args := m.Called(ctx, actor, number, status)
	t, _ := args.Get(0).(*models.Table)
	return t, svcErr(args, 1)
}

func (m *MockTableService) Admit(ctx context.Context, number int, token string) (bool, *services.ServiceError) {
	args := m.Called(ctx, number, token)
	return args.Bool(0), svcErr(args, 1)
}

type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) Notify(ctx context.Context, typ models.NotificationType, message, room string, table int) (*models.Notification, *services.ServiceError) {
	args := m.Called(ctx, typ, message, room, table)
	n, _ := args.Get(0).(*models.Notification)
	return n, svcErr(args, 1)
}

func (m *MockNotificationService) CallStaff(ctx context.Context, table int, guestID, message string) (*models.Notification, *services.ServiceError) {
	args := m.Called(ctx, table, guestID, message)
	n, _ := args.Get(0).(*models.Notification)
	return n, svcErr(args, 1)
}

func (m *MockNotificationService) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int64, *services.ServiceError) {
	args := m.Called(ctx, filter)
	ns, _ := args.Get(0).([]models.Notification)
	return ns, args.Get(1).(int64), svcErr(args, 2)
}

func (m *MockNotificationService) MarkRead(ctx context.Context, id uuid.UUID) *services.ServiceError {
	return svcErr(m.Called(ctx, id), 0)
}
