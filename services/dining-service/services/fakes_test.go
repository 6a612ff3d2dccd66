package services_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/yashrajoria/dining-backend/services/dining-service/gateway"
	"github.com/yashrajoria/dining-backend/services/dining-service/models"
	"github.com/yashrajoria/dining-backend/services/dining-service/services"
	"go.uber.org/zap"
)

// --- Mock Gateway ---

type fakeGateway struct {
	mu        sync.Mutex
	createErr error
	statusErr error
	cancelErr error
	statuses  map[string]gateway.Status
	created   []gateway.CheckoutRequest
	cancelled []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{statuses: map[string]gateway.Status{}}
}

func (g *fakeGateway) CreateCheckout(_ context.Context, req gateway.CheckoutRequest) (*gateway.Checkout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.created = append(g.created, req)
	link := "cs_" + req.OrderCode
	return &gateway.Checkout{
		CheckoutURL:   "https://pay.example.test/" + link,
		PaymentLinkID: link,
		ExpiresAt:     req.ExpiresAt,
		Raw:           []byte(`{"id":"` + link + `"}`),
	}, nil
}

func (g *fakeGateway) GetStatus(_ context.Context, ref string) (*gateway.Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	if st, ok := g.statuses[ref]; ok {
		return &st, nil
	}
	return &gateway.Status{Outcome: gateway.OutcomePending}, nil
}

func (g *fakeGateway) Cancel(_ context.Context, ref, _ string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.cancelled = append(g.cancelled, ref)
	return nil
}

// webhookBody is the payload format understood by fakeGateway.VerifyWebhook.
type webhookBody struct {
	OrderCode     string          `json:"order_code"`
	Outcome       gateway.Outcome `json:"outcome"`
	TransactionID string          `json:"transaction_id"`
}

const validSignature = "t=1,v1=ok"

func (g *fakeGateway) VerifyWebhook(payload []byte, signature string) (*gateway.Notification, error) {
	if signature != validSignature {
		return nil, gateway.ErrInvalidSignature
	}
	var body webhookBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, err
	}
	if body.Outcome == "" {
		return nil, gateway.ErrUnhandledEvent
	}
	paidAt := time.Date(2026, 1, 5, 12, 30, 0, 0, time.UTC)
	return &gateway.Notification{
		EventID:       "evt_" + body.OrderCode,
		EventType:     "checkout.session.completed",
		OrderCode:     body.OrderCode,
		Outcome:       body.Outcome,
		TransactionID: body.TransactionID,
		PaidAt:        &paidAt,
		Raw:           payload,
	}, nil
}

func (g *fakeGateway) setStatus(link string, outcome gateway.Outcome) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[link] = gateway.Status{Outcome: outcome, TransactionID: "pi_" + link}
}

func (g *fakeGateway) cancelCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cancelled)
}

func webhookPayload(code string, outcome gateway.Outcome) []byte {
	b, _ := json.Marshal(webhookBody{OrderCode: code, Outcome: outcome, TransactionID: "pi_" + code})
	return b
}

// --- Recording emitter ---

type emitted struct {
	rooms []string
	event string
	data  interface{}
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (e *recordingEmitter) Emit(_ context.Context, rooms []string, event string, data interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, emitted{rooms: rooms, event: event, data: data})
}

func (e *recordingEmitter) named(event string) []emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []emitted
	for _, ev := range e.events {
		if ev.event == event {
			out = append(out, ev)
		}
	}
	return out
}

func (e *recordingEmitter) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = nil
}

// --- Mock SNS publisher ---

type mockSNSPublisher struct {
	mu        sync.Mutex
	published []models.DiningEvent
}

func (m *mockSNSPublisher) Publish(_ context.Context, _ string, message []byte) error {
	var evt models.DiningEvent
	if err := json.Unmarshal(message, &evt); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, evt)
	return nil
}

func (m *mockSNSPublisher) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.published))
	for i, evt := range m.published {
		out[i] = evt.EventType
	}
	return out
}

// --- In-memory idempotency store ---

type memIdempotency struct {
	mu   sync.Mutex
	keys map[string][]uuid.UUID
}

func (m *memIdempotency) Reserve(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = nil
	return true, nil
}

func (m *memIdempotency) Get(_ context.Context, key string) ([]uuid.UUID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids, ok := m.keys[key]
	return ids, ok, nil
}

func (m *memIdempotency) Put(_ context.Context, key string, ids []uuid.UUID, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = ids
	return nil
}

func (m *memIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

// --- fixture ---

var (
	chef  = models.Actor{ID: "chef-1", Role: models.RoleChef}
	staff = models.Actor{ID: "staff-1", Role: models.RoleStaff}
)

func guestActor(tableNumber int, guestID uuid.UUID) models.Actor {
	return models.Actor{ID: guestID.String(), Role: models.RoleGuest, TableNumber: tableNumber, GuestID: guestID.String()}
}

type fixture struct {
	store   *memStore
	emitter *recordingEmitter
	gw      *fakeGateway
	sns     *mockSNSPublisher
	idem    *memIdempotency

	orders        services.OrderService
	bills         services.BillService
	payments      services.PaymentService
	notifications services.NotificationService
	tables        services.TableService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   newMemStore(),
		emitter: &recordingEmitter{},
		gw:      newFakeGateway(),
		sns:     &mockSNSPublisher{},
		idem:    &memIdempotency{keys: map[string][]uuid.UUID{}},
	}
	logger := zap.NewNop()
	events := services.NewEventPublisher(f.sns, "arn:aws:sns:us-east-1:000000000000:dining-events", logger)

	f.orders = services.NewOrderService(f.store, f.emitter, f.idem, events, nil, logger)
	f.bills = services.NewBillService(f.store, testPolicy, f.emitter, events, nil, logger)
	f.notifications = services.NewNotificationService(f.store, f.emitter, nil, logger)
	f.tables = services.NewTableService(f.store, f.emitter, events, logger)
	f.payments = services.NewPaymentService(f.store, f.bills, f.notifications, f.gw, services.NewLocalLocker(),
		services.PaymentConfig{
			Currency:  "usd",
			LinkTTL:   15 * time.Minute,
			ReturnURL: "https://api.example.test/api/payments/return",
			CancelURL: "https://api.example.test/api/payments/cancel",
		},
		f.emitter, events, nil, logger)
	return f
}

// deliveredOrders seeds an occupied table with one guest and walks one order
// per price through the kitchen to DELIVERED.
func (f *fixture) deliveredOrders(t *testing.T, tableNumber int, prices ...int64) []models.Order {
	t.Helper()
	f.store.addTable(tableNumber, models.TableOccupied)
	guestID := f.store.addGuest(tableNumber)

	req := &models.SubmitOrderRequest{}
	for _, price := range prices {
		dishID := f.store.addDish("dish", price, models.DishActive)
		req.Items = append(req.Items, models.OrderItemRequest{DishID: dishID, Quantity: 1})
	}
	orders, svcErr := f.orders.SubmitBatch(context.Background(), guestActor(tableNumber, guestID), req, "")
	if svcErr != nil {
		t.Fatalf("submit orders: %v", svcErr)
	}
	for _, o := range orders {
		f.store.setOrderStatus(o.ID, models.OrderDelivered)
	}
	return orders
}

// openBill returns a PENDING bill for a table with delivered orders.
func (f *fixture) openBill(t *testing.T, tableNumber int, prices ...int64) *models.Bill {
	t.Helper()
	f.deliveredOrders(t, tableNumber, prices...)
	bill, svcErr := f.bills.Create(context.Background(), staff, &models.CreateBillRequest{TableNumber: tableNumber})
	if svcErr != nil {
		t.Fatalf("create bill: %v", svcErr)
	}
	return bill
}
