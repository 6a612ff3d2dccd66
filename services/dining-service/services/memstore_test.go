package services_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yashrajoria/dining-backend/services/dining-service/models"
	"github.com/yashrajoria/dining-backend/services/dining-service/repository"
	"gorm.io/gorm"
)

// --- In-memory Store ---
//
// Transactions are serialized and restore a snapshot of every table when fn
// fails, which is how the row locks and rollbacks of the gorm store behave
// from a service's point of view.

type memData struct {
	tables        map[int]models.Table
	guests        map[uuid.UUID]models.Guest
	dishes        map[uuid.UUID]models.Dish
	snapshots     map[uuid.UUID]models.DishSnapshot
	orders        map[uuid.UUID]models.Order
	bills         map[uuid.UUID]models.Bill
	sequences     map[string]int
	payments      map[uuid.UUID]models.Payment
	notifications []models.Notification
}

func newMemData() *memData {
	return &memData{
		tables:    map[int]models.Table{},
		guests:    map[uuid.UUID]models.Guest{},
		dishes:    map[uuid.UUID]models.Dish{},
		snapshots: map[uuid.UUID]models.DishSnapshot{},
		orders:    map[uuid.UUID]models.Order{},
		bills:     map[uuid.UUID]models.Bill{},
		sequences: map[string]int{},
		payments:  map[uuid.UUID]models.Payment{},
	}
}

func (d *memData) clone() *memData {
	c := newMemData()
	for k, v := range d.tables {
		c.tables[k] = v
	}
	for k, v := range d.guests {
		c.guests[k] = v
	}
	for k, v := range d.dishes {
		c.dishes[k] = v
	}
	for k, v := range d.snapshots {
		c.snapshots[k] = v
	}
	for k, v := range d.orders {
		c.orders[k] = v
	}
	for k, v := range d.bills {
		c.bills[k] = v
	}
	for k, v := range d.sequences {
		c.sequences[k] = v
	}
	for k, v := range d.payments {
		c.payments[k] = v
	}
	c.notifications = append(c.notifications, d.notifications...)
	return c
}

type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex
	data *memData

	clock time.Time

	// failSnapshotAt makes the n-th CreateSnapshot call fail (1-based).
	failSnapshotAt int
	snapshotCalls  int

	tableReleases map[int]int
}

func newMemStore() *memStore {
	return &memStore{
		data:          newMemData(),
		clock:         time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC),
		tableReleases: map[int]int{},
	}
}

func (s *memStore) tick() time.Time {
	s.clock = s.clock.Add(time.Millisecond)
	return s.clock
}

func (s *memStore) Tables() repository.TableRepository               { return memTables{s} }
func (s *memStore) Guests() repository.GuestRepository               { return memGuests{s} }
func (s *memStore) Dishes() repository.DishRepository                { return memDishes{s} }
func (s *memStore) Orders() repository.OrderRepository               { return memOrders{s} }
func (s *memStore) Bills() repository.BillRepository                 { return memBills{s} }
func (s *memStore) Payments() repository.PaymentRepository           { return memPayments{s} }
func (s *memStore) Notifications() repository.NotificationRepository { return memNotifications{s} }

func (s *memStore) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	backup := s.data.clone()
	releases := map[int]int{}
	for k, v := range s.tableReleases {
		releases[k] = v
	}
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.data = backup
		s.tableReleases = releases
		s.mu.Unlock()
		return err
	}
	return nil
}

// seed helpers

func (s *memStore) addTable(number int, status models.TableStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.tables[number] = models.Table{ID: uuid.New(), Number: number, Capacity: 4, Status: status, Token: "tok"}
}

func (s *memStore) addGuest(tableNumber int) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.data.guests[id] = models.Guest{ID: id, Name: "guest", TableNumber: tableNumber}
	return id
}

func (s *memStore) addDish(name string, price int64, status models.DishStatus) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.data.dishes[id] = models.Dish{ID: id, Name: name, Price: price, Status: status}
	return id
}

func (s *memStore) setDishPrice(id uuid.UUID, price int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.data.dishes[id]
	d.Price = price
	s.data.dishes[id] = d
}

func (s *memStore) table(number int) models.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.tables[number]
}

func (s *memStore) order(id uuid.UUID) models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.orders[id]
}

func (s *memStore) bill(id uuid.UUID) models.Bill {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.bills[id]
}

func (s *memStore) payment(id uuid.UUID) models.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.payments[id]
}

func (s *memStore) setPaymentExpiry(id uuid.UUID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.data.payments[id]
	p.ExpiredAt = &at
	s.data.payments[id] = p
}

func (s *memStore) setOrderStatus(id uuid.UUID, status models.OrderStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.data.orders[id]
	o.Status = status
	s.data.orders[id] = o
}

func (s *memStore) counts() (orders, snapshots, payments int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.orders), len(s.data.snapshots), len(s.data.payments)
}

func (s *memStore) releases(tableNumber int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tableReleases[tableNumber]
}

// --- tables ---

type memTables struct{ s *memStore }

func (r memTables) FindByNumber(_ context.Context, number int) (*models.Table, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.data.tables[number]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r memTables) FindByNumberForUpdate(ctx context.Context, number int) (*models.Table, error) {
	return r.FindByNumber(ctx, number)
}

func (r memTables) FindByNumberAndToken(ctx context.Context, number int, token string) (*models.Table, error) {
	t, err := r.FindByNumber(ctx, number)
	if t == nil || err != nil || t.Token != token {
		return nil, err
	}
	return t, nil
}

func (r memTables) UpdateStatus(_ context.Context, number int, status models.TableStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.data.tables[number]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if status == models.TableCleaning {
		r.s.tableReleases[number]++
	}
	t.Status = status
	r.s.data.tables[number] = t
	return nil
}

func (r memTables) FindAll(_ context.Context) ([]models.Table, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Table
	for _, t := range r.s.data.tables {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// --- guests ---

type memGuests struct{ s *memStore }

func (r memGuests) FindByID(_ context.Context, id uuid.UUID) (*models.Guest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.data.guests[id]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

// --- dishes ---

type memDishes struct{ s *memStore }

func (r memDishes) FindByID(_ context.Context, id uuid.UUID) (*models.Dish, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.data.dishes[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (r memDishes) CreateSnapshot(_ context.Context, snapshot *models.DishSnapshot) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.snapshotCalls++
	if r.s.failSnapshotAt > 0 && r.s.snapshotCalls == r.s.failSnapshotAt {
		return errors.New("snapshot insert failed")
	}
	snapshot.CreatedAt = r.s.tick()
	r.s.data.snapshots[snapshot.ID] = *snapshot
	return nil
}

// --- orders ---

type memOrders struct{ s *memStore }

// withSnapshot must be called with mu held.
func (r memOrders) withSnapshot(o models.Order) models.Order {
	if snap, ok := r.s.data.snapshots[o.DishSnapshotID]; ok {
		o.DishSnapshot = &snap
	}
	return o
}

func (r memOrders) filter(match func(o models.Order) bool) []models.Order {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Order
	for _, o := range r.s.data.orders {
		if o.DeletedAt.Valid || !match(o) {
			continue
		}
		out = append(out, r.withSnapshot(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func page(orders []models.Order, p, limit int) ([]models.Order, int64) {
	total := int64(len(orders))
	if p < 1 {
		p = 1
	}
	start := (p - 1) * limit
	if start >= len(orders) {
		return nil, total
	}
	end := start + limit
	if end > len(orders) {
		end = len(orders)
	}
	return orders[start:end], total
}

func (r memOrders) CreateBatch(_ context.Context, orders []models.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range orders {
		o.CreatedAt = r.s.tick()
		o.DishSnapshot = nil
		r.s.data.orders[o.ID] = o
	}
	return nil
}

func (r memOrders) FindByID(_ context.Context, id uuid.UUID) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.data.orders[id]
	if !ok || o.DeletedAt.Valid {
		return nil, nil
	}
	o = r.withSnapshot(o)
	return &o, nil
}

func (r memOrders) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.FindByID(ctx, id)
}

func (r memOrders) FindByIDs(_ context.Context, ids []uuid.UUID) ([]models.Order, error) {
	want := map[uuid.UUID]bool{}
	for _, id := range ids {
		want[id] = true
	}
	return r.filter(func(o models.Order) bool { return want[o.ID] }), nil
}

func (r memOrders) UpdateStatus(_ context.Context, id uuid.UUID, status models.OrderStatus, updatedBy string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.data.orders[id]
	if !ok || o.DeletedAt.Valid {
		return gorm.ErrRecordNotFound
	}
	o.Status = status
	o.UpdatedBy = updatedBy
	r.s.data.orders[id] = o
	return nil
}

func (r memOrders) SoftDelete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o := r.s.data.orders[id]
	o.DeletedAt = gorm.DeletedAt{Time: r.s.clock, Valid: true}
	r.s.data.orders[id] = o
	return nil
}

func kitchenRank(s models.OrderStatus) int {
	switch s {
	case models.OrderPending:
		return 0
	case models.OrderConfirmed:
		return 1
	}
	return 2
}

func (r memOrders) FindKitchenQueue(_ context.Context, p, limit int) ([]models.Order, int64, error) {
	orders := r.filter(func(o models.Order) bool {
		return o.Status == models.OrderPending || o.Status == models.OrderConfirmed || o.Status == models.OrderShipped
	})
	sort.SliceStable(orders, func(i, j int) bool { return kitchenRank(orders[i].Status) < kitchenRank(orders[j].Status) })
	out, total := page(orders, p, limit)
	return out, total, nil
}

func (r memOrders) FindDeliveryQueue(_ context.Context, p, limit int) ([]models.Order, int64, error) {
	out, total := page(r.filter(func(o models.Order) bool { return o.Status == models.OrderShipped }), p, limit)
	return out, total, nil
}

func (r memOrders) FindAll(_ context.Context, p, limit int) ([]models.Order, int64, error) {
	orders := r.filter(func(models.Order) bool { return true })
	sort.SliceStable(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	out, total := page(orders, p, limit)
	return out, total, nil
}

func (r memOrders) FindActiveByTable(_ context.Context, tableNumber int) ([]models.Order, error) {
	return r.filter(func(o models.Order) bool {
		return o.TableNumber == tableNumber && o.Status != models.OrderCompleted
	}), nil
}

func (r memOrders) FindBillable(_ context.Context, tableNumber int) ([]models.Order, error) {
	return r.filter(func(o models.Order) bool {
		return o.TableNumber == tableNumber && o.Status == models.OrderDelivered && o.BillID == nil
	}), nil
}

func (r memOrders) FindByBill(_ context.Context, billID uuid.UUID) ([]models.Order, error) {
	return r.filter(func(o models.Order) bool { return o.BillID != nil && *o.BillID == billID }), nil
}

func (r memOrders) LinkToBill(_ context.Context, billID uuid.UUID, orderIDs []uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, id := range orderIDs {
		o, ok := r.s.data.orders[id]
		if !ok || o.DeletedAt.Valid || o.BillID != nil || o.Status != models.OrderDelivered {
			continue
		}
		bid := billID
		o.BillID = &bid
		r.s.data.orders[id] = o
		n++
	}
	return n, nil
}

func (r memOrders) UnlinkBill(_ context.Context, billID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, o := range r.s.data.orders {
		if o.BillID != nil && *o.BillID == billID {
			o.BillID = nil
			r.s.data.orders[id] = o
		}
	}
	return nil
}

func (r memOrders) CompleteByBill(_ context.Context, billID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, o := range r.s.data.orders {
		if o.BillID != nil && *o.BillID == billID && o.Status == models.OrderDelivered && !o.DeletedAt.Valid {
			o.Status = models.OrderCompleted
			r.s.data.orders[id] = o
			n++
		}
	}
	return n, nil
}

func (r memOrders) SummarizeBillable(_ context.Context) ([]models.TableBillSummary, error) {
	r.s.mu.Lock()
	occupied := map[int]bool{}
	for n, t := range r.s.data.tables {
		occupied[n] = t.Status == models.TableOccupied
	}
	r.s.mu.Unlock()

	byTable := map[int]*models.TableBillSummary{}
	for _, o := range r.filter(func(o models.Order) bool {
		return o.Status == models.OrderDelivered && o.BillID == nil && occupied[o.TableNumber]
	}) {
		row, ok := byTable[o.TableNumber]
		if !ok {
			row = &models.TableBillSummary{TableNumber: o.TableNumber}
			byTable[o.TableNumber] = row
		}
		row.OrderCount++
		row.Subtotal += o.LineTotal()
	}
	var out []models.TableBillSummary
	for _, row := range byTable {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TableNumber < out[j].TableNumber })
	return out, nil
}

// --- bills ---

type memBills struct{ s *memStore }

func (r memBills) Create(_ context.Context, bill *models.Bill) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, b := range r.s.data.bills {
		if b.BillNumber == bill.BillNumber {
			return gorm.ErrDuplicatedKey
		}
	}
	bill.CreatedAt = r.s.tick()
	b := *bill
	b.Orders, b.Payments = nil, nil
	r.s.data.bills[b.ID] = b
	return nil
}

func (r memBills) NextSequence(_ context.Context, day string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.data.sequences[day]++
	return r.s.data.sequences[day], nil
}

func (r memBills) FindByID(ctx context.Context, id uuid.UUID) (*models.Bill, error) {
	b, err := r.FindByIDForUpdate(ctx, id)
	if b == nil || err != nil {
		return nil, err
	}
	b.Orders, _ = memOrders(r).FindByBill(ctx, id)
	r.s.mu.Lock()
	for _, p := range r.s.data.payments {
		if p.BillID == id {
			b.Payments = append(b.Payments, p)
		}
	}
	r.s.mu.Unlock()
	return b, nil
}

func (r memBills) FindByIDForUpdate(_ context.Context, id uuid.UUID) (*models.Bill, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.data.bills[id]
	if !ok || b.DeletedAt.Valid {
		return nil, nil
	}
	return &b, nil
}

func (r memBills) UpdateStatus(_ context.Context, id uuid.UUID, status models.BillStatus, updatedBy string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.data.bills[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	b.Status = status
	b.UpdatedBy = updatedBy
	r.s.data.bills[id] = b
	return nil
}

func (r memBills) MarkPaid(_ context.Context, id uuid.UUID, method models.PaymentMethod, paidAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.data.bills[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	b.Status = models.BillPaid
	b.PaymentMethod = &method
	b.PaidAt = &paidAt
	r.s.data.bills[id] = b
	return nil
}

func (r memBills) SoftDelete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b := r.s.data.bills[id]
	b.DeletedAt = gorm.DeletedAt{Time: r.s.clock, Valid: true}
	r.s.data.bills[id] = b
	return nil
}

func (r memBills) FindAll(_ context.Context, filter models.BillFilter) ([]models.Bill, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Bill
	for _, b := range r.s.data.bills {
		if b.DeletedAt.Valid {
			continue
		}
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		if filter.TableNumber > 0 && b.TableNumber != filter.TableNumber {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, int64(len(out)), nil
}

// --- payments ---

type memPayments struct{ s *memStore }

func isOpen(status models.PaymentStatus) bool {
	return status == models.PaymentPending || status == models.PaymentProcessing
}

func (r memPayments) Create(_ context.Context, p *models.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.data.payments {
		if isOpen(p.Status) && isOpen(existing.Status) && existing.BillID == p.BillID {
			return gorm.ErrDuplicatedKey
		}
		if p.OrderCode != nil && existing.OrderCode != nil && *p.OrderCode == *existing.OrderCode {
			return gorm.ErrDuplicatedKey
		}
	}
	p.CreatedAt = r.s.tick()
	r.s.data.payments[p.ID] = *p
	return nil
}

func (r memPayments) Save(_ context.Context, p *models.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.data.payments[p.ID] = *p
	return nil
}

func (r memPayments) find(match func(p models.Payment) bool) *models.Payment {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.data.payments {
		if match(p) {
			found := p
			return &found
		}
	}
	return nil
}

func (r memPayments) FindByID(_ context.Context, id uuid.UUID) (*models.Payment, error) {
	return r.find(func(p models.Payment) bool { return p.ID == id }), nil
}

func (r memPayments) FindByOrderCode(_ context.Context, code string) (*models.Payment, error) {
	return r.find(func(p models.Payment) bool { return p.Code() == code }), nil
}

func (r memPayments) FindByOrderCodeForUpdate(ctx context.Context, code string) (*models.Payment, error) {
	return r.FindByOrderCode(ctx, code)
}

func (r memPayments) FindOpenByBill(_ context.Context, billID uuid.UUID) (*models.Payment, error) {
	return r.find(func(p models.Payment) bool { return p.BillID == billID && isOpen(p.Status) }), nil
}

func (r memPayments) FindExpiredOpen(_ context.Context, now time.Time, limit int) ([]models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Payment
	for _, p := range r.s.data.payments {
		if p.Method == models.PaymentGateway && isOpen(p.Status) && p.ExpiredAt != nil && p.ExpiredAt.Before(now) {
			out = append(out, p)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- notifications ---

type memNotifications struct{ s *memStore }

func (r memNotifications) Create(_ context.Context, n *models.Notification) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n.CreatedAt = r.s.tick()
	r.s.data.notifications = append(r.s.data.notifications, *n)
	return nil
}

func (r memNotifications) FindAll(_ context.Context, filter models.NotificationFilter) ([]models.Notification, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Notification
	for _, n := range r.s.data.notifications {
		if filter.Room != "" && n.Room != filter.Room {
			continue
		}
		if filter.Type != "" && n.Type != filter.Type {
			continue
		}
		if filter.Unread && n.IsRead {
			continue
		}
		out = append(out, n)
	}
	return out, int64(len(out)), nil
}

func (r memNotifications) MarkRead(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.data.notifications {
		if r.s.data.notifications[i].ID == id {
			r.s.data.notifications[i].IsRead = true
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}
