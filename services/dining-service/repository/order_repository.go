package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/yashrajoria/dining-backend/services/dining-service/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderRepository defines the interface for order data access. Soft-deleted
// orders are invisible to every query.
type OrderRepository interface {
	CreateBatch(ctx context.Context, orders []models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus, updatedBy string) error
	SoftDelete(ctx context.Context, id uuid.UUID) error

	FindKitchenQueue(ctx context.Context, page, limit int) ([]models.Order, int64, error)
	FindDeliveryQueue(ctx context.Context, page, limit int) ([]models.Order, int64, error)
	FindAll(ctx context.Context, page, limit int) ([]models.Order, int64, error)
	FindActiveByTable(ctx context.Context, tableNumber int) ([]models.Order, error)

	FindBillable(ctx context.Context, tableNumber int) ([]models.Order, error)
	FindByBill(ctx context.Context, billID uuid.UUID) ([]models.Order, error)
	LinkToBill(ctx context.Context, billID uuid.UUID, orderIDs []uuid.UUID) (int64, error)
	UnlinkBill(ctx context.Context, billID uuid.UUID) error
	CompleteByBill(ctx context.Context, billID uuid.UUID) (int64, error)
	SummarizeBillable(ctx context.Context) ([]models.TableBillSummary, error)
}

var kitchenPrecedence = fmt.Sprintf("CASE status WHEN '%s' THEN 0 WHEN '%s' THEN 1 ELSE 2 END",
	models.OrderPending, models.OrderConfirmed)

// GormOrderRepository implements OrderRepository using GORM.
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GormOrderRepository.
func NewGormOrderRepository(db *gorm.DB) OrderRepository {
	return &GormOrderRepository{db: db}
}

// CreateBatch inserts all orders in one statement. Snapshots are written
// beforehand by the dish repository, so associations are skipped.
func (r *GormOrderRepository) CreateBatch(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(&orders).Error
}

func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var o models.Order
	err := r.db.WithContext(ctx).Preload("DishSnapshot").Where("id = ?", id).First(&o).Error
	return firstOrNil(err, &o)
}

func (r *GormOrderRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var o models.Order
	err := forUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&o).Error
	return firstOrNil(err, &o)
}

func (r *GormOrderRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("DishSnapshot").
		Where("id IN ?", ids).
		Order("created_at ASC").
		Find(&orders).Error
	return orders, err
}

func (r *GormOrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus, updatedBy string) error {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "updated_by": updatedBy})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormOrderRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Order{}).Error
}

// FindKitchenQueue returns PENDING, CONFIRMED and SHIPPED orders, most urgent
// status first and oldest first within a status.
func (r *GormOrderRepository) FindKitchenQueue(ctx context.Context, page, limit int) ([]models.Order, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{}).Where("status IN ?", models.KitchenStatuses)
	return r.paginate(query, page, limit, kitchenPrecedence, "created_at ASC")
}

func (r *GormOrderRepository) FindDeliveryQueue(ctx context.Context, page, limit int) ([]models.Order, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{}).Where("status = ?", models.OrderShipped)
	return r.paginate(query, page, limit, "created_at ASC")
}

func (r *GormOrderRepository) FindAll(ctx context.Context, page, limit int) ([]models.Order, int64, error) {
	return r.paginate(r.db.WithContext(ctx).Model(&models.Order{}), page, limit, "created_at DESC")
}

func (r *GormOrderRepository) paginate(query *gorm.DB, page, limit int, orderBy ...string) ([]models.Order, int64, error) {
	var orders []models.Order
	var total int64

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Preload("DishSnapshot").Offset(pageOffset(page, limit)).Limit(limit)
	for _, o := range orderBy {
		query = query.Order(o)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// FindActiveByTable returns every order of the table that has not been
// completed by settlement, with its snapshot.
func (r *GormOrderRepository) FindActiveByTable(ctx context.Context, tableNumber int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("DishSnapshot").
		Where("table_number = ? AND status <> ?", tableNumber, models.OrderCompleted).
		Order("created_at ASC").
		Find(&orders).Error
	return orders, err
}

// FindBillable returns the delivered orders of a table that no bill claims yet.
func (r *GormOrderRepository) FindBillable(ctx context.Context, tableNumber int) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("DishSnapshot").
		Where("table_number = ? AND status = ? AND bill_id IS NULL", tableNumber, models.OrderDelivered).
		Order("created_at ASC").
		Find(&orders).Error
	return orders, err
}

func (r *GormOrderRepository) FindByBill(ctx context.Context, billID uuid.UUID) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("DishSnapshot").
		Where("bill_id = ?", billID).
		Order("created_at ASC").
		Find(&orders).Error
	return orders, err
}

// LinkToBill points the given orders at billID. Only orders that are still
// delivered and unbilled are touched; the caller compares the returned count
// with len(orderIDs) to detect a lost race.
func (r *GormOrderRepository) LinkToBill(ctx context.Context, billID uuid.UUID, orderIDs []uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id IN ? AND bill_id IS NULL AND status = ?", orderIDs, models.OrderDelivered).
		Update("bill_id", billID)
	return result.RowsAffected, result.Error
}

func (r *GormOrderRepository) UnlinkBill(ctx context.Context, billID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("bill_id = ?", billID).
		Update("bill_id", nil).Error
}

func (r *GormOrderRepository) CompleteByBill(ctx context.Context, billID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("bill_id = ? AND status = ?", billID, models.OrderDelivered).
		Update("status", models.OrderCompleted)
	return result.RowsAffected, result.Error
}

// SummarizeBillable lists occupied tables that have delivered, unbilled
// orders, with their count and subtotal.
func (r *GormOrderRepository) SummarizeBillable(ctx context.Context) ([]models.TableBillSummary, error) {
	var rows []models.TableBillSummary
	err := r.db.WithContext(ctx).
		Table("orders AS o").
		Select("o.table_number AS table_number, COUNT(*) AS order_count, COALESCE(SUM(s.price * o.quantity), 0) AS subtotal").
		Joins("JOIN dish_snapshots s ON s.id = o.dish_snapshot_id").
		Joins("JOIN tables t ON t.number = o.table_number").
		Where("o.status = ? AND o.bill_id IS NULL AND o.deleted_at IS NULL AND t.status = ?", models.OrderDelivered, models.TableOccupied).
		Group("o.table_number").
		Order("o.table_number ASC").
		Scan(&rows).Error
	return rows, err
}
