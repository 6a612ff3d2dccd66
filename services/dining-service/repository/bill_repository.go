package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yashrajoria/dining-backend/services/dining-service/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BillRepository defines the interface for bill data access.
type BillRepository interface {
	Create(ctx context.Context, bill *models.Bill) error
	NextSequence(ctx context.Context, day string) (int, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Bill, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Bill, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.BillStatus, updatedBy string) error
	MarkPaid(ctx context.Context, id uuid.UUID, method models.PaymentMethod, paidAt time.Time) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	FindAll(ctx context.Context, filter models.BillFilter) ([]models.Bill, int64, error)
}

// GormBillRepository implements BillRepository using GORM.
type GormBillRepository struct {
	db *gorm.DB
}

// NewGormBillRepository creates a new GormBillRepository.
func NewGormBillRepository(db *gorm.DB) BillRepository {
	return &GormBillRepository{db: db}
}

func (r *GormBillRepository) Create(ctx context.Context, bill *models.Bill) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(bill).Error
}

// NextSequence atomically allocates the next bill sequence of day (YYYYMMDD).
// The upsert takes a row lock, so concurrent callers get distinct values.
func (r *GormBillRepository) NextSequence(ctx context.Context, day string) (int, error) {
	var last int
	err := r.db.WithContext(ctx).Raw(
		`INSERT INTO bill_sequences (day, last) VALUES (?, 1)
		ON CONFLICT (day) DO UPDATE SET last = bill_sequences.last + 1
		RETURNING last`, day).Scan(&last).Error
	return last, err
}

// FindByID loads a bill with its orders (and their snapshots) and payments.
func (r *GormBillRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Bill, error) {
	var b models.Bill
	err := r.db.WithContext(ctx).
		Preload("Orders", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Orders.DishSnapshot").
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Where("id = ?", id).
		First(&b).Error
	return firstOrNil(err, &b)
}

func (r *GormBillRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Bill, error) {
	var b models.Bill
	err := forUpdate(r.db.WithContext(ctx)).Where("id = ?", id).First(&b).Error
	return firstOrNil(err, &b)
}

func (r *GormBillRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.BillStatus, updatedBy string) error {
	return r.update(ctx, id, map[string]interface{}{"status": status, "updated_by": updatedBy})
}

func (r *GormBillRepository) MarkPaid(ctx context.Context, id uuid.UUID, method models.PaymentMethod, paidAt time.Time) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":         models.BillPaid,
		"payment_method": method,
		"paid_at":        paidAt,
	})
}

func (r *GormBillRepository) update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.Bill{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormBillRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Bill{}).Error
}

// FindAll retrieves paginated bills, newest first, optionally filtered by
// status and table.
func (r *GormBillRepository) FindAll(ctx context.Context, filter models.BillFilter) ([]models.Bill, int64, error) {
	var bills []models.Bill
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Bill{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.TableNumber > 0 {
		query = query.Where("table_number = ?", filter.TableNumber)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.
		Offset(pageOffset(filter.Page, filter.Limit)).
		Limit(filter.Limit).
		Order("created_at DESC").
		Find(&bills).Error; err != nil {
		return nil, 0, err
	}

	return bills, total, nil
}
