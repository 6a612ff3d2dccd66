package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/yashrajoria/dining-backend/services/dining-service/models"
	"gorm.io/gorm"
)

// PaymentRepository defines the interface for payment data access. Create
// returns gorm.ErrDuplicatedKey when the bill already has an open payment.
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	Save(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByOrderCode(ctx context.Context, orderCode string) (*models.Payment, error)
	FindByOrderCodeForUpdate(ctx context.Context, orderCode string) (*models.Payment, error)
	FindOpenByBill(ctx context.Context, billID uuid.UUID) (*models.Payment, error)
	FindExpiredOpen(ctx context.Context, now time.Time, limit int) ([]models.Payment, error)
}

// GormPaymentRepository implements PaymentRepository using GORM.
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository.
func NewGormPaymentRepository(db *gorm.DB) PaymentRepository {
	return &GormPaymentRepository{db: db}
}

func (r *GormPaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

// Save writes every column of payment.
func (r *GormPaymentRepository) Save(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Save(payment).Error
}

func (r *GormPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	return firstOrNil(err, &p)
}

func (r *GormPaymentRepository) FindByOrderCode(ctx context.Context, orderCode string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).Where("order_code = ?", orderCode).First(&p).Error
	return firstOrNil(err, &p)
}

// FindByOrderCodeForUpdate locks the payment row; reconciliation evaluates
// and applies a signal while holding it.
func (r *GormPaymentRepository) FindByOrderCodeForUpdate(ctx context.Context, orderCode string) (*models.Payment, error) {
	var p models.Payment
	err := forUpdate(r.db.WithContext(ctx)).Where("order_code = ?", orderCode).First(&p).Error
	return firstOrNil(err, &p)
}

func (r *GormPaymentRepository) FindOpenByBill(ctx context.Context, billID uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	err := r.db.WithContext(ctx).
		Where("bill_id = ? AND status IN ?", billID, models.OpenPaymentStatuses).
		First(&p).Error
	return firstOrNil(err, &p)
}

// FindExpiredOpen returns gateway payments still open after their expiry,
// oldest first.
func (r *GormPaymentRepository) FindExpiredOpen(ctx context.Context, now time.Time, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("method = ? AND status IN ? AND expired_at < ?", models.PaymentGateway, models.OpenPaymentStatuses, now).
		Order("expired_at ASC").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}
