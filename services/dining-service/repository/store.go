package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store groups the repositories of the dining service and opens transactions
// spanning several of them. Repositories obtained from the Store passed to a
// WithTx callback share that transaction.
type Store interface {
	Tables() TableRepository
	Guests() GuestRepository
	Dishes() DishRepository
	Orders() OrderRepository
	Bills() BillRepository
	Payments() PaymentRepository
	Notifications() NotificationRepository

	WithTx(ctx context.Context, fn func(tx Store) error) error
}

// GormStore implements Store on a *gorm.DB.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GormStore.
func NewGormStore(db *gorm.DB) Store {
	return &GormStore{db: db}
}

func (s *GormStore) Tables() TableRepository { return NewGormTableRepository(s.db) }
func (s *GormStore) Guests() GuestRepository { return NewGormGuestRepository(s.db) }
func (s *GormStore) Dishes() DishRepository { return NewGormDishRepository(s.db) }
func (s *GormStore) Orders() OrderRepository { return NewGormOrderRepository(s.db) }
func (s *GormStore) Bills() BillRepository { return NewGormBillRepository(s.db) }
func (s *GormStore) Payments() PaymentRepository { return NewGormPaymentRepository(s.db) }
func (s *GormStore) Notifications() NotificationRepository { return NewGormNotificationRepository(s.db) }

// WithTx runs fn in one database transaction; any returned error rolls it back.
func (s *GormStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

// forUpdate adds SELECT ... FOR UPDATE.
func forUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

// firstOrNil turns gorm.ErrRecordNotFound into a nil result.
func firstOrNil[T any](err error, v *T) (*T, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func pageOffset(page, limit int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * limit
}
