package repository

import (
	"context"

	"club-ticketing/internal/model"

	"gorm.io/gorm"
)

type PurchaseRepository interface {
	CreateTicketPurchases(ctx context.Context, tx *gorm.DB, rows []*model.TicketPurchase) error
	CreateMenuPurchases(ctx context.Context, tx *gorm.DB, rows []*model.MenuPurchase) error
	ListTicketPurchases(ctx context.Context, transactionID string) ([]*model.TicketPurchase, error)
	ListMenuPurchases(ctx context.Context, transactionID string) ([]*model.MenuPurchase, error)
}

type purchaseRepoImpl struct {
	db *gorm.DB
}

func NewPurchaseRepository(db *gorm.DB) PurchaseRepository {
	return &purchaseRepoImpl{db: db}
}

func (r *purchaseRepoImpl) CreateTicketPurchases(ctx context.Context, tx *gorm.DB, rows []*model.TicketPurchase) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&rows).Error
}

func (r *purchaseRepoImpl) CreateMenuPurchases(ctx context.Context, tx *gorm.DB, rows []*model.MenuPurchase) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&rows).Error
}

func (r *purchaseRepoImpl) ListTicketPurchases(ctx context.Context, transactionID string) ([]*model.TicketPurchase, error) {
	var rows []*model.TicketPurchase
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("sequence_index asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *purchaseRepoImpl) ListMenuPurchases(ctx context.Context, transactionID string) ([]*model.MenuPurchase, error) {
	var rows []*model.MenuPurchase
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
