package repository

import (
	"context"
	"time"

	"club-ticketing/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TransactionRepository interface {
	Create(ctx context.Context, tx *model.CheckoutTransaction) error
	FindByID(ctx context.Context, id string) (*model.CheckoutTransaction, error)
	// FindByIDForUpdate row-locks the transaction inside tx so two
	// concurrent fulfillments serialize on it.
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id string) (*model.CheckoutTransaction, error)
	UpdateStatus(ctx context.Context, id, status string) error
	SetProviderTransactionID(ctx context.Context, id, providerTxID string) error
	SetTransactionQR(ctx context.Context, tx *gorm.DB, id, qrPayload string) error
	// MarkProcessed sets processed_at only if it is still null and
	// reports whether this call won the fence.
	MarkProcessed(ctx context.Context, tx *gorm.DB, id string, at time.Time) (bool, error)
}

type transactionRepoImpl struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepoImpl{db: db}
}

func (r *transactionRepoImpl) Create(ctx context.Context, tx *model.CheckoutTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}

func (r *transactionRepoImpl) FindByID(ctx context.Context, id string) (*model.CheckoutTransaction, error) {
	var tx model.CheckoutTransaction
	if err := r.db.WithContext(ctx).First(&tx, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *transactionRepoImpl) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id string) (*model.CheckoutTransaction, error) {
	var row model.CheckoutTransaction
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&row, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *transactionRepoImpl) UpdateStatus(ctx context.Context, id, status string) error {
	return r.db.WithContext(ctx).Model(&model.CheckoutTransaction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"payment_status": status,
			"updated_at":     time.Now(),
		}).Error
}

func (r *transactionRepoImpl) SetProviderTransactionID(ctx context.Context, id, providerTxID string) error {
	return r.db.WithContext(ctx).Model(&model.CheckoutTransaction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"provider_transaction_id": providerTxID,
			"updated_at":              time.Now(),
		}).Error
}

func (r *transactionRepoImpl) SetTransactionQR(ctx context.Context, tx *gorm.DB, id, qrPayload string) error {
	return tx.WithContext(ctx).Model(&model.CheckoutTransaction{}).
		Where("id = ?", id).
		Update("qr_payload", qrPayload).Error
}

func (r *transactionRepoImpl) MarkProcessed(ctx context.Context, tx *gorm.DB, id string, at time.Time) (bool, error) {
	result := tx.WithContext(ctx).Model(&model.CheckoutTransaction{}).
		Where("id = ? AND processed_at IS NULL", id).
		Updates(map[string]interface{}{
			"processed_at": at,
			"updated_at":   at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}
