package repository

import (
	"context"

	"club-ticketing/internal/model"

	"gorm.io/gorm"
)

type CartRepository interface {
	ListByOwner(ctx context.Context, owner model.Owner) ([]*model.CartItem, error)
	FindByID(ctx context.Context, id string) (*model.CartItem, error)
	// FindLine locates an existing line matching the merge identity
	// (itemType, refID, variantID, date) in the owner's cart.
	FindLine(ctx context.Context, owner model.Owner, itemType model.ItemType, refID string, variantID *string, date string) (*model.CartItem, error)
	Create(ctx context.Context, item *model.CartItem) error
	UpdateQuantity(ctx context.Context, id string, quantity int) error
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context, tx *gorm.DB, owner model.Owner) error
	// SumTicketQuantity totals a ticket's in-cart quantity for one
	// owner, optionally excluding the line being updated.
	SumTicketQuantity(ctx context.Context, owner model.Owner, ticketID, excludeItemID string) (int, error)
}

type cartRepoImpl struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) CartRepository {
	return &cartRepoImpl{db: db}
}

func ownerScope(owner model.Owner) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if owner.UserID != nil {
			return db.Where("user_id = ?", *owner.UserID)
		}
		return db.Where("session_id = ?", *owner.SessionID)
	}
}

func (r *cartRepoImpl) ListByOwner(ctx context.Context, owner model.Owner) ([]*model.CartItem, error) {
	var items []*model.CartItem
	err := r.db.WithContext(ctx).
		Scopes(ownerScope(owner)).
		Order("created_at asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *cartRepoImpl) FindByID(ctx context.Context, id string) (*model.CartItem, error) {
	var item model.CartItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *cartRepoImpl) FindLine(ctx context.Context, owner model.Owner, itemType model.ItemType, refID string, variantID *string, date string) (*model.CartItem, error) {
	q := r.db.WithContext(ctx).
		Scopes(ownerScope(owner)).
		Where("item_type = ? AND ref_id = ? AND date = ?", itemType, refID, date)
	if variantID != nil {
		q = q.Where("variant_id = ?", *variantID)
	} else {
		q = q.Where("variant_id IS NULL")
	}

	var item model.CartItem
	if err := q.First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *cartRepoImpl) Create(ctx context.Context, item *model.CartItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *cartRepoImpl) UpdateQuantity(ctx context.Context, id string, quantity int) error {
	return r.db.WithContext(ctx).Model(&model.CartItem{}).
		Where("id = ?", id).
		Update("quantity", quantity).Error
}

func (r *cartRepoImpl) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&model.CartItem{}, "id = ?", id).Error
}

// Clear accepts an optional transaction handle so fulfillment can clear
// the cart inside its own transaction boundary.
func (r *cartRepoImpl) Clear(ctx context.Context, tx *gorm.DB, owner model.Owner) error {
	db := r.db
	if tx != nil {
		db = tx
	}
	return db.WithContext(ctx).
		Scopes(ownerScope(owner)).
		Delete(&model.CartItem{}).Error
}

func (r *cartRepoImpl) SumTicketQuantity(ctx context.Context, owner model.Owner, ticketID, excludeItemID string) (int, error) {
	var total int64
	q := r.db.WithContext(ctx).Model(&model.CartItem{}).
		Scopes(ownerScope(owner)).
		Where("item_type = ? AND ref_id = ?", model.ItemTypeTicket, ticketID)
	if excludeItemID != "" {
		q = q.Where("id <> ?", excludeItemID)
	}
	err := q.Select("COALESCE(SUM(quantity), 0)").Scan(&total).Error
	return int(total), err
}
