package repository

import (
	"context"

	"club-ticketing/internal/model"

	"gorm.io/gorm"
)

type CatalogRepository interface {
	GetClub(ctx context.Context, id string) (*model.Club, error)
	GetTicket(ctx context.Context, id string) (*model.Ticket, error)
	GetMenuItem(ctx context.Context, id string) (*model.MenuItem, error)
	GetVariant(ctx context.Context, menuItemID, variantID string) (*model.MenuItemVariant, error)
}

type catalogRepoImpl struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepoImpl{db: db}
}

func (r *catalogRepoImpl) GetClub(ctx context.Context, id string) (*model.Club, error) {
	var club model.Club
	if err := r.db.WithContext(ctx).First(&club, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &club, nil
}

func (r *catalogRepoImpl) GetTicket(ctx context.Context, id string) (*model.Ticket, error) {
	var ticket model.Ticket
	if err := r.db.WithContext(ctx).First(&ticket, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *catalogRepoImpl) GetMenuItem(ctx context.Context, id string) (*model.MenuItem, error) {
	var item model.MenuItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *catalogRepoImpl) GetVariant(ctx context.Context, menuItemID, variantID string) (*model.MenuItemVariant, error) {
	var variant model.MenuItemVariant
	err := r.db.WithContext(ctx).
		Where("id = ? AND menu_item_id = ?", variantID, menuItemID).
		First(&variant).Error
	if err != nil {
		return nil, err
	}
	return &variant, nil
}
