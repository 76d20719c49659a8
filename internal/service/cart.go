package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"club-ticketing/internal/cartlock"
	"club-ticketing/internal/dto"
	"club-ticketing/internal/model"
	"club-ticketing/internal/pricing"
	"club-ticketing/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type timeNow = func() time.Time

const dateLayout = "2006-01-02"

type CartService interface {
	AddTicket(ctx context.Context, owner model.Owner, req *dto.AddTicketRequest) (*dto.Cart, error)
	AddMenuItem(ctx context.Context, owner model.Owner, req *dto.AddMenuItemRequest) (*dto.Cart, error)
	UpdateQuantity(ctx context.Context, owner model.Owner, itemID string, quantity int) (*dto.Cart, error)
	Remove(ctx context.Context, owner model.Owner, itemID string) (*dto.Cart, error)
	Clear(ctx context.Context, owner model.Owner) error
	List(ctx context.Context, owner model.Owner) (*dto.Cart, error)
}

type cartServiceImpl struct {
	cartRepo    repository.CartRepository
	catalogRepo repository.CatalogRepository
	locks       cartlock.Store
	pricer      *linePricer
	venueTZ     *time.Location
	horizonDays int
	now         timeNow
}

func NewCartService(
	cartRepo repository.CartRepository,
	catalogRepo repository.CatalogRepository,
	locks cartlock.Store,
	engine *pricing.Engine,
	venueTZ *time.Location,
	horizonDays int,
) CartService {
	return &cartServiceImpl{
		cartRepo:    cartRepo,
		catalogRepo: catalogRepo,
		locks:       locks,
		pricer:      newLinePricer(catalogRepo, engine),
		venueTZ:     venueTZ,
		horizonDays: horizonDays,
		now:         func() time.Time { return time.Now().In(venueTZ) },
	}
}

func (s *cartServiceImpl) AddTicket(ctx context.Context, owner model.Owner, req *dto.AddTicketRequest) (*dto.Cart, error) {
	if err := s.checkMutable(ctx, owner); err != nil {
		return nil, err
	}
	if req.Quantity <= 0 {
		return nil, &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	date, err := s.parseDate(req.Date)
	if err != nil {
		return nil, err
	}

	ticket, err := s.catalogRepo.GetTicket(ctx, req.TicketID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "ticket", ID: req.TicketID}
		}
		return nil, err
	}

	if err := s.validateTicketDate(ctx, ticket, req.Date, date); err != nil {
		return nil, err
	}

	// price projection doubles as availability validation: an event
	// past its grace window fails here, before any cart write
	probe := &model.CartItem{ItemType: model.ItemTypeTicket, RefID: ticket.ID, Date: req.Date, ClubID: ticket.ClubID}
	if _, err := s.pricer.quoteLine(ctx, probe, s.now); err != nil {
		return nil, err
	}

	existing, err := s.findLine(ctx, owner, model.ItemTypeTicket, ticket.ID, nil, req.Date)
	if err != nil {
		return nil, err
	}

	newQty := req.Quantity
	if existing != nil {
		newQty += existing.Quantity
	}
	if ticket.MaxPerPerson > 0 && newQty > ticket.MaxPerPerson {
		return nil, &ValidationError{Field: "quantity", Reason: fmt.Sprintf("max %d per person", ticket.MaxPerPerson)}
	}

	if ticket.Quantity != nil {
		// existing lines for this ticket (including the one being
		// merged into) already count against the cap
		reserved, err := s.cartRepo.SumTicketQuantity(ctx, owner, ticket.ID, "")
		if err != nil {
			return nil, err
		}
		if reserved+req.Quantity > *ticket.Quantity {
			return nil, &InventoryExhaustedError{TicketID: ticket.ID, Remaining: *ticket.Quantity - reserved}
		}
	}

	line := existing
	if line == nil {
		line = &model.CartItem{
			ID:        uuid.NewString(),
			UserID:    owner.UserID,
			SessionID: owner.SessionID,
			ItemType:  model.ItemTypeTicket,
			RefID:     ticket.ID,
			Quantity:  newQty,
			Date:      req.Date,
			ClubID:    ticket.ClubID,
		}
	}
	line.Quantity = newQty

	if err := s.validateResultingCart(ctx, owner, line); err != nil {
		return nil, err
	}

	if existing != nil {
		err = s.cartRepo.UpdateQuantity(ctx, existing.ID, newQty)
	} else {
		err = s.cartRepo.Create(ctx, line)
	}
	if err != nil {
		return nil, err
	}
	return s.List(ctx, owner)
}

func (s *cartServiceImpl) AddMenuItem(ctx context.Context, owner model.Owner, req *dto.AddMenuItemRequest) (*dto.Cart, error) {
	if err := s.checkMutable(ctx, owner); err != nil {
		return nil, err
	}
	if req.Quantity <= 0 {
		return nil, &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	date, err := s.parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	if date.Before(s.today()) {
		return nil, &ValidationError{Field: "date", Reason: "date is in the past"}
	}

	menuItem, err := s.catalogRepo.GetMenuItem(ctx, req.MenuItemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "menu item", ID: req.MenuItemID}
		}
		return nil, err
	}
	if menuItem.HasVariants && req.VariantID == nil {
		return nil, &ValidationError{Field: "variant_id", Reason: "menu item requires a variant"}
	}
	if req.VariantID != nil {
		if _, err := s.catalogRepo.GetVariant(ctx, menuItem.ID, *req.VariantID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, &NotFoundError{Resource: "menu item variant", ID: *req.VariantID}
			}
			return nil, err
		}
	}

	existing, err := s.findLine(ctx, owner, model.ItemTypeMenu, menuItem.ID, req.VariantID, req.Date)
	if err != nil {
		return nil, err
	}

	newQty := req.Quantity
	if existing != nil {
		newQty += existing.Quantity
	}
	if menuItem.MaxPerPerson != nil && newQty > *menuItem.MaxPerPerson {
		return nil, &ValidationError{Field: "quantity", Reason: fmt.Sprintf("max %d per person", *menuItem.MaxPerPerson)}
	}

	line := existing
	if line == nil {
		line = &model.CartItem{
			ID:        uuid.NewString(),
			UserID:    owner.UserID,
			SessionID: owner.SessionID,
			ItemType:  model.ItemTypeMenu,
			RefID:     menuItem.ID,
			VariantID: req.VariantID,
			Quantity:  newQty,
			Date:      req.Date,
			ClubID:    menuItem.ClubID,
		}
	}
	line.Quantity = newQty

	if err := s.validateResultingCart(ctx, owner, line); err != nil {
		return nil, err
	}

	if existing != nil {
		err = s.cartRepo.UpdateQuantity(ctx, existing.ID, newQty)
	} else {
		err = s.cartRepo.Create(ctx, line)
	}
	if err != nil {
		return nil, err
	}
	return s.List(ctx, owner)
}

func (s *cartServiceImpl) UpdateQuantity(ctx context.Context, owner model.Owner, itemID string, quantity int) (*dto.Cart, error) {
	if err := s.checkMutable(ctx, owner); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, &ValidationError{Field: "quantity", Reason: "must be positive; use remove instead"}
	}

	item, err := s.ownedItem(ctx, owner, itemID)
	if err != nil {
		return nil, err
	}
	date, err := s.parseDate(item.Date)
	if err != nil {
		return nil, err
	}

	// an update revalidates the line as if it were being added now: a
	// stale line (past date, expired event) cannot grow its quantity
	switch item.ItemType {
	case model.ItemTypeTicket:
		ticket, err := s.catalogRepo.GetTicket(ctx, item.RefID)
		if err != nil {
			return nil, err
		}
		if err := s.validateTicketDate(ctx, ticket, item.Date, date); err != nil {
			return nil, err
		}
		if _, err := s.pricer.quoteLine(ctx, item, s.now); err != nil {
			return nil, err
		}
		if ticket.MaxPerPerson > 0 && quantity > ticket.MaxPerPerson {
			return nil, &ValidationError{Field: "quantity", Reason: fmt.Sprintf("max %d per person", ticket.MaxPerPerson)}
		}
		if ticket.Quantity != nil {
			reserved, err := s.cartRepo.SumTicketQuantity(ctx, owner, ticket.ID, item.ID)
			if err != nil {
				return nil, err
			}
			if reserved+quantity > *ticket.Quantity {
				return nil, &InventoryExhaustedError{TicketID: ticket.ID, Remaining: *ticket.Quantity - reserved}
			}
		}
	case model.ItemTypeMenu:
		menuItem, err := s.catalogRepo.GetMenuItem(ctx, item.RefID)
		if err != nil {
			return nil, err
		}
		if date.Before(s.today()) {
			return nil, &ValidationError{Field: "date", Reason: "date is in the past"}
		}
		if menuItem.MaxPerPerson != nil && quantity > *menuItem.MaxPerPerson {
			return nil, &ValidationError{Field: "quantity", Reason: fmt.Sprintf("max %d per person", *menuItem.MaxPerPerson)}
		}
	}

	mutated := *item
	mutated.Quantity = quantity
	if err := s.validateResultingCart(ctx, owner, &mutated); err != nil {
		return nil, err
	}

	if err := s.cartRepo.UpdateQuantity(ctx, item.ID, quantity); err != nil {
		return nil, err
	}
	return s.List(ctx, owner)
}

func (s *cartServiceImpl) Remove(ctx context.Context, owner model.Owner, itemID string) (*dto.Cart, error) {
	if err := s.checkMutable(ctx, owner); err != nil {
		return nil, err
	}
	item, err := s.ownedItem(ctx, owner, itemID)
	if err != nil {
		return nil, err
	}
	if err := s.cartRepo.Delete(ctx, item.ID); err != nil {
		return nil, err
	}
	return s.List(ctx, owner)
}

func (s *cartServiceImpl) Clear(ctx context.Context, owner model.Owner) error {
	if err := s.checkMutable(ctx, owner); err != nil {
		return err
	}
	return s.cartRepo.Clear(ctx, nil, owner)
}

func (s *cartServiceImpl) List(ctx context.Context, owner model.Owner) (*dto.Cart, error) {
	if !owner.Valid() {
		return nil, &ValidationError{Field: "owner", Reason: "exactly one of user or session required"}
	}
	items, err := s.cartRepo.ListByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}

	cart := &dto.Cart{
		Items:          make([]dto.CartLine, 0, len(items)),
		TicketSubtotal: decimal.Zero,
		MenuSubtotal:   decimal.Zero,
	}
	for _, item := range items {
		lq, err := s.pricer.quoteLine(ctx, item, s.now)
		if err != nil {
			return nil, err
		}
		lineTotal := lq.Quote.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		cart.Items = append(cart.Items, dto.CartLine{
			ID:             item.ID,
			ItemType:       string(item.ItemType),
			RefID:          item.RefID,
			VariantID:      item.VariantID,
			Name:           lq.Name,
			Quantity:       item.Quantity,
			Date:           item.Date,
			ClubID:         item.ClubID,
			UnitPrice:      lq.Quote.Price,
			LineTotal:      lineTotal,
			PricingReason:  lq.Quote.Reason,
			DynamicApplied: lq.Dynamic && lq.Quote.Reason != pricing.ReasonBasePrice,
		})
		if item.ItemType == model.ItemTypeTicket {
			cart.TicketSubtotal = cart.TicketSubtotal.Add(lineTotal)
		} else {
			cart.MenuSubtotal = cart.MenuSubtotal.Add(lineTotal)
		}
	}
	return cart, nil
}

// ---- validation ----

// checkMutable rejects mutations for invalid owners and for carts
// frozen by an in-flight checkout.
func (s *cartServiceImpl) checkMutable(ctx context.Context, owner model.Owner) error {
	if !owner.Valid() {
		return &ValidationError{Field: "owner", Reason: "exactly one of user or session required"}
	}
	locked, err := s.locks.IsLocked(ctx, owner.Key())
	if err != nil {
		return err
	}
	if locked {
		return &LockedError{OwnerKey: owner.Key()}
	}
	return nil
}

func (s *cartServiceImpl) ownedItem(ctx context.Context, owner model.Owner, itemID string) (*model.CartItem, error) {
	item, err := s.cartRepo.FindByID(ctx, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "cart item", ID: itemID}
		}
		return nil, err
	}
	if !owner.Owns(item) {
		return nil, &OwnershipError{Resource: "cart item " + itemID}
	}
	return item, nil
}

func (s *cartServiceImpl) findLine(ctx context.Context, owner model.Owner, itemType model.ItemType, refID string, variantID *string, date string) (*model.CartItem, error) {
	line, err := s.cartRepo.FindLine(ctx, owner, itemType, refID, variantID, date)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return line, nil
}

func (s *cartServiceImpl) parseDate(v string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, v, s.venueTZ)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	return d, nil
}

func (s *cartServiceImpl) today() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.venueTZ)
}

// validateTicketDate dispatches the category-specific date rules.
func (s *cartServiceImpl) validateTicketDate(ctx context.Context, ticket *model.Ticket, dateStr string, date time.Time) error {
	if date.Before(s.today()) {
		return &ValidationError{Field: "date", Reason: "date is in the past"}
	}

	switch ticket.Category {
	case model.CategoryFree:
		// free tickets exist for a single declared date
		if ticket.AvailableDate == nil || *ticket.AvailableDate != dateStr {
			return &ValidationError{Field: "date", Reason: "free ticket is only available on its declared date"}
		}
		return nil

	case model.CategoryEvent:
		if ticket.AvailableDate != nil && *ticket.AvailableDate != dateStr {
			return &ValidationError{Field: "date", Reason: "event ticket is only valid for the event date"}
		}
		return nil

	case model.CategoryGeneral:
		horizon := s.today().AddDate(0, 0, s.horizonDays)
		if date.After(horizon) {
			return &ValidationError{Field: "date", Reason: fmt.Sprintf("date is beyond the %d-day horizon", s.horizonDays)}
		}
		club, err := s.catalogRepo.GetClub(ctx, ticket.ClubID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "club", ID: ticket.ClubID}
			}
			return err
		}
		sched, err := pricing.ParseSchedule(club.OpenDays, club.OpenTime, club.CloseTime)
		if err != nil {
			return err
		}
		if !scheduleHasDay(sched, date.Weekday()) {
			return &ValidationError{Field: "date", Reason: "club is closed on that day"}
		}
		return nil

	default:
		return &ValidationError{Field: "category", Reason: fmt.Sprintf("unknown ticket category %q", ticket.Category)}
	}
}

func scheduleHasDay(s pricing.Schedule, day time.Weekday) bool {
	for _, d := range s.OpenDays {
		if d == day {
			return true
		}
	}
	return false
}

// validateResultingCart enforces the cross-item invariants over the
// cart as it would look after the mutation: single club, uniform dates
// (unless every ticket is an event ticket), and event/non-event
// exclusivity in both directions.
func (s *cartServiceImpl) validateResultingCart(ctx context.Context, owner model.Owner, mutated *model.CartItem) error {
	items, err := s.cartRepo.ListByOwner(ctx, owner)
	if err != nil {
		return err
	}

	found := false
	for i, item := range items {
		if item.ID == mutated.ID {
			items[i] = mutated
			found = true
		}
	}
	if !found {
		items = append(items, mutated)
	}

	hasEventTicket := false
	hasNonEventTicket := false
	allTicketsAreEvents := true
	for _, item := range items {
		if item.ClubID != mutated.ClubID {
			return &ConsistencyError{Reason: "cart already holds items from another club"}
		}
		if item.ItemType != model.ItemTypeTicket {
			continue
		}
		ticket, err := s.catalogRepo.GetTicket(ctx, item.RefID)
		if err != nil {
			return err
		}
		if ticket.Category == model.CategoryEvent {
			hasEventTicket = true
		} else {
			hasNonEventTicket = true
			allTicketsAreEvents = false
		}
	}

	// event tickets have cart priority: neither direction of mixing is
	// allowed, the user must clear the cart first
	if hasEventTicket && hasNonEventTicket {
		return &ConsistencyError{Reason: "event tickets cannot share a cart with other tickets; clear your cart first"}
	}

	if !hasEventTicket || !allTicketsAreEvents {
		for _, item := range items {
			if item.Date != mutated.Date {
				return &ConsistencyError{Reason: "cart items must share the same date"}
			}
		}
	}
	return nil
}
