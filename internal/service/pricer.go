package service

import (
	"context"
	"errors"
	"fmt"

	"club-ticketing/internal/model"
	"club-ticketing/internal/pricing"
	"club-ticketing/internal/repository"

	"gorm.io/gorm"
)

// lineQuote is the priced view of one cart line. Pricing is a read-only
// projection over the catalog: cart totals and fulfillment both consume
// this, so the two cannot drift for the same clock reading.
type lineQuote struct {
	Name      string
	BaseCents int64
	Quote     pricing.Quote
	IsEvent   bool
	Dynamic   bool
}

type linePricer struct {
	catalog repository.CatalogRepository
	engine  *pricing.Engine
	// clampExpired resolves an expired event quote to the grace price
	// instead of an error. Only fulfillment sets this: the payment was
	// already approved while the window was open.
	clampExpired bool
}

func newLinePricer(catalog repository.CatalogRepository, engine *pricing.Engine) *linePricer {
	return &linePricer{catalog: catalog, engine: engine}
}

func newFulfillmentPricer(catalog repository.CatalogRepository, engine *pricing.Engine) *linePricer {
	return &linePricer{catalog: catalog, engine: engine, clampExpired: true}
}

// quoteLine prices one cart line at `now`. An Expired quote is returned
// as PricingUnavailableError; callers never see a sentinel price.
func (p *linePricer) quoteLine(ctx context.Context, item *model.CartItem, now timeNow) (*lineQuote, error) {
	switch item.ItemType {
	case model.ItemTypeTicket:
		return p.quoteTicket(ctx, item, now)
	case model.ItemTypeMenu:
		return p.quoteMenu(ctx, item, now)
	default:
		return nil, fmt.Errorf("unknown cart item type %q", item.ItemType)
	}
}

func (p *linePricer) quoteTicket(ctx context.Context, item *model.CartItem, now timeNow) (*lineQuote, error) {
	ticket, err := p.catalog.GetTicket(ctx, item.RefID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "ticket", ID: item.RefID}
		}
		return nil, err
	}

	lq := &lineQuote{
		Name:      ticket.Name,
		BaseCents: ticket.PriceCents,
		IsEvent:   ticket.Category == model.CategoryEvent,
		Dynamic:   ticket.DynamicPricingEnabled,
	}

	switch ticket.Category {
	case model.CategoryFree:
		lq.Quote = p.engine.ForFree()
	case model.CategoryEvent:
		if ticket.EventStartsAt == nil {
			return nil, fmt.Errorf("event ticket %s has no start time", ticket.ID)
		}
		lq.Quote = p.engine.ForEvent(ticket.PriceCents, *ticket.EventStartsAt, now())
		if lq.Quote.State == pricing.Expired {
			if !p.clampExpired {
				return nil, &PricingUnavailableError{TicketID: ticket.ID}
			}
			// fulfillment of an already-approved payment: charge the
			// grace price instead of failing the committed order
			lq.Quote = pricing.Quote{
				State:  pricing.Surcharged,
				Price:  p.engine.SurchargedPrice(ticket.PriceCents),
				Reason: pricing.ReasonGraceSurcharge,
			}
		}
	case model.CategoryGeneral:
		sched, err := p.clubSchedule(ctx, ticket.ClubID)
		if err != nil {
			return nil, err
		}
		lq.Quote = p.engine.ForOpenHours(ticket.PriceCents, sched, ticket.DynamicPricingEnabled, now())
	default:
		return nil, fmt.Errorf("unknown ticket category %q", ticket.Category)
	}
	return lq, nil
}

func (p *linePricer) quoteMenu(ctx context.Context, item *model.CartItem, now timeNow) (*lineQuote, error) {
	menuItem, err := p.catalog.GetMenuItem(ctx, item.RefID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "menu item", ID: item.RefID}
		}
		return nil, err
	}

	name := menuItem.Name
	base := menuItem.PriceCents
	if item.VariantID != nil {
		variant, err := p.catalog.GetVariant(ctx, menuItem.ID, *item.VariantID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, &NotFoundError{Resource: "menu item variant", ID: *item.VariantID}
			}
			return nil, err
		}
		name = menuItem.Name + " - " + variant.Name
		base = variant.PriceCents
	}

	sched, err := p.clubSchedule(ctx, menuItem.ClubID)
	if err != nil {
		return nil, err
	}

	return &lineQuote{
		Name:      name,
		BaseCents: base,
		Dynamic:   menuItem.DynamicPricingEnabled,
		Quote:     p.engine.ForOpenHours(base, sched, menuItem.DynamicPricingEnabled, now()),
	}, nil
}

func (p *linePricer) clubSchedule(ctx context.Context, clubID string) (pricing.Schedule, error) {
	club, err := p.catalog.GetClub(ctx, clubID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pricing.Schedule{}, &NotFoundError{Resource: "club", ID: clubID}
		}
		return pricing.Schedule{}, err
	}
	return pricing.ParseSchedule(club.OpenDays, club.OpenTime, club.CloseTime)
}
