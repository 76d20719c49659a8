// Package fees splits a checkout total into merchant proceeds, platform
// commission and gateway fees. The engine is pure; its only defensive
// check is Validate, which re-derives every summed field.
package fees

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// Rates holds the commission and gateway parameters. Percentages are
// whole percent values (5 means 5%).
type Rates struct {
	GeneralTicketPct float64
	EventTicketPct   float64
	MenuPct          float64
	GatewayVarPct    float64
	GatewayFixed     int64 // minor units
	GatewayTaxPct    float64
}

type Engine struct {
	generalRate decimal.Decimal
	eventRate   decimal.Decimal
	menuRate    decimal.Decimal
	gatewayVar  decimal.Decimal
	gatewayFix  decimal.Decimal
	gatewayTax  decimal.Decimal
}

func NewEngine(r Rates) *Engine {
	pct := func(v float64) decimal.Decimal {
		return decimal.NewFromFloat(v).Div(decimal.NewFromInt(100))
	}
	return &Engine{
		generalRate: pct(r.GeneralTicketPct),
		eventRate:   pct(r.EventTicketPct),
		menuRate:    pct(r.MenuPct),
		gatewayVar:  pct(r.GatewayVarPct),
		gatewayFix:  decimal.NewFromInt(r.GatewayFixed),
		gatewayTax:  pct(r.GatewayTaxPct),
	}
}

// Allocation is the full fee breakdown of one checkout. Fees ride on top
// of the customer's total; the club always receives the full listed
// value of its items.
type Allocation struct {
	TicketSubtotal decimal.Decimal
	MenuSubtotal   decimal.Decimal

	PlatformFeeTickets decimal.Decimal
	PlatformFeeMenu    decimal.Decimal
	PlatformReceives   decimal.Decimal

	GatewayFee decimal.Decimal
	GatewayIVA decimal.Decimal

	// Reporting-only proportional split of the gateway cost across the
	// ticket and menu subtotals.
	GatewayFeeTickets decimal.Decimal
	GatewayFeeMenu    decimal.Decimal

	TotalPaid    decimal.Decimal
	ClubReceives decimal.Decimal
}

// Allocate computes the breakdown for the given subtotals in minor
// units. isEventTicket selects the ticket commission rate.
func (e *Engine) Allocate(ticketSubtotalCents, menuSubtotalCents int64, isEventTicket bool) (Allocation, error) {
	if ticketSubtotalCents < 0 || menuSubtotalCents < 0 {
		return Allocation{}, fmt.Errorf("negative subtotal: tickets=%d menu=%d", ticketSubtotalCents, menuSubtotalCents)
	}

	ticketSub := decimal.NewFromInt(ticketSubtotalCents)
	menuSub := decimal.NewFromInt(menuSubtotalCents)

	ticketRate := e.generalRate
	if isEventTicket {
		ticketRate = e.eventRate
	}

	a := Allocation{
		TicketSubtotal:     ticketSub,
		MenuSubtotal:       menuSub,
		PlatformFeeTickets: ticketSub.Mul(ticketRate),
		PlatformFeeMenu:    menuSub.Mul(e.menuRate),
	}
	a.PlatformReceives = a.PlatformFeeTickets.Add(a.PlatformFeeMenu)

	charged := ticketSub.Add(menuSub).Add(a.PlatformReceives)
	a.GatewayFee = charged.Mul(e.gatewayVar).Add(e.gatewayFix)
	a.GatewayIVA = a.GatewayFee.Mul(e.gatewayTax)
	a.TotalPaid = charged.Add(a.GatewayFee).Add(a.GatewayIVA)
	a.ClubReceives = ticketSub.Add(menuSub)

	gatewayTotal := a.GatewayFee.Add(a.GatewayIVA)
	if a.ClubReceives.IsPositive() {
		ticketWeight := ticketSub.Div(a.ClubReceives)
		a.GatewayFeeTickets = gatewayTotal.Mul(ticketWeight)
		a.GatewayFeeMenu = gatewayTotal.Sub(a.GatewayFeeTickets)
	}

	if err := a.Validate(); err != nil {
		return Allocation{}, err
	}
	return a, nil
}

// tolerance is one minor unit; anything beyond it is an inconsistency,
// not a rounding artifact.
var tolerance = one

// Validate re-derives every summed field and rejects mismatches beyond
// one minor unit. platformReceives and clubReceives must hold exactly.
func (a Allocation) Validate() error {
	if !a.PlatformFeeTickets.Add(a.PlatformFeeMenu).Equal(a.PlatformReceives) {
		return fmt.Errorf("platform fees %s + %s do not sum to platformReceives %s",
			a.PlatformFeeTickets, a.PlatformFeeMenu, a.PlatformReceives)
	}
	if !a.TicketSubtotal.Add(a.MenuSubtotal).Equal(a.ClubReceives) {
		return fmt.Errorf("clubReceives %s is not the exact subtotal sum", a.ClubReceives)
	}

	wantTotal := a.ClubReceives.Add(a.PlatformReceives).Add(a.GatewayFee).Add(a.GatewayIVA)
	if a.TotalPaid.Sub(wantTotal).Abs().GreaterThan(tolerance) {
		return fmt.Errorf("totalPaid %s does not re-derive to %s", a.TotalPaid, wantTotal)
	}

	gatewayTotal := a.GatewayFee.Add(a.GatewayIVA)
	split := a.GatewayFeeTickets.Add(a.GatewayFeeMenu)
	if a.ClubReceives.IsPositive() && split.Sub(gatewayTotal).Abs().GreaterThan(tolerance) {
		return fmt.Errorf("gateway fee split %s does not sum back to %s", split, gatewayTotal)
	}
	return nil
}

// TotalPaidCents rounds the customer total up to whole minor units for
// the gateway, which only accepts integer amounts.
func (a Allocation) TotalPaidCents() int64 {
	return a.TotalPaid.Ceil().IntPart()
}

// TicketFee is the per-row platform commission on one priced ticket,
// used when expanding purchases.
func (e *Engine) TicketFee(price decimal.Decimal, isEventTicket bool) decimal.Decimal {
	if isEventTicket {
		return price.Mul(e.eventRate)
	}
	return price.Mul(e.generalRate)
}

// MenuFee is the per-row platform commission on one priced menu line.
func (e *Engine) MenuFee(price decimal.Decimal) decimal.Decimal {
	return price.Mul(e.menuRate)
}
