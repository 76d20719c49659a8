package dto

import "github.com/shopspring/decimal"

type AddTicketRequest struct {
	TicketID string `json:"ticket_id"`
	Quantity int    `json:"quantity"`
	Date     string `json:"date"` // YYYY-MM-DD
}

type AddMenuItemRequest struct {
	MenuItemID string  `json:"menu_item_id"`
	VariantID  *string `json:"variant_id,omitempty"`
	Quantity   int     `json:"quantity"`
	Date       string  `json:"date"`
}

type UpdateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type CartLine struct {
	ID             string          `json:"id"`
	ItemType       string          `json:"item_type"`
	RefID          string          `json:"ref_id"`
	VariantID      *string         `json:"variant_id,omitempty"`
	Name           string          `json:"name"`
	Quantity       int             `json:"quantity"`
	Date           string          `json:"date"`
	ClubID         string          `json:"club_id"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	LineTotal      decimal.Decimal `json:"line_total"`
	PricingReason  string          `json:"pricing_reason"`
	DynamicApplied bool            `json:"dynamic_pricing_applied"`
}

type Cart struct {
	Items          []CartLine      `json:"items"`
	TicketSubtotal decimal.Decimal `json:"ticket_subtotal"`
	MenuSubtotal   decimal.Decimal `json:"menu_subtotal"`
}

type CheckoutRequest struct {
	BuyerEmail    string    `json:"buyer_email"`
	PaymentMethod string    `json:"payment_method"` // CARD, NEQUI, PSE...
	Card          *CardData `json:"card,omitempty"`
}

type CardData struct {
	Number   string `json:"number"`
	CVC      string `json:"cvc"`
	ExpMonth string `json:"exp_month"`
	ExpYear  string `json:"exp_year"`
	Holder   string `json:"card_holder"`
}

type CheckoutInitResponse struct {
	TransactionID  string          `json:"transaction_id"`
	RedirectURL    string          `json:"redirect_url,omitempty"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
	IsFreeCheckout bool            `json:"is_free_checkout"`
}

type CheckoutConfirmResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Remaining *int   `json:"remaining,omitempty"`
}
