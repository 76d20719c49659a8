package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TicketCategory string

const (
	CategoryGeneral TicketCategory = "general"
	CategoryEvent   TicketCategory = "event"
	CategoryFree    TicketCategory = "free"
)

type ItemType string

const (
	ItemTypeTicket ItemType = "ticket"
	ItemTypeMenu   ItemType = "menu"
)

const (
	PaymentStatusPending  = "PENDING"
	PaymentStatusApproved = "APPROVED"
	PaymentStatusDeclined = "DECLINED"
	PaymentStatusError    = "ERROR"
)

type Club struct {
	ID   string `gorm:"primaryKey;size:64;not null"`
	Name string `gorm:"size:128;not null"`
	// OpenDays is a comma-separated list of weekday numbers, 0=Sunday.
	OpenDays  string `gorm:"size:32;not null"`
	OpenTime  string `gorm:"size:8;not null"` // "21:00"
	CloseTime string `gorm:"size:8;not null"` // "04:00", may cross midnight
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Ticket struct {
	ID                    string         `gorm:"primaryKey;size:64;not null"`
	ClubID                string         `gorm:"size:64;index;not null"`
	EventID               *string        `gorm:"size:64;index"`
	Category              TicketCategory `gorm:"size:16;index;not null"`
	Name                  string         `gorm:"size:128;not null"`
	PriceCents            int64          `gorm:"not null"`
	MaxPerPerson          int            `gorm:"not null"`
	Quantity              *int           // inventory cap, nil means uncapped
	AvailableDate         *string        `gorm:"size:10"` // YYYY-MM-DD, required for free/event
	EventStartsAt         *time.Time     // set for category event
	DynamicPricingEnabled bool           `gorm:"not null"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type MenuItem struct {
	ID                    string `gorm:"primaryKey;size:64;not null"`
	ClubID                string `gorm:"size:64;index;not null"`
	Name                  string `gorm:"size:128;not null"`
	PriceCents            int64  `gorm:"not null"`
	MaxPerPerson          *int
	HasVariants           bool `gorm:"not null"`
	DynamicPricingEnabled bool `gorm:"not null"`
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type MenuItemVariant struct {
	ID         string `gorm:"primaryKey;size:64;not null"`
	MenuItemID string `gorm:"size:64;index;not null"`
	Name       string `gorm:"size:128;not null"`
	PriceCents int64  `gorm:"not null"`
	CreatedAt  time.Time
}

// CartItem is one cart line. Owned by exactly one of user or session.
type CartItem struct {
	ID        string   `gorm:"primaryKey;size:64;not null"`
	UserID    *string  `gorm:"size:64;index"`
	SessionID *string  `gorm:"size:64;index"`
	ItemType  ItemType `gorm:"size:8;not null"`
	RefID     string   `gorm:"size:64;index;not null"`
	VariantID *string  `gorm:"size:64"`
	Quantity  int      `gorm:"not null"`
	Date      string   `gorm:"size:10;not null"` // YYYY-MM-DD venue-local
	ClubID    string   `gorm:"size:64;index;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type CheckoutTransaction struct {
	ID         string  `gorm:"primaryKey;size:64;not null"`
	ClubID     string  `gorm:"size:64;index;not null"`
	UserID     *string `gorm:"size:64;index"`
	SessionID  *string `gorm:"size:64;index"`
	BuyerEmail string  `gorm:"size:128;not null"`

	TicketSubtotalCents int64           `gorm:"not null"`
	MenuSubtotalCents   int64           `gorm:"not null"`
	PlatformFeeTickets  decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	PlatformFeeMenu     decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	PlatformReceives    decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	GatewayFee          decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	GatewayIVA          decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	TotalPaid           decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	ClubReceivesCents   int64           `gorm:"not null"`
	Currency            string          `gorm:"size:8;not null"`

	PaymentProvider       string `gorm:"size:32;not null"`
	PaymentStatus         string `gorm:"size:16;index;not null"`
	ProviderReference     string `gorm:"size:64;uniqueIndex;not null"`
	ProviderTransactionID string `gorm:"size:128;index"`

	// ProcessedAt is the idempotency fence: fulfillment runs at most
	// once per transaction, and this is its final write.
	ProcessedAt *time.Time
	QRPayload   string `gorm:"size:512"` // transaction-level QR for standalone menu checkouts
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TicketPurchase is one purchased unit. Never mutated after creation.
type TicketPurchase struct {
	ID                       string          `gorm:"primaryKey;size:64;not null"`
	TransactionID            string          `gorm:"size:64;index;not null"`
	TicketID                 string          `gorm:"size:64;index;not null"`
	ClubID                   string          `gorm:"size:64;index;not null"`
	Date                     string          `gorm:"size:10;not null"`
	SequenceIndex            int             `gorm:"not null"` // ticket N of M
	SequenceTotal            int             `gorm:"not null"`
	OriginalBasePriceCents   int64           `gorm:"not null"`
	PriceAtCheckout          decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	DynamicPricingWasApplied bool            `gorm:"not null"`
	ClubReceives             decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	PlatformFee              decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	QRPayload                string          `gorm:"size:512;not null"`
	CreatedAt                time.Time
}

// MenuPurchase is one purchased cart line (menu lines are redeemed as a
// batch, so quantity stays on the row).
type MenuPurchase struct {
	ID                       string          `gorm:"primaryKey;size:64;not null"`
	TransactionID            string          `gorm:"size:64;index;not null"`
	MenuItemID               string          `gorm:"size:64;index;not null"`
	VariantID                *string         `gorm:"size:64"`
	ClubID                   string          `gorm:"size:64;index;not null"`
	Date                     string          `gorm:"size:10;not null"`
	Quantity                 int             `gorm:"not null"`
	OriginalBasePriceCents   int64           `gorm:"not null"`
	PriceAtCheckout          decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	DynamicPricingWasApplied bool            `gorm:"not null"`
	ClubReceives             decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	PlatformFee              decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	CreatedAt                time.Time
}
