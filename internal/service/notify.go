package service

import (
	"context"
	"log"

	"github.com/shopspring/decimal"
)

// Notification payload contracts for the email collaborator. Sends are
// best-effort: a failed send never rolls back a committed order.

type TicketEmail struct {
	Recipient     string
	TicketName    string
	Date          string
	QRPayload     string
	ClubName      string
	SequenceIndex int
	SequenceTotal int
}

type MenuEmailItem struct {
	Name      string
	Quantity  int
	LineTotal decimal.Decimal
}

type MenuEmail struct {
	Recipient string
	QRPayload string
	ClubName  string
	Items     []MenuEmailItem
	Total     decimal.Decimal
}

type InvoiceEmail struct {
	Recipient          string
	TransactionID      string
	TicketSubtotal     decimal.Decimal
	MenuSubtotal       decimal.Decimal
	PlatformFeeTickets decimal.Decimal
	PlatformFeeMenu    decimal.Decimal
	GatewayFee         decimal.Decimal
	GatewayIVA         decimal.Decimal
	TotalPaid          decimal.Decimal
}

type Notifier interface {
	SendTicketEmail(ctx context.Context, email *TicketEmail) error
	SendMenuEmail(ctx context.Context, email *MenuEmail) error
	SendInvoiceEmail(ctx context.Context, email *InvoiceEmail) error
}

// LogNotifier stands in for the external email service in development
// and tests.
type LogNotifier struct{}

func (LogNotifier) SendTicketEmail(_ context.Context, email *TicketEmail) error {
	log.Printf("ticket email to %s: %s %d/%d", email.Recipient, email.TicketName, email.SequenceIndex, email.SequenceTotal)
	return nil
}

func (LogNotifier) SendMenuEmail(_ context.Context, email *MenuEmail) error {
	log.Printf("menu email to %s: %d items", email.Recipient, len(email.Items))
	return nil
}

func (LogNotifier) SendInvoiceEmail(_ context.Context, email *InvoiceEmail) error {
	log.Printf("invoice email to %s for transaction %s", email.Recipient, email.TransactionID)
	return nil
}
