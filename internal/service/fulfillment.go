package service

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"club-ticketing/internal/fees"
	"club-ticketing/internal/model"
	"club-ticketing/internal/pricing"
	"club-ticketing/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// FulfillmentProcessor expands an approved transaction into purchase
// rows, exactly once.
type FulfillmentProcessor interface {
	Process(ctx context.Context, transactionID string) error
}

type fulfillmentImpl struct {
	db           *gorm.DB
	txRepo       repository.TransactionRepository
	cartRepo     repository.CartRepository
	purchaseRepo repository.PurchaseRepository
	catalogRepo  repository.CatalogRepository
	pricer       *linePricer
	feeEngine    *fees.Engine
	qr           *qrSigner
	notifier     Notifier
	now          timeNow
}

func NewFulfillmentProcessor(
	db *gorm.DB,
	txRepo repository.TransactionRepository,
	cartRepo repository.CartRepository,
	purchaseRepo repository.PurchaseRepository,
	catalogRepo repository.CatalogRepository,
	engine *pricing.Engine,
	feeEngine *fees.Engine,
	qrSecret string,
	notifier Notifier,
	venueTZ *time.Location,
) FulfillmentProcessor {
	return &fulfillmentImpl{
		db:           db,
		txRepo:       txRepo,
		cartRepo:     cartRepo,
		purchaseRepo: purchaseRepo,
		catalogRepo:  catalogRepo,
		pricer:       newFulfillmentPricer(catalogRepo, engine),
		feeEngine:    feeEngine,
		qr:           newQRSigner(qrSecret),
		notifier:     notifier,
		now:          func() time.Time { return time.Now().In(venueTZ) },
	}
}

// Process runs one serializable database transaction keyed by the
// checkout transaction id. The processedAt fence is checked under a row
// lock and written last, so a crash before the final write is always
// safely retryable and a crash after it never re-enters this path.
func (s *fulfillmentImpl) Process(ctx context.Context, transactionID string) error {
	var (
		ticketEmails []*TicketEmail
		menuEmail    *MenuEmail
		invoice      *InvoiceEmail
		alreadyDone  bool
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.txRepo.FindByIDForUpdate(ctx, tx, transactionID)
		if err != nil {
			return fmt.Errorf("load transaction: %w", err)
		}
		if row.ProcessedAt != nil {
			alreadyDone = true
			return nil
		}

		owner := model.Owner{UserID: row.UserID, SessionID: row.SessionID}
		items, err := s.cartRepo.ListByOwner(ctx, owner)
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}

		club, err := s.catalogRepo.GetClub(ctx, row.ClubID)
		if err != nil {
			return fmt.Errorf("load club: %w", err)
		}

		fulfilledAt := s.now()
		var ticketRows []*model.TicketPurchase
		var menuRows []*model.MenuPurchase
		hasTickets := false

		for _, item := range items {
			lq, err := s.pricer.quoteLine(ctx, item, func() time.Time { return fulfilledAt })
			if err != nil {
				return fmt.Errorf("price line %s: %w", item.ID, err)
			}
			dynamicApplied := lq.Dynamic && lq.Quote.Reason != pricing.ReasonBasePrice

			switch item.ItemType {
			case model.ItemTypeTicket:
				hasTickets = true
				for i := 1; i <= item.Quantity; i++ {
					purchaseID := uuid.NewString()
					ticketRows = append(ticketRows, &model.TicketPurchase{
						ID:                       purchaseID,
						TransactionID:            row.ID,
						TicketID:                 item.RefID,
						ClubID:                   item.ClubID,
						Date:                     item.Date,
						SequenceIndex:            i,
						SequenceTotal:            item.Quantity,
						OriginalBasePriceCents:   lq.BaseCents,
						PriceAtCheckout:          lq.Quote.Price,
						DynamicPricingWasApplied: dynamicApplied,
						ClubReceives:             lq.Quote.Price,
						PlatformFee:              s.feeEngine.TicketFee(lq.Quote.Price, lq.IsEvent),
						QRPayload:                s.qr.Sign("ticket", purchaseID, row.ID),
					})
					ticketEmails = append(ticketEmails, &TicketEmail{
						Recipient:     row.BuyerEmail,
						TicketName:    lq.Name,
						Date:          item.Date,
						QRPayload:     ticketRows[len(ticketRows)-1].QRPayload,
						ClubName:      club.Name,
						SequenceIndex: i,
						SequenceTotal: item.Quantity,
					})
				}

			case model.ItemTypeMenu:
				lineTotal := lq.Quote.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
				menuRows = append(menuRows, &model.MenuPurchase{
					ID:                       uuid.NewString(),
					TransactionID:            row.ID,
					MenuItemID:               item.RefID,
					VariantID:                item.VariantID,
					ClubID:                   item.ClubID,
					Date:                     item.Date,
					Quantity:                 item.Quantity,
					OriginalBasePriceCents:   lq.BaseCents,
					PriceAtCheckout:          lq.Quote.Price,
					DynamicPricingWasApplied: dynamicApplied,
					ClubReceives:             lineTotal,
					PlatformFee:              s.feeEngine.MenuFee(lineTotal),
				})
				if menuEmail == nil {
					menuEmail = &MenuEmail{
						Recipient: row.BuyerEmail,
						ClubName:  club.Name,
						Total:     decimal.Zero,
					}
				}
				menuEmail.Items = append(menuEmail.Items, MenuEmailItem{
					Name:      lq.Name,
					Quantity:  item.Quantity,
					LineTotal: lineTotal,
				})
				menuEmail.Total = menuEmail.Total.Add(lineTotal)
			}
		}

		if err := s.purchaseRepo.CreateTicketPurchases(ctx, tx, ticketRows); err != nil {
			return fmt.Errorf("create ticket purchases: %w", err)
		}
		if err := s.purchaseRepo.CreateMenuPurchases(ctx, tx, menuRows); err != nil {
			return fmt.Errorf("create menu purchases: %w", err)
		}

		// standalone menu checkouts are redeemed as a batch and get one
		// transaction-level QR; ticket checkouts carry per-unit QRs
		if !hasTickets && len(menuRows) > 0 {
			txQR := s.qr.Sign("menu", "", row.ID)
			if err := s.txRepo.SetTransactionQR(ctx, tx, row.ID, txQR); err != nil {
				return fmt.Errorf("set transaction qr: %w", err)
			}
			menuEmail.QRPayload = txQR
		}

		won, err := s.txRepo.MarkProcessed(ctx, tx, row.ID, fulfilledAt)
		if err != nil {
			return fmt.Errorf("mark processed: %w", err)
		}
		if !won {
			// the row lock should make this impossible; breach means a bug
			return &IdempotencyViolationError{TransactionID: row.ID}
		}

		invoice = &InvoiceEmail{
			Recipient:          row.BuyerEmail,
			TransactionID:      row.ID,
			TicketSubtotal:     decimal.NewFromInt(row.TicketSubtotalCents),
			MenuSubtotal:       decimal.NewFromInt(row.MenuSubtotalCents),
			PlatformFeeTickets: row.PlatformFeeTickets,
			PlatformFeeMenu:    row.PlatformFeeMenu,
			GatewayFee:         row.GatewayFee,
			GatewayIVA:         row.GatewayIVA,
			TotalPaid:          row.TotalPaid,
		}
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	if alreadyDone {
		return nil
	}

	// post-commit, best effort: a failed send never affects the order
	for _, email := range ticketEmails {
		if err := s.notifier.SendTicketEmail(ctx, email); err != nil {
			log.Printf("send ticket email for %s: %v", transactionID, err)
		}
	}
	if menuEmail != nil {
		if err := s.notifier.SendMenuEmail(ctx, menuEmail); err != nil {
			log.Printf("send menu email for %s: %v", transactionID, err)
		}
	}
	if invoice != nil {
		if err := s.notifier.SendInvoiceEmail(ctx, invoice); err != nil {
			log.Printf("send invoice email for %s: %v", transactionID, err)
		}
	}
	return nil
}
