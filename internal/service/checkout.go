package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"club-ticketing/internal/cartlock"
	"club-ticketing/internal/client"
	"club-ticketing/internal/dto"
	"club-ticketing/internal/fees"
	"club-ticketing/internal/model"
	"club-ticketing/internal/pricing"
	"club-ticketing/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ConflictError reports an operation that clashes with the current
// transaction state, e.g. cancelling an already fulfilled checkout.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return e.Reason }

type CheckoutService interface {
	Initiate(ctx context.Context, owner model.Owner, req *dto.CheckoutRequest) (*dto.CheckoutInitResponse, error)
	Confirm(ctx context.Context, owner model.Owner, transactionID string) (*dto.CheckoutConfirmResponse, error)
	// Cancel proactively releases an in-flight checkout; without it the
	// lock TTL is the only way out of an abandoned attempt.
	Cancel(ctx context.Context, owner model.Owner, transactionID string) error
}

type CheckoutConfig struct {
	MinTotalCents   int64
	Currency        string
	Provider        string
	IntegritySecret string
}

type checkoutServiceImpl struct {
	cartRepo    repository.CartRepository
	txRepo      repository.TransactionRepository
	catalogRepo repository.CatalogRepository
	locks       cartlock.Store
	gateway     client.PaymentGateway
	feeEngine   *fees.Engine
	fulfillment FulfillmentProcessor
	pricer      *linePricer
	cfg         CheckoutConfig
	now         timeNow
}

func NewCheckoutService(
	cartRepo repository.CartRepository,
	txRepo repository.TransactionRepository,
	catalogRepo repository.CatalogRepository,
	locks cartlock.Store,
	gateway client.PaymentGateway,
	pricingEngine *pricing.Engine,
	feeEngine *fees.Engine,
	fulfillment FulfillmentProcessor,
	cfg CheckoutConfig,
	venueTZ *time.Location,
) CheckoutService {
	return &checkoutServiceImpl{
		cartRepo:    cartRepo,
		txRepo:      txRepo,
		catalogRepo: catalogRepo,
		locks:       locks,
		gateway:     gateway,
		feeEngine:   feeEngine,
		fulfillment: fulfillment,
		pricer:      newLinePricer(catalogRepo, pricingEngine),
		cfg:         cfg,
		now:         func() time.Time { return time.Now().In(venueTZ) },
	}
}

// cartTotals is the priced snapshot checkout works from.
type cartTotals struct {
	ticketSubtotalCents int64
	menuSubtotalCents   int64
	hasEventTicket      bool
	clubID              string
}

func (s *checkoutServiceImpl) priceCart(ctx context.Context, items []*model.CartItem) (*cartTotals, error) {
	totals := &cartTotals{clubID: items[0].ClubID}
	ticketSub := decimal.Zero
	menuSub := decimal.Zero

	for _, item := range items {
		lq, err := s.pricer.quoteLine(ctx, item, s.now)
		if err != nil {
			return nil, err
		}
		lineTotal := lq.Quote.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		if item.ItemType == model.ItemTypeTicket {
			ticketSub = ticketSub.Add(lineTotal)
			if lq.IsEvent {
				totals.hasEventTicket = true
			}
		} else {
			menuSub = menuSub.Add(lineTotal)
		}
	}

	totals.ticketSubtotalCents = ticketSub.Round(0).IntPart()
	totals.menuSubtotalCents = menuSub.Round(0).IntPart()
	return totals, nil
}

func (s *checkoutServiceImpl) Initiate(ctx context.Context, owner model.Owner, req *dto.CheckoutRequest) (*dto.CheckoutInitResponse, error) {
	if !owner.Valid() {
		return nil, &ValidationError{Field: "owner", Reason: "exactly one of user or session required"}
	}
	if req.BuyerEmail == "" {
		return nil, &ValidationError{Field: "buyer_email", Reason: "required"}
	}

	// fail fast on an empty cart, before taking any lock
	items, err := s.cartRepo.ListByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, &ValidationError{Field: "cart", Reason: "cart is empty"}
	}

	totals, err := s.priceCart(ctx, items)
	if err != nil {
		return nil, err
	}

	isFree := totals.ticketSubtotalCents == 0 && totals.menuSubtotalCents == 0
	var allocation fees.Allocation
	if !isFree {
		allocation, err = s.feeEngine.Allocate(totals.ticketSubtotalCents, totals.menuSubtotalCents, totals.hasEventTicket)
		if err != nil {
			return nil, fmt.Errorf("fee allocation: %w", err)
		}
		if allocation.TotalPaidCents() < s.cfg.MinTotalCents {
			// nothing to release: this attempt takes its lock only later
			return nil, &ValidationError{
				Field:  "total",
				Reason: fmt.Sprintf("total is below the minimum payable amount of %d", s.cfg.MinTotalCents),
			}
		}
	} else {
		allocation = fees.Allocation{
			TicketSubtotal: decimal.Zero, MenuSubtotal: decimal.Zero,
			PlatformFeeTickets: decimal.Zero, PlatformFeeMenu: decimal.Zero,
			PlatformReceives: decimal.Zero, GatewayFee: decimal.Zero,
			GatewayIVA: decimal.Zero, TotalPaid: decimal.Zero, ClubReceives: decimal.Zero,
		}
	}

	// persist the transaction with a locally generated idempotent
	// reference before any external call
	tx := &model.CheckoutTransaction{
		ID:                  uuid.NewString(),
		ClubID:              totals.clubID,
		UserID:              owner.UserID,
		SessionID:           owner.SessionID,
		BuyerEmail:          req.BuyerEmail,
		TicketSubtotalCents: totals.ticketSubtotalCents,
		MenuSubtotalCents:   totals.menuSubtotalCents,
		PlatformFeeTickets:  allocation.PlatformFeeTickets,
		PlatformFeeMenu:     allocation.PlatformFeeMenu,
		PlatformReceives:    allocation.PlatformReceives,
		GatewayFee:          allocation.GatewayFee,
		GatewayIVA:          allocation.GatewayIVA,
		TotalPaid:           allocation.TotalPaid,
		ClubReceivesCents:   totals.ticketSubtotalCents + totals.menuSubtotalCents,
		Currency:            s.cfg.Currency,
		PaymentProvider:     s.cfg.Provider,
		PaymentStatus:       model.PaymentStatusPending,
		ProviderReference:   uuid.NewString(),
	}
	if err := s.txRepo.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("persist transaction: %w", err)
	}

	ok, err := s.locks.Acquire(ctx, owner.Key(), tx.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := s.txRepo.UpdateStatus(ctx, tx.ID, model.PaymentStatusError); err != nil {
			log.Printf("mark transaction %s error: %v", tx.ID, err)
		}
		return nil, &LockedError{OwnerKey: owner.Key()}
	}

	if isFree {
		return s.completeFreeCheckout(ctx, owner, tx)
	}
	return s.startGatewayPayment(ctx, owner, tx, req, allocation)
}

func (s *checkoutServiceImpl) completeFreeCheckout(ctx context.Context, owner model.Owner, tx *model.CheckoutTransaction) (*dto.CheckoutInitResponse, error) {
	if err := s.txRepo.UpdateStatus(ctx, tx.ID, model.PaymentStatusApproved); err != nil {
		s.releaseLockHeldBy(ctx, owner.Key(), tx.ID)
		return nil, err
	}
	if err := s.fulfillment.Process(ctx, tx.ID); err != nil {
		s.releaseLockHeldBy(ctx, owner.Key(), tx.ID)
		return nil, err
	}
	s.clearCartAndRelease(ctx, owner, tx.ID)

	return &dto.CheckoutInitResponse{
		TransactionID:  tx.ID,
		TotalPaid:      decimal.Zero,
		IsFreeCheckout: true,
	}, nil
}

func (s *checkoutServiceImpl) startGatewayPayment(ctx context.Context, owner model.Owner, tx *model.CheckoutTransaction, req *dto.CheckoutRequest, allocation fees.Allocation) (*dto.CheckoutInitResponse, error) {
	// lockHolder tracks the id the lock is keyed to; it changes once the
	// lock is re-keyed to the gateway transaction
	lockHolder := tx.ID
	fail := func(cause error) (*dto.CheckoutInitResponse, error) {
		// never leave the lock held on an exception path; keep the
		// transaction row in its last known status for reconciliation
		s.releaseLockHeldBy(ctx, owner.Key(), lockHolder)
		if err := s.txRepo.UpdateStatus(ctx, tx.ID, model.PaymentStatusError); err != nil {
			log.Printf("mark transaction %s error: %v", tx.ID, err)
		}
		log.Printf("gateway failure for transaction %s: %v", tx.ID, cause)
		return nil, &GatewayCommunicationError{TransactionID: tx.ID, Err: cause}
	}

	tokens, err := s.gateway.GetAcceptanceTokens(ctx)
	if err != nil {
		return fail(err)
	}

	gwReq := &client.TransactionRequest{
		AmountInCents:   allocation.TotalPaidCents(),
		Currency:        tx.Currency,
		Reference:       tx.ProviderReference,
		CustomerEmail:   tx.BuyerEmail,
		PaymentMethod:   req.PaymentMethod,
		AcceptanceToken: tokens.Acceptance,
	}
	gwReq.Signature = client.IntegritySignature(gwReq.Reference, gwReq.AmountInCents, gwReq.Currency, s.cfg.IntegritySecret)

	if req.PaymentMethod == "CARD" {
		if req.Card == nil {
			s.releaseLockHeldBy(ctx, owner.Key(), lockHolder)
			return nil, &ValidationError{Field: "card", Reason: "card data required for card payments"}
		}
		token, err := s.gateway.TokenizeCard(ctx, client.CardData{
			Number:   req.Card.Number,
			CVC:      req.Card.CVC,
			ExpMonth: req.Card.ExpMonth,
			ExpYear:  req.Card.ExpYear,
			Holder:   req.Card.Holder,
		})
		if err != nil {
			return fail(err)
		}
		gwReq.CardToken = token
	}

	gwTx, err := s.gateway.CreateTransaction(ctx, gwReq)
	if err != nil {
		return fail(err)
	}

	if err := s.txRepo.SetProviderTransactionID(ctx, tx.ID, gwTx.ID); err != nil {
		return fail(err)
	}
	if err := s.locks.UpdateTransactionID(ctx, owner.Key(), gwTx.ID); err != nil {
		log.Printf("re-key lock for %s: %v", owner.Key(), err)
	} else {
		lockHolder = gwTx.ID
	}

	redirectURL := gwTx.RedirectURL
	if redirectURL == "" && req.PaymentMethod != "CARD" {
		// async methods surface their redirect URL late; poll with a
		// bounded timeout and let the client re-poll on empty
		redirectURL, err = s.gateway.PollTransactionAsyncURL(ctx, gwTx.ID)
		if err != nil {
			return fail(err)
		}
	}

	return &dto.CheckoutInitResponse{
		TransactionID: tx.ID,
		RedirectURL:   redirectURL,
		TotalPaid:     allocation.TotalPaid,
	}, nil
}

func (s *checkoutServiceImpl) Confirm(ctx context.Context, owner model.Owner, transactionID string) (*dto.CheckoutConfirmResponse, error) {
	tx, err := s.ownedTransaction(ctx, owner, transactionID)
	if err != nil {
		return nil, err
	}

	// duplicate confirmation of a fulfilled checkout is a no-op
	if tx.ProcessedAt != nil {
		return &dto.CheckoutConfirmResponse{Success: true, Message: "order already processed"}, nil
	}

	if tx.ProviderTransactionID == "" {
		return nil, &ValidationError{Field: "transaction", Reason: "transaction has no gateway payment"}
	}

	holder := lockHolderOf(tx)

	gwTx, err := s.gateway.GetTransactionStatus(ctx, tx.ProviderTransactionID)
	if err != nil {
		s.releaseLockHeldBy(ctx, owner.Key(), holder)
		log.Printf("status query failed for transaction %s: %v", tx.ID, err)
		return nil, &GatewayCommunicationError{TransactionID: tx.ID, Err: err}
	}

	switch gwTx.Status {
	case "APPROVED":
		if err := s.txRepo.UpdateStatus(ctx, tx.ID, model.PaymentStatusApproved); err != nil {
			s.releaseLockHeldBy(ctx, owner.Key(), holder)
			return nil, err
		}
		if err := s.fulfillment.Process(ctx, tx.ID); err != nil {
			s.releaseLockHeldBy(ctx, owner.Key(), holder)
			return nil, err
		}
		s.clearCartAndRelease(ctx, owner, holder)
		return &dto.CheckoutConfirmResponse{Success: true, Message: "payment approved"}, nil

	case "PENDING":
		// not terminal: keep the cart frozen, client re-polls
		return &dto.CheckoutConfirmResponse{Success: false, Message: "payment pending"}, nil

	case "DECLINED":
		if err := s.txRepo.UpdateStatus(ctx, tx.ID, model.PaymentStatusDeclined); err != nil {
			log.Printf("mark transaction %s declined: %v", tx.ID, err)
		}
		s.releaseLockHeldBy(ctx, owner.Key(), holder)
		return nil, &PaymentDeclinedError{TransactionID: tx.ID, GatewayStatus: gwTx.Status}

	default:
		if err := s.txRepo.UpdateStatus(ctx, tx.ID, model.PaymentStatusError); err != nil {
			log.Printf("mark transaction %s error: %v", tx.ID, err)
		}
		s.releaseLockHeldBy(ctx, owner.Key(), holder)
		return nil, &PaymentDeclinedError{TransactionID: tx.ID, GatewayStatus: gwTx.Status}
	}
}

// lockHolderOf is the id the cart lock would be keyed to for this
// transaction: the gateway id once payment started, our own id before.
func lockHolderOf(tx *model.CheckoutTransaction) string {
	if tx.ProviderTransactionID != "" {
		return tx.ProviderTransactionID
	}
	return tx.ID
}

func (s *checkoutServiceImpl) Cancel(ctx context.Context, owner model.Owner, transactionID string) error {
	tx, err := s.ownedTransaction(ctx, owner, transactionID)
	if err != nil {
		return err
	}
	if tx.ProcessedAt != nil {
		return &ConflictError{Reason: "transaction already fulfilled"}
	}
	if err := s.txRepo.UpdateStatus(ctx, tx.ID, model.PaymentStatusError); err != nil {
		return err
	}
	s.releaseLockHeldBy(ctx, owner.Key(), lockHolderOf(tx))
	return nil
}

func (s *checkoutServiceImpl) ownedTransaction(ctx context.Context, owner model.Owner, transactionID string) (*model.CheckoutTransaction, error) {
	if !owner.Valid() {
		return nil, &ValidationError{Field: "owner", Reason: "exactly one of user or session required"}
	}
	tx, err := s.txRepo.FindByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "transaction", ID: transactionID}
		}
		return nil, err
	}

	sameUser := owner.UserID != nil && tx.UserID != nil && *owner.UserID == *tx.UserID
	sameSession := owner.SessionID != nil && tx.SessionID != nil && *owner.SessionID == *tx.SessionID
	if !sameUser && !sameSession {
		return nil, &OwnershipError{Resource: "transaction " + transactionID}
	}
	return tx, nil
}

// clearCartAndRelease clears the cart and always releases the lock,
// even when clearing fails: a successful order is never rolled back by
// a cart-clear failure.
func (s *checkoutServiceImpl) clearCartAndRelease(ctx context.Context, owner model.Owner, holder string) {
	if err := s.cartRepo.Clear(ctx, nil, owner); err != nil {
		log.Printf("clear cart for %s: %v", owner.Key(), err)
	}
	s.releaseLockHeldBy(ctx, owner.Key(), holder)
}

// releaseLockHeldBy releases the owner's lock only when holder still
// owns it. A confirm or cancel of a stale transaction must never free
// a cart that a newer checkout has frozen.
func (s *checkoutServiceImpl) releaseLockHeldBy(ctx context.Context, key, holder string) {
	if err := s.locks.ReleaseIfHeldBy(ctx, key, holder); err != nil {
		log.Printf("release lock for %s: %v", key, err)
	}
}
