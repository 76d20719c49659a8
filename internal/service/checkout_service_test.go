package service

import (
	"context"
	"fmt"
	"testing"

	"club-ticketing/internal/client"
	"club-ticketing/internal/dto"
	"club-ticketing/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIntegritySecret = "test-integrity-secret"

type mockGateway struct {
	tokensErr   error
	tokenizeErr error
	createErr   error
	statusErr   error
	status      string
	redirectURL string

	createCalls int
	lastRequest *client.TransactionRequest
}

func (m *mockGateway) GetAcceptanceTokens(ctx context.Context) (*client.AcceptanceTokens, error) {
	if m.tokensErr != nil {
		return nil, m.tokensErr
	}
	return &client.AcceptanceTokens{Acceptance: "acc-token"}, nil
}

func (m *mockGateway) TokenizeCard(ctx context.Context, card client.CardData) (string, error) {
	if m.tokenizeErr != nil {
		return "", m.tokenizeErr
	}
	return "card-token-1", nil
}

func (m *mockGateway) CreatePaymentSource(ctx context.Context, cardToken, acceptanceToken, customerEmail string) (string, error) {
	return "1", nil
}

func (m *mockGateway) CreateTransaction(ctx context.Context, req *client.TransactionRequest) (*client.Transaction, error) {
	m.createCalls++
	m.lastRequest = req
	if m.createErr != nil {
		return nil, m.createErr
	}
	// distinct id per payment, like the real gateway
	id := fmt.Sprintf("gw-tx-%d", m.createCalls)
	return &client.Transaction{ID: id, Status: "PENDING", RedirectURL: m.redirectURL}, nil
}

func (m *mockGateway) GetTransactionStatus(ctx context.Context, id string) (*client.Transaction, error) {
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	return &client.Transaction{ID: id, Status: m.status}, nil
}

func (m *mockGateway) PollTransactionAsyncURL(ctx context.Context, id string) (string, error) {
	return m.redirectURL, nil
}

func newCheckout(e *testEnv, gw client.PaymentGateway) CheckoutService {
	return NewCheckoutService(
		e.cartRepo, e.txRepo, e.catalogRepo, e.locks, gw,
		e.pricing, e.fees, e.fulfillment,
		CheckoutConfig{
			MinTotalCents:   1500,
			Currency:        "COP",
			Provider:        "wompi",
			IntegritySecret: testIntegritySecret,
		},
		testTZ,
	)
}

func (e *testEnv) mustBeUnlocked(t *testing.T, owner model.Owner) {
	t.Helper()
	locked, err := e.locks.IsLocked(context.Background(), owner.Key())
	require.NoError(t, err)
	assert.False(t, locked, "lock must not be held")
}

func (e *testEnv) mustBeLocked(t *testing.T, owner model.Owner) {
	t.Helper()
	locked, err := e.locks.IsLocked(context.Background(), owner.Key())
	require.NoError(t, err)
	assert.True(t, locked, "lock must be held")
}

func TestInitiate_EmptyCart(t *testing.T) {
	e := newTestEnv(t)
	svc := newCheckout(e, &mockGateway{})
	owner := model.UserOwner("u1")

	_, err := svc.Initiate(context.Background(), owner, &dto.CheckoutRequest{BuyerEmail: "a@b.co", PaymentMethod: "CARD"})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	e.mustBeUnlocked(t, owner)
}

func TestInitiate_BelowMinimumTotal(t *testing.T) {
	e := newTestEnv(t)
	e.seedClub(t, "club-a")
	e.seedGeneralTicket(t, "tk-cheap", "club-a", 500, 10, nil)
	svc := newCheckout(e, &mockGateway{})
	owner := model.UserOwner("u1")
	ctx := context.Background()

	_, err := e.cart.AddTicket(ctx, owner, &dto.AddTicketRequest{TicketID: "tk-cheap", Quantity: 1, Date: tomorrow()})
	require.NoError(t, err)

	_, err = svc.Initiate(ctx, owner, &dto.CheckoutRequest{BuyerEmail: "a@b.co", PaymentMethod: "CARD"})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "total", verr.Field)
	e.mustBeUnlocked(t, owner)

	// the cart survives so the buyer can add more
	cart, err := e.cart.List(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
}

func TestInitiate_FreeCheckout(t *testing.T) {
	e := newTestEnv(t)
	e.seedClub(t, "club-a")
	date := tomorrow()
	e.seedFreeTicket(t, "tk-free", "club-a", date)
	gw := &mockGateway{}
	svc := newCheckout(e, gw)
	owner := model.UserOwner("u1")
	ctx := context.Background()

	_, err := e.cart.AddTicket(ctx, owner, &dto.AddTicketRequest{TicketID: "tk-free", Quantity: 2, Date: date})
	require.NoError(t, err)

	res, err := svc.Initiate(ctx, owner, &dto.CheckoutRequest{BuyerEmail: "a@b.co", PaymentMethod: "CARD"})
	require.NoError(t, err)

	assert.True(t, res.IsFreeCheckout)
	assert.True(t, res.TotalPaid.IsZero())
	assert.Empty(t, res.RedirectURL)
	assert.Zero(t, gw.createCalls, "free checkout never reaches the gateway")

	// fulfilled immediately: purchases exist, cart is empty, lock gone
	rows, err := e.purchases.ListTicketPurchases(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	cart, err := e.cart.List(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	e.mustBeUnlocked(t, owner)

	stored, err := e.txRepo.FindByID(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusApproved, stored.PaymentStatus)
	assert.NotNil(t, stored.ProcessedAt)
}

func TestInitiate_CardPayment(t *testing.T) {
	e := newTestEnv(t)
	e.seedClub(t, "club-a")
	e.seedGeneralTicket(t, "tk-1", "club-a", 50000, 10, nil)
	gw := &mockGateway{redirectURL: "https://gw.example/redirect"}
	svc := newCheckout(e, gw)
	owner := model.UserOwner("u1")
	ctx := context.Background()

	_, err := e.cart.AddTicket(ctx, owner, &dto.AddTicketRequest{TicketID: "tk-1", Quantity: 1, Date: tomorrow()})
	require.NoError(t, err)

	res, err := svc.Initiate(ctx, owner, &dto.CheckoutRequest{
		BuyerEmail:    "a@b.co",
		PaymentMethod: "CARD",
		Card:          &dto.CardData{Number: "4242424242424242", CVC: "123", ExpMonth: "12", ExpYear: "29", Holder: "A B"},
	})
	require.NoError(t, err)

	assert.False(t, res.IsFreeCheckout)
	assert.Equal(t, "https://gw.example/redirect", res.RedirectURL)
	assert.True(t, res.TotalPaid.GreaterThan(decimal.NewFromInt(50000)), "total includes fees on top of subtotal")

	// the cart stays frozen behind the lock until confirmation
	e.mustBeLocked(t, owner)

	stored, err := e.txRepo.FindByID(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, stored.PaymentStatus)
	assert.Equal(t, "gw-tx-1", stored.ProviderTransactionID)
	assert.Nil(t, stored.ProcessedAt)

	// the gateway saw an amount signed with our shared secret
	require.NotNil(t, gw.lastRequest)
	want := client.IntegritySignature(gw.lastRequest.Reference, gw.lastRequest.AmountInCents, gw.lastRequest.Currency, testIntegritySecret)
	assert.Equal(t, want, gw.lastRequest.Signature)
	assert.Equal(t, "card-token-1", gw.lastRequest.CardToken)
	assert.GreaterOrEqual(t, gw.lastRequest.AmountInCents, int64(50000))
}

func TestInitiate_CardRequiresCardData(t *testing.T) {
	e := newTestEnv(t)
	e.seedClub(t, "club-a")
	e.seedGeneralTicket(t, "tk-1", "club-a", 50000, 10, nil)
	svc := newCheckout(e, &mockGateway{})
	owner := model.UserOwner("u1")
	ctx := context.Background()

	_, err := e.cart.AddTicket(ctx, owner, &dto.AddTicketRequest{TicketID: "tk-1", Quantity: 1, Date: tomorrow()})
	require.NoError(t, err)

	_, err = svc.Initiate(ctx, owner, &dto.CheckoutRequest{BuyerEmail: "a@b.co", PaymentMethod: "CARD"})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "card", verr.Field)
	e.mustBeUnlocked(t, owner)
}

func TestInitiate_WhileLocked(t *testing.T) {
	e := newTestEnv(t)
	e.seedClub(t, "club-a")
	e.seedGeneralTicket(t, "tk-1", "club-a", 50000, 10, nil)
	svc := newCheckout(e, &mockGateway{})
	owner := model.UserOwner("u1")
	ctx := context.Background()

	_, err := e.cart.AddTicket(ctx, owner, &dto.AddTicketRequest{TicketID: "tk-1", Quantity: 1, Date: tomorrow()})
	require.NoError(t, err)

	ok, err := e.locks.Acquire(ctx, owner.Key(), "other-checkout")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = svc.Initiate(ctx, owner, &dto.CheckoutRequest{BuyerEmail: "a@b.co", PaymentMethod: "NEQUI"})

	var lerr *LockedError
	require.ErrorAs(t, err, &lerr)
	// the competing checkout keeps its lock
	e.mustBeLocked(t, owner)
}

func TestInitiate_GatewayFailureReleasesLock(t *testing.T) {
	e := newTestEnv(t)
	e.seedClub(t, "club-a")
	e.seedGeneralTicket(t, "tk-1", "club-a", 50000, 10, nil)
	svc := newCheckout(e, &mockGateway{createErr: assert.AnError})
	owner := model.UserOwner("u1")
	ctx := context.Background()

	_, err := e.cart.AddTicket(ctx, owner, &dto.AddTicketRequest{TicketID: "tk-1", Quantity: 1, Date: tomorrow()})
	require.NoError(t, err)

	_, err = svc.Initiate(ctx, owner, &dto.CheckoutRequest{BuyerEmail: "a@b.co", PaymentMethod: "NEQUI"})

	var gerr *GatewayCommunicationError
	require.ErrorAs(t, err, &gerr)
	e.mustBeUnlocked(t, owner)

	stored, err := e.txRepo.FindByID(ctx, gerr.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusError, stored.PaymentStatus)
}

func initiateCardCheckout(t *testing.T, e *testEnv, svc CheckoutService, owner model.Owner) string {
	t.Helper()
	ctx := context.Background()
	_, err := e.cart.AddTicket(ctx, owner, &dto.AddTicketRequest{TicketID: "tk-1", Quantity: 1, Date: tomorrow()})
	require.NoError(t, err)
	res, err := svc.Initiate(ctx, owner, &dto.CheckoutRequest{
		BuyerEmail:    "a@b.co",
		PaymentMethod: "CARD",
		Card:          &dto.CardData{Number: "4242424242424242", CVC: "123", ExpMonth: "12", ExpYear: "29", Holder: "A B"},
	})
	require.NoError(t, err)
	return res.TransactionID
}

func TestConfirm_Approved(t *testing.T) {
	e := newTestEnv(t)
	e.seedClub(t, "club-a")
	e.seedGeneralTicket(t, "tk-1", "club-a", 50000, 10, nil)
	gw := &mockGateway{status: "APPROVED"}
	svc := newCheckout(e, gw)
	owner := model.UserOwner("u1")
	ctx := context.Background()

	txID := initiateCardCheckout(t, e, svc, owner)

	res, err := svc.Confirm(ctx, owner, txID)
	require.NoError(t, err)
	assert.True(t, res.Success)

	rows, err := e.purchases.ListTicketPurchases(ctx, txID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	cart, err := e.cart.List(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)
	e.mustBeUnlocked(t, owner)

	stored, err := e.txRepo.FindByID(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusApproved, stored.PaymentStatus)
	assert.NotNil(t, stored.ProcessedAt)

	// confirming again is a harmless no-op
	res, err = svc.Confirm(ctx, owner, txID)
	require.NoError(t, err)
	assert.True(t, res.Success)
	rows, err = e.purchases.ListTicketPurchases(ctx, txID)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "duplicate confirmation must not mint extra tickets")
}

func TestConfirm_PendingKeepsLock(t *testing.T) {
	e := newTestEnv(t)
	e.seedClub(t, "club-a")
	e.seedGeneralTicket(t, "tk-1", "club-a", 50000, 10, nil)
	svc := newCheckout(e, &mockGateway{status: "PENDING"})
	owner := model.UserOwner("u1")
	ctx := context.Background()

	txID := initiateCardCheckout(t, e, svc, owner)

	res, err := svc.Confirm(ctx, owner, txID)
	require.NoError(t, err)
	assert.False(t, res.Success)
	e.mustBeLocked(t, owner)

	stored, err := e.txRepo.FindByID(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPending, stored.PaymentStatus)
}

func TestConfirm_Declined(t *testing.T) {
	e := newTestEnv(t)
	e.seedClub(t, "club-a")
	e.seedGeneralTicket(t, "tk-1", "club-a", 50000, 10, nil)
	svc := newCheckout(e, &mockGateway{status: "DECLINED"})
	owner := model.UserOwner("u1")
	ctx := context.Background()

	txID := initiateCardCheckout(t, e, svc, owner)

	_, err := svc.Confirm(ctx, owner, txID)

	var derr *PaymentDeclinedError
	require.ErrorAs(t, err, &derr)
	e.mustBeUnlocked(t, owner)

	stored, err := e.txRepo.FindByID(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusDeclined, stored.PaymentStatus)
	assert.Nil(t, stored.ProcessedAt)

	// the cart is intact for another attempt
	cart, err := e.cart.List(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
}

func TestConfirm_GatewayFailureReleasesLock(t *testing.T) {
	e := newTestEnv(t)
	e.seedClub(t, "club-a")
	e.seedGeneralTicket(t, "tk-1", "club-a", 50000, 10, nil)
	gw := &mockGateway{}
	svc := newCheckout(e, gw)
	owner := model.UserOwner("u1")
	ctx := context.Background()

	txID := initiateCardCheckout(t, e, svc, owner)

	gw.statusErr = assert.AnError
	_, err := svc.Confirm(ctx, owner, txID)

	var gerr *GatewayCommunicationError
	require.ErrorAs(t, err, &gerr)
	e.mustBeUnlocked(t, owner)
}

func TestConfirm_WrongOwner(t *testing.T) {
	e := newTestEnv(t)
	e.seedClub(t, "club-a")
	e.seedGeneralTicket(t, "tk-1", "club-a", 50000, 10, nil)
	svc := newCheckout(e, &mockGateway{status: "APPROVED"})
	owner := model.UserOwner("u1")
	ctx := context.Background()

	txID := initiateCardCheckout(t, e, svc, owner)

	_, err := svc.Confirm(ctx, model.UserOwner("u2"), txID)
	var oerr *OwnershipError
	require.ErrorAs(t, err, &oerr)

	_, err = svc.Confirm(ctx, model.SessionOwner("u1"), txID)
	require.ErrorAs(t, err, &oerr, "a session id never matches a user id")

	_, err = svc.Confirm(ctx, owner, "missing-tx")
	var nerr *NotFoundError
	require.ErrorAs(t, err, &nerr)
}

func TestCancel_ReleasesLock(t *testing.T) {
	e := newTestEnv(t)
	e.seedClub(t, "club-a")
	e.seedGeneralTicket(t, "tk-1", "club-a", 50000, 10, nil)
	svc := newCheckout(e, &mockGateway{})
	owner := model.UserOwner("u1")
	ctx := context.Background()

	txID := initiateCardCheckout(t, e, svc, owner)
	e.mustBeLocked(t, owner)

	require.NoError(t, svc.Cancel(ctx, owner, txID))
	e.mustBeUnlocked(t, owner)

	stored, err := e.txRepo.FindByID(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusError, stored.PaymentStatus)

	// cart mutations work again
	_, err = e.cart.AddTicket(ctx, owner, &dto.AddTicketRequest{TicketID: "tk-1", Quantity: 1, Date: tomorrow()})
	require.NoError(t, err)
}

func TestConfirm_StaleTransactionKeepsNewerLock(t *testing.T) {
	e := newTestEnv(t)
	e.seedClub(t, "club-a")
	e.seedGeneralTicket(t, "tk-1", "club-a", 50000, 10, nil)
	gw := &mockGateway{status: "DECLINED"}
	svc := newCheckout(e, gw)
	owner := model.UserOwner("u1")
	ctx := context.Background()

	// checkout A is declined; its lock is correctly released
	txA := initiateCardCheckout(t, e, svc, owner)
	_, err := svc.Confirm(ctx, owner, txA)
	var dErr *PaymentDeclinedError
	require.ErrorAs(t, err, &dErr)
	e.mustBeUnlocked(t, owner)

	// checkout B starts over the surviving cart and freezes it
	txB := initiateCardCheckout(t, e, svc, owner)
	require.NotEqual(t, txA, txB)
	e.mustBeLocked(t, owner)

	// re-confirming the stale A must not free B's lock
	_, err = svc.Confirm(ctx, owner, txA)
	require.ErrorAs(t, err, &dErr)
	e.mustBeLocked(t, owner)

	// nor may cancelling the stale A
	require.NoError(t, svc.Cancel(ctx, owner, txA))
	e.mustBeLocked(t, owner)

	var lErr *LockedError
	_, err = e.cart.AddTicket(ctx, owner, &dto.AddTicketRequest{TicketID: "tk-1", Quantity: 1, Date: tomorrow()})
	require.ErrorAs(t, err, &lErr, "cart must stay frozen while B is mid-payment")
}

func TestCancel_AfterFulfillment(t *testing.T) {
	e := newTestEnv(t)
	e.seedClub(t, "club-a")
	e.seedGeneralTicket(t, "tk-1", "club-a", 50000, 10, nil)
	svc := newCheckout(e, &mockGateway{status: "APPROVED"})
	owner := model.UserOwner("u1")
	ctx := context.Background()

	txID := initiateCardCheckout(t, e, svc, owner)
	_, err := svc.Confirm(ctx, owner, txID)
	require.NoError(t, err)

	err = svc.Cancel(ctx, owner, txID)
	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)
}

func TestInitiate_AsyncMethodPollsRedirectURL(t *testing.T) {
	e := newTestEnv(t)
	e.seedClub(t, "club-a")
	e.seedGeneralTicket(t, "tk-1", "club-a", 50000, 10, nil)
	gw := &mockGateway{redirectURL: ""}
	svc := newCheckout(e, gw)
	owner := model.SessionOwner("s1")
	ctx := context.Background()

	_, err := e.cart.AddTicket(ctx, owner, &dto.AddTicketRequest{TicketID: "tk-1", Quantity: 1, Date: tomorrow()})
	require.NoError(t, err)

	res, err := svc.Initiate(ctx, owner, &dto.CheckoutRequest{BuyerEmail: "a@b.co", PaymentMethod: "NEQUI"})
	require.NoError(t, err)

	// poll returned empty within its deadline: pending, client re-polls
	assert.Empty(t, res.RedirectURL)
	e.mustBeLocked(t, owner)
}

func TestInitiate_LockSurvivesUntilConfirm(t *testing.T) {
	e := newTestEnv(t)
	e.seedClub(t, "club-a")
	e.seedGeneralTicket(t, "tk-1", "club-a", 50000, 10, nil)
	svc := newCheckout(e, &mockGateway{redirectURL: "https://gw.example/r"})
	owner := model.UserOwner("u1")
	ctx := context.Background()

	initiateCardCheckout(t, e, svc, owner)

	// mutations bounce off the frozen cart, reads still work
	_, err := e.cart.AddTicket(ctx, owner, &dto.AddTicketRequest{TicketID: "tk-1", Quantity: 1, Date: tomorrow()})
	var lerr *LockedError
	require.ErrorAs(t, err, &lerr)

	cart, err := e.cart.List(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)
}
