package service

import (
	"fmt"
	"testing"
	"time"

	"club-ticketing/internal/cartlock"
	"club-ticketing/internal/fees"
	"club-ticketing/internal/model"
	"club-ticketing/internal/pricing"
	"club-ticketing/internal/repository"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testTZ = time.FixedZone("venue", -5*60*60)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.Club{},
		&model.Ticket{},
		&model.MenuItem{},
		&model.MenuItemVariant{},
		&model.CartItem{},
		&model.CheckoutTransaction{},
		&model.TicketPurchase{},
		&model.MenuPurchase{},
	))
	return db
}

type testEnv struct {
	db          *gorm.DB
	cartRepo    repository.CartRepository
	catalogRepo repository.CatalogRepository
	txRepo      repository.TransactionRepository
	purchases   repository.PurchaseRepository
	locks       *cartlock.MemoryStore
	pricing     *pricing.Engine
	fees        *fees.Engine
	cart        CartService
	fulfillment FulfillmentProcessor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)

	e := &testEnv{
		db:          db,
		cartRepo:    repository.NewCartRepository(db),
		catalogRepo: repository.NewCatalogRepository(db),
		txRepo:      repository.NewTransactionRepository(db),
		purchases:   repository.NewPurchaseRepository(db),
		locks:       cartlock.NewMemoryStore(10*time.Minute, time.Minute),
		pricing:     pricing.NewEngine(time.Hour, 30),
		fees: fees.NewEngine(fees.Rates{
			GeneralTicketPct: 5,
			EventTicketPct:   5,
			MenuPct:          2.5,
			GatewayVarPct:    2.65,
			GatewayFixed:     700,
			GatewayTaxPct:    19,
		}),
	}
	t.Cleanup(func() { e.locks.Close() })

	e.cart = NewCartService(e.cartRepo, e.catalogRepo, e.locks, e.pricing, testTZ, 21)
	e.fulfillment = NewFulfillmentProcessor(
		db, e.txRepo, e.cartRepo, e.purchases, e.catalogRepo,
		e.pricing, e.fees, "test-qr-secret", LogNotifier{}, testTZ,
	)
	return e
}

func (e *testEnv) seedClub(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, e.db.Create(&model.Club{
		ID:        id,
		Name:      "Club " + id,
		OpenDays:  "0,1,2,3,4,5,6",
		OpenTime:  "18:00",
		CloseTime: "23:59",
	}).Error)
}

func (e *testEnv) seedGeneralTicket(t *testing.T, id, clubID string, priceCents int64, maxPerPerson int, cap *int) {
	t.Helper()
	require.NoError(t, e.db.Create(&model.Ticket{
		ID:           id,
		ClubID:       clubID,
		Category:     model.CategoryGeneral,
		Name:         "General " + id,
		PriceCents:   priceCents,
		MaxPerPerson: maxPerPerson,
		Quantity:     cap,
	}).Error)
}

func (e *testEnv) seedEventTicket(t *testing.T, id, clubID string, priceCents int64, startsAt time.Time) {
	t.Helper()
	date := startsAt.In(testTZ).Format(dateLayout)
	require.NoError(t, e.db.Create(&model.Ticket{
		ID:            id,
		ClubID:        clubID,
		Category:      model.CategoryEvent,
		Name:          "Event " + id,
		PriceCents:    priceCents,
		MaxPerPerson:  10,
		AvailableDate: &date,
		EventStartsAt: &startsAt,
	}).Error)
}

func (e *testEnv) seedFreeTicket(t *testing.T, id, clubID, availableDate string) {
	t.Helper()
	require.NoError(t, e.db.Create(&model.Ticket{
		ID:            id,
		ClubID:        clubID,
		Category:      model.CategoryFree,
		Name:          "Free " + id,
		PriceCents:    0,
		MaxPerPerson:  4,
		AvailableDate: &availableDate,
	}).Error)
}

func (e *testEnv) seedMenuItem(t *testing.T, id, clubID string, priceCents int64) {
	t.Helper()
	require.NoError(t, e.db.Create(&model.MenuItem{
		ID:         id,
		ClubID:     clubID,
		Name:       "Menu " + id,
		PriceCents: priceCents,
	}).Error)
}

// tomorrow is a safe future date on a club open every day
func tomorrow() string {
	return time.Now().In(testTZ).AddDate(0, 0, 1).Format(dateLayout)
}

func intPtr(v int) *int { return &v }
