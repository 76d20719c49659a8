package client

import (
	"log"
	"time"

	"club-ticketing/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func InitSqliteClient(dsn string) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal(err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(
		&model.Club{},
		&model.Ticket{},
		&model.MenuItem{},
		&model.MenuItemVariant{},
		&model.CartItem{},
		&model.CheckoutTransaction{},
		&model.TicketPurchase{},
		&model.MenuPurchase{},
	); err != nil {
		log.Fatal(err)
	}

	return db
}
