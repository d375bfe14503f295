package db

import (
	types "github.com/kvelez/orderflow/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&types.Order{},
		&types.Event{},
		&types.Payment{},
		&types.Shipment{},
	)
}
