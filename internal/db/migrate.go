package db

import (
	"walletpulse/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.Wallet{},
		&models.StagedTrade{},
		&models.Trade{},
		&models.ClosedLot{},
		&models.OpenPosition{},
		&models.Signal{},
		&models.QueueJob{},
	)
}
