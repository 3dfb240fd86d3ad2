package db

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tele-sticker-search/config"
)

func NewDatabaseConnection(cfg *config.Config) (*gorm.DB, error) {
	level := logger.Warn
	if cfg.Production() {
		level = logger.Error
	}
	return gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
}
