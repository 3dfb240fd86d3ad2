package migration

import (
	"gorm.io/gorm"

	"tele-sticker-search/model"
)

var models = []interface{}{
	&model.User{},
	&model.StickerSet{},
	&model.Sticker{},
	&model.Tag{},
	&model.StickerTag{},
	&model.Change{},
	&model.Task{},
	&model.StickerUsage{},
	&model.InlineQuery{},
	&model.InlineQueryRequest{},
}

// AutoMigration creates the pg_trgm extension used by fuzzy ranking and
// migrates every model.
func AutoMigration(db *gorm.DB) error {
	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS pg_trgm").Error; err != nil {
		return err
	}
	if err := db.SetupJoinTable(&model.Sticker{}, "Tags", &model.StickerTag{}); err != nil {
		return err
	}
	return db.Set("gorm:table_options", "").AutoMigrate(models...)
}
