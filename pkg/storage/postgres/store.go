// Package postgres implements the search, ledger and catalog stores on gorm
// and PostgreSQL. Fuzzy ranking relies on the pg_trgm extension.
package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tele-sticker-search/model"
	"tele-sticker-search/pkg/storage"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// EnsureUser creates the user on first contact and otherwise loads the stored
// flags into user.
func (s *Store) EnsureUser(ctx context.Context, user *model.User) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "updated_at"}),
		}).
		Create(user).Error
	if err != nil {
		return storage.Wrap("ensure user", err)
	}
	return storage.Wrap("load user", s.db.WithContext(ctx).First(user, user.ID).Error)
}

func (s *Store) User(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, storage.Wrap("get user", err)
	}
	return &user, nil
}

func (s *Store) StickerSet(ctx context.Context, name string) (*model.StickerSet, error) {
	var set model.StickerSet
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&set).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, storage.Wrap("get sticker set", err)
	}
	return &set, nil
}

// SaveStickerSet upserts a set and its stickers in one transaction. Known
// stickers get their file id replaced, the tags given on each sticker are
// interned and attached if absent.
func (s *Store) SaveStickerSet(ctx context.Context, set *model.StickerSet) error {
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		stickers := set.Stickers
		row := *set
		row.Stickers = nil

		err := db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title", "banned", "nsfw", "furry", "international", "deluxe",
				"reviewed", "deleted", "complete", "updated_at",
			}),
		}).Create(&row).Error
		if err != nil {
			return err
		}

		t := &tx{db: db}
		for _, sticker := range stickers {
			tags := sticker.Tags
			sticker.Tags = nil
			sticker.SetName = set.Name

			update := []string{"file_id", "set_name", "animated", "updated_at"}
			if sticker.Text != nil {
				update = append(update, "text")
			}
			err := db.Omit(clause.Associations).Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "file_unique_id"}},
				DoUpdates: clause.AssignmentColumns(update),
			}).Create(&sticker).Error
			if err != nil {
				return err
			}

			interned := make([]model.Tag, 0, len(tags))
			for _, tag := range tags {
				stored, err := t.getOrCreateTag(tag.Name, tag.IsDefaultLanguage, tag.Emoji)
				if err != nil {
					return err
				}
				interned = append(interned, *stored)
			}
			if err := t.AddStickerTags(sticker.FileUniqueID, interned); err != nil {
				return err
			}
		}
		return nil
	})
	return storage.Wrap("save sticker set", err)
}
