package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tele-sticker-search/model"
	"tele-sticker-search/pkg/ledger"
	"tele-sticker-search/pkg/storage"
)

// WithTx runs fn inside a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&tx{db: db})
	})
}

type tx struct {
	db *gorm.DB
}

func (t *tx) GetOrCreateTag(name string, defaultLanguage bool) (*model.Tag, error) {
	tag, err := t.getOrCreateTag(name, defaultLanguage, false)
	return tag, storage.Wrap("get or create tag", err)
}

func (t *tx) getOrCreateTag(name string, defaultLanguage, emoji bool) (*model.Tag, error) {
	tag := model.Tag{Name: name, IsDefaultLanguage: defaultLanguage, Emoji: emoji}
	err := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}, {Name: "is_default_language"}},
		DoNothing: true,
	}).Create(&tag).Error
	if err != nil {
		return nil, err
	}

	var stored model.Tag
	err = t.db.Where("name = ? AND is_default_language = ?", name, defaultLanguage).First(&stored).Error
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (t *tx) stickerExists(stickerID string) error {
	var count int64
	err := t.db.Model(&model.Sticker{}).Where("file_unique_id = ?", stickerID).Count(&count).Error
	if err != nil {
		return storage.Wrap("find sticker", err)
	}
	if count == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *tx) StickerTags(stickerID string) ([]model.Tag, error) {
	if err := t.stickerExists(stickerID); err != nil {
		return nil, err
	}
	var tags []model.Tag
	err := t.db.
		Joins("JOIN sticker_tags st ON st.tag_id = tags.id").
		Where("st.sticker_id = ?", stickerID).
		Order("tags.id").
		Find(&tags).Error
	return tags, storage.Wrap("list sticker tags", err)
}

func (t *tx) AddStickerTags(stickerID string, tags []model.Tag) error {
	if err := t.stickerExists(stickerID); err != nil {
		return err
	}
	if len(tags) == 0 {
		return nil
	}
	err := t.db.Exec(`INSERT INTO sticker_tags (sticker_id, tag_id)
		SELECT ?, id FROM tags WHERE id IN ?
		ON CONFLICT DO NOTHING`, stickerID, tagIDs(tags)).Error
	return storage.Wrap("add sticker tags", err)
}

func (t *tx) RemoveStickerTags(stickerID string, tags []model.Tag) error {
	if err := t.stickerExists(stickerID); err != nil {
		return err
	}
	if len(tags) == 0 {
		return nil
	}
	err := t.db.Exec("DELETE FROM sticker_tags WHERE sticker_id = ? AND tag_id IN ?", stickerID, tagIDs(tags)).Error
	return storage.Wrap("remove sticker tags", err)
}

func (t *tx) CreateChange(change *model.Change) error {
	if change.ID == uuid.Nil {
		change.ID = uuid.New()
	}
	err := t.db.Omit("AddedTags.*", "RemovedTags.*").Create(change).Error
	return storage.Wrap("create change", err)
}

func (t *tx) changes() *gorm.DB {
	return t.db.Preload("AddedTags").Preload("RemovedTags")
}

func (t *tx) UserChanges(userID int64, reverted bool) ([]model.Change, error) {
	var changes []model.Change
	err := t.changes().
		Where("user_id = ? AND reverted = ?", userID, reverted).
		Order("created_at DESC, id DESC").
		Find(&changes).Error
	return changes, storage.Wrap("list user changes", err)
}

func (t *tx) SetChangeReverted(id uuid.UUID, reverted bool) error {
	res := t.db.Model(&model.Change{}).Where("id = ?", id).Update("reverted", reverted)
	if res.Error != nil {
		return storage.Wrap("set change reverted", res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdateChange writes the language, reverted flag and tag lists of a change.
func (t *tx) UpdateChange(change *model.Change) error {
	res := t.db.Model(&model.Change{}).Where("id = ?", change.ID).Updates(map[string]interface{}{
		"is_default_language": change.IsDefaultLanguage,
		"reverted":            change.Reverted,
	})
	if res.Error != nil {
		return storage.Wrap("update change", res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}

	for table, tags := range map[string][]model.Tag{
		"change_added_tags":   change.AddedTags,
		"change_removed_tags": change.RemovedTags,
	} {
		if err := t.db.Exec("DELETE FROM "+table+" WHERE change_id = ?", change.ID).Error; err != nil {
			return storage.Wrap("update change tags", err)
		}
		if len(tags) == 0 {
			continue
		}
		err := t.db.Exec("INSERT INTO "+table+" (change_id, tag_id) SELECT ?, id FROM tags WHERE id IN ?",
			change.ID, tagIDs(tags)).Error
		if err != nil {
			return storage.Wrap("update change tags", err)
		}
	}
	return nil
}

func (t *tx) LatestChange(stickerID string, defaultLanguage bool) (*model.Change, error) {
	var change model.Change
	err := t.changes().
		Where("sticker_id = ? AND is_default_language = ?", stickerID, defaultLanguage).
		Order("created_at DESC, id DESC").
		First(&change).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, storage.Wrap("latest change", err)
	}
	return &change, nil
}

func (t *tx) SetUserReverted(userID int64, reverted bool) error {
	res := t.db.Model(&model.User{}).Where("id = ?", userID).Update("reverted", reverted)
	if res.Error != nil {
		return storage.Wrap("set user reverted", res.Error)
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *tx) CreateTask(task *model.Task) error {
	err := t.db.Omit("Changes.*").Create(task).Error
	return storage.Wrap("create task", err)
}

func (t *tx) TaskChanges(taskID uuid.UUID) ([]model.Change, error) {
	var count int64
	if err := t.db.Model(&model.Task{}).Where("id = ?", taskID).Count(&count).Error; err != nil {
		return nil, storage.Wrap("find task", err)
	}
	if count == 0 {
		return nil, storage.ErrNotFound
	}

	var changes []model.Change
	err := t.changes().
		Joins("JOIN task_changes tc ON tc.change_id = changes.id").
		Where("tc.task_id = ?", taskID).
		Order("changes.created_at").
		Find(&changes).Error
	return changes, storage.Wrap("list task changes", err)
}

// DeleteOrphanTags removes tags that neither a sticker nor a recorded change
// references. Changes keep their tags so a later revert can restore them.
func (t *tx) DeleteOrphanTags() (int64, error) {
	res := t.db.Exec(`DELETE FROM tags t
		WHERE NOT EXISTS (SELECT 1 FROM sticker_tags st WHERE st.tag_id = t.id)
		AND NOT EXISTS (SELECT 1 FROM change_added_tags ca WHERE ca.tag_id = t.id)
		AND NOT EXISTS (SELECT 1 FROM change_removed_tags cr WHERE cr.tag_id = t.id)`)
	if res.Error != nil {
		return 0, storage.Wrap("delete orphan tags", res.Error)
	}
	return res.RowsAffected, nil
}

func tagIDs(tags []model.Tag) []uint {
	ids := make([]uint, 0, len(tags))
	for _, tag := range tags {
		ids = append(ids, tag.ID)
	}
	return ids
}
