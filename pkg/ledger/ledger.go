// Package ledger records tagging actions as changes and reverts or restores a
// user's whole tagging history for moderation.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tele-sticker-search/model"
	"tele-sticker-search/pkg/storage"
	"tele-sticker-search/pkg/tagging"
)

// MaxTags is the number of tags a single tagging action may carry.
const MaxTags = 10

// Store runs fn inside one storage transaction. fn's error rolls it back.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is a transaction-scoped handle. Sticker mutations are add-if-absent and
// remove-if-present; they return storage.ErrNotFound for a missing sticker.
type Tx interface {
	GetOrCreateTag(name string, defaultLanguage bool) (*model.Tag, error)
	StickerTags(stickerID string) ([]model.Tag, error)
	AddStickerTags(stickerID string, tags []model.Tag) error
	RemoveStickerTags(stickerID string, tags []model.Tag) error

	CreateChange(change *model.Change) error
	// UserChanges lists a user's changes with the given reverted state, newest first.
	UserChanges(userID int64, reverted bool) ([]model.Change, error)
	SetChangeReverted(id uuid.UUID, reverted bool) error
	UpdateChange(change *model.Change) error
	LatestChange(stickerID string, defaultLanguage bool) (*model.Change, error)

	SetUserReverted(userID int64, reverted bool) error

	CreateTask(task *model.Task) error
	TaskChanges(taskID uuid.UUID) ([]model.Change, error)

	DeleteOrphanTags() (int64, error)
}

// TagRequest is one tagging action of a user on a sticker.
type TagRequest struct {
	User      model.User
	StickerID string
	Text      string
	// Replace swaps the sticker's tags for the new ones instead of appending.
	Replace   bool
	ChatID    *int64
	MessageID *int64
}

// TagResult carries the recorded change, nil when nothing changed, and the
// advisory raised while tagging.
type TagResult struct {
	Change      *model.Change
	TooManyTags bool
}

type Ledger struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func New(store Store, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, logger: logger, now: time.Now}
}

// Tag applies req and records it as a Change.
func (l *Ledger) Tag(ctx context.Context, req TagRequest) (*TagResult, error) {
	tokens := tagging.ExtractAll(req.Text)
	result := &TagResult{}
	if len(tokens) > MaxTags {
		result.TooManyTags = true
		tokens = tokens[:MaxTags]
	}
	defaultLanguage := req.User.DefaultLanguage()

	err := l.store.WithTx(ctx, func(tx Tx) error {
		current, err := tx.StickerTags(req.StickerID)
		if errors.Is(err, storage.ErrNotFound) {
			l.logger.Info("tagging skipped, sticker is gone", "sticker", req.StickerID, "user", req.User.ID)
			return nil
		}
		if err != nil {
			return err
		}

		resolved := make([]model.Tag, 0, len(tokens))
		for _, token := range tokens {
			tag, err := tx.GetOrCreateTag(token, defaultLanguage)
			if err != nil {
				return err
			}
			resolved = append(resolved, *tag)
		}

		var added, removed []model.Tag
		if req.Replace {
			desired := union(resolved, preserved(current, defaultLanguage))
			added = difference(desired, current)
			removed = difference(current, desired)
		} else {
			added = difference(resolved, current)
		}
		change := &model.Change{
			ID:                uuid.New(),
			UserID:            req.User.ID,
			StickerID:         req.StickerID,
			IsDefaultLanguage: defaultLanguage,
			ChatID:            req.ChatID,
			MessageID:         req.MessageID,
			AddedTags:         added,
			RemovedTags:       removed,
			CreatedAt:         l.now(),
		}
		if change.Empty() {
			return nil
		}

		if err := tx.RemoveStickerTags(req.StickerID, removed); err != nil {
			return err
		}
		if err := tx.AddStickerTags(req.StickerID, added); err != nil {
			return err
		}
		if err := tx.CreateChange(change); err != nil {
			return err
		}
		result.Change = change
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RevertUserChanges undoes every non-reverted change of a user, newest first,
// and marks the user reverted. It returns the number of changes reverted.
func (l *Ledger) RevertUserChanges(ctx context.Context, userID int64) (int, error) {
	count := 0
	err := l.store.WithTx(ctx, func(tx Tx) error {
		changes, err := tx.UserChanges(userID, false)
		if err != nil {
			return err
		}
		for _, change := range changes {
			if err := satisfied(tx.RemoveStickerTags(change.StickerID, change.AddedTags)); err != nil {
				return err
			}
			if err := satisfied(tx.AddStickerTags(change.StickerID, change.RemovedTags)); err != nil {
				return err
			}
			if err := satisfied(tx.SetChangeReverted(change.ID, true)); err != nil {
				return err
			}
			count++
		}
		return satisfied(tx.SetUserReverted(userID, true))
	})
	if err != nil {
		return 0, err
	}
	l.logger.Info("reverted user changes", "user", userID, "changes", count)
	return count, nil
}

// UndoUserChangesRevert re-applies every reverted change of a user, oldest
// first, and clears the user's reverted flag.
func (l *Ledger) UndoUserChangesRevert(ctx context.Context, userID int64) (int, error) {
	count := 0
	err := l.store.WithTx(ctx, func(tx Tx) error {
		changes, err := tx.UserChanges(userID, true)
		if err != nil {
			return err
		}
		for i := len(changes) - 1; i >= 0; i-- {
			change := changes[i]
			if err := satisfied(tx.AddStickerTags(change.StickerID, change.AddedTags)); err != nil {
				return err
			}
			if err := satisfied(tx.RemoveStickerTags(change.StickerID, change.RemovedTags)); err != nil {
				return err
			}
			if err := satisfied(tx.SetChangeReverted(change.ID, false)); err != nil {
				return err
			}
			count++
		}
		return satisfied(tx.SetUserReverted(userID, false))
	})
	if err != nil {
		return 0, err
	}
	l.logger.Info("restored reverted user changes", "user", userID, "changes", count)
	return count, nil
}

// ChangeLanguageOfTaskChanges moves the changes of a moderation task to the
// other language partition. Added tags are swapped for their counterparts in
// the new partition and removed tags missing from the sticker are restored.
func (l *Ledger) ChangeLanguageOfTaskChanges(ctx context.Context, taskID uuid.UUID) (int, error) {
	count := 0
	err := l.store.WithTx(ctx, func(tx Tx) error {
		changes, err := tx.TaskChanges(taskID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		for i := range changes {
			change := &changes[i]
			defaultLanguage := !change.IsDefaultLanguage

			flipped := make([]model.Tag, 0, len(change.AddedTags))
			for _, tag := range change.AddedTags {
				if tag.Emoji {
					flipped = append(flipped, tag)
					continue
				}
				moved, err := tx.GetOrCreateTag(tag.Name, defaultLanguage)
				if err != nil {
					return err
				}
				flipped = append(flipped, *moved)
			}

			if err := satisfied(tx.RemoveStickerTags(change.StickerID, difference(change.AddedTags, flipped))); err != nil {
				return err
			}
			if err := satisfied(tx.AddStickerTags(change.StickerID, flipped)); err != nil {
				return err
			}
			if err := satisfied(tx.AddStickerTags(change.StickerID, change.RemovedTags)); err != nil {
				return err
			}

			change.AddedTags = flipped
			change.IsDefaultLanguage = defaultLanguage
			if err := tx.UpdateChange(change); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	l.logger.Info("changed language of task changes", "task", taskID, "changes", count)
	return count, nil
}

// FlagUserChanges opens a moderation task over the latest limit non-reverted
// changes of a user. It returns nil when the user has no such changes.
func (l *Ledger) FlagUserChanges(ctx context.Context, userID int64, limit int) (*model.Task, error) {
	var task *model.Task
	err := l.store.WithTx(ctx, func(tx Tx) error {
		changes, err := tx.UserChanges(userID, false)
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			return nil
		}
		if limit > 0 && len(changes) > limit {
			changes = changes[:limit]
		}
		task = &model.Task{
			ID:        uuid.New(),
			Type:      model.TaskCheckUserTags,
			UserID:    &userID,
			Changes:   changes,
			CreatedAt: l.now(),
		}
		return tx.CreateTask(task)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// LastChange returns the newest change of a sticker in a language partition.
func (l *Ledger) LastChange(ctx context.Context, stickerID string, defaultLanguage bool) (*model.Change, error) {
	var change *model.Change
	err := l.store.WithTx(ctx, func(tx Tx) error {
		var err error
		change, err = tx.LatestChange(stickerID, defaultLanguage)
		return err
	})
	return change, err
}

// CollectGarbageTags deletes tags that no sticker and no change references.
func (l *Ledger) CollectGarbageTags(ctx context.Context) (int64, error) {
	var deleted int64
	err := l.store.WithTx(ctx, func(tx Tx) error {
		var err error
		deleted, err = tx.DeleteOrphanTags()
		return err
	})
	if err != nil {
		return 0, err
	}
	l.logger.Info("collected orphan tags", "deleted", deleted)
	return deleted, nil
}

// satisfied treats a missing sticker, tag, change or user as already handled.
func satisfied(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

// preserved returns the tags a replace must keep: original emoji tags and tags
// of the other language partition.
func preserved(tags []model.Tag, defaultLanguage bool) []model.Tag {
	kept := make([]model.Tag, 0, len(tags))
	for _, t := range tags {
		if t.Emoji || t.IsDefaultLanguage != defaultLanguage {
			kept = append(kept, t)
		}
	}
	return kept
}

func union(a, b []model.Tag) []model.Tag {
	out := append([]model.Tag(nil), a...)
	return append(out, difference(b, a)...)
}

// difference returns the tags of a whose IDs are not in b, keeping a's order.
func difference(a, b []model.Tag) []model.Tag {
	ids := make(map[uint]struct{}, len(b))
	for _, t := range b {
		ids[t.ID] = struct{}{}
	}
	out := make([]model.Tag, 0, len(a))
	for _, t := range a {
		if _, ok := ids[t.ID]; !ok {
			out = append(out, t)
		}
	}
	return out
}
