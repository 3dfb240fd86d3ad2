package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"tele-sticker-search/model"
	"tele-sticker-search/pkg/ledger"
	"tele-sticker-search/pkg/storage"
)

// WithTx runs fn against a copy of the state and publishes the copy only when
// fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	t := &tx{st: s.st.clone(), now: s.now()}
	if err := fn(t); err != nil {
		return err
	}
	s.st = t.st
	return nil
}

type tx struct {
	st  *state
	now time.Time
}

func (t *tx) GetOrCreateTag(name string, defaultLanguage bool) (*model.Tag, error) {
	tag := t.st.getOrCreateTag(name, defaultLanguage, false, t.now)
	return &tag, nil
}

func (t *tx) StickerTags(stickerID string) ([]model.Tag, error) {
	if _, ok := t.st.stickers[stickerID]; !ok {
		return nil, storage.ErrNotFound
	}
	return t.st.stickerTagList(stickerID), nil
}

func (t *tx) AddStickerTags(stickerID string, tags []model.Tag) error {
	if _, ok := t.st.stickers[stickerID]; !ok {
		return storage.ErrNotFound
	}
	ids := t.st.stickerTags[stickerID]
	if ids == nil {
		ids = make(map[uint]struct{})
		t.st.stickerTags[stickerID] = ids
	}
	for _, tag := range tags {
		if _, ok := t.st.tags[tag.ID]; ok {
			ids[tag.ID] = struct{}{}
		}
	}
	return nil
}

func (t *tx) RemoveStickerTags(stickerID string, tags []model.Tag) error {
	if _, ok := t.st.stickers[stickerID]; !ok {
		return storage.ErrNotFound
	}
	for _, tag := range tags {
		delete(t.st.stickerTags[stickerID], tag.ID)
	}
	return nil
}

func (t *tx) CreateChange(change *model.Change) error {
	if change.ID == uuid.Nil {
		change.ID = uuid.New()
	}
	if change.CreatedAt.IsZero() {
		change.CreatedAt = t.now
	}
	record := &changeRecord{
		change:  *change,
		added:   tagIDs(change.AddedTags),
		removed: tagIDs(change.RemovedTags),
	}
	record.change.AddedTags, record.change.RemovedTags = nil, nil
	t.st.changes = append(t.st.changes, record)
	return nil
}

func (t *tx) UserChanges(userID int64, reverted bool) ([]model.Change, error) {
	records := make([]*changeRecord, 0)
	for _, r := range t.st.changes {
		if r.change.UserID == userID && r.change.Reverted == reverted {
			records = append(records, r)
		}
	}
	return t.newestFirst(records), nil
}

func (t *tx) SetChangeReverted(id uuid.UUID, reverted bool) error {
	r := t.record(id)
	if r == nil {
		return storage.ErrNotFound
	}
	r.change.Reverted = reverted
	return nil
}

func (t *tx) UpdateChange(change *model.Change) error {
	r := t.record(change.ID)
	if r == nil {
		return storage.ErrNotFound
	}
	r.change.IsDefaultLanguage = change.IsDefaultLanguage
	r.change.Reverted = change.Reverted
	r.added = tagIDs(change.AddedTags)
	r.removed = tagIDs(change.RemovedTags)
	return nil
}

func (t *tx) LatestChange(stickerID string, defaultLanguage bool) (*model.Change, error) {
	records := make([]*changeRecord, 0)
	for _, r := range t.st.changes {
		if r.change.StickerID == stickerID && r.change.IsDefaultLanguage == defaultLanguage {
			records = append(records, r)
		}
	}
	changes := t.newestFirst(records)
	if len(changes) == 0 {
		return nil, storage.ErrNotFound
	}
	return &changes[0], nil
}

func (t *tx) SetUserReverted(userID int64, reverted bool) error {
	user, ok := t.st.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	user.Reverted = reverted
	t.st.users[userID] = user
	return nil
}

func (t *tx) CreateTask(task *model.Task) error {
	ids := make([]uuid.UUID, 0, len(task.Changes))
	for _, c := range task.Changes {
		ids = append(ids, c.ID)
	}
	t.st.tasks[task.ID] = ids
	return nil
}

func (t *tx) TaskChanges(taskID uuid.UUID) ([]model.Change, error) {
	ids, ok := t.st.tasks[taskID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	changes := make([]model.Change, 0, len(ids))
	for _, id := range ids {
		if r := t.record(id); r != nil {
			changes = append(changes, t.materialize(r))
		}
	}
	return changes, nil
}

func (t *tx) DeleteOrphanTags() (int64, error) {
	used := make(map[uint]struct{})
	for _, ids := range t.st.stickerTags {
		for id := range ids {
			used[id] = struct{}{}
		}
	}
	for _, r := range t.st.changes {
		for _, id := range r.added {
			used[id] = struct{}{}
		}
		for _, id := range r.removed {
			used[id] = struct{}{}
		}
	}

	var deleted int64
	for id, tag := range t.st.tags {
		if _, ok := used[id]; ok {
			continue
		}
		delete(t.st.tags, id)
		delete(t.st.tagIndex, tagKey{name: tag.Name, defaultLanguage: tag.IsDefaultLanguage})
		deleted++
	}
	return deleted, nil
}

func (t *tx) record(id uuid.UUID) *changeRecord {
	for _, r := range t.st.changes {
		if r.change.ID == id {
			return r
		}
	}
	return nil
}

// materialize resolves the tag ids of a record.
func (t *tx) materialize(r *changeRecord) model.Change {
	change := r.change
	change.AddedTags = t.st.tagList(r.added)
	change.RemovedTags = t.st.tagList(r.removed)
	return change
}

// newestFirst orders by creation time, later insertion winning ties.
func (t *tx) newestFirst(records []*changeRecord) []model.Change {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].change.CreatedAt.After(records[j].change.CreatedAt)
	})
	changes := make([]model.Change, 0, len(records))
	for _, r := range records {
		changes = append(changes, t.materialize(r))
	}
	return changes
}
