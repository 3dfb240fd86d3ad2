// Package memory is an in-process store for local runs and tests. It keeps
// the same semantics as the Postgres store, computing scores with the search
// package's score model instead of SQL.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tele-sticker-search/model"
	"tele-sticker-search/pkg/storage"
)

type tagKey struct {
	name            string
	defaultLanguage bool
}

type usageKey struct {
	userID    int64
	stickerID string
}

type changeRecord struct {
	change  model.Change
	added   []uint
	removed []uint
}

type state struct {
	users       map[int64]model.User
	sets        map[string]model.StickerSet
	stickers    map[string]model.Sticker
	tags        map[uint]model.Tag
	tagIndex    map[tagKey]uint
	stickerTags map[string]map[uint]struct{}
	changes     []*changeRecord
	tasks       map[uuid.UUID][]uuid.UUID
	usage       map[usageKey]model.StickerUsage
	queries     map[int64]model.InlineQuery
	requests    []model.InlineQueryRequest
	nextTagID   uint
	nextQueryID int64
}

// Store is safe for concurrent use; every call holds one mutex.
type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

func New() *Store {
	return &Store{
		st: &state{
			users:       make(map[int64]model.User),
			sets:        make(map[string]model.StickerSet),
			stickers:    make(map[string]model.Sticker),
			tags:        make(map[uint]model.Tag),
			tagIndex:    make(map[tagKey]uint),
			stickerTags: make(map[string]map[uint]struct{}),
			tasks:       make(map[uuid.UUID][]uuid.UUID),
			usage:       make(map[usageKey]model.StickerUsage),
			queries:     make(map[int64]model.InlineQuery),
		},
		now: time.Now,
	}
}

// clone copies the state deeply enough for WithTx to roll back.
func (s *state) clone() *state {
	c := &state{
		users:       make(map[int64]model.User, len(s.users)),
		sets:        make(map[string]model.StickerSet, len(s.sets)),
		stickers:    make(map[string]model.Sticker, len(s.stickers)),
		tags:        make(map[uint]model.Tag, len(s.tags)),
		tagIndex:    make(map[tagKey]uint, len(s.tagIndex)),
		stickerTags: make(map[string]map[uint]struct{}, len(s.stickerTags)),
		changes:     make([]*changeRecord, 0, len(s.changes)),
		tasks:       make(map[uuid.UUID][]uuid.UUID, len(s.tasks)),
		usage:       make(map[usageKey]model.StickerUsage, len(s.usage)),
		queries:     make(map[int64]model.InlineQuery, len(s.queries)),
		requests:    append([]model.InlineQueryRequest(nil), s.requests...),
		nextTagID:   s.nextTagID,
		nextQueryID: s.nextQueryID,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.sets {
		c.sets[k] = v
	}
	for k, v := range s.stickers {
		c.stickers[k] = v
	}
	for k, v := range s.tags {
		c.tags[k] = v
	}
	for k, v := range s.tagIndex {
		c.tagIndex[k] = v
	}
	for k, v := range s.stickerTags {
		ids := make(map[uint]struct{}, len(v))
		for id := range v {
			ids[id] = struct{}{}
		}
		c.stickerTags[k] = ids
	}
	for _, r := range s.changes {
		copied := *r
		copied.added = append([]uint(nil), r.added...)
		copied.removed = append([]uint(nil), r.removed...)
		c.changes = append(c.changes, &copied)
	}
	for k, v := range s.tasks {
		c.tasks[k] = append([]uuid.UUID(nil), v...)
	}
	for k, v := range s.usage {
		c.usage[k] = v
	}
	for k, v := range s.queries {
		c.queries[k] = v
	}
	return c
}

// EnsureUser stores user if it is unknown and otherwise loads the stored row
// into it, keeping the username up to date.
func (s *Store) EnsureUser(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stored, ok := s.st.users[user.ID]; ok {
		if user.Username != "" {
			stored.Username = user.Username
			s.st.users[user.ID] = stored
		}
		*user = stored
		return nil
	}
	now := s.now()
	user.CreatedAt, user.UpdatedAt = now, now
	s.st.users[user.ID] = *user
	return nil
}

// SaveUser inserts or overwrites a user.
func (s *Store) SaveUser(_ context.Context, user model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.users[user.ID] = user
	return nil
}

func (s *Store) User(_ context.Context, id int64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.st.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &user, nil
}

func (s *Store) StickerSet(_ context.Context, name string) (*model.StickerSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.st.sets[name]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &set, nil
}

// SaveStickerSet upserts a set and its stickers. A sticker already known by
// its unique id gets its file id replaced; the tags given on each sticker are
// interned and attached if absent.
func (s *Store) SaveStickerSet(_ context.Context, set *model.StickerSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stored := *set
	stored.Stickers = nil
	if existing, ok := s.st.sets[set.Name]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.st.sets[set.Name] = stored

	for _, sticker := range set.Stickers {
		row := sticker
		row.SetName = set.Name
		row.Tags = nil
		if existing, ok := s.st.stickers[sticker.FileUniqueID]; ok {
			row.CreatedAt = existing.CreatedAt
			if row.Text == nil {
				row.Text = existing.Text
			}
		} else {
			row.CreatedAt = now
		}
		row.UpdatedAt = now
		s.st.stickers[row.FileUniqueID] = row

		if _, ok := s.st.stickerTags[row.FileUniqueID]; !ok {
			s.st.stickerTags[row.FileUniqueID] = make(map[uint]struct{})
		}
		for _, t := range sticker.Tags {
			tag := s.st.getOrCreateTag(t.Name, t.IsDefaultLanguage, t.Emoji, now)
			s.st.stickerTags[row.FileUniqueID][tag.ID] = struct{}{}
		}
	}
	return nil
}

// StickerTagNames returns the sorted tag names of a sticker. It exists for
// inspection in tests and tools.
func (s *Store) StickerTagNames(stickerID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0)
	for id := range s.st.stickerTags[stickerID] {
		names = append(names, s.st.tags[id].Name)
	}
	sort.Strings(names)
	return names
}

func (s *state) getOrCreateTag(name string, defaultLanguage, emoji bool, now time.Time) model.Tag {
	key := tagKey{name: name, defaultLanguage: defaultLanguage}
	if id, ok := s.tagIndex[key]; ok {
		return s.tags[id]
	}
	s.nextTagID++
	tag := model.Tag{
		ID:                s.nextTagID,
		Name:              name,
		IsDefaultLanguage: defaultLanguage,
		Emoji:             emoji,
		CreatedAt:         now,
	}
	s.tags[tag.ID] = tag
	s.tagIndex[key] = tag.ID
	return tag
}

// stickerTagList returns the tags of a sticker ordered by id.
func (s *state) stickerTagList(stickerID string) []model.Tag {
	tags := make([]model.Tag, 0, len(s.stickerTags[stickerID]))
	for id := range s.stickerTags[stickerID] {
		tags = append(tags, s.tags[id])
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i].ID < tags[j].ID })
	return tags
}

func (s *state) tagList(ids []uint) []model.Tag {
	tags := make([]model.Tag, 0, len(ids))
	for _, id := range ids {
		if tag, ok := s.tags[id]; ok {
			tags = append(tags, tag)
		}
	}
	return tags
}

func tagIDs(tags []model.Tag) []uint {
	ids := make([]uint, 0, len(tags))
	for _, t := range tags {
		ids = append(ids, t.ID)
	}
	return ids
}
