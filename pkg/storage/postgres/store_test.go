package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tele-sticker-search/migration"
	"tele-sticker-search/model"
	"tele-sticker-search/pkg/ledger"
	"tele-sticker-search/pkg/search"
	"tele-sticker-search/pkg/storage"
)

// setupStore starts a disposable PostgreSQL container and migrates it.
func setupStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("stickers_test"),
		tcpostgres.WithUsername("test_user"),
		tcpostgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigration(db))
	return New(db)
}

func seedPacks(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	for _, set := range []*model.StickerSet{
		testPack("a_dumb_shit", "A Dumb Shit", "dumb", 20, "testtag", "roflcopter"),
		testPack("z_mega_awesome", "Mega Awesome", "sticker", 40, "testtag", "unique-other"),
	} {
		require.NoError(t, s.SaveStickerSet(ctx, set))
	}
}

func testPack(name, title, prefix string, n int, tags ...string) *model.StickerSet {
	set := &model.StickerSet{Name: name, Title: title, Reviewed: true, Complete: true}
	for i := 0; i < n; i++ {
		id := prefix + "_" + twoDigits(i)
		sticker := model.Sticker{FileUniqueID: id, FileID: "file-" + id}
		for _, tag := range tags {
			sticker.Tags = append(sticker.Tags, model.Tag{Name: tag, IsDefaultLanguage: true})
		}
		set.Stickers = append(set.Stickers, sticker)
	}
	return set
}

func twoDigits(i int) string {
	return string([]byte{byte('0' + i/10), byte('0' + i%10)})
}

func TestStore_Search(t *testing.T) {
	s := setupStore(t)
	seedPacks(t, s)
	ctx := context.Background()

	t.Run("strict", func(t *testing.T) {
		results, err := s.StrictStickers(ctx, search.Filter{Tags: []string{"testtag"}}, 0, search.PageSize)
		require.NoError(t, err)
		require.Len(t, results, search.PageSize)
		assert.Equal(t, "dumb_00", results[0].StickerID)
		assert.Equal(t, "sticker_29", results[49].StickerID)
		assert.InDelta(t, 1.0, results[0].Score, 1e-9)

		ids, err := s.StrictStickerIDs(ctx, search.Filter{Tags: []string{"testtag"}})
		require.NoError(t, err)
		assert.Len(t, ids, 60)
	})

	t.Run("pack title", func(t *testing.T) {
		results, err := s.StrictStickers(ctx, search.Filter{Tags: []string{"awesome"}}, 0, search.PageSize)
		require.NoError(t, err)
		require.Len(t, results, 40)
		for _, r := range results {
			assert.InDelta(t, 0.75, r.Score, 1e-9)
		}
	})

	t.Run("fuzzy", func(t *testing.T) {
		results, err := s.FuzzyStickers(ctx, search.Filter{Tags: []string{"testtagz"}}, []string{"dumb_00"}, 0, search.PageSize)
		require.NoError(t, err)
		require.Len(t, results, search.PageSize)
		assert.Equal(t, "dumb_01", results[0].StickerID)
		assert.InDelta(t, 0.7, results[0].Score, 1e-6)
	})

	t.Run("usage", func(t *testing.T) {
		require.NoError(t, s.IncrementUsage(ctx, 7, "sticker_00"))
		require.NoError(t, s.IncrementUsage(ctx, 7, "sticker_00"))

		results, err := s.StrictStickers(ctx, search.Filter{Tags: []string{"awesome"}, UserID: 7, WithUsage: true}, 0, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "sticker_00", results[0].StickerID)
		assert.InDelta(t, 1.25, results[0].Score, 1e-9)

		favorites, err := s.FavoriteStickers(ctx, search.Filter{UserID: 7}, 0, search.PageSize)
		require.NoError(t, err)
		require.Len(t, favorites, 1)
		assert.InDelta(t, 2, favorites[0].Score, 1e-9)
	})

	t.Run("sets", func(t *testing.T) {
		sets, err := s.StrictStickerSets(ctx, search.Filter{Tags: []string{"testtag"}}, 0, search.SetPageSize)
		require.NoError(t, err)
		require.Len(t, sets, 2)
		assert.Equal(t, "z_mega_awesome", sets[0].Name)
		assert.InDelta(t, 40, sets[0].Score, 1e-9)
		assert.Len(t, sets[0].Previews, MaxSetPreviews)
	})

	t.Run("sessions", func(t *testing.T) {
		query := &model.InlineQuery{UserID: 7, Query: "testtag", Mode: "sticker", CreatedAt: time.Now()}
		require.NoError(t, s.CreateInlineQuery(ctx, query))
		assert.NotZero(t, query.ID)
		require.NoError(t, s.SaveInlineQueryRequest(ctx, &model.InlineQueryRequest{
			InlineQueryID: query.ID,
			NextOffset:    "1:50",
			CreatedAt:     time.Now(),
		}))
	})
}

func TestStore_Ledger(t *testing.T) {
	s := setupStore(t)
	seedPacks(t, s)
	ctx := context.Background()
	l := ledger.New(s, nil)

	alice := &model.User{ID: 1, Username: "alice"}
	require.NoError(t, s.EnsureUser(ctx, alice))

	result, err := l.Tag(ctx, ledger.TagRequest{User: *alice, StickerID: "dumb_00", Text: "cat dog"})
	require.NoError(t, err)
	require.NotNil(t, result.Change)
	assert.Len(t, result.Change.AddedTags, 2)

	result, err = l.Tag(ctx, ledger.TagRequest{User: *alice, StickerID: "dumb_00", Text: "bird", Replace: true})
	require.NoError(t, err)
	require.NotNil(t, result.Change)
	assert.Len(t, result.Change.RemovedTags, 4)

	last, err := l.LastChange(ctx, "dumb_00", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"bird"}, model.TagNames(last.AddedTags))

	task, err := l.FlagUserChanges(ctx, alice.ID, 10)
	require.NoError(t, err)
	require.NotNil(t, task)
	n, err := l.ChangeLanguageOfTaskChanges(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = l.RevertUserChanges(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	user, err := s.User(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, user.Reverted)

	results, err := s.StrictStickers(ctx, search.Filter{Tags: []string{"roflcopter"}}, 0, search.PageSize)
	require.NoError(t, err)
	assert.Len(t, results, 20)

	n, err = l.UndoUserChangesRevert(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	deleted, err := l.CollectGarbageTags(ctx)
	require.NoError(t, err)
	assert.Positive(t, deleted)

	_, err = s.User(ctx, 999)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
