package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tele-sticker-search/model"
	"tele-sticker-search/pkg/ledger"
	"tele-sticker-search/pkg/search"
	"tele-sticker-search/pkg/storage/memory"
)

type fakeSource struct {
	sets  map[string]*gotgbot.StickerSet
	files map[string]string
}

func (s fakeSource) StickerSet(_ context.Context, name string) (*gotgbot.StickerSet, error) {
	set, ok := s.sets[name]
	if !ok {
		return nil, errors.New("Bad Request: STICKERSET_INVALID")
	}
	return set, nil
}

func (s fakeSource) File(_ context.Context, fileID string) ([]byte, string, error) {
	body, ok := s.files[fileID]
	if !ok {
		return nil, "", errors.New("file not found")
	}
	return []byte(body), "webp", nil
}

// fakeOCR "recognizes" the file content as its text.
type fakeOCR struct {
	calls int
	err   error
}

func (o *fakeOCR) Recognize(_ context.Context, file io.Reader, _, fileType string) (string, error) {
	o.calls++
	if o.err != nil {
		return "", o.err
	}
	if fileType != "webp" {
		return "", fmt.Errorf("unexpected file type %s", fileType)
	}
	body, err := io.ReadAll(file)
	return string(body), err
}

func newTestBot(t *testing.T, store *memory.Store, ocr Recognizer) *Bot {
	t.Helper()
	return New(Options{
		Catalog: store,
		Engine:  search.NewEngine(store, search.NewMemoryCache(0), nil),
		Ledger:  ledger.New(store, nil),
		OCR:     ocr,
	})
}

func seedPack(t *testing.T, store *memory.Store, name string, n int, tag string) {
	t.Helper()
	set := &model.StickerSet{Name: name, Title: name, Reviewed: true, Complete: true}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s_%02d", name, i)
		set.Stickers = append(set.Stickers, model.Sticker{
			FileUniqueID: id,
			FileID:       "file-" + id,
			Tags:         []model.Tag{{Name: tag, IsDefaultLanguage: true}},
		})
	}
	require.NoError(t, store.SaveStickerSet(context.Background(), set))
}

func TestNextOffset(t *testing.T) {
	assert.Equal(t, "", nextOffset(search.TokenDone))
	assert.Equal(t, "1:50", nextOffset("1:50"))
	assert.Equal(t, "1:0:50", nextOffset("1:0:50"))
}

func TestStickerResults(t *testing.T) {
	results := stickerResults([]search.Result{{StickerID: "u1", FileID: "f1"}, {StickerID: "u2", FileID: "f2"}})
	require.Len(t, results, 2)
	sticker, ok := results[0].(gotgbot.InlineQueryResultCachedSticker)
	require.True(t, ok)
	assert.Equal(t, "u1", sticker.Id)
	assert.Equal(t, "f1", sticker.StickerFileId)
}

func TestSearchResults(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedPack(t, store, "cats", 60, "cat")
	b := newTestBot(t, store, nil)
	user := model.User{ID: 7}

	results, next, err := b.searchResults(ctx, "cat", "", user)
	require.NoError(t, err)
	assert.Len(t, results, search.PageSize)
	assert.Equal(t, "1:50", next)

	results, next, err = b.searchResults(ctx, "cat", next, user)
	require.NoError(t, err)
	assert.Len(t, results, 10)
	assert.Equal(t, "", next)
}

func TestSearchResults_MalformedOffsetRestarts(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedPack(t, store, "cats", 60, "cat")
	b := newTestBot(t, store, nil)

	results, next, err := b.searchResults(ctx, "cat", "not:a:token:at:all", model.User{ID: 7})
	require.NoError(t, err)
	assert.Len(t, results, search.PageSize)
	assert.Equal(t, "1:50", next)
}

func TestSearchResults_StickerSets(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedPack(t, store, "cats", 10, "cat")
	seedPack(t, store, "kittens", 3, "cat")
	b := newTestBot(t, store, nil)

	results, next, err := b.searchResults(ctx, "cat set", "", model.User{ID: 7})
	require.NoError(t, err)
	assert.Len(t, results, memory.MaxSetPreviews+3)
	assert.Equal(t, "", next)
}

func TestCommandText(t *testing.T) {
	assert.Equal(t, "cat dog", commandText("/tag cat dog"))
	assert.Equal(t, "cat", commandText("/tag@StickerBot cat"))
	assert.Equal(t, "", commandText("/tag"))
	assert.Equal(t, "plain", commandText("plain"))
}

func TestTagReply(t *testing.T) {
	assert.Equal(t, "Nothing changed.", tagReply(&ledger.TagResult{}))

	reply := tagReply(&ledger.TagResult{
		Change: &model.Change{
			AddedTags:   []model.Tag{{Name: "cat"}, {Name: "dog"}},
			RemovedTags: []model.Tag{{Name: "bird"}},
		},
		TooManyTags: true,
	})
	assert.Equal(t, "Added: cat, dog\nRemoved: bird\n\nOnly the first 10 tags were used.", reply)
}

func testSource() fakeSource {
	return fakeSource{
		sets: map[string]*gotgbot.StickerSet{
			"greetings": {
				Name:  "greetings",
				Title: "Greetings",
				Stickers: []gotgbot.Sticker{
					{FileId: "f1", FileUniqueId: "u1", Emoji: "👋"},
					{FileId: "f2", FileUniqueId: "u2", Emoji: "😴", IsAnimated: true},
					{FileId: "f3", FileUniqueId: "u3"},
				},
			},
		},
		files: map[string]string{"f1": "hello there", "f2": "never read", "f3": ""},
	}
}

func TestEnsureSet(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ocr := &fakeOCR{}
	b := newTestBot(t, store, ocr)

	set, fresh, err := b.ensureSet(ctx, testSource(), "greetings")
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Len(t, set.Stickers, 3)
	assert.Equal(t, 2, ocr.calls)

	stored, err := store.StickerSet(ctx, "greetings")
	require.NoError(t, err)
	assert.True(t, stored.Complete)
	assert.False(t, stored.Reviewed)
	assert.Equal(t, []string{"👋"}, store.StickerTagNames("u1"))
	assert.Equal(t, []string{"😴"}, store.StickerTagNames("u2"))
	assert.Empty(t, store.StickerTagNames("u3"))

	require.NotNil(t, set.Stickers[0].Text)
	assert.Equal(t, "hello there", *set.Stickers[0].Text)
	assert.Nil(t, set.Stickers[1].Text)
	assert.Nil(t, set.Stickers[2].Text)

	_, fresh, err = b.ensureSet(ctx, testSource(), "greetings")
	require.NoError(t, err)
	assert.False(t, fresh)
	assert.Equal(t, 2, ocr.calls)
}

func TestEnsureSet_KeepsModerationFlags(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.SaveStickerSet(ctx, &model.StickerSet{Name: "greetings", Reviewed: true, NSFW: true}))
	b := newTestBot(t, store, nil)

	set, fresh, err := b.ensureSet(ctx, testSource(), "greetings")
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Equal(t, "Greetings", set.Title)
	assert.True(t, set.Reviewed)
	assert.True(t, set.NSFW)
	assert.True(t, set.Complete)
}

func TestEnsureSet_OCRFailureDoesNotStopIngestion(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	ocr := &fakeOCR{err: errors.New("ocr: rate limit wait exceeds deadline")}
	b := newTestBot(t, store, ocr)

	set, fresh, err := b.ensureSet(ctx, testSource(), "greetings")
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.Len(t, set.Stickers, 3)
	assert.False(t, set.Complete)
	for _, sticker := range set.Stickers {
		assert.Nil(t, sticker.Text)
	}
	assert.Equal(t, []string{"👋"}, store.StickerTagNames("u1"))

	// the next sticker from the pack retries recognition
	ocr.err = nil
	set, fresh, err = b.ensureSet(ctx, testSource(), "greetings")
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.True(t, set.Complete)
	require.NotNil(t, set.Stickers[0].Text)
	assert.Equal(t, "hello there", *set.Stickers[0].Text)
	assert.Equal(t, 4, ocr.calls)

	stored, err := store.StickerSet(ctx, "greetings")
	require.NoError(t, err)
	assert.True(t, stored.Complete)
}

func TestIngestContext(t *testing.T) {
	ctx, cancel := ingestContext()
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.Greater(t, time.Until(deadline), handlerTimeout)
}

func TestEnsureSet_UnknownSet(t *testing.T) {
	b := newTestBot(t, memory.New(), nil)
	_, _, err := b.ensureSet(context.Background(), testSource(), "missing")
	assert.Error(t, err)
}

func TestApproveSet(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.SaveStickerSet(ctx, &model.StickerSet{Name: "greetings", Title: "Greetings", Complete: true}))
	b := newTestBot(t, store, nil)

	text, err := b.approveSet(ctx, "greetings")
	require.NoError(t, err)
	assert.Equal(t, `Approved "Greetings".`, text)

	stored, err := store.StickerSet(ctx, "greetings")
	require.NoError(t, err)
	assert.True(t, stored.Reviewed)
	assert.True(t, stored.Complete)

	text, err = b.approveSet(ctx, "missing")
	require.NoError(t, err)
	assert.Equal(t, `Unknown sticker set "missing".`, text)
}

func TestTag(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedPack(t, store, "cats", 1, "cat")
	b := newTestBot(t, store, nil)
	user := model.User{ID: 1}
	require.NoError(t, store.EnsureUser(ctx, &user))

	text, err := b.tag(ctx, ledger.TagRequest{User: user, StickerID: "cats_00", Text: "dog"})
	require.NoError(t, err)
	assert.Equal(t, "Added: dog", text)
	assert.Equal(t, []string{"cat", "dog"}, store.StickerTagNames("cats_00"))

	text, err = b.tag(ctx, ledger.TagRequest{User: user, StickerID: "cats_00", Text: "dog"})
	require.NoError(t, err)
	assert.Equal(t, "Nothing changed.", text)
}
