package search

import (
	"context"

	"tele-sticker-search/model"
)

const (
	// PageSize is the number of stickers returned per inline query page.
	PageSize = 50
	// SetPageSize is the number of packs returned per page in pack mode.
	SetPageSize = 8
)

// Result is one ranked sticker.
type Result struct {
	StickerID string  `json:"sticker_id"`
	FileID    string  `json:"file_id"`
	SetName   string  `json:"set_name"`
	Score     float64 `json:"score"`
}

// SetResult is one ranked pack together with a few of its stickers.
type SetResult struct {
	Name     string   `json:"name"`
	Title    string   `json:"title"`
	Score    float64  `json:"score"`
	Previews []Result `json:"previews"`
}

// Filter is the storage-facing form of a search request.
type Filter struct {
	Tags          []string
	UserID        int64
	International bool
	Deluxe        bool
	NSFW          bool
	Furry         bool
	// WithUsage folds the user's usage counts into strict sticker scores.
	WithUsage bool
}

// Store is what the engine needs from the storage layer.
type Store interface {
	CreateInlineQuery(ctx context.Context, query *model.InlineQuery) error
	SaveInlineQueryRequest(ctx context.Context, request *model.InlineQueryRequest) error

	StrictStickers(ctx context.Context, f Filter, offset, limit int) ([]Result, error)
	StrictStickerIDs(ctx context.Context, f Filter) ([]string, error)
	FuzzyStickers(ctx context.Context, f Filter, exclude []string, offset, limit int) ([]Result, error)
	FavoriteStickers(ctx context.Context, f Filter, offset, limit int) ([]Result, error)
	StrictStickerSets(ctx context.Context, f Filter, offset, limit int) ([]SetResult, error)

	IncrementUsage(ctx context.Context, userID int64, stickerID string) error
}
