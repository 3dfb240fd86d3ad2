package bot

import (
	"context"
	"fmt"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"tele-sticker-search/model"
	"tele-sticker-search/pkg/search"
)

// inlineCacheTime keeps Telegram from caching result pages that depend on the
// user's usage counts.
const inlineCacheTime = 1

func (b *Bot) inlineQuery(tb *gotgbot.Bot, ctx *ext.Context) error {
	query := ctx.InlineQuery
	reqCtx, cancel := requestContext()
	defer cancel()

	user, err := b.user(reqCtx, &query.From)
	if err != nil {
		return err
	}

	results := []gotgbot.InlineQueryResult{}
	next := ""
	if !user.Banned {
		results, next, err = b.searchResults(reqCtx, query.Query, query.Offset, *user)
		if err != nil {
			return err
		}
	}

	_, err = tb.AnswerInlineQuery(query.Id, results, &gotgbot.AnswerInlineQueryOpts{
		CacheTime:  inlineCacheTime,
		IsPersonal: true,
		NextOffset: next,
	})
	if err != nil {
		return fmt.Errorf("failed to answer inline query: %w", err)
	}
	return nil
}

// searchResults runs one inline query page and returns its results together
// with the offset Telegram should send for the next page.
func (b *Bot) searchResults(ctx context.Context, query, offset string, user model.User) ([]gotgbot.InlineQueryResult, string, error) {
	sc, err := search.ParseContext(query, offset, user)
	if search.IsFormatError(err) {
		b.logger.Warn("restarting search after malformed offset", "offset", offset, "err", err)
		sc, err = search.ParseContext(query, "", user)
	}
	if err != nil {
		return nil, "", err
	}

	if sc.Mode == search.ModeStickerSet {
		page, err := b.engine.SearchStickerSets(ctx, sc)
		if err != nil {
			return nil, "", err
		}
		results := make([]gotgbot.InlineQueryResult, 0, len(page.Sets))
		for _, set := range page.Sets {
			results = append(results, stickerResults(set.Previews)...)
		}
		return results, nextOffset(page.NextToken), nil
	}

	page, err := b.engine.SearchStickers(ctx, sc)
	if err != nil {
		return nil, "", err
	}
	return stickerResults(page.Results), nextOffset(page.NextToken), nil
}

// stickerResults converts ranked stickers into cached sticker results. The
// result id is the sticker's file_unique_id so a chosen result maps back to it.
func stickerResults(results []search.Result) []gotgbot.InlineQueryResult {
	out := make([]gotgbot.InlineQueryResult, 0, len(results))
	for _, r := range results {
		out = append(out, gotgbot.InlineQueryResultCachedSticker{
			Id:            r.StickerID,
			StickerFileId: r.FileID,
		})
	}
	return out
}

// nextOffset hides the terminal token from Telegram; an empty offset tells
// the client there are no more pages.
func nextOffset(token string) string {
	if token == search.TokenDone {
		return ""
	}
	return token
}

func (b *Bot) chosenInlineResult(_ *gotgbot.Bot, ctx *ext.Context) error {
	chosen := ctx.ChosenInlineResult
	reqCtx, cancel := requestContext()
	defer cancel()

	user, err := b.user(reqCtx, &chosen.From)
	if err != nil {
		return err
	}
	if err := b.engine.RecordChosen(reqCtx, *user, chosen.ResultId); err != nil {
		return fmt.Errorf("record chosen sticker: %w", err)
	}
	return nil
}
