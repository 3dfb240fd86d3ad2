package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/go-resty/resty/v2"

	"tele-sticker-search/model"
	"tele-sticker-search/pkg/connector"
	"tele-sticker-search/pkg/storage"
)

// StickerSource loads packs and sticker files from Telegram.
type StickerSource interface {
	StickerSet(ctx context.Context, name string) (*gotgbot.StickerSet, error)
	// File downloads a sticker file and returns its content and extension.
	File(ctx context.Context, fileID string) ([]byte, string, error)
}

type telegramSource struct {
	bot  *gotgbot.Bot
	rest *resty.Client
}

func (s telegramSource) StickerSet(_ context.Context, name string) (*gotgbot.StickerSet, error) {
	return s.bot.GetStickerSet(name, nil)
}

func (s telegramSource) File(ctx context.Context, fileID string) ([]byte, string, error) {
	file, err := s.bot.GetFile(fileID, nil)
	if err != nil {
		return nil, "", fmt.Errorf("get file info: %w", err)
	}
	body, err := connector.Download(ctx, s.rest, file.URL(s.bot, nil))
	if err != nil {
		return nil, "", err
	}
	return body, strings.TrimPrefix(path.Ext(file.FilePath), "."), nil
}

// sticker indexes the pack of a sticker sent in a private chat.
func (b *Bot) sticker(tb *gotgbot.Bot, ctx *ext.Context) error {
	msg := ctx.EffectiveMessage
	if msg.Sticker.SetName == "" {
		_, err := msg.Reply(tb, "This sticker does not belong to a pack.", nil)
		return err
	}

	ingestCtx, cancel := ingestContext()
	defer cancel()

	set, fresh, err := b.ensureSet(ingestCtx, telegramSource{bot: tb, rest: b.rest}, msg.Sticker.SetName)
	if err != nil {
		return err
	}
	if !fresh {
		return nil
	}

	text := fmt.Sprintf("Indexed %q with %d stickers.", set.Title, len(set.Stickers))
	if !set.Reviewed {
		text += " It will show up in search once an admin has approved it."
	}
	if !set.Complete {
		text += " Some stickers could not be read, send one of them again to retry."
	}
	_, err = msg.Reply(tb, text, nil)
	return err
}

// ensureSet ingests a pack unless it is already complete. fresh reports
// whether this call did the ingestion.
func (b *Bot) ensureSet(ctx context.Context, source StickerSource, name string) (*model.StickerSet, bool, error) {
	existing, err := b.catalog.StickerSet(ctx, name)
	switch {
	case err == nil && existing.Complete:
		return existing, false, nil
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		return nil, false, err
	}

	set, err := b.ingestSet(ctx, source, name, existing)
	if err != nil {
		return nil, false, err
	}
	return set, true, nil
}

// ingestSet downloads a pack, recognizes text on its static stickers and saves
// it. Moderation flags of an already known set are kept. The set stays
// incomplete when the text of any sticker could not be recognized, so the
// next sticker from the pack retries it.
func (b *Bot) ingestSet(ctx context.Context, source StickerSource, name string, existing *model.StickerSet) (*model.StickerSet, error) {
	tgSet, err := source.StickerSet(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("get sticker set %s: %w", name, err)
	}

	set := &model.StickerSet{Name: tgSet.Name, Title: tgSet.Title}
	if existing != nil {
		set = existing
		set.Title = tgSet.Title
	}
	set.Complete = false
	set.Stickers = nil
	if err := b.catalog.SaveStickerSet(ctx, set); err != nil {
		return nil, fmt.Errorf("save incomplete set: %w", err)
	}

	failed := 0
	for _, tgSticker := range tgSet.Stickers {
		sticker := model.Sticker{
			FileUniqueID: tgSticker.FileUniqueId,
			FileID:       tgSticker.FileId,
			Animated:     tgSticker.IsAnimated || tgSticker.IsVideo,
			SetName:      tgSet.Name,
		}
		if tgSticker.Emoji != "" {
			sticker.Tags = []model.Tag{{Name: tgSticker.Emoji, IsDefaultLanguage: true, Emoji: true}}
		}
		if !sticker.Animated {
			text, ok := b.recognize(ctx, source, tgSticker)
			if !ok {
				failed++
			}
			sticker.Text = text
		}
		set.Stickers = append(set.Stickers, sticker)
	}

	set.Complete = failed == 0
	if err := b.catalog.SaveStickerSet(ctx, set); err != nil {
		return nil, fmt.Errorf("save sticker set: %w", err)
	}
	if failed > 0 {
		b.logger.Warn("sticker set left incomplete", "set", set.Name, "stickers", len(set.Stickers), "unrecognized", failed)
		return set, nil
	}
	b.logger.Info("ingested sticker set", "set", set.Name, "stickers", len(set.Stickers))
	return set, nil
}

// recognize returns the text on a sticker, or nil when there is none or OCR
// is unavailable. ok is false when the download or the OCR call failed. OCR
// failures never stop an ingestion.
func (b *Bot) recognize(ctx context.Context, source StickerSource, sticker gotgbot.Sticker) (text *string, ok bool) {
	if b.ocr == nil {
		return nil, true
	}
	body, fileExt, err := source.File(ctx, sticker.FileId)
	if err != nil {
		b.logger.Warn("failed to download sticker", "sticker", sticker.FileUniqueId, "err", err)
		return nil, false
	}
	found, err := b.ocr.Recognize(ctx, bytes.NewReader(body), sticker.FileUniqueId+"."+fileExt, fileExt)
	if err != nil {
		b.logger.Warn("failed to recognize sticker text", "sticker", sticker.FileUniqueId, "err", err)
		return nil, false
	}
	if found == "" {
		return nil, true
	}
	return &found, true
}

// approve marks a pack as reviewed so it shows up in search.
func (b *Bot) approve(tb *gotgbot.Bot, ctx *ext.Context) error {
	reqCtx, cancel := requestContext()
	defer cancel()

	admin, err := b.admin(reqCtx, ctx.EffectiveUser)
	if err != nil || !admin {
		return err
	}

	args := ctx.Args()
	if len(args) < 2 {
		_, err := ctx.EffectiveMessage.Reply(tb, "Usage: /approve <set name>", nil)
		return err
	}

	text, err := b.approveSet(reqCtx, args[1])
	if err != nil {
		return err
	}
	_, err = ctx.EffectiveMessage.Reply(tb, text, nil)
	return err
}

func (b *Bot) approveSet(ctx context.Context, name string) (string, error) {
	set, err := b.catalog.StickerSet(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Sprintf("Unknown sticker set %q.", name), nil
	}
	if err != nil {
		return "", err
	}
	set.Reviewed = true
	set.Stickers = nil
	if err := b.catalog.SaveStickerSet(ctx, set); err != nil {
		return "", err
	}
	return fmt.Sprintf("Approved %q.", set.Title), nil
}
