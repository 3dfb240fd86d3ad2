package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"

	"tele-sticker-search/model"
	"tele-sticker-search/pkg/ledger"
)

// tagCommand handles /tag and /replace sent as a reply to a sticker.
func (b *Bot) tagCommand(replace bool) func(*gotgbot.Bot, *ext.Context) error {
	return func(tb *gotgbot.Bot, ctx *ext.Context) error {
		msg := ctx.EffectiveMessage
		if msg.ReplyToMessage == nil || msg.ReplyToMessage.Sticker == nil {
			_, err := msg.Reply(tb, "Reply to a sticker with /tag <words> or /replace <words>.", nil)
			return err
		}

		// tagging an unknown pack indexes it first
		reqCtx, cancel := ingestContext()
		defer cancel()

		user, err := b.user(reqCtx, ctx.EffectiveUser)
		if err != nil {
			return err
		}
		if user.Banned {
			return nil
		}

		sticker := msg.ReplyToMessage.Sticker
		if sticker.SetName != "" {
			if _, _, err := b.ensureSet(reqCtx, telegramSource{bot: tb, rest: b.rest}, sticker.SetName); err != nil {
				return err
			}
		}

		chatID, messageID := msg.Chat.Id, msg.MessageId
		text, err := b.tag(reqCtx, ledger.TagRequest{
			User:      *user,
			StickerID: sticker.FileUniqueId,
			Text:      commandText(msg.Text),
			Replace:   replace,
			ChatID:    &chatID,
			MessageID: &messageID,
		})
		if err != nil {
			return err
		}
		_, err = msg.Reply(tb, text, nil)
		return err
	}
}

func (b *Bot) tag(ctx context.Context, req ledger.TagRequest) (string, error) {
	result, err := b.ledger.Tag(ctx, req)
	if err != nil {
		return "", fmt.Errorf("tag sticker: %w", err)
	}
	return tagReply(result), nil
}

// commandText strips the leading /command from a message.
func commandText(text string) string {
	if !strings.HasPrefix(text, "/") {
		return text
	}
	if i := strings.IndexAny(text, " \n\t"); i >= 0 {
		return text[i+1:]
	}
	return ""
}

func tagReply(result *ledger.TagResult) string {
	var sb strings.Builder
	if result.Change == nil {
		sb.WriteString("Nothing changed.")
	} else {
		if len(result.Change.AddedTags) > 0 {
			sb.WriteString("Added: " + strings.Join(model.TagNames(result.Change.AddedTags), ", ") + "\n")
		}
		if len(result.Change.RemovedTags) > 0 {
			sb.WriteString("Removed: " + strings.Join(model.TagNames(result.Change.RemovedTags), ", ") + "\n")
		}
	}
	if result.TooManyTags {
		sb.WriteString(fmt.Sprintf("\nOnly the first %d tags were used.", ledger.MaxTags))
	}
	return strings.TrimSpace(sb.String())
}
