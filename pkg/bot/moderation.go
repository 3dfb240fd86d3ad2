package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/google/uuid"

	"tele-sticker-search/model"
)

const callbackPrefix = "mod:"

var ErrUnknownCallback = errors.New("unknown callback data")

// ModCommand is a moderation action carried in inline keyboard callback data.
type ModCommand interface {
	Encode() string
	isModCommand()
}

// RevertUser reverts every change of a user.
type RevertUser struct {
	UserID int64
}

// UndoRevert restores the reverted changes of a user.
type UndoRevert struct {
	UserID int64
}

// ChangeLanguage moves the changes of a review task to the other language.
type ChangeLanguage struct {
	TaskID uuid.UUID
}

func (c RevertUser) Encode() string {
	return callbackPrefix + "revert:" + strconv.FormatInt(c.UserID, 10)
}

func (c UndoRevert) Encode() string {
	return callbackPrefix + "unrevert:" + strconv.FormatInt(c.UserID, 10)
}

func (c ChangeLanguage) Encode() string {
	return callbackPrefix + "lang:" + c.TaskID.String()
}

func (RevertUser) isModCommand()     {}
func (UndoRevert) isModCommand()     {}
func (ChangeLanguage) isModCommand() {}

// DecodeCallback parses callback data produced by ModCommand.Encode.
func DecodeCallback(data string) (ModCommand, error) {
	rest, ok := strings.CutPrefix(data, callbackPrefix)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCallback, data)
	}
	action, arg, ok := strings.Cut(rest, ":")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCallback, data)
	}

	switch action {
	case "revert", "unrevert":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrUnknownCallback, data, err)
		}
		if action == "revert" {
			return RevertUser{UserID: id}, nil
		}
		return UndoRevert{UserID: id}, nil
	case "lang":
		id, err := uuid.Parse(arg)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrUnknownCallback, data, err)
		}
		return ChangeLanguage{TaskID: id}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCallback, data)
}

// admin reports whether the sender of an update is a bot admin.
func (b *Bot) admin(ctx context.Context, from *gotgbot.User) (bool, error) {
	user, err := b.user(ctx, from)
	if err != nil {
		return false, err
	}
	return user.Admin, nil
}

// review opens a moderation task over the latest changes of a user.
func (b *Bot) review(tb *gotgbot.Bot, ctx *ext.Context) error {
	reqCtx, cancel := requestContext()
	defer cancel()

	admin, err := b.admin(reqCtx, ctx.EffectiveUser)
	if err != nil || !admin {
		return err
	}

	args := ctx.Args()
	if len(args) < 2 {
		_, err := ctx.EffectiveMessage.Reply(tb, "Usage: /review <user id>", nil)
		return err
	}
	userID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		_, err := ctx.EffectiveMessage.Reply(tb, "The user id must be a number.", nil)
		return err
	}

	task, err := b.ledger.FlagUserChanges(reqCtx, userID, b.reviewLimit)
	if err != nil {
		return fmt.Errorf("flag user changes: %w", err)
	}
	if task == nil {
		_, err := ctx.EffectiveMessage.Reply(tb, "This user has no changes to review.", nil)
		return err
	}

	_, err = ctx.EffectiveMessage.Reply(tb, taskSummary(task), &gotgbot.SendMessageOpts{
		ReplyMarkup: reviewKeyboard(task),
	})
	return err
}

func taskSummary(task *model.Task) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Latest %d changes of user %d:\n", len(task.Changes), *task.UserID))
	for _, change := range task.Changes {
		sb.WriteString(fmt.Sprintf("%s %s", change.CreatedAt.Format("2006-01-02 15:04"), change.StickerID))
		if len(change.AddedTags) > 0 {
			sb.WriteString(" +" + strings.Join(model.TagNames(change.AddedTags), " +"))
		}
		if len(change.RemovedTags) > 0 {
			sb.WriteString(" -" + strings.Join(model.TagNames(change.RemovedTags), " -"))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func reviewKeyboard(task *model.Task) gotgbot.InlineKeyboardMarkup {
	return gotgbot.InlineKeyboardMarkup{
		InlineKeyboard: [][]gotgbot.InlineKeyboardButton{
			{
				{Text: "Revert all", CallbackData: RevertUser{UserID: *task.UserID}.Encode()},
				{Text: "Undo revert", CallbackData: UndoRevert{UserID: *task.UserID}.Encode()},
			},
			{
				{Text: "Change language", CallbackData: ChangeLanguage{TaskID: task.ID}.Encode()},
			},
		},
	}
}

// callback runs a moderation action picked from a review keyboard.
func (b *Bot) callback(tb *gotgbot.Bot, ctx *ext.Context) error {
	query := ctx.CallbackQuery
	reqCtx, cancel := requestContext()
	defer cancel()

	admin, err := b.admin(reqCtx, &query.From)
	if err != nil {
		return err
	}

	text := "Only admins can do this."
	if admin {
		cmd, err := DecodeCallback(query.Data)
		if err != nil {
			return err
		}
		if text, err = b.apply(reqCtx, cmd); err != nil {
			return err
		}
	}

	_, err = query.Answer(tb, &gotgbot.AnswerCallbackQueryOpts{Text: text})
	if err != nil {
		return fmt.Errorf("failed to answer callback query: %w", err)
	}
	return nil
}

// apply executes a moderation command and describes the outcome.
func (b *Bot) apply(ctx context.Context, cmd ModCommand) (string, error) {
	switch c := cmd.(type) {
	case RevertUser:
		n, err := b.ledger.RevertUserChanges(ctx, c.UserID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Reverted %d changes.", n), nil
	case UndoRevert:
		n, err := b.ledger.UndoUserChangesRevert(ctx, c.UserID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Restored %d changes.", n), nil
	case ChangeLanguage:
		n, err := b.ledger.ChangeLanguageOfTaskChanges(ctx, c.TaskID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Moved %d changes to the other language.", n), nil
	}
	return "", fmt.Errorf("%w: %T", ErrUnknownCallback, cmd)
}
