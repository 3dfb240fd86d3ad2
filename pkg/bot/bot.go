package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers/filters/callbackquery"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers/filters/choseninlineresult"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers/filters/inlinequery"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers/filters/message"
	"github.com/go-resty/resty/v2"

	"tele-sticker-search/model"
	"tele-sticker-search/pkg/ledger"
	"tele-sticker-search/pkg/search"
)

// handlerTimeout bounds the storage work done for one update.
const handlerTimeout = 30 * time.Second

// ingestTimeout bounds indexing a whole pack. OCR calls are rate limited, so a
// large pack takes minutes.
const ingestTimeout = 15 * time.Minute

// Catalog is the user and pack storage the bot needs besides search and ledger.
type Catalog interface {
	EnsureUser(ctx context.Context, user *model.User) error
	User(ctx context.Context, id int64) (*model.User, error)
	StickerSet(ctx context.Context, name string) (*model.StickerSet, error)
	SaveStickerSet(ctx context.Context, set *model.StickerSet) error
}

// Recognizer extracts text from a sticker image.
type Recognizer interface {
	Recognize(ctx context.Context, file io.Reader, filename, fileType string) (string, error)
}

type Options struct {
	Token       string
	Catalog     Catalog
	Engine      *search.Engine
	Ledger      *ledger.Ledger
	OCR         Recognizer
	Rest        *resty.Client
	Logger      *slog.Logger
	ReviewLimit int
}

type Bot struct {
	token       string
	catalog     Catalog
	engine      *search.Engine
	ledger      *ledger.Ledger
	ocr         Recognizer
	rest        *resty.Client
	logger      *slog.Logger
	reviewLimit int
}

func New(opts Options) *Bot {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Rest == nil {
		opts.Rest = resty.New()
	}
	if opts.ReviewLimit <= 0 {
		opts.ReviewLimit = 20
	}
	return &Bot{
		token:       opts.Token,
		catalog:     opts.Catalog,
		engine:      opts.Engine,
		ledger:      opts.Ledger,
		ocr:         opts.OCR,
		rest:        opts.Rest,
		logger:      opts.Logger,
		reviewLimit: opts.ReviewLimit,
	}
}

// Start polls Telegram for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	if b.token == "" {
		return errors.New("BOT_TOKEN is empty")
	}

	tb, err := gotgbot.NewBot(b.token, nil)
	if err != nil {
		return fmt.Errorf("failed to create new bot: %w", err)
	}

	dispatcher := ext.NewDispatcher(&ext.DispatcherOpts{
		// If an error is returned by a handler, log it and continue going.
		Error: func(_ *gotgbot.Bot, ctx *ext.Context, err error) ext.DispatcherAction {
			b.logger.Error("an error occurred while handling update", "update", ctx.UpdateId, "err", err)
			return ext.DispatcherActionNoop
		},
		MaxRoutines: ext.DefaultMaxRoutines,
	})
	updater := ext.NewUpdater(dispatcher, nil)
	b.register(dispatcher)

	err = updater.StartPolling(tb, &ext.PollingOpts{
		DropPendingUpdates: true,
		GetUpdatesOpts: &gotgbot.GetUpdatesOpts{
			Timeout: 9,
			RequestOpts: &gotgbot.RequestOpts{
				Timeout: time.Second * 10,
			},
			AllowedUpdates: []string{"message", "inline_query", "chosen_inline_result", "callback_query"},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to start polling: %w", err)
	}
	b.logger.Info("bot has been started", "username", tb.User.Username)

	<-ctx.Done()
	return updater.Stop()
}

func (b *Bot) register(dispatcher *ext.Dispatcher) {
	dispatcher.AddHandler(handlers.NewCommand("start", b.start))
	dispatcher.AddHandler(handlers.NewCommand("help", b.start))
	dispatcher.AddHandler(handlers.NewCommand("tag", b.tagCommand(false)))
	dispatcher.AddHandler(handlers.NewCommand("replace", b.tagCommand(true)))
	dispatcher.AddHandler(handlers.NewCommand("review", b.review))
	dispatcher.AddHandler(handlers.NewCommand("approve", b.approve))
	dispatcher.AddHandler(handlers.NewMessage(message.Sticker, b.sticker))
	dispatcher.AddHandler(handlers.NewInlineQuery(inlinequery.All, b.inlineQuery))
	dispatcher.AddHandler(handlers.NewChosenInlineResult(choseninlineresult.All, b.chosenInlineResult))
	dispatcher.AddHandler(handlers.NewCallback(callbackquery.Prefix(callbackPrefix), b.callback))
}

const helpText = `Send me a sticker to add its pack to the index.
Reply to a sticker with /tag <words> to add tags, or /replace <words> to replace your tags.
Search inline: type my name followed by some tags. Add "set" to search for packs.`

// start introduces the bot.
func (b *Bot) start(tb *gotgbot.Bot, ctx *ext.Context) error {
	_, err := ctx.EffectiveMessage.Reply(tb, helpText, nil)
	if err != nil {
		return fmt.Errorf("failed to send start message: %w", err)
	}
	return nil
}

// user loads or registers the sender of an update.
func (b *Bot) user(ctx context.Context, from *gotgbot.User) (*model.User, error) {
	if from == nil {
		return nil, errors.New("update has no sender")
	}
	user := &model.User{ID: from.Id, Username: from.Username}
	if err := b.catalog.EnsureUser(ctx, user); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	return user, nil
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), handlerTimeout)
}

func ingestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), ingestTimeout)
}
