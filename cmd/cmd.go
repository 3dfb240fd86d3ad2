package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/go-resty/resty/v2"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"tele-sticker-search/config"
	"tele-sticker-search/migration"
	"tele-sticker-search/model"
	"tele-sticker-search/pkg/bot"
	"tele-sticker-search/pkg/connector"
	"tele-sticker-search/pkg/search"
	"tele-sticker-search/pkg/storage"
)

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// cli holds the application opened before any subcommand runs.
type cli struct {
	app *app
}

func NewRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:          "tele-sticker-search",
		Short:        "Telegram bot to tag and search stickers",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger := newLogger(cfg, cmd.ErrOrStderr())
			c.app, err = openApp(cmd.Context(), cfg, logger)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.app == nil {
				return nil
			}
			return c.app.Close()
		},
	}

	botCmd := &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBot(cmd.Context(), c.app)
		},
	}
	rootCmd.RunE = botCmd.RunE

	rootCmd.AddCommand(
		botCmd,
		c.migrateCmd(),
		c.searchCmd(),
		c.revertCmd(false),
		c.revertCmd(true),
		c.lastChangeCmd(),
		c.gcTagsCmd(),
	)
	return rootCmd
}

func runBot(ctx context.Context, a *app) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rest := resty.New()
	opts := bot.Options{
		Token:   a.cfg.BotToken,
		Catalog: a.store,
		Engine:  a.engine,
		Ledger:  a.ledger,
		Rest:    rest,
		Logger:  a.logger,
	}
	if a.cfg.OCRApiKey != "" {
		opts.OCR = connector.NewOCRClient(resty.New(), connector.OCROptions{
			APIKey:   a.cfg.OCRApiKey,
			Endpoint: a.cfg.OCREndpoint,
			Rate:     a.cfg.OCRRate,
			Burst:    a.cfg.OCRBurst,
			Timeout:  a.cfg.OCRTimeout,
			Logger:   a.logger,
		})
	} else {
		a.logger.Warn("OCR_API_KEY is empty, sticker text will not be recognized")
	}

	return bot.New(opts).Start(ctx)
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.app.db == nil {
				return errors.New("migrate needs the postgres storage driver")
			}
			if err := migration.AutoMigration(c.app.db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "database schema is up to date")
			return nil
		},
	}
}

func (c *cli) searchCmd() *cobra.Command {
	var (
		userID int64
		offset string
	)
	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run an inline query and print one page of results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			user, err := lookupUser(ctx, c.app, userID)
			if err != nil {
				return err
			}
			sc, err := search.ParseContext(strings.Join(args, " "), offset, *user)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if sc.Mode == search.ModeStickerSet {
				page, err := c.app.engine.SearchStickerSets(ctx, sc)
				if err != nil {
					return err
				}
				if err := renderTable(w, []string{"#", "Set", "Title", "Score"}, setRows(page.Sets)); err != nil {
					return err
				}
				fmt.Fprintf(w, "next offset: %s (%s)\n", page.NextToken, page.Duration)
				return nil
			}

			page, err := c.app.engine.SearchStickers(ctx, sc)
			if err != nil {
				return err
			}
			if err := renderTable(w, []string{"#", "Sticker", "Set", "Score"}, resultRows(page.Results)); err != nil {
				return err
			}
			fmt.Fprintf(w, "next offset: %s (%s)\n", page.NextToken, page.Duration)
			return nil
		},
	}
	searchCmd.Flags().Int64Var(&userID, "user", 0, "Telegram id of the searching user")
	searchCmd.Flags().StringVar(&offset, "offset", "", "Continuation token of the previous page")
	return searchCmd
}

// lookupUser loads a stored user, falling back to a bare user for unknown ids.
func lookupUser(ctx context.Context, a *app, id int64) (*model.User, error) {
	user, err := a.store.User(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return &model.User{ID: id}, nil
	}
	return user, err
}

func (c *cli) revertCmd(undo bool) *cobra.Command {
	use, short := "revert <user-id>", "Revert every tagging change of a user"
	if undo {
		use, short = "unrevert <user-id>", "Restore the reverted changes of a user"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid user id %q: %w", args[0], err)
			}

			var n int
			if undo {
				n, err = c.app.ledger.UndoUserChangesRevert(cmd.Context(), userID)
			} else {
				n, err = c.app.ledger.RevertUserChanges(cmd.Context(), userID)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d changes of user %d updated\n", n, userID)
			return nil
		},
	}
}

func (c *cli) lastChangeCmd() *cobra.Command {
	var international bool
	lastChangeCmd := &cobra.Command{
		Use:   "last-change <sticker-id>",
		Short: "Show the newest tagging change of a sticker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			change, err := c.app.ledger.LastChange(cmd.Context(), args[0], !international)
			if errors.Is(err, storage.ErrNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), "no changes recorded")
				return nil
			}
			if err != nil {
				return err
			}
			return renderTable(cmd.OutOrStdout(), []string{"Change", "User", "Added", "Removed", "Reverted", "Created"}, changeRows(change))
		},
	}
	lastChangeCmd.Flags().BoolVar(&international, "international", false, "Look at the international tag partition")
	return lastChangeCmd
}

func (c *cli) gcTagsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gc-tags",
		Short: "Delete tags no sticker uses anymore",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := c.app.ledger.CollectGarbageTags(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d tags deleted\n", n)
			return nil
		},
	}
}

// renderTable writes rows as an ASCII table.
func renderTable(w io.Writer, headers []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	table.Header(headers)
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func resultRows(results []search.Result) [][]string {
	rows := make([][]string, 0, len(results))
	for i, r := range results {
		rows = append(rows, []string{strconv.Itoa(i + 1), r.StickerID, r.SetName, strconv.FormatFloat(r.Score, 'f', 3, 64)})
	}
	return rows
}

func setRows(sets []search.SetResult) [][]string {
	rows := make([][]string, 0, len(sets))
	for i, s := range sets {
		rows = append(rows, []string{strconv.Itoa(i + 1), s.Name, s.Title, strconv.FormatFloat(s.Score, 'f', 3, 64)})
	}
	return rows
}

func changeRows(change *model.Change) [][]string {
	return [][]string{{
		change.ID.String(),
		strconv.FormatInt(change.UserID, 10),
		strings.Join(model.TagNames(change.AddedTags), " "),
		strings.Join(model.TagNames(change.RemovedTags), " "),
		strconv.FormatBool(change.Reverted),
		change.CreatedAt.Format("2006-01-02 15:04:05"),
	}}
}
