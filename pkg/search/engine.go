package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tele-sticker-search/model"
)

// SlowQueryThreshold is the soft deadline after which a search is reported.
const SlowQueryThreshold = 8 * time.Second

// Page is one page of sticker results.
type Page struct {
	Results   []Result
	NextToken string
	Duration  time.Duration
}

// SetPage is one page of pack results.
type SetPage struct {
	Sets      []SetResult
	NextToken string
	Duration  time.Duration
}

// Engine ranks and paginates stickers for inline queries.
type Engine struct {
	store  Store
	cache  Cache
	logger *slog.Logger
	now    func() time.Time
}

func NewEngine(store Store, cache Cache, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  store,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// SearchStickers returns the next page of stickers for sc.
func (e *Engine) SearchStickers(ctx context.Context, sc *Context) (*Page, error) {
	if sc.Done {
		return &Page{NextToken: TokenDone}, nil
	}
	if err := e.ensureSession(ctx, sc); err != nil {
		return nil, err
	}

	start := e.now()
	var (
		page *Page
		err  error
	)
	if sc.Mode == ModeFavorite {
		page, err = e.favorites(ctx, sc)
	} else {
		page, err = e.stickers(ctx, sc)
	}
	if err != nil {
		return nil, err
	}
	page.Duration = e.now().Sub(start)

	if err := e.finish(ctx, sc, page.NextToken, page.Duration); err != nil {
		return nil, err
	}
	return page, nil
}

// SearchStickerSets returns the next page of packs for sc. Packs are ranked by
// strict score only; there is no fuzzy fallback.
func (e *Engine) SearchStickerSets(ctx context.Context, sc *Context) (*SetPage, error) {
	if sc.Done {
		return &SetPage{NextToken: TokenDone}, nil
	}
	if err := e.ensureSession(ctx, sc); err != nil {
		return nil, err
	}

	start := e.now()
	f := sc.Filter()
	f.WithUsage = false

	sets, err := e.store.StrictStickerSets(ctx, f, sc.StrictOffset, SetPageSize)
	if err != nil {
		return nil, err
	}

	page := &SetPage{Sets: sets, NextToken: TokenDone}
	switch {
	case len(sets) > SetPageSize:
		return nil, e.invariant(sc, len(sets), 0, 0)
	case len(sets) == SetPageSize:
		page.NextToken = strictToken(sc.SessionID, sc.StrictOffset+SetPageSize)
	}
	page.Duration = e.now().Sub(start)

	if err := e.finish(ctx, sc, page.NextToken, page.Duration); err != nil {
		return nil, err
	}
	return page, nil
}

// RecordChosen counts a sticker the user picked from the results.
func (e *Engine) RecordChosen(ctx context.Context, user model.User, stickerID string) error {
	return e.store.IncrementUsage(ctx, user.ID, stickerID)
}

func (e *Engine) stickers(ctx context.Context, sc *Context) (*Page, error) {
	f := sc.Filter()

	var strict []Result
	if !sc.SwitchedToFuzzy {
		var err error
		if strict, err = e.strictPage(ctx, sc, f); err != nil {
			return nil, err
		}
	}

	var fuzzy []Result
	fuzzyLimit := 0
	if sc.SwitchedToFuzzy || len(strict) < PageSize {
		fuzzyLimit = PageSize - len(strict)
		var err error
		if fuzzy, err = e.fuzzyPage(ctx, sc, f, fuzzyLimit); err != nil {
			return nil, err
		}
	}

	next, err := e.nextToken(sc, len(strict), len(fuzzy), fuzzyLimit)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(strict)+len(fuzzy))
	results = append(results, strict...)
	results = append(results, fuzzy...)
	return &Page{Results: results, NextToken: next}, nil
}

// nextToken applies the pagination transitions:
//
//	full strict page              -> resume strict
//	fuzzy page shorter than limit -> done
//	fuzzy page equal to limit     -> resume fuzzy
//
// Anything else is a bug.
func (e *Engine) nextToken(sc *Context, strictSize, fuzzySize, fuzzyLimit int) (string, error) {
	switch {
	case strictSize > PageSize, fuzzySize > fuzzyLimit:
	case sc.SwitchedToFuzzy && strictSize != 0:
	case !sc.SwitchedToFuzzy && strictSize == PageSize:
		if fuzzyLimit == 0 && fuzzySize == 0 {
			return strictToken(sc.SessionID, sc.StrictOffset+PageSize), nil
		}
	case fuzzySize < fuzzyLimit:
		return TokenDone, nil
	case fuzzySize == fuzzyLimit:
		return fuzzyToken(sc.SessionID, sc.StrictOffset+strictSize, sc.FuzzyOffset+fuzzySize), nil
	}
	return "", e.invariant(sc, strictSize, fuzzySize, fuzzyLimit)
}

func (e *Engine) invariant(sc *Context, strictSize, fuzzySize, fuzzyLimit int) error {
	err := &InvariantError{
		Token:      sc.Token,
		StrictSize: strictSize,
		FuzzySize:  fuzzySize,
		FuzzyLimit: fuzzyLimit,
	}
	e.logger.Error("search pagination invariant violated",
		"session", sc.SessionID,
		"token", sc.Token,
		"strict", strictSize,
		"fuzzy", fuzzySize,
		"fuzzy_limit", fuzzyLimit)
	return err
}

func (e *Engine) strictPage(ctx context.Context, sc *Context, f Filter) ([]Result, error) {
	if cached, ok := e.cachedPage(ctx, sc.SessionID, KindStrict, sc.StrictOffset, PageSize); ok {
		return cached, nil
	}

	results, err := e.store.StrictStickers(ctx, f, sc.StrictOffset, PageSize)
	if err != nil {
		return nil, err
	}

	e.extendCache(ctx, sc.SessionID, KindStrict, sc.StrictOffset, results)
	if len(results) < PageSize {
		e.sealCache(ctx, sc.SessionID, KindStrict, sc.StrictOffset+len(results))
	}
	return results, nil
}

func (e *Engine) fuzzyPage(ctx context.Context, sc *Context, f Filter, limit int) ([]Result, error) {
	if cached, ok := e.cachedPage(ctx, sc.SessionID, KindFuzzy, sc.FuzzyOffset, limit); ok {
		return cached, nil
	}

	exclude, err := e.matchedIDs(ctx, sc.SessionID, f)
	if err != nil {
		return nil, err
	}

	results, err := e.store.FuzzyStickers(ctx, f, exclude, sc.FuzzyOffset, limit)
	if err != nil {
		return nil, err
	}

	e.extendCache(ctx, sc.SessionID, KindFuzzy, sc.FuzzyOffset, results)
	if len(results) < limit {
		e.sealCache(ctx, sc.SessionID, KindFuzzy, sc.FuzzyOffset+len(results))
	}
	return results, nil
}

func (e *Engine) favorites(ctx context.Context, sc *Context) (*Page, error) {
	results, err := e.store.FavoriteStickers(ctx, sc.Filter(), sc.StrictOffset, PageSize)
	if err != nil {
		return nil, err
	}

	page := &Page{Results: results, NextToken: TokenDone}
	switch {
	case len(results) > PageSize:
		return nil, e.invariant(sc, len(results), 0, 0)
	case len(results) == PageSize:
		page.NextToken = strictToken(sc.SessionID, sc.StrictOffset+PageSize)
	}
	return page, nil
}

// matchedIDs returns every strict-matched sticker of the session, from the
// cache when strict results were fully cached, from the store otherwise.
func (e *Engine) matchedIDs(ctx context.Context, session int64, f Filter) ([]string, error) {
	ids, ok, err := e.cache.MatchedIDs(ctx, session)
	if err != nil {
		e.logger.Warn("result cache unavailable", "session", session, "err", err)
	}
	if ok {
		exclude := make([]string, 0, len(ids))
		for id := range ids {
			exclude = append(exclude, id)
		}
		return exclude, nil
	}
	return e.store.StrictStickerIDs(ctx, f)
}

func (e *Engine) cachedPage(ctx context.Context, session int64, kind Kind, offset, limit int) ([]Result, bool) {
	results, ok, err := e.cache.Page(ctx, session, kind, offset, limit)
	if err != nil {
		e.logger.Warn("result cache unavailable", "session", session, "kind", kind.String(), "err", err)
		return nil, false
	}
	return results, ok
}

func (e *Engine) extendCache(ctx context.Context, session int64, kind Kind, offset int, results []Result) {
	if err := e.cache.Extend(ctx, session, kind, offset, results); err != nil {
		e.logger.Warn("failed to extend result cache", "session", session, "kind", kind.String(), "err", err)
	}
}

func (e *Engine) sealCache(ctx context.Context, session int64, kind Kind, total int) {
	if err := e.cache.Seal(ctx, session, kind, total); err != nil {
		e.logger.Warn("failed to seal result cache", "session", session, "kind", kind.String(), "err", err)
	}
}

// ensureSession creates the InlineQuery row on the first page of a query.
func (e *Engine) ensureSession(ctx context.Context, sc *Context) error {
	if sc.SessionID != 0 || sc.Token != "" {
		return nil
	}
	query := &model.InlineQuery{
		UserID:    sc.User.ID,
		Query:     sc.Query,
		Mode:      sc.Mode.String(),
		CreatedAt: e.now(),
	}
	if err := e.store.CreateInlineQuery(ctx, query); err != nil {
		return fmt.Errorf("create inline query: %w", err)
	}
	sc.SessionID = query.ID
	return nil
}

func (e *Engine) finish(ctx context.Context, sc *Context, next string, duration time.Duration) error {
	if duration > SlowQueryThreshold {
		e.logger.Warn("slow inline query",
			"session", sc.SessionID,
			"query", sc.Query,
			"token", sc.Token,
			"duration", duration)
	}

	request := &model.InlineQueryRequest{
		ID:            uuid.New(),
		InlineQueryID: sc.SessionID,
		Offset:        sc.Token,
		NextOffset:    next,
		Duration:      duration,
		CreatedAt:     e.now(),
	}
	if err := e.store.SaveInlineQueryRequest(ctx, request); err != nil {
		return fmt.Errorf("save inline query request: %w", err)
	}
	return nil
}

// IsFormatError reports whether err came from a malformed continuation token.
func IsFormatError(err error) bool {
	var target *FormatError
	return errors.As(err, &target)
}

// IsInvariantError reports whether err is a pagination bug.
func IsInvariantError(err error) bool {
	var target *InvariantError
	return errors.As(err, &target)
}
