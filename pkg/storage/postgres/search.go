package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tele-sticker-search/model"
	"tele-sticker-search/pkg/search"
	"tele-sticker-search/pkg/storage"
)

// MaxSetPreviews is the number of stickers attached to a pack result.
const MaxSetPreviews = 5

// The queries below mirror search.Visible, search.StrictScore and
// search.FuzzyScore. Text ordering uses the C collation so that ties break the
// same way as Go string comparison.
const (
	queryTokens = `q AS (SELECT DISTINCT unnest(CAST(@tags AS text[])) AS token)`

	visibleStickers = `visible AS (
		SELECT s.file_unique_id, s.file_id, s.set_name,
			ss.name AS pack_name, ss.title AS pack_title,
			lower(coalesce(s.text, '')) AS text
		FROM stickers s
		JOIN sticker_sets ss ON ss.name = s.set_name
		WHERE NOT s.banned AND NOT ss.banned AND NOT ss.deleted AND ss.reviewed
			AND ss.nsfw = CAST(@nsfw AS boolean) AND ss.furry = CAST(@furry AS boolean)
			AND (CAST(@international AS boolean) OR NOT ss.international)
			AND (NOT CAST(@deluxe AS boolean) OR ss.deluxe)
	)`

	strictScores = `strict AS (
		SELECT v.file_unique_id, v.file_id, v.set_name,
			(SELECT count(*) FROM sticker_tags st
				JOIN tags t ON t.id = st.tag_id
				WHERE st.sticker_id = v.file_unique_id
					AND (t.is_default_language OR CAST(@international AS boolean))
					AND t.name = ANY(CAST(@tags AS text[])))::float8
			+ (SELECT coalesce(sum(
				CASE WHEN strpos(lower(v.pack_name), q.token) > 0 OR strpos(lower(v.pack_title), q.token) > 0
					THEN 0.75 ELSE 0 END
				+ CASE WHEN v.text <> '' AND strpos(v.text, q.token) > 0
					THEN 0.40 ELSE 0 END), 0) FROM q)::float8 AS score
		FROM visible v
	)`

	strictStickers = `WITH ` + queryTokens + `, ` + visibleStickers + `, ` + strictScores + `
		SELECT s.file_unique_id AS sticker_id, s.file_id, s.set_name,
			s.score + CASE WHEN CAST(@with_usage AS boolean) THEN coalesce((
				SELECT 0.25 * u.usage_count FROM sticker_usages u
				WHERE u.user_id = @user_id AND u.sticker_id = s.file_unique_id), 0) ELSE 0 END::float8 AS score
		FROM strict s
		WHERE s.score > 0
		ORDER BY score DESC, s.set_name COLLATE "C", s.file_unique_id COLLATE "C"`

	fuzzyStickers = `WITH ` + queryTokens + `, ` + visibleStickers + `,
	candidates AS (
		SELECT * FROM visible WHERE file_unique_id <> ALL(CAST(@exclude AS text[]))
	),
	tag_sims AS (
		SELECT st.sticker_id, t.name, max(similarity(t.name, q.token)) AS sim
		FROM candidates c
		JOIN sticker_tags st ON st.sticker_id = c.file_unique_id
		JOIN tags t ON t.id = st.tag_id
		CROSS JOIN q
		WHERE t.is_default_language OR CAST(@international AS boolean)
		GROUP BY st.sticker_id, t.name
		HAVING max(similarity(t.name, q.token)) >= 0.3
	),
	scored AS (
		SELECT c.file_unique_id, c.file_id, c.set_name,
			coalesce((SELECT sum(ts.sim) FROM tag_sims ts WHERE ts.sticker_id = c.file_unique_id), 0)
			+ CASE WHEN p.sim >= 0.3 THEN 0.75 * p.sim ELSE 0 END
			+ CASE WHEN c.text <> '' AND p.text_sim >= 0.3 THEN 0.30 ELSE 0 END AS score
		FROM candidates c
		CROSS JOIN LATERAL (
			SELECT max(greatest(similarity(c.pack_name, q.token), similarity(c.pack_title, q.token))) AS sim,
				max(similarity(c.text, q.token)) AS text_sim
			FROM q
		) p
	)
	SELECT file_unique_id AS sticker_id, file_id, set_name, score::float8 AS score
	FROM scored
	WHERE score > 0
	ORDER BY score DESC, set_name COLLATE "C", file_unique_id COLLATE "C"`

	favoriteStickers = `SELECT s.file_unique_id AS sticker_id, s.file_id, s.set_name, u.usage_count::float8 AS score
	FROM sticker_usages u
	JOIN stickers s ON s.file_unique_id = u.sticker_id
	JOIN sticker_sets ss ON ss.name = s.set_name
	WHERE u.user_id = @user_id AND u.usage_count > 0
		AND NOT s.banned AND NOT ss.banned AND NOT ss.deleted
	ORDER BY u.usage_count DESC, u.updated_at DESC, s.file_unique_id COLLATE "C"`

	strictStickerSets = `WITH ` + queryTokens + `, ` + visibleStickers + `, ` + strictScores + `
		SELECT ss.name, ss.title, sum(s.score)::float8 AS score
		FROM strict s
		JOIN sticker_sets ss ON ss.name = s.set_name
		WHERE s.score > 0
		GROUP BY ss.name, ss.title
		ORDER BY score DESC, ss.name COLLATE "C"`

	setPreviews = `SELECT sticker_id, file_id, set_name FROM (
		SELECT s.file_unique_id AS sticker_id, s.file_id, s.set_name,
			row_number() OVER (PARTITION BY s.set_name ORDER BY s.file_unique_id COLLATE "C") AS n
		FROM stickers s
		WHERE s.set_name IN ? AND NOT s.banned
	) p WHERE n <= ?
	ORDER BY set_name, sticker_id COLLATE "C"`
)

type setRow struct {
	Name  string
	Title string
	Score float64
}

func filterArgs(f search.Filter) map[string]interface{} {
	tags := f.Tags
	if tags == nil {
		tags = []string{}
	}
	return map[string]interface{}{
		"tags":          pq.StringArray(tags),
		"user_id":       f.UserID,
		"international": f.International,
		"deluxe":        f.Deluxe,
		"nsfw":          f.NSFW,
		"furry":         f.Furry,
		"with_usage":    f.WithUsage,
	}
}

// page appends LIMIT/OFFSET; a zero limit means no limit.
func page(query string, args map[string]interface{}, offset, limit int) string {
	args["offset"] = offset
	if limit <= 0 {
		return query + " OFFSET @offset\n"
	}
	args["limit"] = limit
	return query + " LIMIT @limit OFFSET @offset\n"
}

func (s *Store) results(ctx context.Context, op, query string, args map[string]interface{}) ([]search.Result, error) {
	results := make([]search.Result, 0)
	err := s.db.WithContext(ctx).Raw(query, args).Scan(&results).Error
	if err != nil {
		return nil, storage.Wrap(op, err)
	}
	return results, nil
}

func (s *Store) StrictStickers(ctx context.Context, f search.Filter, offset, limit int) ([]search.Result, error) {
	args := filterArgs(f)
	return s.results(ctx, "strict stickers", page(strictStickers, args, offset, limit), args)
}

func (s *Store) StrictStickerIDs(ctx context.Context, f search.Filter) ([]string, error) {
	results, err := s.StrictStickers(ctx, f, 0, 0)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.StickerID)
	}
	return ids, nil
}

func (s *Store) FuzzyStickers(ctx context.Context, f search.Filter, exclude []string, offset, limit int) ([]search.Result, error) {
	args := filterArgs(f)
	if exclude == nil {
		exclude = []string{}
	}
	args["exclude"] = pq.StringArray(exclude)
	return s.results(ctx, "fuzzy stickers", page(fuzzyStickers, args, offset, limit), args)
}

func (s *Store) FavoriteStickers(ctx context.Context, f search.Filter, offset, limit int) ([]search.Result, error) {
	args := map[string]interface{}{"user_id": f.UserID}
	return s.results(ctx, "favorite stickers", page(favoriteStickers, args, offset, limit), args)
}

func (s *Store) StrictStickerSets(ctx context.Context, f search.Filter, offset, limit int) ([]search.SetResult, error) {
	args := filterArgs(f)
	var rows []setRow
	err := s.db.WithContext(ctx).Raw(page(strictStickerSets, args, offset, limit), args).Scan(&rows).Error
	if err != nil {
		return nil, storage.Wrap("strict sticker sets", err)
	}
	sets := make([]search.SetResult, 0, len(rows))
	if len(rows) == 0 {
		return sets, nil
	}

	names := make([]string, 0, len(rows))
	for _, row := range rows {
		names = append(names, row.Name)
		sets = append(sets, search.SetResult{Name: row.Name, Title: row.Title, Score: row.Score})
	}
	var previews []search.Result
	err = s.db.WithContext(ctx).Raw(setPreviews, names, MaxSetPreviews).Scan(&previews).Error
	if err != nil {
		return nil, storage.Wrap("sticker set previews", err)
	}

	bySet := make(map[string][]search.Result, len(sets))
	for _, p := range previews {
		bySet[p.SetName] = append(bySet[p.SetName], p)
	}
	for i := range sets {
		sets[i].Previews = bySet[sets[i].Name]
		if sets[i].Previews == nil {
			sets[i].Previews = []search.Result{}
		}
	}
	return sets, nil
}

func (s *Store) CreateInlineQuery(ctx context.Context, query *model.InlineQuery) error {
	return storage.Wrap("create inline query", s.db.WithContext(ctx).Create(query).Error)
}

func (s *Store) SaveInlineQueryRequest(ctx context.Context, request *model.InlineQueryRequest) error {
	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}
	return storage.Wrap("save inline query request", s.db.WithContext(ctx).Create(request).Error)
}

// IncrementUsage bumps the pick counter of a sticker for a user, creating the
// row on the first pick.
func (s *Store) IncrementUsage(ctx context.Context, userID int64, stickerID string) error {
	now := time.Now()
	usage := model.StickerUsage{
		UserID:     userID,
		StickerID:  stickerID,
		UsageCount: 1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "sticker_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"usage_count": gorm.Expr("sticker_usages.usage_count + 1"),
			"updated_at":  now,
		}),
	}).Create(&usage).Error
	return storage.Wrap("increment usage", err)
}
