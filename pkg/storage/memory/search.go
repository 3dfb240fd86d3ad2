package memory

import (
	"context"
	"sort"

	"tele-sticker-search/model"
	"tele-sticker-search/pkg/search"
)

// MaxSetPreviews is the number of stickers attached to a pack result.
const MaxSetPreviews = 5

func (s *Store) CreateInlineQuery(_ context.Context, query *model.InlineQuery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.st.nextQueryID++
	query.ID = s.st.nextQueryID
	if query.CreatedAt.IsZero() {
		query.CreatedAt = s.now()
	}
	s.st.queries[query.ID] = *query
	return nil
}

func (s *Store) SaveInlineQueryRequest(_ context.Context, request *model.InlineQueryRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.requests = append(s.st.requests, *request)
	return nil
}

// InlineQueryRequests returns the recorded pages of a session.
func (s *Store) InlineQueryRequests(session int64) []model.InlineQueryRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	requests := make([]model.InlineQueryRequest, 0)
	for _, r := range s.st.requests {
		if r.InlineQueryID == session {
			requests = append(requests, r)
		}
	}
	return requests
}

func (s *Store) IncrementUsage(_ context.Context, userID int64, stickerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	key := usageKey{userID: userID, stickerID: stickerID}
	usage, ok := s.st.usage[key]
	if !ok {
		usage = model.StickerUsage{UserID: userID, StickerID: stickerID, CreatedAt: now}
	}
	usage.UsageCount++
	usage.UpdatedAt = now
	s.st.usage[key] = usage
	return nil
}

func (s *Store) StrictStickers(_ context.Context, f search.Filter, offset, limit int) ([]search.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return paginate(s.strictResults(f), offset, limit), nil
}

func (s *Store) StrictStickerIDs(_ context.Context, f search.Filter) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := s.strictResults(f)
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.StickerID)
	}
	return ids, nil
}

func (s *Store) FuzzyStickers(_ context.Context, f search.Filter, exclude []string, offset, limit int) ([]search.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	skip := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		skip[id] = struct{}{}
	}

	results := make([]search.Result, 0)
	for _, c := range s.candidates(f) {
		if _, ok := skip[c.sticker.FileUniqueID]; ok {
			continue
		}
		if score := search.FuzzyScore(f.Tags, c.doc); score > 0 {
			results = append(results, c.result(score))
		}
	}
	search.SortResults(results)
	return paginate(results, offset, limit), nil
}

func (s *Store) FavoriteStickers(_ context.Context, f search.Filter, offset, limit int) ([]search.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	usages := make([]model.StickerUsage, 0)
	for key, usage := range s.st.usage {
		if key.userID != f.UserID || usage.UsageCount == 0 {
			continue
		}
		sticker, ok := s.st.stickers[key.stickerID]
		if !ok || sticker.Banned {
			continue
		}
		set := s.st.sets[sticker.SetName]
		if set.Banned || set.Deleted {
			continue
		}
		usages = append(usages, usage)
	}
	sort.Slice(usages, func(i, j int) bool {
		a, b := usages[i], usages[j]
		if a.UsageCount != b.UsageCount {
			return a.UsageCount > b.UsageCount
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.StickerID < b.StickerID
	})

	results := make([]search.Result, 0, len(usages))
	for _, usage := range usages {
		sticker := s.st.stickers[usage.StickerID]
		results = append(results, search.Result{
			StickerID: sticker.FileUniqueID,
			FileID:    sticker.FileID,
			SetName:   sticker.SetName,
			Score:     float64(usage.UsageCount),
		})
	}
	return paginate(results, offset, limit), nil
}

func (s *Store) StrictStickerSets(_ context.Context, f search.Filter, offset, limit int) ([]search.SetResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bySet := make(map[string]*search.SetResult)
	for _, c := range s.candidates(f) {
		score := search.StrictScore(f.Tags, c.doc)
		if score == 0 {
			continue
		}
		r, ok := bySet[c.set.Name]
		if !ok {
			r = &search.SetResult{Name: c.set.Name, Title: c.set.Title}
			bySet[c.set.Name] = r
		}
		r.Score += score
	}

	sets := make([]search.SetResult, 0, len(bySet))
	for _, r := range bySet {
		r.Previews = s.previews(r.Name)
		sets = append(sets, *r)
	}
	search.SortSetResults(sets)

	if offset >= len(sets) {
		return []search.SetResult{}, nil
	}
	end := len(sets)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return sets[offset:end], nil
}

type candidate struct {
	sticker model.Sticker
	set     model.StickerSet
	doc     search.Document
}

func (c candidate) result(score float64) search.Result {
	return search.Result{
		StickerID: c.sticker.FileUniqueID,
		FileID:    c.sticker.FileID,
		SetName:   c.set.Name,
		Score:     score,
	}
}

// candidates returns every sticker passing the visibility filters.
func (s *Store) candidates(f search.Filter) []candidate {
	out := make([]candidate, 0, len(s.st.stickers))
	for _, sticker := range s.st.stickers {
		set, ok := s.st.sets[sticker.SetName]
		if !ok || !search.Visible(sticker, set, f) {
			continue
		}
		tags := s.st.stickerTagList(sticker.FileUniqueID)
		out = append(out, candidate{
			sticker: sticker,
			set:     set,
			doc:     search.NewDocument(sticker, set, tags, f.International),
		})
	}
	return out
}

func (s *Store) strictResults(f search.Filter) []search.Result {
	results := make([]search.Result, 0)
	for _, c := range s.candidates(f) {
		score := search.StrictScore(f.Tags, c.doc)
		if score == 0 {
			continue
		}
		if f.WithUsage {
			usage := s.st.usage[usageKey{userID: f.UserID, stickerID: c.sticker.FileUniqueID}]
			score += search.UsageScore(usage.UsageCount)
		}
		results = append(results, c.result(score))
	}
	search.SortResults(results)
	return results
}

func (s *Store) previews(setName string) []search.Result {
	stickers := make([]model.Sticker, 0)
	for _, sticker := range s.st.stickers {
		if sticker.SetName == setName && !sticker.Banned {
			stickers = append(stickers, sticker)
		}
	}
	sort.Slice(stickers, func(i, j int) bool { return stickers[i].FileUniqueID < stickers[j].FileUniqueID })
	if len(stickers) > MaxSetPreviews {
		stickers = stickers[:MaxSetPreviews]
	}

	previews := make([]search.Result, 0, len(stickers))
	for _, sticker := range stickers {
		previews = append(previews, search.Result{
			StickerID: sticker.FileUniqueID,
			FileID:    sticker.FileID,
			SetName:   setName,
		})
	}
	return previews
}

func paginate(results []search.Result, offset, limit int) []search.Result {
	if offset >= len(results) {
		return []search.Result{}
	}
	end := len(results)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return results[offset:end]
}
