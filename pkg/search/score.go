package search

import (
	"sort"
	"strings"

	"tele-sticker-search/model"
)

// Ranking weights. They are fixed, not tuned at runtime.
const (
	SetMatchWeight      = 0.75
	TextMatchWeight     = 0.40
	UsageWeight         = 0.25
	FuzzyTextWeight     = 0.30
	SimilarityThreshold = 0.3
)

// Document is the scoring view of a sticker. Tags holds only the tag names
// visible in the requester's language partition.
type Document struct {
	StickerID string
	SetName   string
	SetTitle  string
	Text      string
	Tags      []string
}

// NewDocument builds the scoring view of sticker s in set.
func NewDocument(s model.Sticker, set model.StickerSet, tags []model.Tag, international bool) Document {
	doc := Document{
		StickerID: s.FileUniqueID,
		SetName:   set.Name,
		SetTitle:  set.Title,
		Text:      strings.ToLower(s.TextOrEmpty()),
	}
	for _, t := range tags {
		if TagVisible(t, international) {
			doc.Tags = append(doc.Tags, t.Name)
		}
	}
	return doc
}

// TagVisible reports whether a tag counts for a requester: default-language
// tags always do, international ones only for international users.
func TagVisible(t model.Tag, international bool) bool {
	return t.IsDefaultLanguage || international
}

// Visible applies the pack and sticker filters shared by every search mode.
func Visible(s model.Sticker, set model.StickerSet, f Filter) bool {
	switch {
	case s.Banned, set.Banned, set.Deleted, !set.Reviewed:
		return false
	case set.NSFW != f.NSFW, set.Furry != f.Furry:
		return false
	case set.International && !f.International:
		return false
	case f.Deluxe && !set.Deluxe:
		return false
	}
	return true
}

// StrictScore counts exact tag hits plus substring hits on pack name/title and
// on the sticker's recognized text.
func StrictScore(tokens []string, doc Document) float64 {
	wanted := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		wanted[token] = struct{}{}
	}

	score := 0.0
	for _, tag := range doc.Tags {
		if _, ok := wanted[tag]; ok {
			score++
		}
	}

	name, title := strings.ToLower(doc.SetName), strings.ToLower(doc.SetTitle)
	for _, token := range tokens {
		if strings.Contains(name, token) || strings.Contains(title, token) {
			score += SetMatchWeight
		}
		if doc.Text != "" && strings.Contains(doc.Text, token) {
			score += TextMatchWeight
		}
	}
	return score
}

// UsageScore is the bonus for a sticker the user picked count times before.
func UsageScore(count int) float64 {
	return UsageWeight * float64(count)
}

// FuzzyScore sums, per distinct tag name, the best similarity any token reaches,
// adds the weighted best pack name/title similarity and a flat bonus for a
// similar sticker text. Similarities below SimilarityThreshold are ignored.
func FuzzyScore(tokens []string, doc Document) float64 {
	best := make(map[string]float64)
	setSim, textSim := 0.0, 0.0

	for _, token := range tokens {
		for _, tag := range doc.Tags {
			if sim := Similarity(tag, token); sim >= SimilarityThreshold && sim > best[tag] {
				best[tag] = sim
			}
		}
		setSim = max(setSim, Similarity(doc.SetName, token), Similarity(doc.SetTitle, token))
		if doc.Text != "" {
			textSim = max(textSim, Similarity(doc.Text, token))
		}
	}

	score := 0.0
	for _, sim := range best {
		score += sim
	}
	if setSim >= SimilarityThreshold {
		score += SetMatchWeight * setSim
	}
	if textSim >= SimilarityThreshold {
		score += FuzzyTextWeight
	}
	return score
}

// SetScore is the pack aggregate: the sum of strict scores of its stickers.
func SetScore(tokens []string, docs []Document) float64 {
	score := 0.0
	for _, doc := range docs {
		score += StrictScore(tokens, doc)
	}
	return score
}

// Less is the total result order: score desc, pack name asc, sticker id asc.
func Less(a, b Result) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.SetName != b.SetName {
		return a.SetName < b.SetName
	}
	return a.StickerID < b.StickerID
}

func SortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		return Less(results[i], results[j])
	})
}

// SortSetResults orders packs by score desc, then name asc.
func SortSetResults(sets []SetResult) {
	sort.Slice(sets, func(i, j int) bool {
		if sets[i].Score != sets[j].Score {
			return sets[i].Score > sets[j].Score
		}
		return sets[i].Name < sets[j].Name
	})
}
