package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tele-sticker-search/model"
)

func text(s string) *string { return &s }

func TestStrictScore(t *testing.T) {
	doc := Document{
		StickerID: "s1",
		SetName:   "z_mega_awesome",
		SetTitle:  "Mega Awesome",
		Text:      "good morning",
		Tags:      []string{"testtag", "cat"},
	}

	tests := []struct {
		name   string
		tokens []string
		want   float64
	}{
		{"one tag", []string{"testtag"}, 1},
		{"two tags", []string{"testtag", "cat"}, 2},
		{"pack name substring", []string{"mega"}, SetMatchWeight},
		{"pack title substring", []string{"awesome"}, SetMatchWeight},
		{"text substring", []string{"morning"}, TextMatchWeight},
		{"tag and text", []string{"cat", "good"}, 1 + TextMatchWeight},
		{"no match", []string{"dog"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, StrictScore(tt.tokens, doc), 1e-9)
		})
	}
}

func TestStrictScore_PackMatchCountsOncePerToken(t *testing.T) {
	doc := Document{SetName: "pack", SetTitle: "pack", Tags: []string{"x"}}
	assert.InDelta(t, SetMatchWeight, StrictScore([]string{"pa"}, doc), 1e-9)
	assert.InDelta(t, 2*SetMatchWeight, StrictScore([]string{"pa", "ck"}, doc), 1e-9)
	assert.Zero(t, StrictScore([]string{"o"}, Document{SetName: "zzz"}))
}

func TestUsageScore(t *testing.T) {
	assert.Zero(t, UsageScore(0))
	assert.InDelta(t, 0.25, UsageScore(1), 1e-9)
	assert.InDelta(t, 1.0, UsageScore(4), 1e-9)
}

func TestFuzzyScore(t *testing.T) {
	doc := Document{SetName: "a_dumb_shit", SetTitle: "A Dumb Shit", Tags: []string{"testtag", "roflcopter"}}

	score := FuzzyScore([]string{"testtagz"}, doc)
	assert.InDelta(t, 0.7, score, 1e-9)

	// the best similarity per tag counts once
	assert.InDelta(t, 1.0, FuzzyScore([]string{"testtagz", "testtag"}, doc), 1e-9)
	assert.Zero(t, FuzzyScore([]string{"xyz"}, doc))
}

func TestFuzzyScore_PackAndText(t *testing.T) {
	doc := Document{SetName: "kitties", SetTitle: "Kitties", Text: "hello there"}

	sim := Similarity("kitties", "kitty")
	assert.GreaterOrEqual(t, sim, SimilarityThreshold)
	assert.InDelta(t, SetMatchWeight*sim, FuzzyScore([]string{"kitty"}, doc), 1e-9)
	assert.InDelta(t, FuzzyTextWeight, FuzzyScore([]string{"hello"}, doc), 1e-9)
}

func TestSetScore(t *testing.T) {
	docs := []Document{
		{SetName: "p", Tags: []string{"cat"}},
		{SetName: "p", Tags: []string{"cat", "dog"}},
		{SetName: "p", Tags: []string{"bird"}},
	}
	assert.InDelta(t, 3, SetScore([]string{"cat", "dog"}, docs), 1e-9)
}

func TestNewDocument_TagVisibility(t *testing.T) {
	sticker := model.Sticker{FileUniqueID: "s1", Text: text("HeLLo")}
	set := model.StickerSet{Name: "pack", Title: "Pack"}
	tags := []model.Tag{
		{ID: 1, Name: "cat", IsDefaultLanguage: true},
		{ID: 2, Name: "katze", IsDefaultLanguage: false},
	}

	doc := NewDocument(sticker, set, tags, false)
	assert.Equal(t, []string{"cat"}, doc.Tags)
	assert.Equal(t, "hello", doc.Text)

	doc = NewDocument(sticker, set, tags, true)
	assert.Equal(t, []string{"cat", "katze"}, doc.Tags)
}

func TestVisible(t *testing.T) {
	reviewed := model.StickerSet{Name: "p", Reviewed: true}

	tests := []struct {
		name    string
		sticker model.Sticker
		set     model.StickerSet
		filter  Filter
		want    bool
	}{
		{"plain", model.Sticker{}, reviewed, Filter{}, true},
		{"banned sticker", model.Sticker{Banned: true}, reviewed, Filter{}, false},
		{"banned set", model.Sticker{}, model.StickerSet{Reviewed: true, Banned: true}, Filter{}, false},
		{"deleted set", model.Sticker{}, model.StickerSet{Reviewed: true, Deleted: true}, Filter{}, false},
		{"unreviewed set", model.Sticker{}, model.StickerSet{}, Filter{}, false},
		{"nsfw set without nsfw request", model.Sticker{}, model.StickerSet{Reviewed: true, NSFW: true}, Filter{}, false},
		{"nsfw set with nsfw request", model.Sticker{}, model.StickerSet{Reviewed: true, NSFW: true}, Filter{NSFW: true}, true},
		{"nsfw request hides sfw sets", model.Sticker{}, reviewed, Filter{NSFW: true}, false},
		{"furry set", model.Sticker{}, model.StickerSet{Reviewed: true, Furry: true}, Filter{}, false},
		{"furry request", model.Sticker{}, model.StickerSet{Reviewed: true, Furry: true}, Filter{Furry: true}, true},
		{"international set for default user", model.Sticker{}, model.StickerSet{Reviewed: true, International: true}, Filter{}, false},
		{"international set for international user", model.Sticker{}, model.StickerSet{Reviewed: true, International: true}, Filter{International: true}, true},
		{"deluxe user needs deluxe set", model.Sticker{}, reviewed, Filter{Deluxe: true}, false},
		{"deluxe user with deluxe set", model.Sticker{}, model.StickerSet{Reviewed: true, Deluxe: true}, Filter{Deluxe: true}, true},
		{"deluxe set for regular user", model.Sticker{}, model.StickerSet{Reviewed: true, Deluxe: true}, Filter{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Visible(tt.sticker, tt.set, tt.filter))
		})
	}
}

func TestSortResults(t *testing.T) {
	results := []Result{
		{StickerID: "b", SetName: "z", Score: 1},
		{StickerID: "a", SetName: "z", Score: 1},
		{StickerID: "c", SetName: "a", Score: 1},
		{StickerID: "d", SetName: "z", Score: 2},
	}
	SortResults(results)

	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.StickerID)
	}
	assert.Equal(t, []string{"d", "c", "a", "b"}, ids)
}

func TestSortSetResults(t *testing.T) {
	sets := []SetResult{{Name: "b", Score: 1}, {Name: "a", Score: 1}, {Name: "c", Score: 3}}
	SortSetResults(sets)
	assert.Equal(t, "c", sets[0].Name)
	assert.Equal(t, "a", sets[1].Name)
	assert.Equal(t, "b", sets[2].Name)
}
