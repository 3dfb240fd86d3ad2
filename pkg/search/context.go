package search

import (
	"tele-sticker-search/model"
	"tele-sticker-search/pkg/tagging"
)

// MaxQueryTags caps the tokens taken from an inline query.
const MaxQueryTags = 10

type Mode int

const (
	ModeSticker Mode = iota
	ModeStickerSet
	ModeFavorite
)

func (m Mode) String() string {
	switch m {
	case ModeSticker:
		return "sticker"
	case ModeStickerSet:
		return "sticker_set"
	case ModeFavorite:
		return "favorite"
	}
	return "unknown"
}

// Keywords that change the request instead of being searched for.
var (
	nsfwKeywords  = map[string]struct{}{"nsfw": {}}
	furryKeywords = map[string]struct{}{"furry": {}}
	setKeywords   = map[string]struct{}{"set": {}, "pack": {}}
)

// Context is a parsed search request.
type Context struct {
	Query string
	Tags  []string
	Mode  Mode
	NSFW  bool
	Furry bool
	User  model.User

	// SessionID is zero until the first page created the session.
	SessionID       int64
	StrictOffset    int
	FuzzyOffset     int
	SwitchedToFuzzy bool
	Done            bool
	Token           string
}

// ParseContext turns an inline query, its continuation token and the
// requesting user into a search request.
func ParseContext(query, token string, user model.User) (*Context, error) {
	c, err := parseToken(token)
	if err != nil {
		return nil, err
	}

	sc := &Context{
		Query:           query,
		User:            user,
		SessionID:       c.session,
		StrictOffset:    c.strictOffset,
		FuzzyOffset:     c.fuzzyOffset,
		SwitchedToFuzzy: c.fuzzy,
		Done:            c.done,
		Token:           token,
	}

	setMode := false
	for _, tag := range tagging.Extract(query, MaxQueryTags) {
		if _, ok := nsfwKeywords[tag]; ok {
			sc.NSFW = true
			continue
		}
		if _, ok := furryKeywords[tag]; ok {
			sc.Furry = true
			continue
		}
		if _, ok := setKeywords[tag]; ok {
			setMode = true
			continue
		}
		sc.Tags = append(sc.Tags, tag)
	}

	switch {
	case len(sc.Tags) == 0:
		sc.Mode = ModeFavorite
	case setMode:
		sc.Mode = ModeStickerSet
	default:
		sc.Mode = ModeSticker
	}
	return sc, nil
}

// Filter returns the storage filter for this request.
func (c *Context) Filter() Filter {
	return Filter{
		Tags:          c.Tags,
		UserID:        c.User.ID,
		International: c.User.International,
		Deluxe:        c.User.Deluxe,
		NSFW:          c.NSFW,
		Furry:         c.Furry,
		WithUsage:     c.Mode == ModeSticker,
	}
}
