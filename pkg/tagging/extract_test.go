package tagging

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want []string
	}{
		{"simple", "Cat Dog", 0, []string{"cat", "dog"}},
		{"trims and lowers", "   HeLLo   World  ", 0, []string{"hello", "world"}},
		{"command prefix", "/tag funny cat", 0, []string{"funny", "cat"}},
		{"command with bot name", "/replace@stickerbot funny", 0, []string{"funny"}},
		{"request marker", "tags: happy sad", 0, []string{"happy", "sad"}},
		{"blacklisted link", "https://telegram.me/addstickers/foo", 0, []string{}},
		{"blacklisted among others", "cool t.me/foo stuff", 0, []string{"cool", "stuff"}},
		{"blacklisted after stripping", "add(stickers cat", 0, []string{"cat"}},
		{"blacklisted after collapsing", "adddstickers cat", 0, []string{"cat"}},
		{"punctuation", "cat, dog! (bird)", 0, []string{"cat", "dog", "bird"}},
		{"punctuation inside token is removed, not split", "cat,dog", 0, []string{"catdog"}},
		{"only punctuation", "... !!! ,,,", 0, []string{}},
		{"bot mention", "@stickerfinderbot cat", 0, []string{"cat"}},
		{"mention without bot", "@someone cat", 0, []string{"@someone", "cat"}},
		{"bot word without mention", "robot cat", 0, []string{"robot", "cat"}},
		{"dedupe keeps first", "b a b c a", 0, []string{"b", "a", "c"}},
		{"run collapse", "soooo cuuuute", 0, []string{"soo", "cuute"}},
		{"collapse then dedupe", "sooo soooooo so", 0, []string{"soo", "so"}},
		{"two identical chars kept", "cool", 0, []string{"cool"}},
		{"emoji", "😲 wow", 0, []string{"😲", "wow"}},
		{"max", "a b c d e", 3, []string{"a", "b", "c"}},
		{"empty", "", 0, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.text, tt.max))
		})
	}
}

func TestExtract_DefaultMax(t *testing.T) {
	words := make([]string, 0, 30)
	for i := 0; i < 30; i++ {
		words = append(words, "x"+string(rune('a'+i%26))+string(rune('a'+i/26)))
	}

	tokens := Extract(strings.Join(words, " "), 0)
	assert.Len(t, tokens, DefaultMaxTags)
	assert.Len(t, ExtractAll(strings.Join(words, " ")), 30)
}

func TestExtract_Properties(t *testing.T) {
	inputs := []string{
		"aaaa aaaa aaa bbbbbbb",
		"/tag https://t.me/addstickers/x cool cool cool",
		"@mybot @mybot heyyyyy heyyy",
		"tags: ???? !!!! www.example.com nice",
		"Mixed CASE case Case",
		"a.b.c a,b,c abc",
		strings.Repeat("z", 100),
		"🔥🔥🔥🔥 fire",
		"add(stickers",
		"adddstickers cat",
		"t.me/ www..x telegram.(me)",
	}

	for _, input := range inputs {
		for _, max := range []int{1, 2, 5, 10} {
			tokens := Extract(input, max)
			require.LessOrEqual(t, len(tokens), max, input)

			seen := map[string]bool{}
			for _, token := range tokens {
				assert.False(t, seen[token], "duplicate %q in %q", token, input)
				seen[token] = true
				assert.NotEmpty(t, token)
				for _, entry := range blacklist {
					assert.NotContains(t, token, entry)
				}
				assert.False(t, hasTripleRun(token), "run of three in %q", token)
			}
		}
	}
}

func TestCollapseRuns(t *testing.T) {
	assert.Equal(t, "aa", collapseRuns("aaaaaa"))
	assert.Equal(t, "aabbaa", collapseRuns("aaabbbbaaa"))
	assert.Equal(t, "🔥🔥", collapseRuns("🔥🔥🔥"))
	assert.Equal(t, "", collapseRuns(""))
}

func hasTripleRun(token string) bool {
	runes := []rune(token)
	for i := 2; i < len(runes); i++ {
		if runes[i] == runes[i-1] && runes[i] == runes[i-2] {
			return true
		}
	}
	return false
}
