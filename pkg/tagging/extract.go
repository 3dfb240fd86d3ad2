// Package tagging turns raw user text into normalized tag tokens.
package tagging

import (
	"regexp"
	"strings"
)

// DefaultMaxTags is the token cap used when a caller passes a non-positive max.
const DefaultMaxTags = 15

var (
	commandPrefix = regexp.MustCompile(`^/\w+(@\w+)?\s*`)

	requestMarkers = []string{"tags:", "tag:"}

	// Tokens containing one of these are links or bot plumbing, never tags.
	blacklist = []string{
		"telegram.me",
		"t.me/",
		"addstickers",
		"http://",
		"https://",
		"www.",
	}

	punctuation = ",.!?;:\"'()[]{}<>"
)

// Extract returns at most max normalized tokens found in text.
func Extract(text string, max int) []string {
	if max <= 0 {
		max = DefaultMaxTags
	}
	tokens := ExtractAll(text)
	if len(tokens) > max {
		tokens = tokens[:max]
	}
	return tokens
}

// ExtractAll runs the full normalization without truncating the result.
func ExtractAll(text string) []string {
	text = strings.TrimSpace(strings.ToLower(text))
	mention := strings.HasPrefix(text, "@")

	text = commandPrefix.ReplaceAllString(text, "")
	for _, marker := range requestMarkers {
		if strings.HasPrefix(text, marker) {
			text = strings.TrimPrefix(text, marker)
			break
		}
	}

	tokens := make([]string, 0)
	for _, field := range strings.Fields(text) {
		// Stripping and collapsing can join a blacklisted word back together.
		if blacklisted(field) {
			continue
		}
		field = stripPunctuation(field)
		if field == "" || blacklisted(field) {
			continue
		}
		field = collapseRuns(field)
		if blacklisted(field) {
			continue
		}
		tokens = append(tokens, field)
	}

	// "@somebot cat" pasted from an inline query.
	if mention && len(tokens) > 0 && strings.Contains(tokens[0], "bot") {
		tokens = tokens[1:]
	}

	seen := make(map[string]struct{}, len(tokens))
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		result = append(result, token)
	}
	return result
}

func blacklisted(token string) bool {
	for _, entry := range blacklist {
		if strings.Contains(token, entry) {
			return true
		}
	}
	return false
}

func stripPunctuation(token string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(punctuation, r) {
			return -1
		}
		return r
	}, token)
}

// collapseRuns shortens every run of three or more identical runes to two.
func collapseRuns(token string) string {
	var b strings.Builder
	b.Grow(len(token))

	var last rune
	run := 0
	for i, r := range token {
		if i > 0 && r == last {
			run++
		} else {
			run = 1
		}
		last = r
		if run <= 2 {
			b.WriteRune(r)
		}
	}
	return b.String()
}
