package search

import "fmt"

// FormatError reports a continuation token this engine did not produce. The
// caller should restart the query from the first page.
type FormatError struct {
	Token  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed continuation token %q: %s", e.Token, e.Reason)
}

// InvariantError reports an offset/size combination outside the pagination
// rules. It always indicates a bug, never bad input.
type InvariantError struct {
	Token      string
	StrictSize int
	FuzzySize  int
	FuzzyLimit int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("pagination invariant violated for token %q: strict=%d fuzzy=%d fuzzy_limit=%d",
		e.Token, e.StrictSize, e.FuzzySize, e.FuzzyLimit)
}
