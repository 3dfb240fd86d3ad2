package search

import (
	"fmt"
	"strconv"
	"strings"
)

// TokenDone marks the end of a result sequence.
const TokenDone = "done"

// cursor is the decoded continuation token.
type cursor struct {
	session      int64
	strictOffset int
	fuzzyOffset  int
	fuzzy        bool
	done         bool
}

// parseToken decodes
//
//	token := "" | session ":" strict | session ":" strict ":" fuzzy | "done"
func parseToken(token string) (cursor, error) {
	switch token {
	case "":
		return cursor{}, nil
	case TokenDone:
		return cursor{done: true}, nil
	}

	fields := strings.Split(token, ":")
	if len(fields) != 2 && len(fields) != 3 {
		return cursor{}, &FormatError{Token: token, Reason: "expected 2 or 3 fields"}
	}

	values := make([]int64, len(fields))
	for i, field := range fields {
		v, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return cursor{}, &FormatError{Token: token, Reason: fmt.Sprintf("field %d is not an integer", i+1)}
		}
		if v < 0 {
			return cursor{}, &FormatError{Token: token, Reason: fmt.Sprintf("field %d is negative", i+1)}
		}
		values[i] = v
	}

	c := cursor{session: values[0], strictOffset: int(values[1])}
	if len(values) == 3 {
		c.fuzzy = true
		c.fuzzyOffset = int(values[2])
	}
	return c, nil
}

func strictToken(session int64, offset int) string {
	return fmt.Sprintf("%d:%d", session, offset)
}

func fuzzyToken(session int64, strictOffset, fuzzyOffset int) string {
	return fmt.Sprintf("%d:%d:%d", session, strictOffset, fuzzyOffset)
}
