package graphstore

import (
	"regexp"
	"strings"
)

var mutatingKeyword = regexp.MustCompile(`(?i)\b(delete|remove|set|merge|create|drop)\b`)

// CheckReadOnly rejects any statement containing a mutating keyword as a whole
// word, wherever it appears (string literals included).
func CheckReadOnly(query string) error {
	if m := mutatingKeyword.FindString(query); m != "" {
		return &SafetyRejection{Keyword: strings.ToLower(m)}
	}
	return nil
}
